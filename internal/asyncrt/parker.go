package asyncrt

import "time"

// parker blocks idle runners until work arrives. unpark may be called from
// any goroutine; a single unpark releases at least one park call, current or
// future.
type parker interface {
	park(timeout time.Duration)
	unpark()
	close() error
}

type chanParker struct {
	ch chan struct{}
}

func newChanParker() *chanParker {
	return &chanParker{ch: make(chan struct{}, 1)}
}

func (p *chanParker) unpark() {
	select {
	case p.ch <- struct{}{}:
	default:
	}
}

func (p *chanParker) park(timeout time.Duration) {
	if timeout < 0 {
		<-p.ch
		return
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.ch:
	case <-t.C:
	}
}

func (p *chanParker) close() error {
	return nil
}
