//go:build linux

package asyncrt

import (
	"encoding/binary"
	"sync"
	"time"

	"fortio.org/safecast"
	"golang.org/x/sys/unix"
)

// eventfdParker parks idle runners in poll(2) on an eventfd. Every unpark
// writes; the eventfd counter coalesces them into one readable state, which
// a park drains. The executor only closes it once no runner can park again;
// mu keeps late unparks from writing to a closed descriptor.
type eventfdParker struct {
	mu     sync.RWMutex
	fd     int
	closed bool
}

func newParker() (parker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	return &eventfdParker{fd: fd}, nil
}

func (p *eventfdParker) unpark() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(p.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		// EAGAIN means the counter is saturated, which still reads as a wakeup
		return
	}
}

func (p *eventfdParker) park(timeout time.Duration) {
	ms := -1
	if timeout >= 0 {
		v, err := safecast.Conv[int](timeout.Milliseconds())
		if err != nil {
			v = 1 << 30
		}
		ms = max(v, 1)
	}

	pfds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLIN}} //nolint:gosec // eventfd descriptors are small
	for {
		n, err := unix.Poll(pfds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n == 0 {
			return
		}
		break
	}

	// a read resets the counter, so unparks racing this drain are consumed
	// here; callers re-check the ready queue before parking again
	var buf [8]byte
	for {
		_, err := unix.Read(p.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		return
	}
}

func (p *eventfdParker) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.fd)
}
