package testkit

import (
	"errors"
	"fmt"

	"wakeloop/internal/asyncrt"
)

// CheckTaskInvariants verifies the scheduling record of a finished task:
//  1. the task completed
//  2. every admission to the ready queue was followed by exactly one poll
//  3. the task was admitted at most once per suspension, plus the spawn
func CheckTaskInvariants(info asyncrt.TaskInfo) error {
	if info.Status != asyncrt.TaskDone {
		return fmt.Errorf("task %d %q: not completed (%s)", info.ID, info.Name, info.Status)
	}
	if info.Admissions != info.Polls {
		return fmt.Errorf("task %d %q: %d admissions but %d polls", info.ID, info.Name, info.Admissions, info.Polls)
	}
	if info.Admissions > info.Suspends+1 {
		return fmt.Errorf("task %d %q: %d admissions for %d suspensions", info.ID, info.Name, info.Admissions, info.Suspends)
	}
	return nil
}

// CheckAll runs CheckTaskInvariants over every handle and returns one error
// per violating task, joined.
func CheckAll[T any](handles []*asyncrt.JoinHandle[T]) (violations int, err error) {
	var errs []error
	for _, h := range handles {
		if err := CheckTaskInvariants(h.Info()); err != nil {
			errs = append(errs, err)
		}
	}
	return len(errs), errors.Join(errs...)
}
