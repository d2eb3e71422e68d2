package process

import (
	"time"
)

// Stoppable is a started process that can be stopped and released.
type Stoppable interface {
	Stop(timeout time.Duration) error
	Close()
}

// StopCloseAndNil stops *p, closes it and sets it to nil. Close and the nil
// assignment happen even when Stop fails; the Stop error is returned. A nil
// p or *p is a no-op.
//
// The P/E pair restricts P to pointer types so the nil check needs no
// reflection; E is inferred.
func StopCloseAndNil[P interface {
	*E
	Stoppable
}, E any](p *P, timeout time.Duration) error {
	if p == nil || *p == nil {
		return nil
	}
	defer func() {
		(*p).Close()
		*p = nil
	}()
	return (*p).Stop(timeout)
}
