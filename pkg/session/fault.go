package session

import (
	"errors"
	"fmt"
)

// FaultKind classifies the failures the user can act on
type FaultKind string

const (
	// FaultDisconnected means the signaling channel used up its retries
	FaultDisconnected FaultKind = "disconnected"
	// FaultSaveFailed means the canvas could not be saved to the backend
	FaultSaveFailed FaultKind = "save_failed"
	// FaultMediaUnavailable means no local capture could be acquired
	FaultMediaUnavailable FaultKind = "media_unavailable"
	// FaultLoadFailed means no canvas snapshot could be loaded
	FaultLoadFailed FaultKind = "load_failed"
)

var (
	ErrNoIdentity     = errors.New("no username configured and none found in token")
	ErrNotStarted     = errors.New("session not started")
	ErrSessionEnded   = errors.New("session has ended")
	ErrRetryExhausted = errors.New("reconnect attempts exhausted")
)

// Fault is the only error type handed to the UI collaborator
type Fault struct {
	Kind FaultKind `json:"kind"`
	Op   string    `json:"op"`
	Err  error     `json:"-"`
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.Op, f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Op, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

func newFault(kind FaultKind, op string, err error) *Fault {
	return &Fault{Kind: kind, Op: op, Err: err}
}
