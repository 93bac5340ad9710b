package syncer

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned when a push is requested while another one
// is still running.
var ErrSyncInProgress = errors.New("sync already in progress")

// NotConnectedError is returned when no sync target is attached.
type NotConnectedError struct{}

func (e *NotConnectedError) Error() string {
	return "not connected to a sync target (run: hours sheets connect)"
}

// SyncError reports the push step that the target rejected. Steps committed
// before it are not rolled back.
type SyncError struct {
	Step string
	Err  error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed at %s: %v", e.Step, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
