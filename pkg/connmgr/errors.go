// Package connmgr is the single point of entry for every caller that wants
// to talk to a device: a mutex-guarded singleton holding at most one live
// serial connection, with diagnostic helpers dispatching through the
// pkg/uds.Client and pkg/isotp.Engine built on top of it.
package connmgr

import "fmt"

// NotConnectedError reports an operation that requires a live connection
// being attempted while the manager holds none.
type NotConnectedError struct{}

func (e *NotConnectedError) Error() string { return "connmgr: not connected" }

// AlreadyConnectedError reports a Connect call while a connection is
// already open; callers must Disconnect first.
type AlreadyConnectedError struct {
	Device string
}

func (e *AlreadyConnectedError) Error() string {
	return fmt.Sprintf("connmgr: already connected to %s", e.Device)
}
