//go:build unix

package main

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/fabacab/chkrelease/pkg/chkrelease/audit"
)

// notifyProgressSignal wires SIGUSR1 to an asynchronous progress request.
// The snapshot itself prints at the next entry boundary, so a handler
// never races the audit loop. The returned function stops the listener.
func notifyProgressSignal(a *audit.Auditor) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, unix.SIGUSR1)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigChan:
				a.RequestProgress()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}
