//go:build !unix

package main

import (
	"github.com/fabacab/chkrelease/pkg/chkrelease/audit"
)

// notifyProgressSignal is a no-op where SIGUSR1 does not exist. Periodic
// progress via --progress still works.
func notifyProgressSignal(_ *audit.Auditor) func() {
	return func() {}
}
