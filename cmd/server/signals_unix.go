//go:build !windows

package main

import "syscall"

func init() {
	// Container runtimes stop processes with SIGTERM.
	shutdownSignals = append(shutdownSignals, syscall.SIGTERM)
}
