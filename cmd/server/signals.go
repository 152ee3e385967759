package main

import "os"

// shutdownSignals stop the server gracefully. os.Interrupt works everywhere;
// signals_unix.go adds SIGTERM.
var shutdownSignals = []os.Signal{os.Interrupt}
