// Command tarnctl is a small batch client (put/get/ls/gc) against a
// DiskDict storage root.
package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tarnstore/tarn/internal/tarnctlcli"
)

func main() {
	environ := os.Environ()
	env := make(map[string]string, len(environ))

	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := tarnctlcli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args, env, sigCh)

	os.Exit(exitCode)
}
