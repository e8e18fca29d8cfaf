package main

import (
	"fmt"
	"runtime"
)

// Build-time variables injected via linker flags (ldflags).
//
// Development builds report "dev"; release builds pass
//
//	go build -ldflags "-X main.Version=$(git describe --tags) ..."
//
// to overwrite these string variables at link time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// printVersion prints version information to stdout.
func printVersion() {
	fmt.Printf("firedrake-slac %s (%s/%s)\n", Version, runtime.GOOS, runtime.GOARCH)
	if Commit != "unknown" {
		fmt.Printf("  commit: %s\n", Commit)
	}
	if BuildDate != "unknown" {
		fmt.Printf("  built:  %s\n", BuildDate)
	}
}
