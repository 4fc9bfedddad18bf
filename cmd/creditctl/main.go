// Command creditctl provides admin utilities for Creditflow: tokens, seeding and sweeps.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
