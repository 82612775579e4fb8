// Command srpflow-sim drives SRP sign-ins against an in-memory identity
// provider. It is meant for trying configurations and for load testing
// the engine without a real user pool.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
