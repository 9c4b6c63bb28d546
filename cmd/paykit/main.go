// Command paykit runs the subscription billing service and the operator
// commands around it: migrations, maintenance runs and per-subscription
// lifecycle actions.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
