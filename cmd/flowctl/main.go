// Package main is the entry point for flowctl, flowdag's administrative
// and introspection command-line client.
package main

import (
	"fmt"
	"os"

	"flowdag/cmd/flowctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
