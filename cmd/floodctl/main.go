// Command floodctl is the operator CLI: it runs discovery once, prints the
// summary table, renders the command list for a selection, checks a data
// source, writes fixture datasets, and reads the discovery archive.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
