// Package main implements the quill-api command: the HTTP server with its
// background item workers, plus operator commands for migrations, credit
// grants, ledger reconciliation and token minting.
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
