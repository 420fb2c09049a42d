// Package main provides the entry point for the barshelf CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/barshelf/cmd/barshelf/cmd"
	shelferrors "github.com/Aman-CERP/barshelf/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, shelferrors.FormatForCLI(err))
		os.Exit(1)
	}
}
