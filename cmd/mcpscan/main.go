// Package main is the entry point for the mcpscan CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/luckyPipewrench/mcpscan/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			_, _ = fmt.Fprintln(os.Stderr, exitErr.Msg)
			os.Exit(exitErr.Code)
		}
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
