package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Azure/azure-cli-sub020/internal/cli"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		os.Exit(cli.ExitFailure)
	}
}

func run() error {
	return cli.NewRootCommand().Execute()
}
