package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/enspipe/enspipe/internal/app"
	"github.com/enspipe/enspipe/internal/cli"
)

func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run holds the real program logic so tests and main share one path.
func run(outW io.Writer, args []string) error {
	cfg, exitCleanly, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if exitCleanly {
		return nil
	}

	a, err := app.NewApp(outW, cfg)
	if err != nil {
		return err
	}
	return a.Run(context.Background())
}
