package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Sternrassler/release-radar/internal/config"
	"github.com/Sternrassler/release-radar/pkg/auth"
	"github.com/Sternrassler/release-radar/pkg/client"
	"github.com/fatih/color"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitGeneral = 1
	ExitAuth    = 2
	ExitConfig  = 3
	ExitPartial = 4
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCode maps an error returned by a command to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	switch {
	case auth.IsAuthError(err), client.IsAuth(err):
		return ExitAuth
	case errors.Is(err, config.ErrInvalid):
		return ExitConfig
	default:
		return ExitGeneral
	}
}

// printError writes err to w. Cancellation by signal is not reported.
func printError(w io.Writer, err error, useColor bool) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if useColor {
		c := color.New(color.FgRed, color.Bold)
		c.EnableColor()
		c.Fprintf(w, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "[ERROR] %v\n", err)
}
