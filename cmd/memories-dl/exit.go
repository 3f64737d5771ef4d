package main

import (
	"context"
	"errors"
	"strconv"
)

// Exit codes
const (
	exitOK        = 0
	exitFailures  = 1
	exitUsage     = 2
	exitInterrupt = 130
)

// exitError carries a process exit code out of a command. err may be nil
// when the command already reported the problem itself.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return "exit status " + strconv.Itoa(e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error {
	return &exitError{code: exitUsage, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if errors.Is(err, context.Canceled) {
		return exitInterrupt
	}
	return exitUsage
}
