package main

import "fmt"

// errWrongArgCount builds the argument-count error shared by every
// sub-command's Args validator.
func errWrongArgCount(use, usage string, want, got int) error {
	return fmt.Errorf("%s: expected %d argument(s) (%s), got %d", use, want, usage, got)
}
