//go:build linux

package main

import "testing"

// TestRunNoArgsFails covers spec's argument-gating testable property: with
// no arguments, exit is non-success.
func TestRunNoArgsFails(t *testing.T) {
	if code := run(nil); code != 1 {
		t.Fatalf("run(nil) = %d, want 1", code)
	}
}

// TestRunCommandWithoutSeparatorFails covers the same property's second
// half: a command with no "--" separator is also a usage error.
func TestRunCommandWithoutSeparatorFails(t *testing.T) {
	if code := run([]string{"echo", "hi"}); code != 1 {
		t.Fatalf("run without separator = %d, want 1", code)
	}
}

// TestRunHelpSucceeds covers the -h/--help exit-0 contract.
func TestRunHelpSucceeds(t *testing.T) {
	if code := run([]string{"-h"}); code != 0 {
		t.Fatalf("run(-h) = %d, want 0", code)
	}
}

// TestRunMissingWatchPathFails covers spec's watch-target validation
// property: a -f path that does not exist yields exit code 1, both in
// non-recursive and recursive mode.
func TestRunMissingWatchPathFails(t *testing.T) {
	for _, args := range [][]string{
		{"-f", "/does/not/exist", "--", "true"},
		{"-r", "-f", "/does/not/exist", "--", "true"},
	} {
		if code := run(args); code != 1 {
			t.Fatalf("run(%v) = %d, want 1", args, code)
		}
	}
}
