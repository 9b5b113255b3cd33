package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionFlagsOnDefaultCommand(t *testing.T) {
	// The bare binary runs a session, so every session flag must parse on
	// the root command as well as on 'run'.
	for _, name := range []string{"redis", "run-id", "threshold-timeout"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run --%s", name)
		assert.NotNil(t, rootCmd.Flags().Lookup(name), "--%s", name)
	}
}
