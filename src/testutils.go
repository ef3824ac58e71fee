package aircopy

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertOutputContains runs command with os.Stdout captured.
func AssertOutputContains(t *testing.T, command func(), expectedOutputContains string) {
	t.Helper()

	var oldStdout = os.Stdout
	defer func() {
		os.Stdout = oldStdout
	}()

	var r, w, _ = os.Pipe()
	os.Stdout = w

	var output = make(chan []byte)
	go func() {
		var b, _ = io.ReadAll(r)
		output <- b
	}()

	command()

	w.Close() //nolint:gosec

	os.Stdout = oldStdout

	var outputBytes = <-output
	require.NotNil(t, outputBytes)

	assert.Contains(t, string(outputBytes), expectedOutputContains)
}
