package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLog(t *testing.T) (*os.File, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "main.log")
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { _ = file.Close() })

	return file, path
}

func TestLogRotator_KeepsLastLines(t *testing.T) {
	t.Parallel()

	file, path := openLog(t)
	rotator := NewLogRotator(file, 3, path)

	for i := range 6 {
		_, err := fmt.Fprintf(rotator, "line %d\n", i)
		require.NoError(t, err)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line 3\nline 4\nline 5\n", string(data))

	// Writes continue on the reopened file
	_, err = fmt.Fprintln(rotator, "line 6")
	require.NoError(t, err)

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "line 5\nline 6\n"))
}

func TestLogRotator_Unlimited(t *testing.T) {
	t.Parallel()

	file, path := openLog(t)
	rotator := NewLogRotator(file, 0, path)

	for i := range 10 {
		_, err := fmt.Fprintf(rotator, "line %d\n", i)
		require.NoError(t, err)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 10)
}

func TestLineWindow(t *testing.T) {
	t.Parallel()

	w := newLineWindow(2)
	assert.Empty(t, w.snapshot())

	assert.False(t, w.push("a"))
	assert.Equal(t, []string{"a"}, w.snapshot())

	assert.False(t, w.push("b"))
	assert.False(t, w.push("c"))
	assert.Equal(t, []string{"b", "c"}, w.snapshot())

	// The file holds a, b, c, d: twice the window
	assert.True(t, w.push("d"))
	assert.Equal(t, []string{"c", "d"}, w.snapshot())

	w.rewritten()
	assert.False(t, w.push("e"))
	assert.True(t, w.push("f"))
	assert.Equal(t, []string{"e", "f"}, w.snapshot())
}
