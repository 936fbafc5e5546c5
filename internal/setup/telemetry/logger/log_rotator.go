package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LogRotator wraps an io.Writer and maintains a fixed number of lines.
// A non-positive line limit disables rotation.
type LogRotator struct {
	writer   io.Writer
	window   *lineWindow
	filePath string
	mutex    sync.Mutex
}

// NewLogRotator creates a new LogRotator.
func NewLogRotator(writer io.Writer, maxLines int, filePath string) *LogRotator {
	rotator := &LogRotator{
		writer:   writer,
		filePath: filePath,
	}
	if maxLines > 0 {
		rotator.window = newLineWindow(maxLines)
	}
	return rotator
}

// Write implements io.Writer. Once the file holds twice the window it is cut back to the window.
func (w *LogRotator) Write(p []byte) (n int, err error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	n, err = w.writer.Write(p)
	if err != nil || w.window == nil {
		return n, err
	}

	for line := range strings.SplitSeq(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" || !w.window.push(line) {
			continue
		}

		if err := w.rotate(); err != nil {
			return n, fmt.Errorf("failed to rotate log file: %w", err)
		}
		w.window.rewritten()
	}

	return n, nil
}

// rotate replaces the log file with the retained lines.
func (w *LogRotator) rotate() error {
	lines := w.window.snapshot()
	if len(lines) == 0 {
		return nil
	}

	// Create a temporary file
	temp, err := os.CreateTemp(filepath.Dir(w.filePath), "temp-log-")
	if err != nil {
		return err
	}

	tempPath := temp.Name()

	// Write all lines in one operation
	content := strings.Join(lines, "\n") + "\n"
	if _, err := temp.WriteString(content); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return err
	}

	if err := temp.Sync(); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return err
	}

	temp.Close()

	// Close the original writer if it implements io.Closer
	if closer, ok := w.writer.(io.Closer); ok {
		closer.Close()
	}

	// Windows cannot rename over an existing file
	os.Remove(w.filePath)

	// Rename temp file to original
	if err := os.Rename(tempPath, w.filePath); err != nil {
		return err
	}

	// Reopen the file for writing
	newFile, err := os.OpenFile(w.filePath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	// Update the writer
	w.writer = newFile

	return nil
}
