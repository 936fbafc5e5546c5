package logger

import "slices"

// lineWindow keeps the most recent lines written to a log file.
type lineWindow struct {
	lines []string
	next  int  // slot the next line goes to
	full  bool // every slot holds a line
	seen  int  // lines in the file since it was last rewritten
}

func newLineWindow(size int) *lineWindow {
	return &lineWindow{lines: make([]string, size)}
}

// push records line and reports whether the file now holds twice the window.
func (w *lineWindow) push(line string) bool {
	w.lines[w.next] = line
	w.next++
	if w.next == len(w.lines) {
		w.next = 0
		w.full = true
	}

	w.seen++
	return w.seen >= 2*len(w.lines)
}

// snapshot returns the retained lines, oldest first.
func (w *lineWindow) snapshot() []string {
	if !w.full {
		return slices.Clone(w.lines[:w.next])
	}
	return append(slices.Clone(w.lines[w.next:]), w.lines[:w.next]...)
}

// rewritten marks the file as holding exactly the retained lines.
func (w *lineWindow) rewritten() {
	w.seen = w.retained()
}

func (w *lineWindow) retained() int {
	if w.full {
		return len(w.lines)
	}
	return w.next
}
