// Package ui is the dialog and notification capability the core talks to.
package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Level is a notification severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Dialog asks the user things and tells the user things.
type Dialog interface {
	// Confirm returns false when the user declines or dismisses.
	Confirm(ctx context.Context, content string) bool
	// Prompt returns ok=false when the user dismisses.
	Prompt(ctx context.Context, content, def string) (string, bool)
	Notify(level Level, message string)
}

// Terminal is a line-oriented Dialog over a reader and a writer.
type Terminal struct {
	mu        sync.Mutex
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool
}

// NewTerminal creates a terminal dialog. With assumeYes every confirmation
// is accepted and every prompt takes its default without reading input.
func NewTerminal(in io.Reader, out io.Writer, assumeYes bool) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out, assumeYes: assumeYes}
}

func (t *Terminal) readLine(ctx context.Context) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	line, err := t.in.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimSpace(line), true
}

// Confirm implements Dialog.
func (t *Terminal) Confirm(ctx context.Context, content string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.out, "%s [y/N]: ", content)
	if t.assumeYes {
		fmt.Fprintln(t.out, "y")
		return true
	}
	line, ok := t.readLine(ctx)
	if !ok {
		fmt.Fprintln(t.out)
		return false
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true
	}
	return false
}

// Prompt implements Dialog. An empty answer takes the default.
func (t *Terminal) Prompt(ctx context.Context, content, def string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if def != "" {
		fmt.Fprintf(t.out, "%s [%s]: ", content, def)
	} else {
		fmt.Fprintf(t.out, "%s: ", content)
	}
	if t.assumeYes {
		fmt.Fprintln(t.out, def)
		return def, true
	}
	line, ok := t.readLine(ctx)
	if !ok {
		fmt.Fprintln(t.out)
		return "", false
	}
	if line == "" {
		return def, true
	}
	return line, true
}

// Notify implements Dialog.
func (t *Terminal) Notify(level Level, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "[%s] %s\n", level, message)
}
