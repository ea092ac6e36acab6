// Package interact renders the operator-facing side of an authentication run
// on a terminal.
package interact

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/fatih/color"
	"github.com/pkg/browser"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/telekom/npmauth/pkg/npmauth/auth"
)

const indent = "  "

var _ auth.Interactor = (*Terminal)(nil)

// Terminal implements auth.Interactor on a pair of streams.
type Terminal struct {
	out     io.Writer
	in      io.Reader
	log     *zap.SugaredLogger
	noColor bool

	// Overridable for tests.
	copyText func(string) error
	openURL  func(string) error

	readerOnce sync.Once
	reader     *bufio.Reader
}

// Option customizes a Terminal.
type Option func(*Terminal)

// WithoutColor disables ANSI colors regardless of the output stream.
func WithoutColor() Option {
	return func(t *Terminal) { t.noColor = true }
}

// WithClipboard replaces the system clipboard.
func WithClipboard(copyText func(string) error) Option {
	return func(t *Terminal) { t.copyText = copyText }
}

// WithBrowser replaces the system browser launcher.
func WithBrowser(openURL func(string) error) Option {
	return func(t *Terminal) { t.openURL = openURL }
}

// NewTerminal writes prompts to out and reads confirmations from in.
func NewTerminal(in io.Reader, out io.Writer, log *zap.SugaredLogger, opts ...Option) *Terminal {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	t := &Terminal{
		out:      out,
		in:       in,
		log:      log,
		copyText: clipboard.WriteAll,
		openURL:  browser.OpenURL,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

func (t *Terminal) color(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if t.noColor {
		c.DisableColor()
	}
	return c
}

func (t *Terminal) Message(kind auth.MessageKind, text string) {
	switch kind {
	case auth.MessageProgress:
		_, _ = t.color(color.FgMagenta).Fprintln(t.out, indent+text)
	case auth.MessageWarning:
		_, _ = t.color(color.FgYellow).Fprintln(t.out, indent+text)
	case auth.MessageSuccess:
		_, _ = t.color(color.FgHiGreen).Fprintln(t.out, indent+text)
	default:
		_, _ = fmt.Fprintln(t.out, text)
	}
}

func (t *Terminal) RegistryFound(registry string) {
	cyan := t.color(color.FgCyan)
	_, _ = fmt.Fprintf(t.out, "%s %s %s\n",
		cyan.Sprint("●"),
		t.color(color.FgWhite).Sprint("Found registry"),
		cyan.Sprint(registry))
}

func (t *Terminal) RegistryDone(registry string) {
	_, _ = fmt.Fprintf(t.out, "%s%s You can now install packages from %s\n\n",
		indent, t.color(color.FgHiGreen).Sprint("✓ Done!"), registry)
}

func (t *Terminal) PresentDeviceCode(verificationURI, userCode string) {
	_, _ = fmt.Fprintf(t.out, "%sTo sign in, use a web browser to open the page %s and enter the code %s to authenticate.\n",
		indent,
		t.color(color.FgCyan).Sprint(verificationURI),
		t.color(color.FgYellow).Sprint(userCode))
}

func (t *Terminal) CopyToClipboard(text string) error {
	if t.copyText == nil {
		return errors.New("clipboard unavailable")
	}
	if err := t.copyText(text); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return nil
}

func (t *Terminal) AwaitConfirmation(ctx context.Context, userCode string, copied bool) error {
	prompt := "Press Enter to open the browser..."
	if copied {
		_, _ = fmt.Fprintf(t.out, "%sCode %s copied to clipboard! %s\n",
			indent,
			t.color(color.FgYellow).Sprint(userCode),
			t.color(color.Bold, color.FgWhite, color.Underline).Sprint(prompt))
	} else {
		_, _ = t.color(color.FgWhite).Fprintln(t.out, indent+prompt)
	}
	if t.in == nil {
		return errors.New("no input available for confirmation")
	}

	t.readerOnce.Do(func() { t.reader = bufio.NewReader(t.in) })
	done := make(chan error, 1)
	// The read cannot be interrupted; a canceled wait leaves it pending.
	go func() {
		_, err := t.reader.ReadString('\n')
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		return nil
	}
}

func (t *Terminal) OpenBrowser(url string) error {
	if t.openURL == nil {
		return errors.New("browser unavailable")
	}
	t.log.Debugw("Opening browser", "url", url)
	if err := t.openURL(url); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
