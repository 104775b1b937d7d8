// Package display renders booth images in the terminal.
package display

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/manash/chronosnap/pkg/models"
)

type Displayer struct {
	out      io.Writer
	graphics bool
	columns  int
}

// New returns a displayer that uses kitty graphics when out is a terminal
// that supports them, and a one-line text summary otherwise.
func New(out io.Writer) *Displayer {
	return &Displayer{
		out:      out,
		graphics: IsTerminal(out) && IsTerminalSupported(),
		columns:  60,
	}
}

// NewWithGraphics forces graphics on or off.
func NewWithGraphics(out io.Writer, graphics bool) *Displayer {
	return &Displayer{out: out, graphics: graphics, columns: 60}
}

func (d *Displayer) Graphics() bool {
	return d.graphics
}

// Show renders img under a caption.
func (d *Displayer) Show(caption string, img models.ImagePayload) error {
	if err := img.Validate(); err != nil {
		return fmt.Errorf("nothing to show: %w", err)
	}
	if caption != "" {
		fmt.Fprintln(d.out, caption)
	}

	if d.graphics {
		err := NewKittyEncoder(d.out).WithColumns(d.columns).EncodePayload(img)
		if err == nil {
			fmt.Fprintln(d.out)
			return nil
		}
		if !errors.Is(err, ErrUnsupportedFormat) {
			return fmt.Errorf("failed to encode image: %w", err)
		}
	}

	fmt.Fprintf(d.out, "  [%s, %s]\n", img.MimeType, HumanSize(len(img.Data)))
	return nil
}

func HumanSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// IsTerminalSupported reports whether the environment looks like a terminal
// that speaks the kitty graphics protocol.
func IsTerminalSupported() bool {
	termProgram := strings.ToLower(os.Getenv("TERM_PROGRAM"))
	for _, prog := range []string{"kitty", "ghostty", "iterm.app", "wezterm"} {
		if termProgram == prog {
			return true
		}
	}

	if os.Getenv("KITTY_WINDOW_ID") != "" || os.Getenv("ITERM_SESSION_ID") != "" {
		return true
	}

	t := strings.ToLower(os.Getenv("TERM"))
	return strings.Contains(t, "kitty") || strings.Contains(t, "ghostty")
}
