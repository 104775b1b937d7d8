// Package repl is the terminal surface of the booth: every command maps to
// one controller intent.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manash/chronosnap/internal/booth"
	"github.com/manash/chronosnap/internal/display"
	"github.com/manash/chronosnap/internal/image"
)

type REPL struct {
	in        io.Reader
	out       io.Writer
	err       io.Writer
	ctrl      *booth.Controller
	displayer *display.Displayer
	saver     *image.Saver
	outputDir string
	commands  map[string]Command
	running   bool

	// rawArgs is the current line after the command word, unparsed.
	rawArgs string
}

type Config struct {
	In         io.Reader
	Out        io.Writer
	Err        io.Writer
	Controller *booth.Controller
	Displayer  *display.Displayer
	Saver      *image.Saver
	// OutputDir is where 'save' writes files.
	OutputDir string
}

func New(cfg *Config) *REPL {
	r := &REPL{
		in:        cfg.In,
		out:       cfg.Out,
		err:       cfg.Err,
		ctrl:      cfg.Controller,
		displayer: cfg.Displayer,
		saver:     cfg.Saver,
		outputDir: cfg.OutputDir,
		commands:  make(map[string]Command),
	}
	if r.displayer == nil {
		r.displayer = display.New(cfg.Out)
	}
	if r.saver == nil {
		r.saver = image.NewSaver()
	}
	if r.outputDir == "" {
		r.outputDir = "."
	}
	r.registerCommands()
	return r
}

func (r *REPL) Run(ctx context.Context) error {
	r.running = true
	r.printWelcome()

	scanner := bufio.NewScanner(r.in)
	for r.running {
		r.printPrompt()
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			r.printError(err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	return scanner.Err()
}

func (r *REPL) execute(ctx context.Context, line string) error {
	parts := parseCommand(line)
	if len(parts) == 0 {
		return nil
	}

	cmdName := strings.ToLower(parts[0])
	cmd, ok := r.commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmdName)
	}
	r.rawArgs = strings.TrimSpace(strings.TrimPrefix(line, strings.Fields(line)[0]))
	return cmd.Execute(ctx, r, parts[1:])
}

// printError shows remote edit and analyze failures as alerts and
// everything else as a plain error.
func (r *REPL) printError(err error) {
	var opErr *booth.OperationError
	if errors.As(err, &opErr) {
		fmt.Fprintf(r.err, "! %s (%v)\n", opErr.Message(), opErr.Err)
		return
	}
	fmt.Fprintf(r.err, "Error: %v\n", err)
}

func (r *REPL) Stop() {
	r.running = false
}

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out, "ChronoSnap photo booth")
	fmt.Fprintln(r.out, "Type 'start' to begin, 'help' for all commands, 'quit' to exit.")
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt() {
	s := r.ctrl.Snapshot()
	switch {
	case s.InFlight():
		fmt.Fprintf(r.out, "chronosnap [%s, busy]> ", s.Phase)
	case s.SelectedEra != nil && s.Phase == booth.PhaseResult:
		fmt.Fprintf(r.out, "chronosnap [%s: %s]> ", s.Phase, s.SelectedEra.Name)
	default:
		fmt.Fprintf(r.out, "chronosnap [%s]> ", s.Phase)
	}
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case ch == '"' || ch == '\'':
			if inQuotes && ch == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				current.WriteRune(ch)
			}
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
