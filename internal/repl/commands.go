package repl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/manash/chronosnap/internal/booth"
	"github.com/manash/chronosnap/internal/capture"
	"github.com/manash/chronosnap/internal/display"
	"github.com/manash/chronosnap/internal/security"
	"github.com/manash/chronosnap/pkg/models"
)

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

func allCommands() []Command {
	return []Command{
		&StartCommand{},
		&UploadCommand{},
		&SnapCommand{},
		&CancelCommand{},
		&ErasCommand{},
		&EraCommand{},
		&BackCommand{},
		&EditCommand{},
		&AnalyzeCommand{},
		&ShowCommand{},
		&SaveCommand{},
		&StatusCommand{},
		&ResetCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}
}

func (r *REPL) registerCommands() {
	for _, cmd := range allCommands() {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// StartCommand opens the capture step
type StartCommand struct{}

func (c *StartCommand) Name() string        { return "start" }
func (c *StartCommand) Aliases() []string   { return []string{"capture"} }
func (c *StartCommand) Description() string { return "Start a new capture" }
func (c *StartCommand) Usage() string       { return "start" }

func (c *StartCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	mode, err := r.ctrl.StartCapture(ctx)
	if err != nil {
		return err
	}
	r.printCaptureHint(mode)
	return nil
}

func (r *REPL) printCaptureHint(mode capture.Mode) {
	if mode == capture.ModeLive {
		fmt.Fprintln(r.out, "Camera ready. Type 'snap' to take the photo or 'upload <path>' to use a file.")
		return
	}
	if notice := r.ctrl.Capturer().Notice(); notice != "" {
		fmt.Fprintln(r.out, notice)
	}
	fmt.Fprintln(r.out, "Type 'upload <path>' to choose a photo.")
}

// UploadCommand captures from a file on disk
type UploadCommand struct{}

func (c *UploadCommand) Name() string        { return "upload" }
func (c *UploadCommand) Aliases() []string   { return []string{"u", "file"} }
func (c *UploadCommand) Description() string { return "Use an image file as the photo" }
func (c *UploadCommand) Usage() string       { return "upload <path>" }

func (c *UploadCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	path := args[0]

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	// Uploading is allowed from home as a shortcut for start + upload.
	if r.ctrl.Snapshot().Phase == booth.PhaseHome {
		if _, err := r.ctrl.StartCapture(ctx); err != nil {
			return err
		}
	}

	if err := r.ctrl.Upload(data, filepath.Base(path)); err != nil {
		return err
	}

	src := r.ctrl.Snapshot().SourceImage
	fmt.Fprintf(r.out, "Photo loaded (%s, %d bytes).\n", src.MimeType, len(src.Data))
	return printEras(r)
}

// SnapCommand grabs the live camera frame
type SnapCommand struct{}

func (c *SnapCommand) Name() string        { return "snap" }
func (c *SnapCommand) Aliases() []string   { return []string{"shoot"} }
func (c *SnapCommand) Description() string { return "Take the photo from the live camera" }
func (c *SnapCommand) Usage() string       { return "snap" }

func (c *SnapCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	if err := r.ctrl.Snap(); err != nil {
		if errors.Is(err, capture.ErrNotStreaming) {
			return fmt.Errorf("no live camera: use 'upload <path>' instead")
		}
		return err
	}
	fmt.Fprintln(r.out, "Photo taken.")
	return printEras(r)
}

// CancelCommand leaves capture without a photo
type CancelCommand struct{}

func (c *CancelCommand) Name() string        { return "cancel" }
func (c *CancelCommand) Aliases() []string   { return nil }
func (c *CancelCommand) Description() string { return "Cancel the capture and go home" }
func (c *CancelCommand) Usage() string       { return "cancel" }

func (c *CancelCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	return r.ctrl.Cancel()
}

// ErasCommand lists the catalog
type ErasCommand struct{}

func (c *ErasCommand) Name() string        { return "eras" }
func (c *ErasCommand) Aliases() []string   { return []string{"list", "ls"} }
func (c *ErasCommand) Description() string { return "List destinations" }
func (c *ErasCommand) Usage() string       { return "eras" }

func (c *ErasCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	return printEras(r)
}

func printEras(r *REPL) error {
	fmt.Fprintln(r.out, "Choose your destination:")
	for i, era := range r.ctrl.Catalog().List() {
		fmt.Fprintf(r.out, "  %d. %s %-18s %s\n", i+1, era.Icon, era.Name, truncate(era.Description, 60))
	}
	fmt.Fprintln(r.out, "Type 'era <number|id>' to travel.")
	return nil
}

// EraCommand picks an era and runs the transform
type EraCommand struct{}

func (c *EraCommand) Name() string        { return "era" }
func (c *EraCommand) Aliases() []string   { return []string{"go", "travel"} }
func (c *EraCommand) Description() string { return "Transform the photo into an era" }
func (c *EraCommand) Usage() string       { return "era <number|id>" }

func (c *EraCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	era, err := resolveEra(r.ctrl.Catalog(), args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "Traveling to %s...\n", era.Name)
	if err := r.ctrl.ChooseEra(ctx, era.ID); err != nil {
		if s := r.ctrl.Snapshot(); s.LastError != "" {
			return fmt.Errorf("%s (pick an era to try again)", s.LastError)
		}
		return err
	}
	return showResult(r)
}

func resolveEra(catalog *models.Catalog, arg string) (models.Era, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		eras := catalog.List()
		if n < 1 || n > len(eras) {
			return models.Era{}, fmt.Errorf("%w: no era number %d", booth.ErrUnknownEra, n)
		}
		return eras[n-1], nil
	}
	era, ok := catalog.Get(strings.ToLower(arg))
	if !ok {
		return models.Era{}, fmt.Errorf("%w: %q", booth.ErrUnknownEra, arg)
	}
	return era, nil
}

func showResult(r *REPL) error {
	s := r.ctrl.Snapshot()
	if s.CurrentResult == nil {
		return fmt.Errorf("no result yet")
	}
	caption := "Result"
	if s.SelectedEra != nil {
		caption = fmt.Sprintf("%s %s", s.SelectedEra.Icon, s.SelectedEra.Name)
	}
	if err := r.displayer.Show(caption, *s.CurrentResult); err != nil {
		fmt.Fprintf(r.err, "Warning: failed to display: %v\n", err)
	}
	return nil
}

// BackCommand returns from era selection to capture
type BackCommand struct{}

func (c *BackCommand) Name() string        { return "back" }
func (c *BackCommand) Aliases() []string   { return []string{"retake"} }
func (c *BackCommand) Description() string { return "Retake the photo" }
func (c *BackCommand) Usage() string       { return "back" }

func (c *BackCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	mode, err := r.ctrl.Back(ctx)
	if err != nil {
		return err
	}
	r.printCaptureHint(mode)
	return nil
}

// EditCommand applies a free-text edit to the result
type EditCommand struct{}

func (c *EditCommand) Name() string        { return "edit" }
func (c *EditCommand) Aliases() []string   { return []string{"e"} }
func (c *EditCommand) Description() string { return "Edit the result with an instruction" }
func (c *EditCommand) Usage() string       { return "edit <instruction>" }

func (c *EditCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	fmt.Fprintln(r.out, "Editing...")
	if err := r.ctrl.Edit(ctx, r.rawArgs); err != nil {
		return err
	}
	return showResult(r)
}

// AnalyzeCommand describes the result
type AnalyzeCommand struct{}

func (c *AnalyzeCommand) Name() string        { return "analyze" }
func (c *AnalyzeCommand) Aliases() []string   { return []string{"a", "describe"} }
func (c *AnalyzeCommand) Description() string { return "Describe the historical moment" }
func (c *AnalyzeCommand) Usage() string       { return "analyze" }

func (c *AnalyzeCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	if r.ctrl.Snapshot().Analysis == "" {
		fmt.Fprintln(r.out, "Consulting the archives...")
	}
	text, err := r.ctrl.Analyze(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, text)
	fmt.Fprintln(r.out)
	return nil
}

// ShowCommand displays the current image
type ShowCommand struct{}

func (c *ShowCommand) Name() string      { return "show" }
func (c *ShowCommand) Aliases() []string { return []string{"display", "view"} }
func (c *ShowCommand) Description() string {
	return "Display the result, or the photo before a transform"
}
func (c *ShowCommand) Usage() string { return "show" }

func (c *ShowCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	s := r.ctrl.Snapshot()
	if s.CurrentResult != nil {
		return showResult(r)
	}
	if s.SourceImage != nil {
		return r.displayer.Show("Your photo", *s.SourceImage)
	}
	return fmt.Errorf("nothing to show yet")
}

// SaveCommand writes the result to disk
type SaveCommand struct{}

func (c *SaveCommand) Name() string        { return "save" }
func (c *SaveCommand) Aliases() []string   { return []string{"s", "download"} }
func (c *SaveCommand) Description() string { return "Save the result to a file" }
func (c *SaveCommand) Usage() string       { return "save [filename]" }

func (c *SaveCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	s := r.ctrl.Snapshot()
	if s.CurrentResult == nil {
		return fmt.Errorf("no result to save")
	}

	if len(args) == 0 {
		eraID := ""
		if s.SelectedEra != nil {
			eraID = s.SelectedEra.ID
		}
		path, err := r.saver.SaveResult(ctx, *s.CurrentResult, r.outputDir, eraID)
		if err != nil {
			return fmt.Errorf("failed to save image: %w", err)
		}
		fmt.Fprintf(r.out, "Saved: %s\n", path)
		return nil
	}

	path, err := security.ResolveSavePath(r.outputDir, args[0])
	if err != nil {
		return err
	}
	if err := r.saver.Save(ctx, *s.CurrentResult, path); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	fmt.Fprintf(r.out, "Saved: %s\n", path)
	return nil
}

// StatusCommand prints the session state
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Aliases() []string   { return []string{"st"} }
func (c *StatusCommand) Description() string { return "Show where you are in the booth" }
func (c *StatusCommand) Usage() string       { return "status" }

func (c *StatusCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	s := r.ctrl.Snapshot()
	fmt.Fprintf(r.out, "Phase:    %s\n", s.Phase)
	if s.Phase == booth.PhaseCapturing {
		fmt.Fprintf(r.out, "Camera:   %s\n", s.CaptureMode)
		if s.CaptureNotice != "" {
			fmt.Fprintf(r.out, "Notice:   %s\n", s.CaptureNotice)
		}
	}
	if s.SourceImage != nil {
		fmt.Fprintf(r.out, "Photo:    %s, %s\n", s.SourceImage.MimeType, displaySize(len(s.SourceImage.Data)))
	}
	if s.SelectedEra != nil {
		fmt.Fprintf(r.out, "Era:      %s\n", s.SelectedEra.Name)
	}
	if s.CurrentResult != nil {
		fmt.Fprintf(r.out, "Result:   %s, %s\n", s.CurrentResult.MimeType, displaySize(len(s.CurrentResult.Data)))
	}
	if s.Analysis != "" {
		fmt.Fprintf(r.out, "Analysis: %s\n", truncate(s.Analysis, 70))
	}
	if s.LastError != "" {
		fmt.Fprintf(r.out, "Error:    %s\n", s.LastError)
	}
	for _, kind := range booth.OpKinds() {
		if s.Busy(kind) {
			fmt.Fprintf(r.out, "Running:  %s\n", kind)
		}
	}
	return nil
}

// ResetCommand starts over
type ResetCommand struct{}

func (c *ResetCommand) Name() string        { return "reset" }
func (c *ResetCommand) Aliases() []string   { return []string{"home", "restart"} }
func (c *ResetCommand) Description() string { return "Start over from the beginning" }
func (c *ResetCommand) Usage() string       { return "reset" }

func (c *ResetCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	if err := r.ctrl.Reset(); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "Back to the present.")
	return nil
}

// HelpCommand shows available commands
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Available commands:")
	fmt.Fprintln(r.out)

	for _, cmd := range allCommands() {
		aliases := ""
		if len(cmd.Aliases()) > 0 {
			aliases = fmt.Sprintf(" (%s)", strings.Join(cmd.Aliases(), ", "))
		}
		fmt.Fprintf(r.out, "  %-22s%s\n", cmd.Name()+aliases, cmd.Description())
		fmt.Fprintf(r.out, "  %-22sUsage: %s\n", "", cmd.Usage())
	}
	return nil
}

// QuitCommand exits the REPL
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit the booth" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Goodbye!")
	r.Stop()
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func displaySize(n int) string {
	return display.HumanSize(n)
}
