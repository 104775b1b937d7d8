// Package batch sends one photo to several eras at once.
package batch

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/manash/chronosnap/internal/image"
	"github.com/manash/chronosnap/internal/log"
	"github.com/manash/chronosnap/internal/provider"
	"github.com/manash/chronosnap/pkg/models"
)

type Result struct {
	Index    int
	Era      models.Era
	Path     string
	Error    error
	Duration time.Duration
}

type Options struct {
	OutputDir   string
	Parallel    int
	StopOnError bool
}

type Processor struct {
	provider provider.Provider
	saver    *image.Saver
	out      io.Writer
	err      io.Writer
	outMu    sync.Mutex
	logger   zerolog.Logger
	now      func() time.Time
}

func NewProcessor(prov provider.Provider, saver *image.Saver, out, errOut io.Writer) *Processor {
	return &Processor{
		provider: prov,
		saver:    saver,
		out:      out,
		err:      errOut,
		logger:   log.WithComponent("batch"),
		now:      time.Now,
	}
}

func (p *Processor) printf(format string, args ...interface{}) {
	p.outMu.Lock()
	fmt.Fprintf(p.out, format, args...)
	p.outMu.Unlock()
}

func (p *Processor) errorf(format string, args ...interface{}) {
	p.outMu.Lock()
	fmt.Fprintf(p.err, format, args...)
	p.outMu.Unlock()
}

// Process transforms src into every era in items. Results keep the order of
// items. Failures are collected per item unless StopOnError is set.
func (p *Processor) Process(ctx context.Context, src models.ImagePayload, items []Item, opts *Options) ([]Result, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if opts.Parallel <= 1 {
		return p.processSequential(ctx, src, items, opts)
	}
	return p.processParallel(ctx, src, items, opts)
}

func (p *Processor) processSequential(ctx context.Context, src models.ImagePayload, items []Item, opts *Options) ([]Result, error) {
	results := make([]Result, len(items))
	total := len(items)

	for i, item := range items {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		result := p.processItem(ctx, src, item, opts, i+1, total)
		results[i] = result

		if result.Error != nil && opts.StopOnError {
			return results, fmt.Errorf("stopped at %s: %w", item.Era.ID, result.Error)
		}
	}

	return results, nil
}

func (p *Processor) processParallel(ctx context.Context, src models.ImagePayload, items []Item, opts *Options) ([]Result, error) {
	results := make([]Result, len(items))
	total := len(items)

	type job struct {
		index int
		item  Item
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan job, len(items))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	workers := min(opts.Parallel, len(items))

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					return
				}

				result := p.processItem(ctx, src, j.item, opts, j.index+1, total)

				mu.Lock()
				results[j.index] = result
				if result.Error != nil && opts.StopOnError && firstErr == nil {
					firstErr = result.Error
					cancel()
				}
				mu.Unlock()
			}
		}()
	}

	for i, item := range items {
		jobs <- job{index: i, item: item}
	}
	close(jobs)

	wg.Wait()

	if firstErr != nil {
		return results, fmt.Errorf("tour stopped due to error: %w", firstErr)
	}
	return results, nil
}

func (p *Processor) processItem(ctx context.Context, src models.ImagePayload, item Item, opts *Options, current, total int) Result {
	start := p.now()
	result := Result{
		Index: item.Index,
		Era:   item.Era,
	}

	p.printf("[%d/%d] Traveling to %s...\n", current, total, item.Era.Name)

	img, err := p.provider.Transform(ctx, src, item.Era.Prompt)
	if err != nil {
		result.Error = fmt.Errorf("transform failed: %w", err)
		result.Duration = time.Since(start)
		p.errorf("       Error: %v\n", result.Error)
		p.logger.Warn().Err(err).Str("era", item.Era.ID).Msg("tour stop failed")
		return result
	}

	outputPath := filepath.Join(opts.OutputDir, image.DownloadFilename(item.Era.ID, start))
	if err := p.saver.Save(ctx, img, outputPath); err != nil {
		result.Error = fmt.Errorf("save failed: %w", err)
		result.Duration = time.Since(start)
		p.errorf("       Error: %v\n", result.Error)
		return result
	}

	result.Path = outputPath
	result.Duration = time.Since(start)
	p.printf("       Saved: %s\n", result.Path)
	return result
}

func (p *Processor) PrintSummary(results []Result) {
	var successful, failed int
	var errs []Result

	for _, r := range results {
		switch {
		case r.Error != nil:
			failed++
			errs = append(errs, r)
		case r.Path != "":
			successful++
		}
	}

	p.printf("\nTour complete: %d succeeded, %d failed\n", successful, failed)
	for _, r := range errs {
		p.printf("  - %s: %v\n", r.Era.ID, r.Error)
	}
}
