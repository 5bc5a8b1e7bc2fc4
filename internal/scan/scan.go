package scan

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"guardian/internal/aggregate"
	"guardian/internal/model"
	"guardian/internal/progress"
	"guardian/internal/rules"
	"guardian/internal/safefile"
	"guardian/internal/suppress"
)

// DefaultMaxFileBytes caps how much of one file is read into memory.
const DefaultMaxFileBytes = 2 * 1024 * 1024

// Input is one file to scan. Content wins over Read when both are set.
type Input struct {
	Path     string
	Language string
	Content  []byte
	Read     func() ([]byte, error)
}

// FileInput reads path lazily and reports it as display. Files over limit
// are refused without being read; zero means no limit.
func FileInput(path, display string, limit int64) Input {
	return Input{
		Path: display,
		Read: func() ([]byte, error) { return safefile.ReadFileLimited(path, limit) },
	}
}

type Options struct {
	Workers      int
	MaxFileBytes int64
	FileRules    []suppress.Rule
	// Now fixes the clock for suppression expiry; zero means time.Now.
	Now   time.Time
	Sink  progress.Sink
	RunID string
}

type indexedResult struct {
	idx  int
	res  model.FileResult
	done bool
}

// Run scans inputs against reg on a bounded worker pool and merges the
// per-file results. On cancellation it returns the merge of the files that
// completed together with ctx.Err(). The result does not depend on the
// worker count.
func Run(ctx context.Context, reg *rules.Registry, inputs []Input, opts Options) (model.ScanResult, error) {
	if reg == nil {
		return model.ScanResult{}, fmt.Errorf("scan: nil rule registry")
	}
	if opts.Sink == nil {
		opts.Sink = progress.NoopSink{}
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.Workers > len(inputs) {
		opts.Workers = len(inputs)
	}

	started := time.Now().UTC()
	opts.Sink.Emit(progress.Event{
		Type:      progress.EventRunStarted,
		At:        started,
		RunID:     opts.RunID,
		FileCount: len(inputs),
	})

	sem := make(chan struct{}, max(opts.Workers, 1))
	resCh := make(chan indexedResult, len(inputs))
	var wg sync.WaitGroup

	for idx, in := range inputs {
		wg.Add(1)
		go func(idx int, in Input) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			res, done := scanFile(ctx, reg, in, opts)
			resCh <- indexedResult{idx: idx, res: res, done: done}
		}(idx, in)
	}

	wg.Wait()
	close(resCh)

	ordered := make([]*model.FileResult, len(inputs))
	for item := range resCh {
		if !item.done || item.idx < 0 || item.idx >= len(ordered) {
			continue
		}
		res := item.res
		ordered[item.idx] = &res
	}

	completed := make([]model.FileResult, 0, len(inputs))
	for _, res := range ordered {
		if res != nil {
			completed = append(completed, *res)
		}
	}
	result := aggregate.Merge(completed...)

	err := ctx.Err()
	status := "success"
	errText := ""
	if err != nil {
		status = "cancelled"
		errText = err.Error()
	} else if len(result.Errored()) > 0 {
		status = "partial"
	}
	finished := time.Now().UTC()
	opts.Sink.Emit(progress.Event{
		Type:         progress.EventRunFinished,
		At:           finished,
		RunID:        opts.RunID,
		Status:       status,
		FileCount:    result.FilesScanned,
		FindingCount: len(result.Findings),
		DurationMS:   finished.Sub(started).Milliseconds(),
		Error:        errText,
	})
	return result, err
}

func (in Input) content() ([]byte, error) {
	if in.Content != nil {
		return in.Content, nil
	}
	if in.Read == nil {
		return nil, fmt.Errorf("no content for %s", in.Path)
	}
	return in.Read()
}

func warn(sink progress.Sink, runID, msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	sink.Emit(progress.Event{Type: progress.EventRunWarning, RunID: runID, Message: msg})
}
