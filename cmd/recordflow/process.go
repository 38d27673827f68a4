package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/recordflow/internal/observability"
	"github.com/vyrodovalexey/recordflow/internal/transform"
)

// maxLineBytes is the longest JSON line process accepts.
const maxLineBytes = 16 << 20

// sinkDrainTimeout bounds delivery of queued failures after the input ends.
const sinkDrainTimeout = 30 * time.Second

type processOptions struct {
	failFast bool
}

func newProcessCmd(root *rootOptions) *cobra.Command {
	opts := &processOptions{}

	cmd := &cobra.Command{
		Use:   "process [file]",
		Short: "Process JSON lines from a file or stdin",
		Long: `Reads one JSON object per line from the given file, or from stdin
when no file or "-" is given, and writes one output record per line to
stdout. Failed records are logged to stderr and skipped.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			return runProcess(cmd.Context(), root, opts, in, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.failFast, "fail-fast", false, "Stop at the first failed record")

	return cmd
}

// processStats counts the outcome of a process run.
type processStats struct {
	lines  int
	failed int
}

func runProcess(ctx context.Context, root *rootOptions, opts *processOptions, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	// stdout carries records.
	logger, err := root.newLogger(cfg, "stderr")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sinks, err := buildSinks(cfg.Spec.Sinks, logger, "", nil)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), sinkDrainTimeout)
		defer cancel()
		if err := sinks.Close(closeCtx); err != nil {
			logger.Warn("failed to close error sinks", observability.Error(err))
		}
	}()

	tr, err := transform.New(&cfg.Spec.Transformer,
		transform.WithLogger(logger),
		transform.WithNotifier(sinks.notifier),
		transform.WithErrorLog(sinks.errorLog),
	)
	if err != nil {
		return err
	}

	stats, err := processLines(ctx, tr, in, out, logger, opts.failFast)
	if err != nil {
		return err
	}

	snap := tr.Metrics()
	logger.Info("processing finished",
		observability.Int("lines", stats.lines),
		observability.Int64("processed", snap.Processed),
		observability.Int64("errors", snap.Errors),
		observability.Float64("averageMs", snap.AverageProcessingTime),
	)

	if stats.failed > 0 {
		return fmt.Errorf("%d of %d records failed", stats.failed, stats.lines)
	}
	return nil
}

// processLines runs every non-blank line through tr and writes the output
// records in input order.
func processLines(
	ctx context.Context,
	tr *transform.RecordTransformer,
	in io.Reader,
	out io.Writer,
	logger observability.Logger,
	failFast bool,
) (processStats, error) {
	var stats processStats

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	w := bufio.NewWriter(out)
	defer func() { _ = w.Flush() }()
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.lines++

		record, err := tr.ProcessJSON(ctx, line)
		if err != nil {
			stats.failed++
			logger.Warn("record rejected",
				observability.Int("line", lineNo),
				observability.Error(err),
			)
			if failFast {
				return stats, fmt.Errorf("line %d: %w", lineNo, err)
			}
			continue
		}

		if err := enc.Encode(record); err != nil {
			return stats, fmt.Errorf("failed to write output: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read input: %w", err)
	}
	return stats, nil
}
