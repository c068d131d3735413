package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pegut0/ClassificadorSomIA/internal/pipeline"
)

// fileResult is the outcome of classifying one local file
type fileResult struct {
	Path    string
	Verdict pipeline.Verdict
	Err     error
}

func newClassifyCommand(configFlag *string) *cobra.Command {
	var jobs int
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "classify FILE...",
		Short: "Classify local audio files through the full pipeline",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}

			cfg.Logging.Output = "stderr"
			logger := initLogger(cfg.Logging)

			engine, model, err := buildEngine(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer model.Close()

			ctx := cmd.Context()
			if !skipCheck {
				if err := engine.Verify(ctx); err != nil {
					return fmt.Errorf("model check failed: %w", err)
				}
			}

			results := classifyFiles(ctx, engine, args, jobs)
			writeResults(cmd.OutOrStdout(), results)

			for _, r := range results {
				if r.Err != nil {
					return fmt.Errorf("%d of %d files failed", countFailed(results), len(results))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "Number of files classified concurrently")
	cmd.Flags().BoolVar(&skipCheck, "skip-check", false, "Skip the model check before classifying")
	return cmd
}

type fileClassifier interface {
	Classify(ctx context.Context, data []byte) (pipeline.Verdict, error)
}

// classifyFiles runs the engine over paths with at most jobs files in flight.
// Results keep the order of paths; a failing file does not stop the others.
func classifyFiles(ctx context.Context, engine fileClassifier, paths []string, jobs int) []fileResult {
	if jobs < 1 {
		jobs = 1
	}

	results := make([]fileResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for i, path := range paths {
		g.Go(func() error {
			results[i].Path = path

			data, err := os.ReadFile(path)
			if err != nil {
				results[i].Err = err
				return nil
			}

			requestCtx := pipeline.WithRequestID(ctx, filepath.Base(path))
			results[i].Verdict, results[i].Err = engine.Classify(requestCtx, data)
			return nil
		})
	}
	g.Wait()

	return results
}

func writeResults(w io.Writer, results []fileResult) {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			rows = append(rows, []string{filepath.Base(r.Path), "-", "-", "error: " + r.Err.Error()})
			continue
		}

		note := r.Verdict.Class
		if r.Verdict.Rejected != nil {
			note = r.Verdict.Rejected.String()
		}
		rows = append(rows, []string{
			filepath.Base(r.Path),
			r.Verdict.Label,
			r.Verdict.ConfidenceString(),
			note,
		})
	}

	fmt.Fprintln(w, renderTable(
		[]string{"File", "Prediction", "Confidence", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
	))
}

func countFailed(results []fileResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
