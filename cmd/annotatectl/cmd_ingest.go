package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"

	"github.com/kgcorpus/tagging-console/pkg/ingest"
	"github.com/kgcorpus/tagging-console/pkg/models"
)

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Send text to the tagging pipeline",
		Long: `Send raw text to the backend, which tokenizes and tags it.

Exactly one source per submission: --text, or one or more .txt files
named by --file or matched by --glob (each file is submitted on its own).

Examples:
  annotatectl ingest --text "Мен барам."
  annotatectl ingest --file story.txt
  annotatectl ingest --glob 'corpus/**/*.txt'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, _ := cmd.Flags().GetString("text")
			files, _ := cmd.Flags().GetStringSlice("file")
			pattern, _ := cmd.Flags().GetString("glob")
			maxBytes, _ := cmd.Flags().GetInt64("max-bytes")

			paths, err := collectFiles(files, pattern)
			if err != nil {
				return err
			}
			if text != "" && len(paths) > 0 {
				return errors.New("use either --text or files, not both")
			}

			// Empty submissions are refused before anything touches the network.
			if text == "" && len(paths) == 0 {
				return ingest.ErrEmptySubmission
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			b, err := a.bound()
			if err != nil {
				return err
			}
			ctx := context.Background()

			if text != "" {
				form := ingest.NewForm(maxBytes)
				if err := form.SetText(text); err != nil {
					return a.fail("run tagging", err)
				}
				res, err := form.Submit(ctx, b)
				if err != nil {
					return a.fail("run tagging", err)
				}
				return a.reportIngest([]ingestOutcome{{Source: "text", Result: res}})
			}

			var bar *uiprogress.Bar
			if len(paths) > 1 && !a.jsonOut {
				uiprogress.Start()
				bar = uiprogress.AddBar(len(paths))
				bar.AppendCompleted()
				bar.PrependElapsed()
			}

			outcomes := make([]ingestOutcome, 0, len(paths))
			for _, p := range paths {
				res, err := submitFile(ctx, b, p, maxBytes)
				o := ingestOutcome{Source: p, Result: res}
				if err != nil {
					o.Error = a.fail("run tagging", err).Error()
				}
				outcomes = append(outcomes, o)
				if bar != nil {
					bar.Incr()
				}
			}
			if bar != nil {
				uiprogress.Stop()
			}
			return a.reportIngest(outcomes)
		},
	}
	cmd.Flags().String("text", "", "Text to tag")
	cmd.Flags().StringSlice("file", nil, "Plain-text file to tag (repeatable)")
	cmd.Flags().String("glob", "", "Glob of .txt files to tag, ** allowed")
	cmd.Flags().Int64("max-bytes", ingest.DefaultMaxBytes, "Largest file accepted")
	return cmd
}

type ingestOutcome struct {
	Source string                `json:"source"`
	Result *models.TaggingResult `json:"result,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// collectFiles merges explicit files and glob matches, without duplicates,
// in a stable order.
func collectFiles(files []string, pattern string) ([]string, error) {
	out := slices.Clone(files)
	if pattern != "" {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		out = append(out, matches...)
	}
	for i, p := range out {
		out[i] = filepath.Clean(p)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func submitFile(ctx context.Context, runner ingest.Runner, path string, maxBytes int64) (*models.TaggingResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxBytes {
		return nil, fmt.Errorf("%s: %w", path, ingest.ErrTooLarge)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	form := ingest.NewForm(maxBytes)
	if err := form.AttachFile(ingest.SourcePicker, filepath.Base(path), "", data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return form.Submit(ctx, runner)
}

func (a *app) reportIngest(outcomes []ingestOutcome) error {
	failed := 0
	for _, o := range outcomes {
		if o.Error != "" {
			failed++
		}
	}
	if a.jsonOut {
		if err := a.printJSON(outcomes); err != nil {
			return err
		}
	} else {
		for _, o := range outcomes {
			if o.Error != "" {
				a.printf("❌ %s: %s\n", o.Source, o.Error)
				continue
			}
			msg := ingest.Summary(o.Result)
			if o.Result.Message != "" {
				msg = o.Result.Message + " — " + msg
			}
			a.printf("✓ %s: %s\n", o.Source, msg)
		}
		if failed == 0 {
			a.printf("New sentences are listed by 'annotatectl sentences list'.\n")
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d submissions failed", failed, len(outcomes))
	}
	return nil
}
