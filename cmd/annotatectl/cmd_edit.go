package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kgcorpus/tagging-console/pkg/backend"
	"github.com/kgcorpus/tagging-console/pkg/editor"
	"github.com/kgcorpus/tagging-console/pkg/taxonomy"
)

func newEditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit SENTENCE_ID",
		Short: "Edit a sentence's tokens interactively",
		Long: `Open a sentence in an interactive editor.

Edits stay local until 'save', which sends the whole sentence. A failed
save keeps every edit so it can be retried.

Example session:
  pos 2 VERB
  feat 2 Tense=Past
  corrected yes
  save`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid sentence id %q", args[0])
			}
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			b, err := a.bound()
			if err != nil {
				return err
			}
			tax, err := a.taxonomy()
			if err != nil {
				return err
			}
			return runEditShell(context.Background(), a, tax, b, id)
		},
	}
}

func runEditShell(ctx context.Context, a *app, tax *taxonomy.Taxonomy, b *backend.Bound, id int) error {
	ed := editor.New(tax, b, id, a.logger)
	if err := ed.Load(ctx); err != nil {
		return a.fail("load the sentence", err)
	}
	return newEditShell(ed, tax, a.out).Run(ctx)
}
