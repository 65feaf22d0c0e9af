package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kgcorpus/tagging-console/pkg/listing"
	"github.com/kgcorpus/tagging-console/pkg/models"
)

func newSentencesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sentences",
		Aliases: []string{"s"},
		Short:   "List and search sentences",
	}
	cmd.AddCommand(newSentencesListCmd(), newSentencesBrowseCmd())
	return cmd
}

func newSentencesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print one page of sentences",
		Long: `Print one page of sentences.

Examples:
  annotatectl sentences list
  annotatectl sentences list --search китеп --status not-corrected
  annotatectl sentences list --page 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			b, err := a.bound()
			if err != nil {
				return err
			}
			page, _ := cmd.Flags().GetInt("page")
			search, _ := cmd.Flags().GetString("search")
			status, _ := cmd.Flags().GetString("status")

			filter := listing.FromQuery(models.SentenceQuery{
				Page:     1,
				PageSize: a.env.PageSize,
				Search:   search,
				Status:   models.ParseStatusFilter(status),
			})
			defer filter.Close()

			view, err := listPage(context.Background(), listing.NewController(filter, b, a.logger), page)
			if err != nil {
				if errors.Is(err, listing.ErrPageOutOfRange) {
					return err
				}
				return a.fail("load sentences", err)
			}
			if a.jsonOut {
				return a.printJSON(models.SentencePage{Meta: view.Meta, Items: view.Items})
			}
			printSentenceView(a.out, view)
			return nil
		},
	}
	cmd.Flags().Int("page", 1, "Page number (1-based)")
	cmd.Flags().String("search", "", "Only sentences containing this text")
	cmd.Flags().String("status", "", "corrected, not-corrected or empty for both")
	return cmd
}

// listPage fetches page 1, then moves to page when it exists. A page beyond
// the last is refused without requesting it.
func listPage(ctx context.Context, ctrl *listing.Controller, page int) (listing.View, error) {
	view := ctrl.Refresh(ctx)
	if view.State == listing.RenderError {
		return view, view.Err
	}
	if page == 1 {
		return view, nil
	}
	if err := ctrl.Filter().GoTo(page); err != nil {
		return view, fmt.Errorf("page %d: %w (last page is %d)", page, err, ctrl.Filter().TotalPages())
	}
	view = ctrl.Refresh(ctx)
	if view.State == listing.RenderError {
		return view, view.Err
	}
	return view, nil
}

func printSentenceView(w io.Writer, view listing.View) {
	switch view.State {
	case listing.RenderLoading:
		fmt.Fprintln(w, "Loading…")
		return
	case listing.RenderError:
		fmt.Fprintf(w, "Could not load sentences: %v\n", view.Err)
		return
	case listing.RenderEmpty:
		fmt.Fprintln(w, "No sentences found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTEXT")
	for _, s := range view.Items {
		status := "·"
		if s.IsCorrected.Bool() {
			status = "✓"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.ID, status, s.Text)
	}
	_ = tw.Flush()

	nav := fmt.Sprintf("Page %d of %d (%d sentences)", view.Meta.CurrentPage, view.Meta.TotalPages, view.Meta.TotalItems)
	if view.CanPrev {
		nav += "  ◀ prev"
	}
	if view.CanNext {
		nav += "  next ▶"
	}
	fmt.Fprintln(w, nav)
}

func newSentencesBrowseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Search sentences interactively and open them for editing",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			ctx := context.Background()
			ctrl := listing.NewController(listing.NewFilter(a.env.PageSize), b, a.logger)
			return newBrowser(ctx, ctrl, a.out, func(id int) error {
				return runEditShell(ctx, a, tax, b, id)
			}).Run()
		},
	}
}
