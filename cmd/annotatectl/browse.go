package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	prompt "github.com/c-bata/go-prompt"

	"github.com/kgcorpus/tagging-console/pkg/listing"
	"github.com/kgcorpus/tagging-console/pkg/models"
)

// browser is the interactive sentence list. Typing filters the list after
// the debounce period; suggestions show the latest matches.
type browser struct {
	ctx    context.Context
	ctrl   *listing.Controller
	filter *listing.Filter
	out    io.Writer
	open   func(id int) error

	// handling is set while a submitted line is processed, which fetches
	// synchronously; debounced commits fetch in the background otherwise.
	handling atomic.Bool
}

var browseCommands = []prompt.Suggest{
	{Text: ":next", Description: "Next page"},
	{Text: ":prev", Description: "Previous page"},
	{Text: ":page", Description: "Go to page N"},
	{Text: ":status", Description: "corrected | not-corrected | any"},
	{Text: ":open", Description: "Edit sentence N"},
	{Text: ":quit", Description: "Leave"},
}

func newBrowser(ctx context.Context, ctrl *listing.Controller, out io.Writer, open func(int) error) *browser {
	b := &browser{ctx: ctx, ctrl: ctrl, filter: ctrl.Filter(), out: out, open: open}
	b.filter.OnCommit(func(models.SentenceQuery) {
		if b.handling.Load() {
			return
		}
		go b.ctrl.Refresh(b.ctx)
	})
	return b
}

// Run reads lines until :quit.
func (b *browser) Run() error {
	fmt.Fprintln(b.out, "Type to search, #ID or :open ID to edit, :quit to leave")
	printSentenceView(b.out, b.ctrl.Refresh(b.ctx))

	history := []string{}
	for {
		in := prompt.Input("🔎 ", b.completer,
			prompt.OptionTitle("annotatectl browse"),
			prompt.OptionPrefixTextColor(prompt.Yellow),
			prompt.OptionPreviewSuggestionTextColor(prompt.Blue),
			prompt.OptionSelectedSuggestionBGColor(prompt.LightGray),
			prompt.OptionSuggestionBGColor(prompt.DarkGray),
			prompt.OptionMaxSuggestion(12),
			prompt.OptionHistory(history),
		)
		history = append(history, in)
		quit, err := b.handle(in)
		if err != nil {
			fmt.Fprintf(b.out, "❌ %s\n", err)
		}
		if quit {
			b.filter.Close()
			return nil
		}
	}
}

func (b *browser) completer(d prompt.Document) []prompt.Suggest {
	text := d.TextBeforeCursor()
	if strings.HasPrefix(text, ":") {
		return prompt.FilterHasPrefix(browseCommands, d.GetWordBeforeCursor(), true)
	}
	if strings.HasPrefix(d.GetWordBeforeCursor(), "#") {
		return prompt.FilterHasPrefix(b.matches(), d.GetWordBeforeCursor(), false)
	}
	b.filter.TypeSearch(text)
	return b.matches()
}

func (b *browser) matches() []prompt.Suggest {
	view := b.ctrl.View()
	s := make([]prompt.Suggest, 0, len(view.Items))
	for _, it := range view.Items {
		s = append(s, prompt.Suggest{Text: "#" + strconv.Itoa(it.ID), Description: it.Text})
	}
	return s
}

// handle runs one submitted line and prints the resulting page.
func (b *browser) handle(line string) (quit bool, err error) {
	b.handling.Store(true)
	defer b.handling.Store(false)

	line = strings.TrimSpace(line)
	fields := strings.Fields(line)

	switch {
	case len(fields) > 0 && strings.HasPrefix(fields[len(fields)-1], "#"):
		return false, b.openID(strings.TrimPrefix(fields[len(fields)-1], "#"))
	case strings.HasPrefix(line, ":"):
		cmd, arg := fields[0], ""
		if len(fields) > 1 {
			arg = fields[1]
		}
		switch cmd {
		case ":q", ":quit", ":exit":
			return true, nil
		case ":next":
			err = b.filter.Next()
		case ":prev":
			err = b.filter.Prev()
		case ":page":
			var n int
			if n, err = strconv.Atoi(arg); err == nil {
				err = b.filter.GoTo(n)
			}
		case ":status":
			b.filter.SetStatus(models.ParseStatusFilter(arg))
		case ":open":
			return false, b.openID(arg)
		default:
			return false, fmt.Errorf("unknown command %s", cmd)
		}
		if err != nil {
			return false, err
		}
	default:
		b.filter.TypeSearch(line)
		b.filter.CommitSearch()
	}

	printSentenceView(b.out, b.ctrl.Refresh(b.ctx))
	return false, nil
}

func (b *browser) openID(raw string) error {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid sentence id %q", raw)
	}
	return b.open(id)
}
