package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	prompt "github.com/c-bata/go-prompt"

	"github.com/kgcorpus/tagging-console/pkg/editor"
	"github.com/kgcorpus/tagging-console/pkg/models"
	"github.com/kgcorpus/tagging-console/pkg/taxonomy"
)

var errUnsaved = errors.New("unsaved edits; save first or use quit! to drop them")

var shellCommands = []prompt.Suggest{
	{Text: "show", Description: "Print the sentence"},
	{Text: "form", Description: "form N TEXT: set a token's surface form"},
	{Text: "lemma", Description: "lemma N TEXT: set a token's lemma"},
	{Text: "pos", Description: "pos N TAG: re-classify a token (clears its features)"},
	{Text: "feats", Description: "feats N: list the features a token may take"},
	{Text: "feat", Description: "feat N Key=Value: set a feature"},
	{Text: "unfeat", Description: "unfeat N Key: remove a feature"},
	{Text: "corrected", Description: "corrected yes|no: mark the sentence reviewed"},
	{Text: "save", Description: "Send the whole sentence to the backend"},
	{Text: "reload", Description: "Drop edits and fetch the sentence again"},
	{Text: "quit", Description: "Leave the editor"},
}

// editShell applies typed commands to one sentence editor. Token numbers
// are the 1-based positions shown by show.
type editShell struct {
	ed  *editor.Editor
	tax *taxonomy.Taxonomy
	out io.Writer
}

func newEditShell(ed *editor.Editor, tax *taxonomy.Taxonomy, out io.Writer) *editShell {
	return &editShell{ed: ed, tax: tax, out: out}
}

// Run reads commands until quit.
func (s *editShell) Run(ctx context.Context) error {
	fmt.Fprintln(s.out, "🔑 Tab: complete, help: commands, quit: leave")
	s.show()

	history := []string{}
	for {
		in := prompt.Input(s.prefix(), s.completer,
			prompt.OptionTitle("annotatectl edit"),
			prompt.OptionPrefixTextColor(prompt.Yellow),
			prompt.OptionPreviewSuggestionTextColor(prompt.Blue),
			prompt.OptionSelectedSuggestionBGColor(prompt.LightGray),
			prompt.OptionSuggestionBGColor(prompt.DarkGray),
			prompt.OptionMaxSuggestion(12),
			prompt.OptionHistory(history),
		)
		history = append(history, in)
		quit, err := s.exec(ctx, in)
		if err != nil {
			fmt.Fprintf(s.out, "❌ %s\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (s *editShell) prefix() string {
	mark := ""
	if s.ed.Dirty() {
		mark = "*"
	}
	return fmt.Sprintf("  ✏️  %d%s ", s.ed.Snapshot().SentenceID, mark)
}

// exec runs one command line.
func (s *editShell) exec(ctx context.Context, line string) (quit bool, err error) {
	cmd, rest := splitWord(strings.TrimSpace(line))
	switch cmd {
	case "":
		return false, nil
	case "help", "?":
		for _, c := range shellCommands {
			fmt.Fprintf(s.out, "  %-10s %s\n", c.Text, c.Description)
		}
		return false, nil
	case "show", "ls":
		s.show()
		return false, nil
	case "quit", "exit":
		if s.ed.Dirty() {
			return false, errUnsaved
		}
		return true, nil
	case "quit!":
		return true, nil
	case "save":
		if err := s.ed.Save(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(s.out, "✓ Sentence saved")
		return false, nil
	case "reload":
		if err := s.ed.Load(ctx); err != nil {
			return false, err
		}
		s.show()
		return false, nil
	case "corrected":
		on, err := parseYesNo(rest)
		if err != nil {
			return false, err
		}
		return false, s.ed.SetCorrected(on)
	}

	idxRaw, arg := splitWord(rest)
	i, err := s.tokenIndex(idxRaw)
	if err != nil {
		return false, err
	}

	switch cmd {
	case "form":
		if arg == "" {
			return false, errors.New("usage: form N TEXT")
		}
		err = s.ed.SetForm(i, arg)
	case "lemma":
		err = s.ed.SetLemma(i, arg)
	case "pos":
		if arg == "" {
			return false, errors.New("usage: pos N TAG")
		}
		err = s.ed.SelectPOS(i, arg)
	case "feats":
		return false, s.listFeatures(i)
	case "feat":
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" || value == "" {
			return false, errors.New("usage: feat N Key=Value")
		}
		err = s.ed.SelectFeature(i, strings.TrimSpace(key), strings.TrimSpace(value))
	case "unfeat":
		if arg == "" {
			return false, errors.New("usage: unfeat N Key")
		}
		err = s.ed.RemoveFeature(i, arg)
	default:
		return false, fmt.Errorf("unknown command %q; type help", cmd)
	}
	if err != nil {
		return false, err
	}
	s.showToken(i)
	return false, nil
}

func (s *editShell) tokenIndex(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("expected a token number, got %q", raw)
	}
	sent := s.ed.Sentence()
	if sent == nil {
		return 0, editor.ErrNotReady
	}
	if n < 1 || n > len(sent.Tokens) {
		return 0, fmt.Errorf("%w: choose 1..%d", editor.ErrTokenIndex, len(sent.Tokens))
	}
	return n - 1, nil
}

func (s *editShell) show() {
	sent := s.ed.Sentence()
	if sent == nil {
		fmt.Fprintf(s.out, "Sentence not loaded (%s)\n", s.ed.State())
		return
	}
	status := "not corrected"
	if sent.IsCorrected.Bool() {
		status = "corrected"
	}
	fmt.Fprintf(s.out, "#%d [%s] %s\n", sent.ID, status, s.ed.DisplayText())

	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "N\tFORM\tLEMMA\tPOS\tFEATURES")
	for i, t := range sent.Tokens {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, t.Form, t.Lemma, editor.DisplayPOS(s.tax, t), formatFeats(t.Feats))
	}
	_ = tw.Flush()
}

func (s *editShell) showToken(i int) {
	sent := s.ed.Sentence()
	if sent == nil || i >= len(sent.Tokens) {
		return
	}
	t := sent.Tokens[i]
	fmt.Fprintf(s.out, "%d  %s  %s  %s  %s\n", i+1, t.Form, t.Lemma, editor.DisplayPOS(s.tax, t), formatFeats(t.Feats))
}

func (s *editShell) listFeatures(i int) error {
	sel, err := s.ed.FeatureSelector(i)
	if err != nil {
		return err
	}
	if !sel.Available() {
		fmt.Fprintf(s.out, "No features available for %s\n", s.tax.Label(sel.POS()))
		return nil
	}
	for _, c := range sel.Chips() {
		fmt.Fprintf(s.out, "  ● %s: %s\n", c.KeyLabel, c.ValueLabel)
	}
	for _, def := range sel.Definitions() {
		codes := make([]string, len(def.Values))
		for j, v := range def.Values {
			codes[j] = v.Code
		}
		fmt.Fprintf(s.out, "  %s (%s): %s\n", def.Key, def.Label, strings.Join(codes, " | "))
	}
	return nil
}

// completer suggests commands, POS tags for pos, Key=Value pairs for feat
// and set keys for unfeat.
func (s *editShell) completer(d prompt.Document) []prompt.Suggest {
	fields := strings.Fields(d.TextBeforeCursor())
	word := d.GetWordBeforeCursor()
	if word == "" {
		fields = append(fields, "")
	}
	if len(fields) <= 1 {
		return prompt.FilterHasPrefix(shellCommands, word, true)
	}
	if len(fields) != 3 {
		return nil
	}
	i, err := s.tokenIndex(fields[1])
	if err != nil {
		return nil
	}

	var out []prompt.Suggest
	switch fields[0] {
	case "pos":
		for _, code := range s.tax.Designations() {
			out = append(out, prompt.Suggest{Text: code, Description: s.tax.Label(code)})
		}
	case "feat":
		sel, err := s.ed.FeatureSelector(i)
		if err != nil {
			return nil
		}
		for _, def := range sel.Definitions() {
			for _, v := range def.Values {
				out = append(out, prompt.Suggest{Text: def.Key + "=" + v.Code, Description: def.Label + ": " + v.Label})
			}
		}
	case "unfeat":
		sel, err := s.ed.FeatureSelector(i)
		if err != nil {
			return nil
		}
		for _, c := range sel.Chips() {
			out = append(out, prompt.Suggest{Text: c.Key, Description: c.ValueLabel})
		}
	}
	return prompt.FilterHasPrefix(out, word, true)
}

func splitWord(s string) (first, rest string) {
	first, rest, _ = strings.Cut(strings.TrimSpace(s), " ")
	return first, strings.TrimSpace(rest)
}

func parseYesNo(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "on", "true", "1":
		return true, nil
	case "no", "n", "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected yes or no, got %q", s)
}

func formatFeats(f models.Features) string {
	if len(f) == 0 {
		return "—"
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + f[k]
	}
	return strings.Join(parts, "|")
}
