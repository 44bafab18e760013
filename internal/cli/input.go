// Package cli is an interactive shell over the completion engine, used to try
// vocabularies and ranking without a host application.
package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/chzyer/readline"

	"github.com/bastiangx/fieldserve/internal/utils"
	"github.com/bastiangx/fieldserve/pkg/engine"
	"github.com/bastiangx/fieldserve/pkg/query"
)

// DefaultTabWait is how long Tab waits for values that are still loading.
const DefaultTabWait = 2 * time.Second

var (
	fieldStyle = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#286983", Dark: "#9ccfd8"})
	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	dimStyle = lipgloss.NewStyle().Faint(true)
)

// InputHandler reads queries with readline. Tab completes fields and values,
// Enter submits the line.
type InputHandler struct {
	engine      *engine.Engine
	completer   *Completer
	historyFile string
	submitted   int
}

// NewInputHandler creates a handler. historyFile may be empty.
func NewInputHandler(e *engine.Engine, historyFile string) *InputHandler {
	return &InputHandler{
		engine:      e,
		completer:   NewCompleter(e, DefaultTabWait),
		historyFile: historyFile,
	}
}

// Start runs the prompt loop until EOF or .quit.
func (h *InputHandler) Start() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "query> ",
		HistoryFile:       h.historyFile,
		HistoryLimit:      500,
		HistorySearchFold: true,
		AutoComplete:      h.completer,
		Listener:          readline.FuncListener(h.completer.OnChange),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	log.Print("FieldServe CLI [BETA]")
	log.Print("type field:value terms, Tab completes, ?text lists suggestions, .help for commands")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if !h.handleInput(rl.Stdout(), line) {
			return nil
		}
	}
}

// handleInput runs one line; it returns false when the shell should exit.
func (h *InputHandler) handleInput(w io.Writer, line string) bool {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return true
	case trimmed == ".quit" || trimmed == ".exit":
		return false
	case trimmed == ".help":
		fmt.Fprintln(w, "  .fields   list known fields")
		fmt.Fprintln(w, "  .stats    cache and lookup counters")
		fmt.Fprintln(w, "  .reset    forget every fetched vocabulary")
		fmt.Fprintln(w, "  ?text     rank suggestions for text with the cursor at the end")
		fmt.Fprintln(w, "  .quit     leave")
	case trimmed == ".fields":
		h.printFields(w)
	case trimmed == ".stats":
		h.printStats(w)
	case trimmed == ".reset":
		h.engine.InvalidateVocabulary()
		fmt.Fprintln(w, dimStyle.Render("vocabularies dropped"))
	case strings.HasPrefix(trimmed, "?"):
		h.explain(w, strings.TrimPrefix(line, "?"))
	default:
		h.engine.Update(line, len(line))
		q := h.engine.OnSubmit()
		h.submitted++
		log.Debug("Submitted", "n", h.submitted, "query", q)
		fmt.Fprintf(w, "%s %s\n", dimStyle.Render("submitted:"), q)
	}
	return true
}

// explain prints the ranked suggestions for text, waiting for its values.
func (h *InputHandler) explain(w io.Writer, text string) {
	start := time.Now()
	runes := []rune(text)
	h.completer.Do(runes, len(runes))
	st := h.engine.Update(text, len(text))
	elapsed := time.Since(start)

	switch {
	case st.Phase == engine.PhaseIdle:
		fmt.Fprintln(w, dimStyle.Render("nothing to complete here"))
		return
	case st.Loading:
		log.Warnf("Values for '%s' are still loading", st.Context.Field)
		return
	case st.NoMatch:
		log.Warnf("No values of '%s' match '%s'", st.Context.Field, st.Context.Prefix)
		return
	case len(st.Suggestions) == 0:
		log.Warnf("No suggestions for '%s'", st.Context.Prefix)
		return
	}

	log.Debugf("Took [ %v ] for '%s'", elapsed, text)
	fmt.Fprintf(w, "%d %s suggestions for '%s':\n", len(st.Suggestions), st.Phase, st.Context.Prefix)
	for i, s := range st.Suggestions {
		if s.Kind == query.KindField {
			fmt.Fprintf(w, "%3d. %s\n", i+1, fieldStyle.Render(s.Label))
			continue
		}
		label := valueStyle.Render(utils.Truncate(s.Label, 48))
		fmt.Fprintf(w, "%3d. %-48s %s\n", i+1, label, dimStyle.Render("hits "+utils.FormatWithCommas(s.Hits)))
	}
}

func (h *InputHandler) printFields(w io.Writer) {
	for _, f := range h.engine.Fields() {
		fmt.Fprintln(w, "  "+fieldStyle.Render(f))
	}
}

func (h *InputHandler) printStats(w io.Writer) {
	stats := h.engine.Stats()
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-18s %s\n", k, utils.FormatWithCommas(stats[k]))
	}
	fmt.Fprintf(w, "  %-18s %s\n", "submitted", utils.FormatWithCommas(h.submitted))
}
