package cli

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bastiangx/fieldserve/pkg/engine"
	"github.com/bastiangx/fieldserve/pkg/query"
)

// Completer adapts an engine to readline's tab completion.
type Completer struct {
	engine *engine.Engine
	// wait bounds how long Tab blocks on a vocabulary still loading.
	wait time.Duration
}

// NewCompleter returns a Completer that waits up to wait for missing values.
func NewCompleter(e *engine.Engine, wait time.Duration) *Completer {
	return &Completer{engine: e, wait: wait}
}

// byteCursor converts readline's rune position to a byte offset.
func byteCursor(line []rune, pos int) int {
	if pos < 0 {
		pos = 0
	}
	if pos > len(line) {
		pos = len(line)
	}
	return len(string(line[:pos]))
}

// Do returns the suffixes readline inserts at the cursor. Only candidates
// that extend the typed prefix verbatim can be offered this way.
func (c *Completer) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line)
	cursor := byteCursor(line, pos)

	st := c.engine.Update(text, cursor)
	if st.Loading && c.wait > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), c.wait)
		_, err := c.engine.Vocabulary(ctx, st.Context.Field)
		cancel()
		if err == nil {
			st = c.engine.Update(text, cursor)
		}
	}
	if !st.Open {
		return nil, 0
	}

	prefix := st.Context.Prefix
	colonFollows := strings.HasPrefix(text[st.Context.ReplaceEnd:], ":")

	var out [][]rune
	for _, s := range st.Suggestions {
		if !strings.HasPrefix(s.Label, prefix) {
			continue
		}
		suffix := s.Label[len(prefix):]
		if s.Kind == query.KindField && !colonFollows {
			suffix += ":"
		}
		out = append(out, []rune(suffix))
	}
	return out, utf8.RuneCountInString(prefix)
}

// OnChange keeps the engine in step with every keystroke so vocabularies
// load while the user types.
func (c *Completer) OnChange(line []rune, pos int, _ rune) ([]rune, int, bool) {
	c.engine.Update(string(line), byteCursor(line, pos))
	return nil, 0, false
}
