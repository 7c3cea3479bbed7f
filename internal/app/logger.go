package app

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
)

// Log formats accepted by newLogger.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatJournal = "journal"
)

// journalEnabled is swapped in tests.
var journalEnabled = journal.Enabled

// newLogger creates and configures a new slog.Logger instance. It does not
// set the global logger, allowing for isolated logger instances. The journal
// format falls back to text when journald is not reachable.
func newLogger(level slog.Level, format string, outW io.Writer) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler

	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(outW, handlerOpts)
	case FormatJournal:
		if journalEnabled() {
			handler = &journalHandler{level: level, send: journal.Send}
			break
		}
		fallthrough
	default:
		handler = slog.NewTextHandler(outW, handlerOpts)
	}

	return slog.New(handler)
}

// journalHandler sends records to systemd-journald as structured entries.
// Attributes added with WithAttrs are rendered once, under the groups open at
// that time.
type journalHandler struct {
	level  slog.Level
	vars   map[string]string
	prefix string
	send   func(message string, priority journal.Priority, vars map[string]string) error
}

func (h *journalHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level
}

func (h *journalHandler) Handle(_ context.Context, r slog.Record) error {
	vars := make(map[string]string, len(h.vars)+r.NumAttrs())
	maps.Copy(vars, h.vars)
	r.Attrs(func(a slog.Attr) bool {
		addJournalVar(vars, h.prefix, a)
		return true
	})
	return h.send(r.Message, journalPriority(r.Level), vars)
}

func (h *journalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.vars = maps.Clone(h.vars)
	if c.vars == nil {
		c.vars = make(map[string]string, len(attrs))
	}
	for _, a := range attrs {
		addJournalVar(c.vars, h.prefix, a)
	}
	return &c
}

func (h *journalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = name
	if h.prefix != "" {
		c.prefix = h.prefix + "_" + name
	}
	return &c
}

func journalPriority(l slog.Level) journal.Priority {
	switch {
	case l >= slog.LevelError+4:
		return journal.PriCrit
	case l >= slog.LevelError:
		return journal.PriErr
	case l >= slog.LevelWarn:
		return journal.PriWarning
	case l >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

func addJournalVar(vars map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := a.Key
	if prefix != "" {
		key = prefix + "_" + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, sub := range a.Value.Group() {
			addJournalVar(vars, key, sub)
		}
		return
	}
	vars[journalField(key)] = a.Value.String()
}

// journalField maps an attribute key onto journald's field name alphabet:
// upper-case letters, digits and underscores, not starting with one.
func journalField(key string) string {
	var sb strings.Builder
	for _, c := range strings.ToUpper(key) {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			sb.WriteRune(c)
		} else {
			sb.WriteByte('_')
		}
	}
	return "HM_" + strings.TrimLeft(sb.String(), "_")
}
