package agentloop

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EntryType identifies the variant of a scratchpad entry.
type EntryType string

const (
	EntryInit       EntryType = "init"
	EntryThinking   EntryType = "thinking"
	EntryToolResult EntryType = "tool_result"
)

// Entry is one record in the scratchpad. Content is set for init and
// thinking entries; ToolName, Args and Result for tool_result entries.
// Result holds parsed JSON when the tool output was a structured payload,
// otherwise the raw text.
type Entry struct {
	Type      EntryType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Content   string         `json:"content,omitempty"`
	ToolName  string         `json:"toolName,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Result    any            `json:"result,omitempty"`
}

// ToolCallRecord summarizes one completed tool call for the done event.
type ToolCallRecord struct {
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
	Result string         `json:"result,omitempty"`
}

// Scratchpad is a run's append-only evidence log. Entries are appended in
// execution order and mirrored to a per-run trace file; the only permitted
// mutation is evicting the oldest tool_result entries.
//
// A Scratchpad is owned by a single run and is not safe for concurrent use.
type Scratchpad struct {
	entries []Entry
	trace   *traceWriter
	logger  zerolog.Logger
}

// NewScratchpad creates a scratchpad, opening a trace file named
// trace-<runID>.jsonl under traceDir. An empty traceDir keeps the
// scratchpad purely in memory; a trace file that cannot be opened is
// logged and the run proceeds without one.
func NewScratchpad(traceDir, runID string, logger zerolog.Logger) *Scratchpad {
	pad := &Scratchpad{logger: logger}
	if traceDir == "" {
		return pad
	}
	trace, err := newTraceWriter(traceDir, runID)
	if err != nil {
		logger.Warn().Err(err).Str("dir", traceDir).Msg("trace file unavailable, continuing in memory")
		return pad
	}
	pad.trace = trace
	return pad
}

// Init appends the run's opening entry carrying the query text.
func (p *Scratchpad) Init(content string) {
	p.append(Entry{Type: EntryInit, Timestamp: time.Now().UTC(), Content: content})
}

// AddThinking appends a thinking entry. Thinking entries are never evicted.
func (p *Scratchpad) AddThinking(text string) {
	p.append(Entry{Type: EntryThinking, Timestamp: time.Now().UTC(), Content: text})
}

// AddToolResult appends a tool_result entry. Output that parses as a JSON
// object or array is stored structured; anything else is stored as raw text.
func (p *Scratchpad) AddToolResult(toolName string, args map[string]any, result string) {
	p.append(Entry{
		Type:      EntryToolResult,
		Timestamp: time.Now().UTC(),
		ToolName:  toolName,
		Args:      args,
		Result:    classifyResult(result),
	})
}

func (p *Scratchpad) append(e Entry) {
	p.entries = append(p.entries, e)
	if p.trace == nil {
		return
	}
	if err := p.trace.append(e); err != nil {
		p.logger.Warn().Err(err).Msg("trace append failed")
	}
}

// HasToolResults reports whether any tool_result entry exists.
func (p *Scratchpad) HasToolResults() bool {
	for _, e := range p.entries {
		if e.Type == EntryToolResult {
			return true
		}
	}
	return false
}

// ToolResultCount returns the number of tool_result entries.
func (p *Scratchpad) ToolResultCount() int {
	n := 0
	for _, e := range p.entries {
		if e.Type == EntryToolResult {
			n++
		}
	}
	return n
}

// ToolResultsText renders all tool results as prompt text, oldest first.
func (p *Scratchpad) ToolResultsText() string {
	var b strings.Builder
	for _, e := range p.entries {
		if e.Type != EntryToolResult {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s(%s)]\n%s", e.ToolName, formatArgs(e.Args), resultText(e.Result))
	}
	return b.String()
}

// UsageSummary renders a compact per-tool call count, e.g.
// "quote x2, ratio_analysis x1".
func (p *Scratchpad) UsageSummary() string {
	counts := make(map[string]int)
	for _, e := range p.entries {
		if e.Type == EntryToolResult {
			counts[e.ToolName]++
		}
	}
	if len(counts) == 0 {
		return ""
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s x%d", name, counts[name]))
	}
	return strings.Join(parts, ", ")
}

// EvictToolResults removes the oldest tool_result entries until at most
// keep remain, returning the number removed. Init and thinking entries are
// untouched.
func (p *Scratchpad) EvictToolResults(keep int) int {
	if keep < 0 {
		keep = 0
	}
	total := p.ToolResultCount()
	if total <= keep {
		return 0
	}
	evict := total - keep

	kept := p.entries[:0]
	removed := 0
	for _, e := range p.entries {
		if e.Type == EntryToolResult && removed < evict {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	p.entries = kept
	return removed
}

// Entries returns a copy of the current entries.
func (p *Scratchpad) Entries() []Entry {
	out := make([]Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Close releases the trace file, if any.
func (p *Scratchpad) Close() error {
	if p.trace == nil {
		return nil
	}
	return p.trace.close()
}

// classifyResult parses output that looks like a structured payload so the
// trace and prompt rendering can treat it as data.
func classifyResult(result string) any {
	trimmed := strings.TrimSpace(result)
	if len(trimmed) == 0 {
		return result
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return result
	}
	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return result
	}
	return parsed
}

// resultText renders a stored result back to text for prompts and records.
func resultText(result any) string {
	switch v := result.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return strings.Join(parts, ", ")
}

// traceWriter appends scratchpad entries to a JSONL file, one record per
// line, flushed as written so an observer can tail a live run.
type traceWriter struct {
	f *os.File
}

func newTraceWriter(dir, runID string) (*traceWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating trace dir: %w", err)
	}
	path := filepath.Join(dir, "trace-"+runID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	return &traceWriter{f: f}, nil
}

func (w *traceWriter) append(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding trace entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.f.Write(data); err != nil {
		return fmt.Errorf("writing trace entry: %w", err)
	}
	return nil
}

func (w *traceWriter) close() error {
	return w.f.Close()
}
