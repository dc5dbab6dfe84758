package agentloop

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func memPad() *Scratchpad {
	return NewScratchpad("", "test", zerolog.Nop())
}

func TestScratchpadAppend(t *testing.T) {
	pad := memPad()
	pad.Init("What is AAPL worth?")
	pad.AddThinking("I should fetch a quote.")
	pad.AddToolResult("quote", map[string]any{"symbol": "AAPL"}, "AAPL: 231.40")

	entries := pad.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Type != EntryInit || entries[0].Content != "What is AAPL worth?" {
		t.Errorf("unexpected init entry %+v", entries[0])
	}
	if entries[1].Type != EntryThinking {
		t.Errorf("expected thinking entry, got %q", entries[1].Type)
	}
	if entries[2].Type != EntryToolResult || entries[2].ToolName != "quote" {
		t.Errorf("unexpected tool entry %+v", entries[2])
	}
	if !pad.HasToolResults() {
		t.Error("expected HasToolResults true")
	}
	if pad.ToolResultCount() != 1 {
		t.Errorf("expected 1 tool result, got %d", pad.ToolResultCount())
	}
}

func TestScratchpadToolResultsText(t *testing.T) {
	pad := memPad()
	pad.AddToolResult("quote", map[string]any{"symbol": "AAPL"}, "AAPL: 231.40")
	pad.AddToolResult("ratio_analysis", map[string]any{"symbol": "AAPL", "period": 4}, "P/E: 28.1")

	text := pad.ToolResultsText()
	want := "[quote(symbol=AAPL)]\nAAPL: 231.40\n\n[ratio_analysis(period=4, symbol=AAPL)]\nP/E: 28.1"
	if text != want {
		t.Errorf("expected\n%q\ngot\n%q", want, text)
	}
}

func TestScratchpadUsageSummary(t *testing.T) {
	pad := memPad()
	if pad.UsageSummary() != "" {
		t.Errorf("expected empty summary, got %q", pad.UsageSummary())
	}
	pad.AddToolResult("ratio_analysis", nil, "r")
	pad.AddToolResult("quote", nil, "a")
	pad.AddToolResult("quote", nil, "b")

	if got := pad.UsageSummary(); got != "quote x2, ratio_analysis x1" {
		t.Errorf("unexpected summary %q", got)
	}
}

func TestScratchpadEviction(t *testing.T) {
	pad := memPad()
	pad.Init("query")
	pad.AddThinking("first thought")
	for i := 0; i < 10; i++ {
		pad.AddToolResult(fmt.Sprintf("t%d", i), nil, "result")
	}
	pad.AddThinking("second thought")

	removed := pad.EvictToolResults(3)
	if removed != 7 {
		t.Fatalf("expected 7 removed, got %d", removed)
	}
	if pad.ToolResultCount() != 3 {
		t.Errorf("expected 3 surviving results, got %d", pad.ToolResultCount())
	}

	// Only the oldest tool results go; init and thinking survive.
	var survivors []string
	init, thinking := 0, 0
	for _, e := range pad.Entries() {
		switch e.Type {
		case EntryToolResult:
			survivors = append(survivors, e.ToolName)
		case EntryInit:
			init++
		case EntryThinking:
			thinking++
		}
	}
	if !reflect.DeepEqual(survivors, []string{"t7", "t8", "t9"}) {
		t.Errorf("expected newest results kept, got %v", survivors)
	}
	if init != 1 || thinking != 2 {
		t.Errorf("expected init and thinking untouched, got init=%d thinking=%d", init, thinking)
	}
}

func TestScratchpadEvictionNoop(t *testing.T) {
	pad := memPad()
	pad.AddToolResult("quote", nil, "a")
	pad.AddToolResult("quote", nil, "b")

	if removed := pad.EvictToolResults(3); removed != 0 {
		t.Errorf("expected nothing removed, got %d", removed)
	}
	if pad.ToolResultCount() != 2 {
		t.Errorf("expected 2 results, got %d", pad.ToolResultCount())
	}
}

func TestScratchpadEvictionNegativeKeep(t *testing.T) {
	pad := memPad()
	pad.AddToolResult("quote", nil, "a")

	if removed := pad.EvictToolResults(-1); removed != 1 {
		t.Errorf("expected everything removed, got %d", removed)
	}
}

func TestScratchpadResultClassification(t *testing.T) {
	tests := []struct {
		name   string
		result string
		want   any
	}{
		{"json object", `{"price": 231.4}`, map[string]any{"price": 231.4}},
		{"json array", `[1, 2]`, []any{float64(1), float64(2)}},
		{"plain text", "AAPL: 231.40", "AAPL: 231.40"},
		{"broken json", `{"price":`, `{"price":`},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pad := memPad()
			pad.AddToolResult("quote", nil, tt.result)
			got := pad.Entries()[0].Result
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestScratchpadTraceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pad := NewScratchpad(dir, "run42", zerolog.Nop())
	pad.Init("What is AAPL worth?")
	pad.AddThinking("fetching a quote")
	pad.AddToolResult("quote", map[string]any{"symbol": "AAPL"}, `{"price": 231.4}`)
	originals := pad.Entries()
	if err := pad.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "trace-run42.jsonl"))
	if err != nil {
		t.Fatalf("reading trace: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != len(originals) {
		t.Fatalf("expected %d trace lines, got %d", len(originals), len(lines))
	}

	for i, line := range lines {
		var got Entry
		if err := json.Unmarshal([]byte(line), &got); err != nil {
			t.Fatalf("line %d does not parse: %v", i, err)
		}
		want := originals[i]
		if got.Type != want.Type || got.Content != want.Content || got.ToolName != want.ToolName {
			t.Errorf("line %d mismatch: got %+v, want %+v", i, got, want)
		}
		if !got.Timestamp.Equal(want.Timestamp) {
			t.Errorf("line %d timestamp mismatch: got %v, want %v", i, got.Timestamp, want.Timestamp)
		}
		if !reflect.DeepEqual(got.Args, want.Args) {
			t.Errorf("line %d args mismatch: got %#v, want %#v", i, got.Args, want.Args)
		}
		if !reflect.DeepEqual(got.Result, want.Result) {
			t.Errorf("line %d result mismatch: got %#v, want %#v", i, got.Result, want.Result)
		}
	}
}

func TestScratchpadTraceAppendOnlyAcrossEviction(t *testing.T) {
	dir := t.TempDir()
	pad := NewScratchpad(dir, "run43", zerolog.Nop())
	for i := 0; i < 5; i++ {
		pad.AddToolResult(fmt.Sprintf("t%d", i), nil, "result")
	}
	pad.EvictToolResults(2)
	pad.Close()

	data, err := os.ReadFile(filepath.Join(dir, "trace-run43.jsonl"))
	if err != nil {
		t.Fatalf("reading trace: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 5 {
		t.Errorf("eviction must not rewrite the trace; expected 5 lines, got %d", len(lines))
	}
}

func TestScratchpadUnwritableTraceDir(t *testing.T) {
	// A regular file where the trace dir should be: the open fails and the
	// scratchpad continues in memory.
	blocked := filepath.Join(t.TempDir(), "occupied")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	pad := NewScratchpad(blocked, "run1", zerolog.Nop())
	pad.Init("query")
	if len(pad.Entries()) != 1 {
		t.Error("expected in-memory operation to continue")
	}
	if err := pad.Close(); err != nil {
		t.Errorf("close: %v", err)
	}
}
