// Package session persists named conversation sessions as JSON files,
// one file per session under a single directory.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fintalk/fintalk/agentloop"
)

// Record is the on-disk form of one named session: the exchange
// history plus the tools the user approved for the whole session.
type Record struct {
	Name      string               `json:"name"`
	Exchanges []agentloop.Exchange `json:"exchanges,omitempty"`
	Approved  []string             `json:"approved_tools,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// Store reads and writes session records under one directory. The
// directory is created on first save.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the store's root directory.
func (st *Store) Dir() string { return st.dir }

func (st *Store) path(name string) string {
	return filepath.Join(st.dir, name+".json")
}

// validName rejects names that would escape the store directory.
func validName(name string) error {
	if name == "" {
		return fmt.Errorf("session: name is empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("session: invalid name %q", name)
	}
	return nil
}

// Load reads a session by name. A missing session returns an error
// satisfying errors.Is(err, fs.ErrNotExist).
func (st *Store) Load(name string) (*Record, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(st.path(name))
	if err != nil {
		return nil, fmt.Errorf("session: load %q: %w", name, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("session: parse %q: %w", name, err)
	}
	if rec.Name == "" {
		rec.Name = name
	}
	return &rec, nil
}

// LoadOrCreate loads a session, returning a fresh record when none
// exists yet. Nothing is written until Save.
func (st *Store) LoadOrCreate(name string) (*Record, error) {
	rec, err := st.Load(name)
	if errors.Is(err, fs.ErrNotExist) {
		if nameErr := validName(name); nameErr != nil {
			return nil, nameErr
		}
		return &Record{Name: name, CreatedAt: time.Now()}, nil
	}
	return rec, err
}

// Save writes a record atomically: the JSON goes to a temp file in the
// same directory which is then renamed over the target, so a crash
// never leaves a torn session file.
func (st *Store) Save(rec *Record) error {
	if err := validName(rec.Name); err != nil {
		return err
	}
	if err := os.MkdirAll(st.dir, 0o755); err != nil {
		return fmt.Errorf("session: create dir: %w", err)
	}

	rec.UpdatedAt = time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode %q: %w", rec.Name, err)
	}

	tmp, err := os.CreateTemp(st.dir, rec.Name+".*.tmp")
	if err != nil {
		return fmt.Errorf("session: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("session: write %q: %w", rec.Name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("session: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), st.path(rec.Name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("session: rename %q: %w", rec.Name, err)
	}
	return nil
}

// Delete removes a stored session.
func (st *Store) Delete(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := os.Remove(st.path(name)); err != nil {
		return fmt.Errorf("session: delete %q: %w", name, err)
	}
	return nil
}

// Summary describes one stored session for listings.
type Summary struct {
	Name      string
	Exchanges int
	UpdatedAt time.Time
}

// List returns a summary per stored session, sorted by name. Files
// that fail to parse are skipped rather than failing the listing.
func (st *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(st.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}

	var out []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		rec, err := st.Load(name)
		if err != nil {
			continue
		}
		out = append(out, Summary{
			Name:      name,
			Exchanges: len(rec.Exchanges),
			UpdatedAt: rec.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Hydrate replays the record's history and session approvals into an
// engine session.
func (r *Record) Hydrate(s *agentloop.Session) {
	for _, ex := range r.Exchanges {
		s.AddExchange(ex)
	}
	for _, tool := range r.Approved {
		s.ApproveTool(tool)
	}
}

// Capture refreshes the record from an engine session after a run.
func (r *Record) Capture(s *agentloop.Session) {
	r.Exchanges = s.History()
	r.Approved = s.ApprovedTools()
}
