package statemachine

import (
	"fmt"
	"io"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// JournalEntry is the serializable record of one transition.
type JournalEntry struct {
	Seq       uint64    `yaml:"seq" json:"seq"`
	Event     string    `yaml:"event" json:"event"`
	From      string    `yaml:"from" json:"from"`
	To        string    `yaml:"to" json:"to"`
	Changed   bool      `yaml:"changed" json:"changed"`
	Error     string    `yaml:"error,omitempty" json:"error,omitempty"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
}

// Journal records transitions of a machine together with the raw events,
// so a run can be exported for inspection and replayed offline.
// Only type names and error strings are exported; payloads stay in memory.
type Journal[S State] struct {
	mu      sync.Mutex
	entries []JournalEntry
	events  []Event
	now     func() time.Time
}

// NewJournal returns an empty journal.
func NewJournal[S State]() *Journal[S] {
	return &Journal[S]{now: time.Now}
}

// Record is a Listener.
func (j *Journal[S]) Record(tr Transition[S]) {
	entry := JournalEntry{
		Seq:       tr.Seq,
		Event:     tr.Event.Type(),
		From:      tr.From.Type(),
		To:        tr.To.Type(),
		Changed:   tr.Changed,
		Timestamp: j.now().UTC(),
	}
	if ev, ok := tr.Event.(ErrorEvent); ok && ev.Err() != nil {
		entry.Error = ev.Err().Error()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	j.events = append(j.events, tr.Event)
}

// Entries returns a copy of the recorded entries.
func (j *Journal[S]) Entries() []JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]JournalEntry(nil), j.entries...)
}

// Events returns the recorded events in processing order, suitable for Replay.
func (j *Journal[S]) Events() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Event(nil), j.events...)
}

// WriteYAML writes the entries as a YAML sequence.
func (j *Journal[S]) WriteYAML(w io.Writer) error {
	entries := j.Entries()
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode journal: %w", err)
	}
	return enc.Close()
}

// ReadJournalYAML decodes entries previously written with WriteYAML.
func ReadJournalYAML(r io.Reader) ([]JournalEntry, error) {
	var entries []JournalEntry
	if err := yaml.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode journal: %w", err)
	}
	return entries, nil
}
