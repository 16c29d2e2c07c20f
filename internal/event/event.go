// Package event defines the outbound notification surface. Chat, UI, and
// map integrations consume these; the core never depends on a concrete
// integration, only on Sink, with a no-op default when none is wired.
package event

import (
	"log/slog"
	"sync"

	"github.com/talgya/dominion/internal/claim"
	"github.com/talgya/dominion/internal/faction"
)

// Sink receives outbound notifications. Implementations must not block;
// failures are theirs to log and swallow.
type Sink interface {
	// ClaimChanged fires when a coordinate's owner changes. claimed is
	// false when the coordinate became unowned.
	ClaimChanged(c claim.Coord, owner faction.FactionID, claimed bool)
	FactionMessage(id faction.FactionID, text string)
	PlayerMessage(p faction.PlayerID, text string)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) ClaimChanged(claim.Coord, faction.FactionID, bool) {}
func (NopSink) FactionMessage(faction.FactionID, string)          {}
func (NopSink) PlayerMessage(faction.PlayerID, string)            {}

// LogSink writes notifications to slog. Useful as a default for a headless
// server.
type LogSink struct{}

func (LogSink) ClaimChanged(c claim.Coord, owner faction.FactionID, claimed bool) {
	slog.Info("claim changed", "coord", c.String(), "owner", string(owner), "claimed", claimed)
}

func (LogSink) FactionMessage(id faction.FactionID, text string) {
	slog.Info("faction message", "faction", string(id), "text", text)
}

func (LogSink) PlayerMessage(p faction.PlayerID, text string) {
	slog.Info("player message", "player", string(p), "text", text)
}

// Record is one captured notification.
type Record struct {
	Kind    string            `json:"kind"` // "claim", "faction", "player"
	Coord   *claim.Coord      `json:"coord,omitempty"`
	Faction faction.FactionID `json:"faction,omitempty"`
	Player  faction.PlayerID  `json:"player,omitempty"`
	Claimed bool              `json:"claimed,omitempty"`
	Text    string            `json:"text,omitempty"`
}

// RingSink keeps the most recent notifications in memory for the API and
// for tests. Thread-safe.
type RingSink struct {
	mu      sync.Mutex
	records []Record
	max     int
}

// NewRingSink creates a sink retaining up to max records.
func NewRingSink(max int) *RingSink {
	if max <= 0 {
		max = 1000
	}
	return &RingSink{max: max}
}

func (s *RingSink) add(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	if len(s.records) > s.max {
		s.records = s.records[len(s.records)-s.max:]
	}
}

func (s *RingSink) ClaimChanged(c claim.Coord, owner faction.FactionID, claimed bool) {
	s.add(Record{Kind: "claim", Coord: &c, Faction: owner, Claimed: claimed})
}

func (s *RingSink) FactionMessage(id faction.FactionID, text string) {
	s.add(Record{Kind: "faction", Faction: id, Text: text})
}

func (s *RingSink) PlayerMessage(p faction.PlayerID, text string) {
	s.add(Record{Kind: "player", Player: p, Text: text})
}

// Recent returns up to limit of the newest records, newest last.
func (s *RingSink) Recent(limit int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]Record, limit)
	copy(out, s.records[len(s.records)-limit:])
	return out
}

// Tee fans notifications out to several sinks.
type Tee []Sink

func (t Tee) ClaimChanged(c claim.Coord, owner faction.FactionID, claimed bool) {
	for _, s := range t {
		s.ClaimChanged(c, owner, claimed)
	}
}

func (t Tee) FactionMessage(id faction.FactionID, text string) {
	for _, s := range t {
		s.FactionMessage(id, text)
	}
}

func (t Tee) PlayerMessage(p faction.PlayerID, text string) {
	for _, s := range t {
		s.PlayerMessage(p, text)
	}
}
