// Package api serves the faction world state over HTTP.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/dominion/internal/claim"
	"github.com/talgya/dominion/internal/core"
	"github.com/talgya/dominion/internal/event"
	"github.com/talgya/dominion/internal/faction"
)

// Server serves the faction state over HTTP.
type Server struct {
	Svc      *core.Service
	Ticker   *core.Ticker
	Events   *event.RingSink // nil disables /events
	Save     func() error    // admin snapshot hook; nil disables
	Port     int
	AdminKey string // bearer token for POST endpoints. Empty = POST disabled.
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	eventsLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/factions", s.handleFactions)
	mux.HandleFunc("/api/v1/faction/", s.handleFactionDetail)
	mux.HandleFunc("/api/v1/claim", s.handleClaim)
	mux.HandleFunc("/api/v1/check", s.handleCheck)
	mux.HandleFunc("/api/v1/sieges", s.handleSieges)
	mux.HandleFunc("/api/v1/events", RateLimitMiddleware(eventsLimiter, s.handleEvents))

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/snapshot", s.adminOnly(s.handleSnapshot))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no admin key set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	factions := s.Svc.Registry.All()
	members := 0
	for _, f := range factions {
		members += len(f.Members)
	}
	status := map[string]any{
		"name":          "Dominion",
		"factions":      len(factions),
		"members":       members,
		"active_sieges": len(s.Svc.Sieges.All()),
	}
	if s.Ticker != nil {
		status["speed"] = s.Ticker.Speed()
		status["running"] = s.Ticker.Running()
	}
	writeJSON(w, status)
}

type factionSummary struct {
	ID       faction.FactionID `json:"id"`
	Name     string            `json:"name"`
	OwnerID  faction.PlayerID  `json:"owner_id"`
	Members  int               `json:"members"`
	Claims   int               `json:"claims"`
	Capacity int               `json:"capacity"`
}

func (s *Server) handleFactions(w http.ResponseWriter, r *http.Request) {
	factions := s.Svc.Registry.All()
	out := make([]factionSummary, 0, len(factions))
	for _, f := range factions {
		out = append(out, factionSummary{
			ID:       f.ID,
			Name:     f.Name,
			OwnerID:  f.OwnerID,
			Members:  len(f.Members),
			Claims:   s.Svc.Ledger.Count(f.ID),
			Capacity: s.Svc.ClaimCapacity(f.ID),
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleFactionDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/faction/")
	f := s.Svc.Registry.ByID(faction.FactionID(id))
	if f == nil {
		f = s.Svc.Registry.FindByName(id)
	}
	if f == nil {
		http.Error(w, "faction not found", http.StatusNotFound)
		return
	}

	members := make(map[string]string, len(f.Members))
	for p, role := range f.Members {
		members[string(p)] = role.String()
	}
	detail := map[string]any{
		"id":       f.ID,
		"name":     f.Name,
		"owner_id": f.OwnerID,
		"members":  members,
		"claims":   s.Svc.Ledger.ClaimsOf(f.ID),
		"capacity": s.Svc.ClaimCapacity(f.ID),
	}
	if overlord, ok := s.Svc.Relations.OverlordOf(f.ID); ok {
		detail["overlord"] = overlord
		detail["breakaway_active"] = s.Svc.Relations.IsBreakawayActive(f.ID)
	}
	writeJSON(w, detail)
}

// handleClaim answers GET /api/v1/claim?x=..&z=.. with the chunk's owner.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	c, ok := coordQuery(w, r)
	if !ok {
		return
	}
	out := map[string]any{"coord": c}
	if owner, claimed := s.Svc.OwnerOf(c); claimed {
		out["owner"] = owner
	} else if owner, safe := s.Svc.Ledger.SafeZoneOwner(c); safe {
		out["owner"] = owner
		out["safe_zone"] = true
	}
	if s.Svc.Zones != nil {
		out["zone"] = s.Svc.Zones.At(c).String()
	}
	writeJSON(w, out)
}

// handleCheck answers GET /api/v1/check?player=..&x=..&z=..&capability=..
// with the same gate world-event hooks use.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	c, ok := coordQuery(w, r)
	if !ok {
		return
	}
	player := faction.PlayerID(r.URL.Query().Get("player"))
	cap, err := faction.ParseCapability(r.URL.Query().Get("capability"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{
		"allowed": s.Svc.CheckPermission(player, c, cap),
	})
}

func (s *Server) handleSieges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Svc.Sieges.All())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		writeJSON(w, []event.Record{})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	writeJSON(w, s.Events.Recent(limit))
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if s.Ticker == nil {
		http.Error(w, "no ticker", http.StatusServiceUnavailable)
		return
	}
	var body struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Speed < 0 {
		http.Error(w, "bad speed", http.StatusBadRequest)
		return
	}
	s.Ticker.SetSpeed(body.Speed)
	slog.Info("tick speed changed", "speed", body.Speed)
	writeJSON(w, map[string]any{"speed": body.Speed})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if s.Save == nil {
		http.Error(w, "persistence not configured", http.StatusServiceUnavailable)
		return
	}
	if err := s.Save(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"saved": true})
}

func coordQuery(w http.ResponseWriter, r *http.Request) (claim.Coord, bool) {
	x, errX := strconv.Atoi(r.URL.Query().Get("x"))
	z, errZ := strconv.Atoi(r.URL.Query().Get("z"))
	if errX != nil || errZ != nil {
		http.Error(w, "x and z query parameters required", http.StatusBadRequest)
		return claim.Coord{}, false
	}
	return claim.Coord{X: x, Z: z}, true
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
