// Command dominion runs the faction territory server: the faction/claim/
// relation store, siege engine, and teleport channels behind an HTTP API.
// World-engine integration (player positions, teleport execution) is
// injected; standalone the server runs with an empty world bridge.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/talgya/dominion/internal/api"
	"github.com/talgya/dominion/internal/claim"
	"github.com/talgya/dominion/internal/config"
	"github.com/talgya/dominion/internal/core"
	"github.com/talgya/dominion/internal/event"
	"github.com/talgya/dominion/internal/faction"
	"github.com/talgya/dominion/internal/persistence"
	"github.com/talgya/dominion/internal/teleport"
	"github.com/talgya/dominion/internal/zone"
)

// emptyWorld is the standalone world bridge: no players online. A host
// engine embedding the core injects its own Presence/Locator/Mover.
type emptyWorld struct{}

func (emptyWorld) PlayerInChunk(faction.PlayerID, string, claim.Coord) bool   { return false }
func (emptyWorld) FactionInChunk(faction.FactionID, string, claim.Coord) bool { return false }
func (emptyWorld) Position(faction.PlayerID) (teleport.Position, bool) {
	return teleport.Position{}, false
}
func (emptyWorld) Teleport(faction.PlayerID, string, claim.Coord) {}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfgPath := os.Getenv("DOMINION_CONFIG")
	if cfgPath == "" {
		cfgPath = "dominion.yml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Core service ──────────────────────────────────────────────────
	ring := event.NewRingSink(1000)
	world := emptyWorld{}
	svc := core.NewService(
		cfg.CoreConfig(),
		cfg.SiegeConfig(),
		cfg.TeleportConfig(),
		zone.NewMap(cfg.Zones),
		core.Deps{
			Presence: world,
			Locator:  world,
			Mover:    world,
			Sink:     event.Tee{event.LogSink{}, ring},
		},
	)

	if db.HasState() {
		st, err := db.LoadState()
		if err != nil {
			slog.Error("failed to load state", "error", err)
			os.Exit(1)
		}
		svc.ImportState(st)
	} else {
		slog.Info("no saved state found, starting fresh")
	}

	save := func() error {
		return db.SaveState(svc.ExportState())
	}

	// ── Ticker ────────────────────────────────────────────────────────
	ticker := core.NewTicker()
	ticker.Interval = time.Duration(cfg.TickInterval)

	// Auto-save once a minute of ticks.
	const ticksPerSave = 60
	tickCount := 0
	ticker.OnTick = func() {
		svc.Tick()
		tickCount++
		if tickCount%ticksPerSave == 0 {
			if err := save(); err != nil {
				slog.Error("periodic save failed", "error", err)
			}
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("DOMINION_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("DOMINION_ADMIN_KEY not set, admin POST endpoints disabled")
	}

	apiServer := &api.Server{
		Svc:      svc,
		Ticker:   ticker,
		Events:   ring,
		Save:     save,
		Port:     cfg.APIPort,
		AdminKey: adminKey,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		ticker.Stop()
	}()

	fmt.Printf("Dominion is up. API: http://localhost:%d/api/v1/status\n", cfg.APIPort)
	ticker.Run()

	slog.Info("final save...")
	if err := save(); err != nil {
		slog.Error("final save failed", "error", err)
	}
}
