// Package zone classifies world regions as wilderness, safe zone, or war
// zone. Auto-claim is disabled inside safe and war zones. The base
// classification is derived deterministically from seeded simplex noise over
// chunk coordinates; explicit override rectangles take precedence.
package zone

import (
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/dominion/internal/claim"
)

// Kind is the region class of a chunk.
type Kind uint8

const (
	Wilderness Kind = iota
	SafeRegion
	WarRegion
)

func (k Kind) String() string {
	switch k {
	case SafeRegion:
		return "safe"
	case WarRegion:
		return "war"
	default:
		return "wilderness"
	}
}

// Override pins a rectangle of chunks to a fixed kind regardless of noise.
type Override struct {
	MinX, MinZ int  `yaml:"min_x"`
	MaxX, MaxZ int  `yaml:"max_x"`
	Kind       Kind `yaml:"kind"`
}

func (o Override) contains(c claim.Coord) bool {
	return c.X >= o.MinX && c.X <= o.MaxX && c.Z >= o.MinZ && c.Z <= o.MaxZ
}

// Map answers region classification queries. Immutable after construction,
// safe for concurrent reads.
type Map struct {
	noise     opensimplex.Noise
	scale     float64
	safeAbove float64 // noise >= safeAbove → safe region
	warBelow  float64 // noise < warBelow → war region
	overrides []Override
}

// Config holds the noise thresholds. Values are normalized noise in [0, 1];
// a safeAbove of 1.01 disables noise-driven safe regions entirely.
type Config struct {
	Seed      int64      `yaml:"seed"`
	Scale     float64    `yaml:"scale"`
	SafeAbove float64    `yaml:"safe_above"`
	WarBelow  float64    `yaml:"war_below"`
	Overrides []Override `yaml:"overrides"`
}

// DefaultConfig keeps most of the world wilderness with sparse extreme
// pockets.
func DefaultConfig() Config {
	return Config{
		Seed:      1,
		Scale:     0.02,
		SafeAbove: 0.96,
		WarBelow:  0.04,
	}
}

// NewMap builds a zone map from config.
func NewMap(cfg Config) *Map {
	scale := cfg.Scale
	if scale <= 0 {
		scale = 0.02
	}
	return &Map{
		noise:     opensimplex.NewNormalized(cfg.Seed),
		scale:     scale,
		safeAbove: cfg.SafeAbove,
		warBelow:  cfg.WarBelow,
		overrides: cfg.Overrides,
	}
}

// At returns the region kind for a chunk coordinate. Overrides are checked
// first, in order.
func (m *Map) At(c claim.Coord) Kind {
	for _, o := range m.overrides {
		if o.contains(c) {
			return o.Kind
		}
	}
	v := m.noise.Eval2(float64(c.X)*m.scale, float64(c.Z)*m.scale)
	switch {
	case v >= m.safeAbove:
		return SafeRegion
	case v < m.warBelow:
		return WarRegion
	default:
		return Wilderness
	}
}

// AutoClaimAllowed reports whether auto-claim may fire in this chunk.
func (m *Map) AutoClaimAllowed(c claim.Coord) bool {
	return m.At(c) == Wilderness
}
