// Package config loads server configuration from YAML with compiled-in
// defaults. Every numeric policy knob lives here so game balance is a
// deployment concern, not a code change.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/dominion/internal/core"
	"github.com/talgya/dominion/internal/siege"
	"github.com/talgya/dominion/internal/teleport"
	"github.com/talgya/dominion/internal/zone"
)

// Duration wraps time.Duration with YAML support for strings like "10m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) std() time.Duration {
	return time.Duration(d)
}

// Config is the full server configuration.
type Config struct {
	TickInterval Duration `yaml:"tick_interval"`
	DBPath       string   `yaml:"db_path"`
	APIPort      int      `yaml:"api_port"`

	Claims struct {
		BaseCapacity            int      `yaml:"base_capacity"`
		PerMemberCapacity       int      `yaml:"per_member_capacity"`
		LevelDivisor            int      `yaml:"level_divisor"`
		PerLevelCapacityBonus   int      `yaml:"per_level_capacity_bonus"`
		BaseCooldown            Duration `yaml:"base_cooldown"`
		PerLevelCooldownCut     Duration `yaml:"per_level_cooldown_cut"`
		OwnerCooldownMultiplier float64  `yaml:"owner_cooldown_multiplier"`
		AutoClaimCooldown       Duration `yaml:"auto_claim_cooldown"`
	} `yaml:"claims"`

	Siege struct {
		OffenseThreshold  Duration `yaml:"offense_threshold"`
		DefenseThreshold  Duration `yaml:"defense_threshold"`
		LeaderDownGrace   Duration `yaml:"leader_down_grace"`
		BroadcastInterval Duration `yaml:"broadcast_interval"`
	} `yaml:"siege"`

	Teleport struct {
		Delay            Duration   `yaml:"delay"`
		ParticleInterval Duration   `yaml:"particle_interval"`
		MoveTolerance    float64    `yaml:"move_tolerance"`
		NoticeMarks      []Duration `yaml:"notice_marks"`
	} `yaml:"teleport"`

	Zones zone.Config `yaml:"zones"`

	InviteTTL         Duration `yaml:"invite_ttl"`
	BreakawayCaptures int      `yaml:"breakaway_captures"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	var c Config
	c.TickInterval = Duration(time.Second)
	c.DBPath = "data/dominion.db"
	c.APIPort = 8080

	c.Claims.BaseCapacity = 6
	c.Claims.PerMemberCapacity = 4
	c.Claims.LevelDivisor = 5
	c.Claims.PerLevelCapacityBonus = 10
	c.Claims.BaseCooldown = Duration(10 * time.Second)
	c.Claims.PerLevelCooldownCut = Duration(2 * time.Second)
	c.Claims.OwnerCooldownMultiplier = 0.5
	c.Claims.AutoClaimCooldown = Duration(30 * time.Second)

	sc := siege.DefaultConfig()
	c.Siege.OffenseThreshold = Duration(sc.OffenseThreshold)
	c.Siege.DefenseThreshold = Duration(sc.DefenseThreshold)
	c.Siege.LeaderDownGrace = Duration(sc.LeaderDownGrace)
	c.Siege.BroadcastInterval = Duration(sc.BroadcastInterval)

	tc := teleport.DefaultConfig()
	c.Teleport.Delay = Duration(tc.Delay)
	c.Teleport.ParticleInterval = Duration(tc.ParticleInterval)
	c.Teleport.MoveTolerance = tc.MoveTolerance
	for _, m := range tc.NoticeMarks {
		c.Teleport.NoticeMarks = append(c.Teleport.NoticeMarks, Duration(m))
	}

	c.Zones = zone.DefaultConfig()
	c.InviteTTL = Duration(5 * time.Minute)
	c.BreakawayCaptures = 3
	return c
}

// Load reads a YAML file over the defaults. A missing file is not an
// error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// CoreConfig converts to the core service policy.
func (c Config) CoreConfig() core.Config {
	return core.Config{
		BaseCapacity:            c.Claims.BaseCapacity,
		PerMemberCapacity:       c.Claims.PerMemberCapacity,
		LevelDivisor:            c.Claims.LevelDivisor,
		PerLevelCapacityBonus:   c.Claims.PerLevelCapacityBonus,
		BaseCooldown:            c.Claims.BaseCooldown.std(),
		PerLevelCooldownCut:     c.Claims.PerLevelCooldownCut.std(),
		OwnerCooldownMultiplier: c.Claims.OwnerCooldownMultiplier,
		AutoClaimCooldown:       c.Claims.AutoClaimCooldown.std(),
		InviteTTL:               c.InviteTTL.std(),
		BreakawayCaptures:       c.BreakawayCaptures,
	}
}

// SiegeConfig converts to the siege engine policy.
func (c Config) SiegeConfig() siege.Config {
	return siege.Config{
		OffenseThreshold:  c.Siege.OffenseThreshold.std(),
		DefenseThreshold:  c.Siege.DefenseThreshold.std(),
		LeaderDownGrace:   c.Siege.LeaderDownGrace.std(),
		BroadcastInterval: c.Siege.BroadcastInterval.std(),
	}
}

// TeleportConfig converts to the teleport channel policy.
func (c Config) TeleportConfig() teleport.Config {
	out := teleport.Config{
		Delay:            c.Teleport.Delay.std(),
		ParticleInterval: c.Teleport.ParticleInterval.std(),
		MoveTolerance:    c.Teleport.MoveTolerance,
	}
	for _, m := range c.Teleport.NoticeMarks {
		out.NoticeMarks = append(out.NoticeMarks, m.std())
	}
	return out
}
