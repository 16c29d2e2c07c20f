// Package persistence provides SQLite-based storage for the faction domain
// state that must survive a restart: factions, claims in both namespaces,
// relation edges, and vassal bonds. Siege, teleport, and cooldown state is
// transient by design and never written.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/dominion/internal/claim"
	"github.com/talgya/dominion/internal/core"
	"github.com/talgya/dominion/internal/faction"
	"github.com/talgya/dominion/internal/relation"
)

const (
	namespaceNormal = 0
	namespaceSafe   = 1
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS factions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		members_json TEXT NOT NULL,
		perms_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS claims (
		x INTEGER NOT NULL,
		z INTEGER NOT NULL,
		namespace INTEGER NOT NULL,
		faction_id TEXT NOT NULL,
		PRIMARY KEY (x, z)
	);

	CREATE TABLE IF NOT EXISTS relations (
		a TEXT NOT NULL,
		b TEXT NOT NULL,
		kind INTEGER NOT NULL,
		PRIMARY KEY (a, b)
	);

	CREATE TABLE IF NOT EXISTS vassals (
		vassal TEXT PRIMARY KEY,
		overlord TEXT NOT NULL,
		breakaway_active INTEGER NOT NULL,
		captures INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_claims_faction ON claims(faction_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveState writes a full snapshot (full replace) in one transaction.
func (db *DB) SaveState(st core.State) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"factions", "claims", "relations", "vassals"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return err
		}
	}

	for _, f := range st.Factions {
		membersJSON, _ := json.Marshal(f.Members)
		permsJSON, _ := json.Marshal(f.Perms)
		_, err := tx.Exec(
			"INSERT INTO factions (id, name, owner_id, members_json, perms_json) VALUES (?, ?, ?, ?, ?)",
			f.ID, f.Name, f.OwnerID, string(membersJSON), string(permsJSON),
		)
		if err != nil {
			return fmt.Errorf("insert faction %s: %w", f.ID, err)
		}
	}

	stmt, err := tx.Preparex("INSERT INTO claims (x, z, namespace, faction_id) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for c, id := range st.Claims {
		if _, err := stmt.Exec(c.X, c.Z, namespaceNormal, id); err != nil {
			return fmt.Errorf("insert claim %s: %w", c, err)
		}
	}
	for c, id := range st.SafeClaims {
		if _, err := stmt.Exec(c.X, c.Z, namespaceSafe, id); err != nil {
			return fmt.Errorf("insert safe claim %s: %w", c, err)
		}
	}

	for _, e := range st.Relations {
		_, err := tx.Exec(
			"INSERT INTO relations (a, b, kind) VALUES (?, ?, ?)",
			e.A, e.B, e.Kind,
		)
		if err != nil {
			return fmt.Errorf("insert relation: %w", err)
		}
	}

	for _, v := range st.Vassals {
		active := 0
		if v.BreakawayActive {
			active = 1
		}
		_, err := tx.Exec(
			"INSERT INTO vassals (vassal, overlord, breakaway_active, captures) VALUES (?, ?, ?, ?)",
			v.Vassal, v.Overlord, active, v.Captures,
		)
		if err != nil {
			return fmt.Errorf("insert vassal: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("state saved",
		"factions", len(st.Factions),
		"claims", len(st.Claims)+len(st.SafeClaims),
		"relations", len(st.Relations),
	)
	return nil
}

// LoadState reads the full snapshot back.
func (db *DB) LoadState() (core.State, error) {
	st := core.State{
		Claims:     make(map[claim.Coord]faction.FactionID),
		SafeClaims: make(map[claim.Coord]faction.FactionID),
	}

	type factionRow struct {
		ID          string `db:"id"`
		Name        string `db:"name"`
		OwnerID     string `db:"owner_id"`
		MembersJSON string `db:"members_json"`
		PermsJSON   string `db:"perms_json"`
	}
	var frows []factionRow
	if err := db.conn.Select(&frows, "SELECT id, name, owner_id, members_json, perms_json FROM factions"); err != nil {
		return st, fmt.Errorf("load factions: %w", err)
	}
	for _, row := range frows {
		f := &faction.Faction{
			ID:      faction.FactionID(row.ID),
			Name:    row.Name,
			OwnerID: faction.PlayerID(row.OwnerID),
		}
		if err := json.Unmarshal([]byte(row.MembersJSON), &f.Members); err != nil {
			return st, fmt.Errorf("faction %s members: %w", row.ID, err)
		}
		if err := json.Unmarshal([]byte(row.PermsJSON), &f.Perms); err != nil {
			return st, fmt.Errorf("faction %s perms: %w", row.ID, err)
		}
		st.Factions = append(st.Factions, f)
	}

	type claimRow struct {
		X         int    `db:"x"`
		Z         int    `db:"z"`
		Namespace int    `db:"namespace"`
		FactionID string `db:"faction_id"`
	}
	var crows []claimRow
	if err := db.conn.Select(&crows, "SELECT x, z, namespace, faction_id FROM claims"); err != nil {
		return st, fmt.Errorf("load claims: %w", err)
	}
	for _, row := range crows {
		c := claim.Coord{X: row.X, Z: row.Z}
		if row.Namespace == namespaceSafe {
			st.SafeClaims[c] = faction.FactionID(row.FactionID)
		} else {
			st.Claims[c] = faction.FactionID(row.FactionID)
		}
	}

	type relationRow struct {
		A    string `db:"a"`
		B    string `db:"b"`
		Kind uint8  `db:"kind"`
	}
	var rrows []relationRow
	if err := db.conn.Select(&rrows, "SELECT a, b, kind FROM relations"); err != nil {
		return st, fmt.Errorf("load relations: %w", err)
	}
	for _, row := range rrows {
		st.Relations = append(st.Relations, relation.Edge{
			A:    faction.FactionID(row.A),
			B:    faction.FactionID(row.B),
			Kind: relation.Kind(row.Kind),
		})
	}

	type vassalRow struct {
		Vassal   string `db:"vassal"`
		Overlord string `db:"overlord"`
		Active   int    `db:"breakaway_active"`
		Captures int    `db:"captures"`
	}
	var vrows []vassalRow
	if err := db.conn.Select(&vrows, "SELECT vassal, overlord, breakaway_active, captures FROM vassals"); err != nil {
		return st, fmt.Errorf("load vassals: %w", err)
	}
	for _, row := range vrows {
		st.Vassals = append(st.Vassals, relation.VassalEdge{
			Vassal:          faction.FactionID(row.Vassal),
			Overlord:        faction.FactionID(row.Overlord),
			BreakawayActive: row.Active != 0,
			Captures:        row.Captures,
		})
	}

	return st, nil
}

// HasState reports whether a saved snapshot exists.
func (db *DB) HasState() bool {
	var count int
	if err := db.conn.Get(&count, "SELECT COUNT(*) FROM factions"); err != nil {
		return false
	}
	return count > 0
}

// SaveMeta stores a key-value pair in world metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO world_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	return value, err
}
