// Package persistence mirrors conversation metadata into SQLite so
// GET /conversation-ids and GET /agent/humans don't need to open every
// conversation's working_context.json just to answer a list query
// (SPEC_FULL.md §6.10). Grounded on the teacher's pkg/persistence
// db.go for the connection idiom (modernc.org/sqlite, pure Go driver,
// WAL mode, busy timeout, single-writer pool) — the teacher's actual
// schema (specs/stories/agent state) is a different domain entirely
// and is not reused; only its SQLite-connection plumbing survives.
package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"llmos/pkg/logx"
)

// Registry is a SQLite-backed index of conversation metadata.
type Registry struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open connects to (creating if absent) the SQLite database at dbPath
// and ensures its schema exists.
func Open(dbPath string) (*Registry, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000", dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("persistence: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("persistence: ping database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)

	r := &Registry{db: db, logger: logx.NewLogger("persistence")}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	conv_id             TEXT PRIMARY KEY,
	agent_persona_name  TEXT NOT NULL,
	human_persona_name  TEXT NOT NULL,
	human_ids           TEXT NOT NULL DEFAULT '[1]',
	created_at          TEXT NOT NULL DEFAULT (datetime('now'))
);`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("persistence: migrate schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// CreateConversation records a newly created conversation, seeded with
// human id 1 (the conversation's initial human persona).
func (r *Registry) CreateConversation(convID, agentPersonaName, humanPersonaName string) error {
	_, err := r.db.Exec(
		`INSERT INTO conversations (conv_id, agent_persona_name, human_persona_name, human_ids) VALUES (?, ?, ?, ?)`,
		convID, agentPersonaName, humanPersonaName, "[1]",
	)
	if err != nil {
		return fmt.Errorf("persistence: create conversation %q: %w", convID, err)
	}
	return nil
}

// DeleteConversation removes convID's metadata row, if present.
func (r *Registry) DeleteConversation(convID string) error {
	if _, err := r.db.Exec(`DELETE FROM conversations WHERE conv_id = ?`, convID); err != nil {
		return fmt.Errorf("persistence: delete conversation %q: %w", convID, err)
	}
	return nil
}

// ListConversations returns every recorded conv_id.
func (r *Registry) ListConversations() ([]string, error) {
	rows, err := r.db.Query(`SELECT conv_id FROM conversations ORDER BY conv_id`)
	if err != nil {
		return nil, fmt.Errorf("persistence: list conversations: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("persistence: scan conv_id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// HumanIDs returns the recorded human ids for convID.
func (r *Registry) HumanIDs(convID string) ([]int, error) {
	var raw string
	err := r.db.QueryRow(`SELECT human_ids FROM conversations WHERE conv_id = ?`, convID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("persistence: conversation %q not found", convID)
	}
	if err != nil {
		return nil, fmt.Errorf("persistence: read human ids: %w", err)
	}
	var ids []int
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("persistence: parse human ids: %w", err)
	}
	return ids, nil
}

// AddHuman appends newHumanID to convID's recorded human ids.
func (r *Registry) AddHuman(convID string, newHumanID int) error {
	ids, err := r.HumanIDs(convID)
	if err != nil {
		return err
	}
	ids = append(ids, newHumanID)
	encoded, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("persistence: encode human ids: %w", err)
	}
	if _, err := r.db.Exec(`UPDATE conversations SET human_ids = ? WHERE conv_id = ?`, string(encoded), convID); err != nil {
		return fmt.Errorf("persistence: update human ids for %q: %w", convID, err)
	}
	return nil
}
