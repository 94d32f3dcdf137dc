package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/linuskang/bubbly/internal/db"
)

// Actions recorded against a bubbler. Deletes are physical and leave
// no trail.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
)

// Entry is one immutable audit record. For CREATE, Changes holds the
// full persisted snapshot; for UPDATE it maps each changed field to an
// {old, new} pair.
type Entry struct {
	ID        int64           `json:"id"`
	BubblerID int64           `json:"bubblerId"`
	UserID    *string         `json:"userId"`
	Action    string          `json:"action"`
	Changes   json.RawMessage `json:"changes"`
	CreatedAt time.Time       `json:"createdAt"`
}

// FieldChange is the {old, new} pair stored per changed field on
// UPDATE entries.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Record appends one entry. It accepts any Querier so callers can pass
// the transaction wrapping their primary write: the entry commits or
// rolls back together with it.
func Record(ctx context.Context, q db.Querier, e Entry) (Entry, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO bubbler_audit_logs (bubbler_id, user_id, action, changes)
		VALUES ($1,$2,$3,$4)
		RETURNING id, created_at
	`, e.BubblerID, e.UserID, e.Action, []byte(e.Changes))
	if err := row.Scan(&e.ID, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Store reads audit history.
type Store struct {
	db db.Querier
}

func NewStore(db db.Querier) *Store {
	return &Store{db: db}
}

// List returns every entry for one bubbler, newest first.
func (s *Store) List(ctx context.Context, bubblerID int64) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, bubbler_id, user_id, action, changes, created_at
		FROM bubbler_audit_logs
		WHERE bubbler_id=$1
		ORDER BY created_at DESC
	`, bubblerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var changes []byte
		if err := rows.Scan(&e.ID, &e.BubblerID, &e.UserID, &e.Action, &changes, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Changes = json.RawMessage(changes)
		entries = append(entries, e)
	}
	return entries, nil
}
