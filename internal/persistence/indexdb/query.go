package indexdb

import (
	"context"
	"database/sql"
)

// Appearance is one firing an actor was cast in.
type Appearance struct {
	Tick       uint64
	StoryletID string
	Role       string
}

// OpenReader opens an existing index for queries only. Writes still go
// through a SQLiteIndex.
func OpenReader(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ActorHistory lists the firings actor appeared in, oldest first.
func ActorHistory(ctx context.Context, db *sql.DB, session, actor string) ([]Appearance, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.tick, s.storylet_id, r.role
		FROM roles r JOIN steps s ON s.session = r.session AND s.tick = r.tick
		WHERE r.session = ? AND r.actor_id = ?
		ORDER BY r.tick, r.role`, session, actor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Appearance
	for rows.Next() {
		var (
			a    Appearance
			tick int64
		)
		if err := rows.Scan(&tick, &a.StoryletID, &a.Role); err != nil {
			return nil, err
		}
		a.Tick = uint64(tick)
		out = append(out, a)
	}
	return out, rows.Err()
}

// FiringCounts returns how often each storylet fired in session.
func FiringCounts(ctx context.Context, db *sql.DB, session string) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT storylet_id, COUNT(*) FROM steps
		WHERE session = ? AND fired = 1
		GROUP BY storylet_id`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// LatestSnapshot returns the newest indexed snapshot path for session.
func LatestSnapshot(ctx context.Context, db *sql.DB, session string) (uint64, string, bool, error) {
	var (
		tick int64
		path string
	)
	err := db.QueryRowContext(ctx, `SELECT tick, path FROM snapshots WHERE session = ? ORDER BY tick DESC LIMIT 1`, session).Scan(&tick, &path)
	if err == sql.ErrNoRows {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, err
	}
	return uint64(tick), path, true, nil
}
