package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"storylet.ai/internal/persistence/indexdb"
)

// printHistory reports from the session index: every firing actor was cast
// in, then how often each storylet fired.
func printHistory(ctx context.Context, out io.Writer, o runOptions, actor string) error {
	if o.SessionID == "" {
		return errors.New("-history needs -session")
	}
	path := indexPath(o.sessionDir(o.SessionID))
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no index for session %s: %w", o.SessionID, err)
	}
	db, err := indexdb.OpenReader(path)
	if err != nil {
		return err
	}
	defer db.Close()

	apps, err := indexdb.ActorHistory(ctx, db, o.SessionID, actor)
	if err != nil {
		return fmt.Errorf("actor history: %w", err)
	}
	counts, err := indexdb.FiringCounts(ctx, db, o.SessionID)
	if err != nil {
		return fmt.Errorf("firing counts: %w", err)
	}

	fmt.Fprintf(out, "actor %s: %d appearances\n", actor, len(apps))
	for _, a := range apps {
		fmt.Fprintf(out, "  tick %6d  %-24s %s\n", a.Tick, a.StoryletID, a.Role)
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	fmt.Fprintf(out, "firings:\n")
	for _, id := range ids {
		fmt.Fprintf(out, "  %-24s %d\n", id, counts[id])
	}
	return nil
}
