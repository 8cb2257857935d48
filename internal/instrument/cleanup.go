package instrument

import (
	"context"
	"database/sql"
	"log"
	"time"

	"fieldengine/internal/store"
)

// CleanupOldEvents deletes events older than retentionDays and returns the count removed.
func CleanupOldEvents(ctx context.Context, db *sql.DB, dialect store.Dialect, retentionDays int, now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -retentionDays)
	pb := dialect.NewParamBuilder()
	return store.Exec(ctx, db, "DELETE FROM _events WHERE created_at < "+pb.Add(dialect.TimeParam(cutoff)), pb.Params()...)
}

// StartCleanup runs CleanupOldEvents once an hour until ctx is cancelled.
func StartCleanup(ctx context.Context, db *sql.DB, dialect store.Dialect, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			n, err := CleanupOldEvents(ctx, db, dialect, retentionDays, time.Now())
			if err != nil {
				log.Printf("ERROR: event cleanup: %v", err)
			} else if n > 0 {
				log.Printf("Event cleanup: deleted %d old events", n)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
