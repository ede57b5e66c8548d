package store

import "context"

// Open selects a backend from dsn: an empty dsn returns an in-memory store,
// anything else is opened as a SQL DSN. There is exactly one attempt — a
// SQL open failure is returned to the caller rather than silently falling
// back to MemStore, since a configured-but-broken database is a startup
// error, not a degraded-mode condition.
func Open(ctx context.Context, dsn string) (Store, error) {
	if dsn == "" {
		return NewMemStore(), nil
	}
	return OpenSQL(ctx, dsn)
}
