package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

var schemas = map[string][]string{
	"mysql": {`
CREATE TABLE IF NOT EXISTS deliveries (
    id            CHAR(26)     NOT NULL PRIMARY KEY,
    run_id        CHAR(26)     NOT NULL,
    message_id    VARCHAR(64)  NOT NULL,
    extension_id  VARCHAR(64)  NOT NULL,
    caller_name   VARCHAR(255) NOT NULL DEFAULT '',
    caller_number VARCHAR(64)  NOT NULL DEFAULT '',
    received_at   DATETIME(3)  NULL,
    status        VARCHAR(16)  NOT NULL,
    error         TEXT         NOT NULL,
    created_at    DATETIME(3)  NOT NULL,
    KEY idx_deliveries_message (message_id),
    KEY idx_deliveries_run (run_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	"sqlite": {`
CREATE TABLE IF NOT EXISTS deliveries (
    id            TEXT     NOT NULL PRIMARY KEY,
    run_id        TEXT     NOT NULL,
    message_id    TEXT     NOT NULL,
    extension_id  TEXT     NOT NULL,
    caller_name   TEXT     NOT NULL DEFAULT '',
    caller_number TEXT     NOT NULL DEFAULT '',
    received_at   DATETIME NULL,
    status        TEXT     NOT NULL,
    error         TEXT     NOT NULL DEFAULT '',
    created_at    DATETIME NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_message ON deliveries (message_id)`,
		`CREATE INDEX IF NOT EXISTS idx_deliveries_run ON deliveries (run_id)`,
	},
}

// Migrate creates the journal schema. It is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	stmts, ok := schemas[db.DriverName()]
	if !ok {
		return fmt.Errorf("no journal schema for driver %q", db.DriverName())
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("exec migration %q: %w", firstLine(s), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
