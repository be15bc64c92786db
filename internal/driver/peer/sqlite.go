package peer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/ldbc/driver/internal/driver/configuration"
	"github.com/ldbc/driver/internal/driver/temporal"
)

const defaultBusyTimeout = 5 * time.Second

// SqliteExchange shares completion times through a database file, for peers running on one host.
// Rows are keyed by run, so a file outliving a run does not leak its completion times into the next.
type SqliteExchange struct {
	db    *sql.DB
	runId string
}

func NewSqliteExchange(config configuration.SqliteConfig, runId string) (*SqliteExchange, error) {
	busyTimeout := config.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		config.Path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening %s", config.Path)
	}
	db.SetMaxOpenConns(2)

	e := &SqliteExchange{db: db, runId: runId}
	if err := e.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.WithMessage(err, "error creating schema")
	}
	return e, nil
}

func (e *SqliteExchange) migrate() error {
	return retryOnContention(func() error {
		_, err := e.db.Exec(`
		CREATE TABLE IF NOT EXISTS run_peer_completion_time (
			run_id          TEXT NOT NULL,
			peer_id         TEXT NOT NULL,
			completion_time INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL,
			PRIMARY KEY (run_id, peer_id)
		)`)
		return err
	})
}

func (e *SqliteExchange) Publish(ctx context.Context, peerId string, t temporal.Time) error {
	err := retryOnContention(func() error {
		_, err := e.db.ExecContext(ctx, `
		INSERT INTO run_peer_completion_time (run_id, peer_id, completion_time, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (run_id, peer_id) DO UPDATE SET
			completion_time = MAX(completion_time, excluded.completion_time),
			updated_at = excluded.updated_at`,
			e.runId, peerId, int64(t), time.Now().UnixNano())
		return err
	})
	return errors.Wrapf(err, "error publishing completion time of %s", peerId)
}

func (e *SqliteExchange) Fetch(ctx context.Context, peerIds []string) (map[string]temporal.Time, error) {
	result := map[string]temporal.Time{}
	if len(peerIds) == 0 {
		return result, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(peerIds)), ",")
	args := make([]interface{}, 0, len(peerIds)+1)
	args = append(args, e.runId)
	for _, id := range peerIds {
		args = append(args, id)
	}
	err := retryOnContention(func() error {
		rows, err := e.db.QueryContext(ctx,
			"SELECT peer_id, completion_time FROM run_peer_completion_time WHERE run_id = ? AND peer_id IN ("+placeholders+")",
			args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			var t int64
			if err := rows.Scan(&id, &t); err != nil {
				return err
			}
			result[id] = temporal.Time(t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, errors.Wrap(err, "error fetching peer completion times")
	}
	return result, nil
}

func (e *SqliteExchange) Close() error {
	return e.db.Close()
}

const (
	maxRetries = 3
	baseDelay  = 20 * time.Millisecond
)

func isTransientSqliteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// retryOnContention retries fn with exponential backoff while it fails with transient errors.
func retryOnContention(fn func() error) error {
	return retry.Do(
		fn,
		retry.Attempts(maxRetries+1),
		retry.Delay(baseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isTransientSqliteErr),
		retry.LastErrorOnly(true),
	)
}
