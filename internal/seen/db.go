// Package seen implements the per-job URL-seen database: a single-table
// embedded relational store with a membership test, backing each crawler's
// dedup of URLs it has already fetched.
//
// modernc.org/sqlite is used directly through database/sql rather than
// through an ORM because this store is one table with one query shape; a
// hand-written prepared statement is a better fit than mapping structs
// through reflection for a single INSERT/SELECT pair.
package seen

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ArchiveTeam/WebArchiver/internal/jobspec"
)

// DB backs one job's URL-seen table, named crawler_<job_id> so multiple
// jobs can share one sqlite file without colliding.
type DB struct {
	conn  *sql.DB
	table string
}

// Open opens (creating if necessary) the sqlite file at path and ensures
// the job's table exists. synchronous=OFF trades durability for throughput
// (rows recorded just before a crash may be lost, and nothing restores
// them) and journal_mode=WAL lets the crawler's
// write loop and any concurrent reader proceed without blocking each other.
func Open(path, jobID string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("seen: open %s: %w", path, err)
	}
	if _, err := conn.Exec(`PRAGMA synchronous=OFF`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seen: pragma synchronous: %w", err)
	}
	if _, err := conn.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seen: pragma journal_mode: %w", err)
	}

	table := "crawler_" + sanitize(jobID)
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (url TEXT, depth INTEGER, parent TEXT)`, table)
	if _, err := conn.Exec(stmt); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seen: create table: %w", err)
	}
	idx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_url_idx ON %s (url)`, table, table)
	if _, err := conn.Exec(idx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seen: create index: %w", err)
	}

	return &DB{conn: conn, table: table}, nil
}

// sanitize strips the job identifier down to characters safe for an
// unquoted table name; job identifiers are our own hex-suffixed names
// (jobspec.NewSettings), never arbitrary external input, but the table name
// cannot be a bound parameter, so this stays defensive.
func sanitize(jobID string) string {
	out := make([]byte, 0, len(jobID))
	for i := 0; i < len(jobID); i++ {
		c := jobID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Seen reports whether url has already been recorded for this job.
func (d *DB) Seen(url string) (bool, error) {
	row := d.conn.QueryRow(fmt.Sprintf(`SELECT 1 FROM %s WHERE url = ? LIMIT 1`, d.table), url)
	var x int
	switch err := row.Scan(&x); err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, fmt.Errorf("seen: query: %w", err)
	}
}

// Record inserts uc into the seen table. Callers are expected to check Seen
// first; Record does not itself enforce uniqueness.
func (d *DB) Record(uc jobspec.UrlConfig) error {
	_, err := d.conn.Exec(fmt.Sprintf(`INSERT INTO %s (url, depth, parent) VALUES (?, ?, ?)`, d.table),
		uc.URL, uc.Depth, uc.ParentURL)
	if err != nil {
		return fmt.Errorf("seen: insert: %w", err)
	}
	return nil
}

// Close releases the underlying sqlite connection.
func (d *DB) Close() error {
	return d.conn.Close()
}
