package topology

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"grimm.is/vpcsim/internal/logging"
)

// sqlitePersister mirrors declared entities to a single SQLite table so a
// killed process can be followed by a cleanup that still knows what was
// declared. The kernel remains authoritative for what actually exists; the
// reconciler tolerates entries whose objects are gone.
type sqlitePersister struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	data TEXT NOT NULL,
	PRIMARY KEY (kind, name)
);
`

// NewPersistentStore opens (or creates) the SQLite database at path, loads
// previously declared entities into a new store and mirrors every later
// mutation back to disk.
func NewPersistentStore(path string, logger *logging.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create topology db directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open topology db %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init topology db schema: %w", err)
	}

	s := NewStore(logger)
	if err := s.loadFrom(db); err != nil {
		db.Close()
		return nil, err
	}
	s.persist = &sqlitePersister{db: db}
	return s, nil
}

func (s *Store) loadFrom(db *sql.DB) error {
	rows, err := db.Query(`SELECT kind, name, data FROM entities`)
	if err != nil {
		return fmt.Errorf("load topology db: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, name, data string
		if err := rows.Scan(&kind, &name, &data); err != nil {
			return fmt.Errorf("scan topology row: %w", err)
		}
		switch kind {
		case "vpc":
			var v VPC
			if err := json.Unmarshal([]byte(data), &v); err != nil {
				return fmt.Errorf("decode vpc %s: %w", name, err)
			}
			if v.Subnets == nil {
				v.Subnets = make(map[string]*Subnet)
			}
			s.vpcs[v.Name] = &v
		case "peering":
			var p Peering
			if err := json.Unmarshal([]byte(data), &p); err != nil {
				return fmt.Errorf("decode peering %s: %w", name, err)
			}
			s.peerings[p.Key()] = &p
		default:
			s.logger.Warn("ignoring unknown entity kind in topology db", "kind", kind, "name", name)
		}
	}
	return rows.Err()
}

func (p *sqlitePersister) save(kind, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", kind, name, err)
	}
	_, err = p.db.Exec(
		`INSERT INTO entities (kind, name, data) VALUES (?, ?, ?)
		 ON CONFLICT(kind, name) DO UPDATE SET data = excluded.data`,
		kind, name, string(data))
	if err != nil {
		return fmt.Errorf("persist %s %s: %w", kind, name, err)
	}
	return nil
}

func (p *sqlitePersister) remove(kind, name string) error {
	_, err := p.db.Exec(`DELETE FROM entities WHERE kind = ? AND name = ?`, kind, name)
	if err != nil && !strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("unpersist %s %s: %w", kind, name, err)
	}
	return nil
}

func (p *sqlitePersister) close() error {
	return p.db.Close()
}
