package toponym

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteGazetteer is a persistent gazetteer backed by a SQLite database. It
// is typically the primary (writable) backend of a MultiGazetteer.
type SQLiteGazetteer struct {
	db *sql.DB
}

// OpenSQLiteGazetteer opens (creating if needed) a gazetteer database at
// path. Use ":memory:" for a throwaway database.
func OpenSQLiteGazetteer(ctx context.Context, path string) (*SQLiteGazetteer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initGazetteerSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init gazetteer schema: %w", err)
	}
	return &SQLiteGazetteer{db: db}, nil
}

func initGazetteerSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS locations (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT,
	population INTEGER DEFAULT 0,
	is_point INTEGER NOT NULL,
	min_lat REAL NOT NULL,
	min_lng REAL NOT NULL,
	max_lat REAL NOT NULL,
	max_lng REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS names (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	location_id INTEGER NOT NULL,
	UNIQUE(name, location_id),
	FOREIGN KEY(location_id) REFERENCES locations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_names_name ON names(name);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *SQLiteGazetteer) Close() error {
	return s.db.Close()
}

// Add implements Gazetteer.
func (s *SQLiteGazetteer) Add(name string, loc Location) error {
	return s.AddContext(context.Background(), name, loc)
}

// AddContext stores loc (first definition of an id wins) and indexes it under
// name.
func (s *SQLiteGazetteer) AddContext(ctx context.Context, name string, loc Location) error {
	key := normalizeName(name)
	if key == "" {
		return fmt.Errorf("add location %d: empty name", loc.ID)
	}
	if loc.Region == nil {
		return fmt.Errorf("add location %d: no region", loc.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := addTx(ctx, tx, key, loc); err != nil {
		return err
	}
	return tx.Commit()
}

// Import copies every name and location of src in a single transaction.
func (s *SQLiteGazetteer) Import(ctx context.Context, src *MemoryGazetteer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, name := range src.Names() {
		for _, idx := range src.nameIndex[name] {
			loc := src.locations[idx]
			if loc.Region == nil {
				return fmt.Errorf("import location %d: no region", loc.ID)
			}
			if err := addTx(ctx, tx, name, loc); err != nil {
				return err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger().Info("imported gazetteer into sqlite", "locations", src.Len(), "names", len(src.nameIndex))
	return nil
}

func addTx(ctx context.Context, tx *sql.Tx, key string, loc Location) error {
	_, isPoint := loc.Region.(PointRegion)
	b := loc.Region.Bounds()
	lo, hi := b.Lo(), b.Hi()
	const insertLoc = `
INSERT INTO locations (id, name, type, population, is_point, min_lat, min_lng, max_lat, max_lng)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING;
`
	if _, err := tx.ExecContext(ctx, insertLoc,
		loc.ID, loc.Name, string(loc.Type), loc.Population, isPoint,
		lo.Lat.Degrees(), lo.Lng.Degrees(), hi.Lat.Degrees(), hi.Lng.Degrees(),
	); err != nil {
		return fmt.Errorf("insert location %d: %w", loc.ID, err)
	}

	const insertName = `INSERT INTO names (name, location_id) VALUES (?, ?) ON CONFLICT(name, location_id) DO NOTHING;`
	if _, err := tx.ExecContext(ctx, insertName, key, loc.ID); err != nil {
		return fmt.Errorf("insert name %q: %w", key, err)
	}
	return nil
}

// Lookup implements Gazetteer.
func (s *SQLiteGazetteer) Lookup(name string) ([]Location, error) {
	return s.LookupContext(context.Background(), name)
}

// LookupContext returns the locations indexed under name in insertion order.
func (s *SQLiteGazetteer) LookupContext(ctx context.Context, name string) ([]Location, error) {
	key := normalizeName(name)
	if key == "" {
		return []Location{}, nil
	}

	const q = `
SELECT l.id, l.name, l.type, l.population, l.is_point, l.min_lat, l.min_lng, l.max_lat, l.max_lng
FROM names n
JOIN locations l ON l.id = n.location_id
WHERE n.name = ?
ORDER BY n.seq;
`
	rows, err := s.db.QueryContext(ctx, q, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Location{}
	for rows.Next() {
		var (
			loc                            Location
			typ                            sql.NullString
			isPoint                        bool
			minLat, minLng, maxLat, maxLng float64
		)
		if err := rows.Scan(&loc.ID, &loc.Name, &typ, &loc.Population, &isPoint, &minLat, &minLng, &maxLat, &maxLng); err != nil {
			return nil, err
		}
		loc.Type = LocationType(typ.String)
		if isPoint {
			loc.Region = NewPointRegion(minLat, minLng)
		} else {
			loc.Region = NewRectRegion(minLat, minLng, maxLat, maxLng)
		}
		out = append(out, loc)
	}
	return out, rows.Err()
}

// Count returns the number of stored locations.
func (s *SQLiteGazetteer) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM locations").Scan(&n)
	return n, err
}
