// Package storage persists collected records and profiles in SQLite.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rendis/leadtap/internal/model"
)

type Store struct {
	db    *sql.DB
	mu    sync.Mutex
	runID string
}

// NewStore opens (or creates) the database at dbPath. Every Store stamps the
// rows it inserts with a fresh run id.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	// Optimize for write throughput
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, runID: uuid.NewString()}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		dedup_key TEXT NOT NULL,
		source_url TEXT,
		name TEXT NOT NULL,
		address TEXT,
		phone TEXT,
		website TEXT,
		rating REAL,
		review_count INTEGER,
		category TEXT,
		plus_code TEXT,
		lat REAL,
		lng REAL,
		opening_hours TEXT,
		emails TEXT,
		contact_phones TEXT,
		contact_address TEXT,
		query TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(provider, dedup_key)
	);
	CREATE INDEX IF NOT EXISTS idx_records_query ON records(query);
	CREATE INDEX IF NOT EXISTS idx_records_rating ON records(rating);
	CREATE INDEX IF NOT EXISTS idx_records_coords ON records(lat, lng);

	CREATE TABLE IF NOT EXISTS profiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		name TEXT NOT NULL,
		title TEXT,
		location TEXT,
		profile_url TEXT NOT NULL UNIQUE,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// RunID identifies the rows inserted through this Store.
func (s *Store) RunID() string { return s.runID }

// InsertRecords stores records, ignoring ones already present for the same
// provider and source URL. It returns how many rows were added.
func (s *Store) InsertRecords(records []model.BusinessRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning tx: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO records
		(run_id, provider, dedup_key, source_url, name, address, phone, website,
		 rating, review_count, category, plus_code, lat, lng, opening_hours,
		 emails, contact_phones, contact_address, query)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("preparing stmt: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		var lat, lng sql.NullFloat64
		if r.Coordinates != nil {
			lat = sql.NullFloat64{Float64: r.Coordinates.Lat, Valid: true}
			lng = sql.NullFloat64{Float64: r.Coordinates.Lng, Valid: true}
		}
		var emails, phones, contactAddr string
		if r.Contacts != nil {
			emails = joinJSON(r.Contacts.Emails)
			phones = joinJSON(r.Contacts.Phones)
			contactAddr = r.Contacts.Address
		}
		res, err := stmt.Exec(
			s.runID, r.Provider, DedupKey(r), nullString(r.SourceURL), r.Name, r.Address, r.Phone, r.Website,
			r.Rating, r.ReviewCount, r.Category, r.PlusCode, lat, lng, joinJSON(r.OpeningHours),
			emails, phones, contactAddr, r.Query,
		)
		if err != nil {
			continue
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing tx: %w", err)
	}

	return inserted, nil
}

// InsertProfiles stores profiles keyed by profile URL.
func (s *Store) InsertProfiles(profiles []model.Profile) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning tx: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO profiles (run_id, name, title, location, profile_url) VALUES (?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("preparing stmt: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, p := range profiles {
		res, err := stmt.Exec(s.runID, p.Name, p.Title, p.Location, p.ProfileURL)
		if err != nil {
			continue
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing tx: %w", err)
	}
	return inserted, nil
}

// Records returns every stored record ordered by name.
func (s *Store) Records() ([]model.BusinessRecord, error) {
	rows, err := s.db.Query(`
		SELECT provider, source_url, name, address, phone, website, rating, review_count,
		       category, plus_code, lat, lng, opening_hours, emails, contact_phones,
		       contact_address, query
		FROM records ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []model.BusinessRecord
	for rows.Next() {
		var (
			r                           model.BusinessRecord
			sourceURL                   sql.NullString
			address, phone, website     sql.NullString
			category, plusCode, query   sql.NullString
			rating                      sql.NullFloat64
			reviews                     sql.NullInt64
			lat, lng                    sql.NullFloat64
			hours, emails, cPhones, cAd sql.NullString
		)
		if err := rows.Scan(&r.Provider, &sourceURL, &r.Name, &address, &phone, &website, &rating, &reviews,
			&category, &plusCode, &lat, &lng, &hours, &emails, &cPhones, &cAd, &query); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.SourceURL, r.Address, r.Phone, r.Website = sourceURL.String, address.String, phone.String, website.String
		r.Category, r.PlusCode, r.Query = category.String, plusCode.String, query.String
		if rating.Valid {
			v := rating.Float64
			r.Rating = &v
		}
		if reviews.Valid {
			v := int(reviews.Int64)
			r.ReviewCount = &v
		}
		if lat.Valid && lng.Valid {
			r.Coordinates = &model.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
		}
		r.OpeningHours = splitJSON(hours.String)
		contacts := model.ContactInfo{Emails: splitJSON(emails.String), Phones: splitJSON(cPhones.String), Address: cAd.String}
		if !contacts.Empty() {
			r.Contacts = &contacts
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Profiles returns every stored profile ordered by name.
func (s *Store) Profiles() ([]model.Profile, error) {
	rows, err := s.db.Query(`SELECT name, title, location, profile_url FROM profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying profiles: %w", err)
	}
	defer rows.Close()

	var out []model.Profile
	for rows.Next() {
		var p model.Profile
		var title, location sql.NullString
		if err := rows.Scan(&p.Name, &title, &location, &p.ProfileURL); err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		p.Title, p.Location = title.String, location.String
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) Count() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&count)
	return count, err
}

func (s *Store) CountProfiles() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM profiles").Scan(&count)
	return count, err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DedupKey identifies a record within its provider: the source URL when known,
// otherwise the normalised name and address.
func DedupKey(r model.BusinessRecord) string {
	if r.SourceURL != "" {
		return r.SourceURL
	}
	return strings.ToLower(strings.TrimSpace(r.Name)) + "|" + strings.ToLower(strings.TrimSpace(r.Address))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func joinJSON(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	b, _ := json.Marshal(vals)
	return string(b)
}

func splitJSON(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}
