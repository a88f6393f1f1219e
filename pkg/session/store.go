// Package session keeps reduction results between invocations, so that
// stars can be labelled, selected and calibrated after the (slow)
// reduction has run. It holds the sqlite store, the HTTP API and the
// labels file watcher.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/abworrall/cmdphot/pkg/photom"
)

// Store is a sqlite database of reduction sessions.
type Store struct {
	conn *sql.DB
	path string
}

// Info describes a stored session.
type Info struct {
	ID          string    `json:"id"`
	Created     time.Time `json:"created"`
	ShortBand   string    `json:"short_band"`
	LongBand    string    `json:"long_band"`
	NStars      int       `json:"n_stars"`
	MasterFiles []string  `json:"master_files"`
	Warnings    []string  `json:"warnings"`
}

func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", path, err)
	}

	s := &Store{conn: conn, path: path}
	if err := s.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *Store) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created DATETIME NOT NULL,
		short_band TEXT NOT NULL,
		long_band TEXT NOT NULL,
		config TEXT NOT NULL,
		master_files TEXT NOT NULL,
		warnings TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS stars (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		positions TEXT NOT NULL,
		flux_short REAL,
		flux_long REAL,
		selected INTEGER NOT NULL,
		label_short REAL,
		label_long REAL,
		PRIMARY KEY (session_id, idx)
	);
	CREATE TABLE IF NOT EXISTS offsets (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		pass TEXT NOT NULL,
		frame INTEGER NOT NULL,
		dx INTEGER NOT NULL,
		dy INTEGER NOT NULL,
		PRIMARY KEY (session_id, pass, frame)
	);
	`

	_, err := s.conn.Exec(query)
	return err
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) Path() string { return s.path }

// Create stores the result of a reduction run, and returns the new
// session's id.
func (s *Store) Create(ctx context.Context, cfg photom.Config, res photom.Result, now time.Time) (string, error) {
	id := uuid.New().String()

	warnings := []string{}
	for _, w := range res.Warnings {
		warnings = append(warnings, w.String())
	}
	files, err := json.Marshal(res.MasterFiles)
	if err != nil {
		return "", err
	}
	warns, err := json.Marshal(warnings)
	if err != nil {
		return "", err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, created, short_band, long_band, config, master_files, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, now.UTC(), cfg.ShortColour, cfg.LongColour, cfg.AsYaml(), string(files), string(warns))
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	for _, st := range res.Stars {
		positions, err := json.Marshal(st.Positions)
		if err != nil {
			return "", err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stars (session_id, idx, x, y, positions, flux_short, flux_long, selected, label_short, label_long)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, st.Index, st.X, st.Y, string(positions),
			nullable(st.Flux[0]), nullable(st.Flux[1]), st.Selected, labelShort(st.Label), labelLong(st.Label))
		if err != nil {
			return "", fmt.Errorf("insert star %d: %w", st.Index, err)
		}
	}

	passes := map[string][]photom.Offset{
		"short":   res.Offsets.Short,
		"long":    res.Offsets.Long,
		"masters": res.Offsets.Masters,
	}
	for pass, offsets := range passes {
		for i, o := range offsets {
			_, err = tx.ExecContext(ctx, `INSERT INTO offsets (session_id, pass, frame, dx, dy) VALUES (?, ?, ?, ?, ?)`,
				id, pass, i, o.DX, o.DY)
			if err != nil {
				return "", fmt.Errorf("insert offset %s/%d: %w", pass, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	photom.Log.Info().Str("session", id).Int("stars", len(res.Stars)).Msg("session stored")
	return id, nil
}

// NaN has no sqlite representation; store it as NULL.
func nullable(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: !math.IsNaN(v)}
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func labelShort(l *photom.Label) sql.NullFloat64 {
	if l == nil {
		return sql.NullFloat64{}
	}
	return nullable(l.Short)
}

func labelLong(l *photom.Label) sql.NullFloat64 {
	if l == nil {
		return sql.NullFloat64{}
	}
	return nullable(l.Long)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInfo(row scanner) (Info, error) {
	info := Info{}
	var files, warns string
	if err := row.Scan(&info.ID, &info.Created, &info.ShortBand, &info.LongBand, &files, &warns, &info.NStars); err != nil {
		return info, err
	}
	if err := json.Unmarshal([]byte(files), &info.MasterFiles); err != nil {
		return info, fmt.Errorf("session %s master files: %w", info.ID, err)
	}
	if err := json.Unmarshal([]byte(warns), &info.Warnings); err != nil {
		return info, fmt.Errorf("session %s warnings: %w", info.ID, err)
	}
	return info, nil
}

const infoQuery = `
	SELECT s.id, s.created, s.short_band, s.long_band, s.master_files, s.warnings,
		(SELECT COUNT(*) FROM stars WHERE session_id = s.id)
	FROM sessions s`

// List returns every session, newest first.
func (s *Store) List(ctx context.Context) ([]Info, error) {
	rows, err := s.conn.QueryContext(ctx, infoQuery+` ORDER BY s.created DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := []Info{}
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id string) (Info, error) {
	info, err := scanInfo(s.conn.QueryRowContext(ctx, infoQuery+` WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return info, fmt.Errorf("session %q: %w", id, photom.ErrSessionNotFound)
	}
	return info, err
}

// Resolve turns a user supplied reference into a session id: "" or
// "latest" is the newest session, otherwise an id or a unique prefix
// of one.
func (s *Store) Resolve(ctx context.Context, ref string) (string, error) {
	var rows *sql.Rows
	var err error
	if ref == "" || ref == "latest" {
		rows, err = s.conn.QueryContext(ctx, `SELECT id FROM sessions ORDER BY created DESC LIMIT 1`)
	} else {
		rows, err = s.conn.QueryContext(ctx, `SELECT id FROM sessions WHERE id LIKE ? LIMIT 2`, strings.ReplaceAll(ref, "%", "")+"%")
	}
	if err != nil {
		return "", fmt.Errorf("resolve session %q: %w", ref, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(ids) {
	case 0:
		return "", fmt.Errorf("session %q: %w", ref, photom.ErrSessionNotFound)
	case 1:
		return ids[0], nil
	}
	return "", fmt.Errorf("session prefix %q is ambiguous", ref)
}

// Config returns the configuration the session was reduced with.
func (s *Store) Config(ctx context.Context, id string) (photom.Config, error) {
	var text string
	err := s.conn.QueryRowContext(ctx, `SELECT config FROM sessions WHERE id = ?`, id).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return photom.Config{}, fmt.Errorf("session %q: %w", id, photom.ErrSessionNotFound)
	} else if err != nil {
		return photom.Config{}, err
	}
	return photom.NewConfigFromYaml([]byte(text))
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func loadStars(ctx context.Context, q querier, id string) (photom.Stars, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, id).Scan(&n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("session %q: %w", id, photom.ErrSessionNotFound)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT idx, x, y, positions, flux_short, flux_long, selected, label_short, label_long
		FROM stars WHERE session_id = ? ORDER BY idx`, id)
	if err != nil {
		return nil, fmt.Errorf("load stars: %w", err)
	}
	defer rows.Close()

	stars := photom.Stars{}
	for rows.Next() {
		st := photom.CanonicalStar{}
		var positions string
		var fluxShort, fluxLong, lblShort, lblLong sql.NullFloat64
		err := rows.Scan(&st.Index, &st.X, &st.Y, &positions, &fluxShort, &fluxLong, &st.Selected, &lblShort, &lblLong)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(positions), &st.Positions); err != nil {
			return nil, fmt.Errorf("star %d positions: %w", st.Index, err)
		}
		st.Flux = [2]float64{orNaN(fluxShort), orNaN(fluxLong)}
		if lblShort.Valid && lblLong.Valid {
			st.Label = &photom.Label{Short: lblShort.Float64, Long: lblLong.Float64}
		}
		stars = append(stars, st)
	}
	return stars, rows.Err()
}

// Stars returns the session's canonical stars, in index order.
func (s *Store) Stars(ctx context.Context, id string) (photom.Stars, error) {
	return loadStars(ctx, s.conn, id)
}

// UpdateStars loads the session's stars, lets fn change their labels
// and selection, and writes them back; all in one transaction. If fn
// fails nothing is written.
func (s *Store) UpdateStars(ctx context.Context, id string, fn func(photom.Stars) error) (photom.Stars, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stars, err := loadStars(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(stars); err != nil {
		return nil, err
	}

	for _, st := range stars {
		_, err := tx.ExecContext(ctx, `
			UPDATE stars SET selected = ?, label_short = ?, label_long = ?
			WHERE session_id = ? AND idx = ?`,
			st.Selected, labelShort(st.Label), labelLong(st.Label), id, st.Index)
		if err != nil {
			return nil, fmt.Errorf("update star %d: %w", st.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stars, nil
}

// Offsets returns the registration offsets of the three passes.
func (s *Store) Offsets(ctx context.Context, id string) (photom.Offsets, error) {
	out := photom.Offsets{Short: []photom.Offset{}, Long: []photom.Offset{}, Masters: []photom.Offset{}}
	if _, err := s.Get(ctx, id); err != nil {
		return out, err
	}

	rows, err := s.conn.QueryContext(ctx, `SELECT pass, dx, dy FROM offsets WHERE session_id = ? ORDER BY pass, frame`, id)
	if err != nil {
		return out, fmt.Errorf("load offsets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pass string
		o := photom.Offset{}
		if err := rows.Scan(&pass, &o.DX, &o.DY); err != nil {
			return out, err
		}
		switch pass {
		case "short":
			out.Short = append(out.Short, o)
		case "long":
			out.Long = append(out.Long, o)
		case "masters":
			out.Masters = append(out.Masters, o)
		}
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %q: %w", id, photom.ErrSessionNotFound)
	}
	return nil
}
