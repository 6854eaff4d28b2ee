package targets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"syndicate/internal/accounts"
	"syndicate/internal/config"
)

// Store manages target persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the target database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "targets.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Enqueue inserts a new target unless an active one with the same fingerprint
// already exists. The bool result reports whether a new row was created; on a
// duplicate the existing target is returned unchanged.
func (s *Store) Enqueue(ctx context.Context, req NewTarget) (*Target, bool, error) {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(req.Fingerprint) == "" {
		return nil, false, errors.New("fingerprint is required")
	}
	if strings.TrimSpace(req.ArtifactPath) == "" {
		return nil, false, errors.New("artifact path is required")
	}
	if req.AccountID == "" {
		return nil, false, errors.New("account id is required")
	}

	if existing, err := s.FindActiveByFingerprint(ctx, req.Fingerprint); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	var tagsJSON any
	if len(req.Tags) > 0 {
		encoded, err := json.Marshal(req.Tags)
		if err != nil {
			return nil, false, fmt.Errorf("marshal tags: %w", err)
		}
		tagsJSON = string(encoded)
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO targets (
            platform, account_id, kind, artifact_path, title, description,
            tags_json, visibility, publish_at, fingerprint, state,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT DO NOTHING`,
		string(req.Platform),
		req.AccountID,
		string(req.Kind),
		req.ArtifactPath,
		nullableString(req.Title),
		nullableString(req.Description),
		tagsJSON,
		nullableString(req.Visibility),
		nullableTime(req.PublishAt),
		req.Fingerprint,
		StatePending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert target: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		// Lost an insert race; the winner's row is the logical job.
		existing, err := s.FindActiveByFingerprint(ctx, req.Fingerprint)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, errors.New("enqueue conflict but no active target found")
		}
		return existing, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}
	target, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return target, true, nil
}

// GetByID fetches a target by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Target, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+targetColumns+` FROM targets WHERE id = ?`, id)
	target, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}
	return target, nil
}

// FindActiveByFingerprint returns the non-completed target carrying a
// fingerprint, if one exists. Completed targets spend their fingerprint and
// are excluded.
func (s *Store) FindActiveByFingerprint(ctx context.Context, fp string) (*Target, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+targetColumns+` FROM targets WHERE fingerprint = ? AND state != ? ORDER BY id LIMIT 1`,
		fp,
		StateCompleted,
	)
	target, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by fingerprint: %w", err)
	}
	return target, nil
}

// List returns targets filtered by state set (or all targets when no state is provided).
func (s *Store) List(ctx context.Context, states ...State) ([]*Target, error) {
	ctx = ensureContext(ctx)
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + targetColumns + ` FROM targets`
	orderClause := ` ORDER BY created_at, id`

	if len(states) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(states))
		args := make([]any, len(states))
		for i, state := range states {
			args[i] = state
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE state IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	return collectTargets(rows)
}

// ListDue returns dispatch-eligible targets: pending ones, plus retry
// scheduled ones whose next attempt time has passed. Ordered oldest first.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]*Target, error) {
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+targetColumns+` FROM targets
         WHERE state = ?
            OR (state = ? AND next_attempt_at IS NOT NULL AND next_attempt_at <= ?)
         ORDER BY created_at, id`,
		StatePending,
		StateRetryScheduled,
		now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("list due targets: %w", err)
	}
	defer rows.Close()

	return collectTargets(rows)
}

// GetStats returns aggregate per-state counts.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM targets GROUP BY state`)
	if err != nil {
		return Stats{}, fmt.Errorf("target stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{ByState: make(map[State]int)}
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return Stats{}, err
		}
		stats.ByState[state] = count
		stats.Total += count
		if state == StateInProgress {
			stats.Dispatched += count
		}
	}
	return stats, rows.Err()
}

// ClearCompleted removes completed targets, keeping everything else for audit.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ensureContext(ctx), `DELETE FROM targets WHERE state = ?`, StateCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

const targetColumns = "id, platform, account_id, kind, artifact_path, title, description, tags_json, visibility, publish_at, fingerprint, state, attempts, last_error_kind, last_error_message, next_attempt_at, external_id, created_at, updated_at"

func collectTargets(rows *sql.Rows) ([]*Target, error) {
	var out []*Target
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, target)
	}
	return out, rows.Err()
}

func scanTarget(scanner interface{ Scan(dest ...any) error }) (*Target, error) {
	var (
		id            int64
		platform      string
		accountID     string
		kind          string
		artifactPath  string
		title         sql.NullString
		description   sql.NullString
		tagsJSON      sql.NullString
		visibility    sql.NullString
		publishAtRaw  sql.NullString
		fp            string
		stateStr      string
		attempts      int
		lastErrKind   sql.NullString
		lastErrMsg    sql.NullString
		nextAttemptAt sql.NullString
		externalID    sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&platform,
		&accountID,
		&kind,
		&artifactPath,
		&title,
		&description,
		&tagsJSON,
		&visibility,
		&publishAtRaw,
		&fp,
		&stateStr,
		&attempts,
		&lastErrKind,
		&lastErrMsg,
		&nextAttemptAt,
		&externalID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	target := &Target{
		ID:               id,
		Platform:         accounts.Platform(platform),
		AccountID:        accountID,
		Kind:             accounts.Kind(kind),
		ArtifactPath:     artifactPath,
		Title:            title.String,
		Description:      description.String,
		Visibility:       visibility.String,
		Fingerprint:      fp,
		State:            State(stateStr),
		Attempts:         attempts,
		LastErrorKind:    lastErrKind.String,
		LastErrorMessage: lastErrMsg.String,
		ExternalID:       externalID.String,
	}

	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &target.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for target %d: %w", id, err)
		}
	}
	if publishAtRaw.Valid {
		if at, err := parseTimeString(publishAtRaw.String); err == nil {
			target.PublishAt = &at
		}
	}
	if nextAttemptAt.Valid {
		if at, err := parseTimeString(nextAttemptAt.String); err == nil {
			target.NextAttemptAt = &at
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		target.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		target.UpdatedAt = updated
	}
	return target, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
