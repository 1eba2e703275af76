package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/autograde/pkg/model"

	_ "modernc.org/sqlite"
)

// timeFormat is fixed width so that TEXT columns sort chronologically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func nullTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return formatTime(*p)
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func strPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// SQLite has a single writer; one connection also keeps ":memory:"
	// databases from splitting across the pool.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Exercises ---

func (s *SQLiteStore) CreateExercise(ctx context.Context, ex *model.Exercise) error {
	s.logger.Debug("sql", "op", "insert", "table", "exercises", "id", ex.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exercises (id, title, grader_type, auto_exercise_id, anonymous_autoassess_enabled, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.Title, string(ex.GraderType), ex.AutoExerciseID, ex.AnonymousAutoassessEnabled,
		formatTime(ex.CreatedAt),
	)
	return err
}

func (s *SQLiteStore) GetExercise(ctx context.Context, id string) (*model.Exercise, error) {
	s.logger.Debug("sql", "op", "select", "table", "exercises", "id", id)

	var ex model.Exercise
	var graderType, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, grader_type, auto_exercise_id, anonymous_autoassess_enabled, created_at
		 FROM exercises WHERE id = ?`, id,
	).Scan(&ex.ID, &ex.Title, &graderType, &ex.AutoExerciseID, &ex.AnonymousAutoassessEnabled, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ex.GraderType = model.GraderType(graderType)
	ex.CreatedAt = parseTime(createdAt)
	return &ex, nil
}

func (s *SQLiteStore) UpdateExercise(ctx context.Context, ex *model.Exercise) error {
	s.logger.Debug("sql", "op", "update", "table", "exercises", "id", ex.ID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE exercises SET title = ?, grader_type = ?, auto_exercise_id = ?, anonymous_autoassess_enabled = ?
		 WHERE id = ?`,
		ex.Title, string(ex.GraderType), ex.AutoExerciseID, ex.AnonymousAutoassessEnabled, ex.ID,
	)
	if err != nil {
		return err
	}
	return expectAffected(res, "exercise", ex.ID)
}

func (s *SQLiteStore) CreateAutoExercise(ctx context.Context, ae *model.AutoExercise) error {
	s.logger.Debug("sql", "op", "insert", "table", "auto_exercises", "id", ae.ID)

	assets := ae.Assets
	if assets == nil {
		assets = []model.Asset{}
	}
	assetsJSON, err := json.Marshal(assets)
	if err != nil {
		return fmt.Errorf("marshal assets: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO auto_exercises (id, grading_script, container_image, max_time_sec, max_mem_mb, assets, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ae.ID, ae.GradingScript, ae.ContainerImage, ae.MaxTimeSec, ae.MaxMemMB, string(assetsJSON),
		formatTime(ae.CreatedAt),
	)
	return err
}

func (s *SQLiteStore) GetAutoExercise(ctx context.Context, id string) (*model.AutoExercise, error) {
	s.logger.Debug("sql", "op", "select", "table", "auto_exercises", "id", id)

	var ae model.AutoExercise
	var assetsJSON, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, grading_script, container_image, max_time_sec, max_mem_mb, assets, created_at
		 FROM auto_exercises WHERE id = ?`, id,
	).Scan(&ae.ID, &ae.GradingScript, &ae.ContainerImage, &ae.MaxTimeSec, &ae.MaxMemMB, &assetsJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(assetsJSON), &ae.Assets); err != nil {
		return nil, fmt.Errorf("unmarshal assets: %w", err)
	}
	ae.CreatedAt = parseTime(createdAt)
	return &ae, nil
}

// --- Executors ---

func (s *SQLiteStore) CreateExecutor(ctx context.Context, ex *model.Executor) error {
	s.logger.Debug("sql", "op", "insert", "table", "executors", "id", ex.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executors (id, name, base_url, max_load, drain, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.Name, ex.BaseURL, ex.MaxLoad, ex.Drain, formatTime(ex.CreatedAt),
	)
	return err
}

const executorColumns = `e.id, e.name, e.base_url, e.max_load, e.drain, e.created_at`

func scanExecutor(sc scanner) (*model.Executor, error) {
	var ex model.Executor
	var createdAt string
	if err := sc.Scan(&ex.ID, &ex.Name, &ex.BaseURL, &ex.MaxLoad, &ex.Drain, &createdAt); err != nil {
		return nil, err
	}
	ex.CreatedAt = parseTime(createdAt)
	return &ex, nil
}

func (s *SQLiteStore) GetExecutor(ctx context.Context, id string) (*model.Executor, error) {
	s.logger.Debug("sql", "op", "select", "table", "executors", "id", id)

	ex, err := scanExecutor(s.db.QueryRowContext(ctx,
		`SELECT `+executorColumns+` FROM executors e WHERE e.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ex, err
}

func (s *SQLiteStore) ListExecutors(ctx context.Context) ([]*model.Executor, error) {
	s.logger.Debug("sql", "op", "list", "table", "executors")
	return s.queryExecutors(ctx, `SELECT `+executorColumns+` FROM executors e ORDER BY e.created_at`)
}

func (s *SQLiteStore) ListExecutorsFor(ctx context.Context, autoExerciseID string) ([]*model.Executor, error) {
	s.logger.Debug("sql", "op", "list", "table", "auto_exercise_executors", "auto_exercise_id", autoExerciseID)
	return s.queryExecutors(ctx,
		`SELECT `+executorColumns+` FROM executors e
		 JOIN auto_exercise_executors ae ON ae.executor_id = e.id
		 WHERE ae.auto_exercise_id = ? ORDER BY e.created_at`, autoExerciseID)
}

func (s *SQLiteStore) queryExecutors(ctx context.Context, query string, args ...any) ([]*model.Executor, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Executor
	for rows.Next() {
		ex, err := scanExecutor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SetExecutorDrain(ctx context.Context, id string, drain bool) error {
	s.logger.Debug("sql", "op", "update", "table", "executors", "id", id, "drain", drain)

	res, err := s.db.ExecContext(ctx, `UPDATE executors SET drain = ? WHERE id = ?`, drain, id)
	if err != nil {
		return err
	}
	return expectAffected(res, "executor", id)
}

func (s *SQLiteStore) DeleteExecutor(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "executors", "id", id)

	res, err := s.db.ExecContext(ctx, `DELETE FROM executors WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectAffected(res, "executor", id)
}

func (s *SQLiteStore) LinkExecutor(ctx context.Context, autoExerciseID, executorID string) error {
	s.logger.Debug("sql", "op", "insert", "table", "auto_exercise_executors",
		"auto_exercise_id", autoExerciseID, "executor_id", executorID)

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO auto_exercise_executors (auto_exercise_id, executor_id) VALUES (?, ?)`,
		autoExerciseID, executorID)
	return err
}

// expectAffected turns a zero-row update into ErrNotFound.
func expectAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, ErrNotFound)
	}
	return nil
}
