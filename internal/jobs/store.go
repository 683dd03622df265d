package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"kmerge/internal/slogutil"
)

// timeLayout sorts lexicographically for UTC times.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrAmbiguousID is returned by FindJob when a prefix matches several runs.
var ErrAmbiguousID = errors.New("run id prefix is ambiguous")

// Store persists jobs in a SQLite database.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
	dbPath string
}

// OpenStore opens or creates the journal at dbPath.
func OpenStore(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	// One writer at a time; the CLI never needs more.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{conn: conn, logger: logger, dbPath: dbPath}
	if err := s.initializeSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	logger.Debug("opened run journal", "path", dbPath)
	return s, nil
}

func (s *Store) initializeSchema() error {
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'queued',
			output TEXT NOT NULL,
			inputs TEXT NOT NULL,
			sort_order TEXT NOT NULL,
			value_type TEXT NOT NULL,
			lines_written INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			error TEXT,
			result TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
		CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);

		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);
		INSERT OR REPLACE INTO schema_version (version) VALUES (1);
	`)
	return err
}

// Path is the database file.
func (s *Store) Path() string { return s.dbPath }

func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

const jobColumns = `id, status, output, inputs, sort_order, value_type, lines_written,
	created_at, started_at, completed_at, error, result`

// CreateJob inserts job.
func (s *Store) CreateJob(job *Job) error {
	inputs, err := json.Marshal(job.Inputs)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(`INSERT INTO runs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.Status,
		job.Output,
		string(inputs),
		job.Order,
		job.Type,
		job.LinesWritten,
		formatTime(job.CreatedAt),
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		nullString(job.Error),
		nullString(job.Result),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	s.logger.Debug("recorded run", "run", job.ID)
	return nil
}

// UpdateJob writes the mutable fields of job.
func (s *Store) UpdateJob(job *Job) error {
	res, err := s.conn.Exec(`
		UPDATE runs SET
			status = ?,
			lines_written = ?,
			started_at = ?,
			completed_at = ?,
			error = ?,
			result = ?
		WHERE id = ?`,
		job.Status,
		job.LinesWritten,
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		nullString(job.Error),
		nullString(job.Result),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", job.ID)
	}
	return nil
}

// GetJob returns the job with id, or nil if there is none.
func (s *Store) GetJob(id string) (*Job, error) {
	job, err := scanJob(s.conn.QueryRow(`SELECT `+jobColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// FindJob resolves a full id or a unique prefix of one. It returns nil when
// nothing matches.
func (s *Store) FindJob(prefix string) (*Job, error) {
	if job, err := s.GetJob(prefix); job != nil || err != nil {
		return job, err
	}
	rows, err := s.conn.Query(`SELECT `+jobColumns+` FROM runs WHERE id LIKE ? ESCAPE '\' LIMIT 2`,
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to find run: %w", err)
	}
	jobs, err := collect(rows)
	if err != nil {
		return nil, err
	}
	switch len(jobs) {
	case 0:
		return nil, nil
	case 1:
		return jobs[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, prefix)
	}
}

// ListJobs returns runs newest first.
func (s *Store) ListJobs(opts ListJobsOptions) (*ListJobsResponse, error) {
	var where string
	var args []any
	if len(opts.Status) > 0 {
		placeholders := make([]string, len(opts.Status))
		for i, st := range opts.Status {
			placeholders[i] = "?"
			args = append(args, st)
		}
		where = fmt.Sprintf("WHERE status IN (%s)", strings.Join(placeholders, ","))
	}

	var total int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM runs "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	rows, err := s.conn.Query(`SELECT `+jobColumns+` FROM runs `+where+`
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, append(args, limit, opts.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	jobs, err := collect(rows)
	if err != nil {
		return nil, err
	}

	resp := &ListJobsResponse{Jobs: make([]JobSummary, 0, len(jobs)), TotalCount: total}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, j.ToSummary())
	}
	return resp, nil
}

// CleanupOldJobs removes finished runs completed more than retention ago.
func (s *Store) CleanupOldJobs(retention time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().UTC().Add(-retention))
	res, err := s.conn.Exec(`
		DELETE FROM runs
		WHERE status IN ('completed', 'failed', 'cancelled')
		AND completed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up runs: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var job Job
	var inputs, createdAt string
	var startedAt, completedAt, errMsg, result sql.NullString

	err := row.Scan(
		&job.ID,
		&job.Status,
		&job.Output,
		&inputs,
		&job.Order,
		&job.Type,
		&job.LinesWritten,
		&createdAt,
		&startedAt,
		&completedAt,
		&errMsg,
		&result,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(inputs), &job.Inputs); err != nil {
		return nil, fmt.Errorf("run %s: bad inputs column: %w", job.ID, err)
	}
	job.Error = errMsg.String
	job.Result = result.String
	job.CreatedAt = parseTime(createdAt)
	job.StartedAt = parseNullTime(startedAt)
	job.CompletedAt = parseNullTime(completedAt)
	return &job, nil
}

func collect(rows *sql.Rows) ([]*Job, error) {
	defer func() { _ = rows.Close() }()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}
