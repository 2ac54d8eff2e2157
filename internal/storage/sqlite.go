package storage

import (
	"database/sql"
	"errors"

	"github.com/mpataki/apsweep/internal/models"
	_ "modernc.org/sqlite"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sweeps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP,
		target TEXT NOT NULL,
		work_dir TEXT NOT NULL,
		log_path TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'not_started',
		current_index INTEGER NOT NULL DEFAULT -1,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sweep_id INTEGER NOT NULL REFERENCES sweeps(id),
		sequence_num INTEGER NOT NULL,
		mode INTEGER NOT NULL,
		concurrency INTEGER NOT NULL,
		command_line TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		exit_code INTEGER,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		artifact TEXT,
		pid INTEGER,
		UNIQUE(sweep_id, sequence_num)
	);

	CREATE INDEX IF NOT EXISTS idx_sweeps_state ON sweeps(state);
	CREATE INDEX IF NOT EXISTS idx_executions_sweep ON executions(sweep_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// sweepSelect reads sweeps with the number of artifacts their runs produced.
const sweepSelect = `SELECT s.id, s.token, s.created_at, s.completed_at, s.target, s.work_dir, s.log_path,
	s.state, s.current_index, s.error,
	(SELECT COUNT(*) FROM executions e WHERE e.sweep_id = s.id AND e.artifact IS NOT NULL) AS artifact_count
	FROM sweeps s`

func (s *Storage) CreateSweep(sweep *models.Sweep) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO sweeps (token, target, work_dir, log_path, state, current_index)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sweep.Token, sweep.Target, sweep.WorkDir, sweep.LogPath, sweep.State, sweep.CurrentIndex,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSweep(row scanner) (*models.Sweep, error) {
	var sweep models.Sweep
	var completedAt sql.NullTime
	var errText sql.NullString

	err := row.Scan(
		&sweep.ID, &sweep.Token, &sweep.CreatedAt, &completedAt, &sweep.Target,
		&sweep.WorkDir, &sweep.LogPath, &sweep.State, &sweep.CurrentIndex, &errText, &sweep.ArtifactCount,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		sweep.CompletedAt = &completedAt.Time
	}
	if errText.Valid {
		sweep.Error = errText.String
	}
	return &sweep, nil
}

// ErrNotFound is returned when a sweep id does not exist.
var ErrNotFound = errors.New("sweep not found")

func (s *Storage) GetSweep(id int64) (*models.Sweep, error) {
	row := s.db.QueryRow(sweepSelect+` WHERE s.id = ?`, id)
	sweep, err := scanSweep(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sweep, err
}

func (s *Storage) UpdateSweep(sweep *models.Sweep) error {
	_, err := s.db.Exec(
		`UPDATE sweeps SET completed_at = ?, state = ?, current_index = ?, error = ? WHERE id = ?`,
		sweep.CompletedAt, sweep.State, sweep.CurrentIndex, nullString(sweep.Error), sweep.ID,
	)
	return err
}

func (s *Storage) ListSweeps(limit int) ([]*models.Sweep, error) {
	rows, err := s.db.Query(
		sweepSelect+` ORDER BY s.id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sweeps []*models.Sweep
	for rows.Next() {
		sweep, err := scanSweep(rows)
		if err != nil {
			return nil, err
		}
		sweeps = append(sweeps, sweep)
	}

	return sweeps, rows.Err()
}

func (s *Storage) CreateExecution(exec *models.Execution) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO executions (sweep_id, sequence_num, mode, concurrency, command_line, status, exit_code, started_at, completed_at, artifact, pid)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.SweepID, exec.SequenceNum, exec.Spec.Mode, exec.Spec.Concurrency, exec.CommandLine,
		exec.Status, exec.ExitCode, exec.StartedAt, exec.CompletedAt, nullString(exec.Artifact), exec.PID,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Storage) GetExecutionsForSweep(sweepID int64) ([]*models.Execution, error) {
	rows, err := s.db.Query(
		`SELECT id, sweep_id, sequence_num, mode, concurrency, command_line, status, exit_code, started_at, completed_at, artifact, pid
		 FROM executions WHERE sweep_id = ? ORDER BY sequence_num`, sweepID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*models.Execution
	for rows.Next() {
		var exec models.Execution
		var artifact sql.NullString
		var exitCode, pid sql.NullInt64
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(
			&exec.ID, &exec.SweepID, &exec.SequenceNum, &exec.Spec.Mode, &exec.Spec.Concurrency,
			&exec.CommandLine, &exec.Status, &exitCode, &startedAt, &completedAt, &artifact, &pid,
		)
		if err != nil {
			return nil, err
		}

		if exitCode.Valid {
			code := int(exitCode.Int64)
			exec.ExitCode = &code
		}
		if startedAt.Valid {
			exec.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			exec.CompletedAt = &completedAt.Time
		}
		if artifact.Valid {
			exec.Artifact = artifact.String
		}
		if pid.Valid {
			p := int(pid.Int64)
			exec.PID = &p
		}

		execs = append(execs, &exec)
	}

	return execs, rows.Err()
}

func (s *Storage) UpdateExecutionPID(execID int64, pid int) error {
	_, err := s.db.Exec(`UPDATE executions SET pid = ? WHERE id = ?`, pid, execID)
	return err
}

func (s *Storage) UpdateExecution(exec *models.Execution) error {
	_, err := s.db.Exec(
		`UPDATE executions SET command_line = ?, status = ?, exit_code = ?, started_at = ?, completed_at = ?, artifact = ?
		 WHERE id = ?`,
		exec.CommandLine, exec.Status, exec.ExitCode, exec.StartedAt, exec.CompletedAt, nullString(exec.Artifact), exec.ID,
	)
	return err
}

func (s *Storage) DeleteSweep(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM executions WHERE sweep_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM sweeps WHERE id = ?`, id); err != nil {
		return err
	}

	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
