// Package storage provides SQLite-backed persistence for biomarker samples
// and alerts. It is the concrete time-series source consumed by the
// analytics engine.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/calder-health/biosense/internal/models"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/biosense/data.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "biosense", "data.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS samples (
			user_id   TEXT NOT NULL,
			biomarker TEXT NOT NULL,
			ts        INTEGER NOT NULL,
			value     REAL NOT NULL,
			valid     INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (user_id, biomarker, ts)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			status           TEXT NOT NULL,
			title            TEXT NOT NULL,
			message          TEXT NOT NULL,
			recommendation   TEXT,
			biomarker        TEXT NOT NULL,
			anomaly_type     TEXT NOT NULL,
			priority         TEXT NOT NULL,
			value            REAL NOT NULL,
			expected_low     REAL NOT NULL,
			expected_high    REAL NOT NULL,
			deviation_score  REAL NOT NULL,
			description      TEXT NOT NULL,
			clinical_context TEXT,
			anomaly_ts       INTEGER NOT NULL,
			created_at       INTEGER NOT NULL,
			acknowledged_at  INTEGER,
			resolved_at      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_user_status ON alerts(user_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddSamples inserts or replaces samples for one user and biomarker.
func (s *Storage) AddSamples(ctx context.Context, userID, biomarker string, samples []models.Sample) error {
	if userID == "" || biomarker == "" {
		return fmt.Errorf("user ID and biomarker must not be empty")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO samples (user_id, biomarker, ts, value, valid)
		VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sm := range samples {
		if _, err := stmt.ExecContext(ctx,
			userID, biomarker, sm.Timestamp.UnixNano(), sm.Value, boolToInt(sm.Valid),
		); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}
	return tx.Commit()
}

// LoadSeries returns the raw ordered series for one biomarker in
// [start, end]. The primary key dedupes, so timestamps ascend strictly.
func (s *Storage) LoadSeries(ctx context.Context, userID, biomarker string, start, end time.Time) (models.Series, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, value, valid FROM samples
		WHERE user_id = ? AND biomarker = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC`,
		userID, biomarker, start.UnixNano(), end.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var series models.Series
	for rows.Next() {
		var tsNano int64
		var value float64
		var valid int
		if err := rows.Scan(&tsNano, &value, &valid); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		series = append(series, models.Sample{
			Timestamp: time.Unix(0, tsNano).UTC(),
			Value:     value,
			Valid:     valid != 0,
		})
	}
	return series, rows.Err()
}

// LoadDailySeries returns one sample per UTC calendar day in [start, end]:
// the mean of that day's valid samples, or an explicit invalid sample for
// an empty day. The fixed grid keeps two series positionally aligned for
// lag shifting.
func (s *Storage) LoadDailySeries(ctx context.Context, userID, biomarker string, start, end time.Time) (models.Series, error) {
	raw, err := s.LoadSeries(ctx, userID, biomarker, start, end)
	if err != nil {
		return nil, err
	}

	startDay := truncateDay(start)
	endDay := truncateDay(end)

	var series models.Series
	i := 0
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		next := day.AddDate(0, 0, 1)

		var sum float64
		var n int
		for i < len(raw) && raw[i].Timestamp.Before(next) {
			if raw[i].Valid {
				sum += raw[i].Value
				n++
			}
			i++
		}

		sample := models.Sample{Timestamp: day}
		if n > 0 {
			sample.Value = sum / float64(n)
			sample.Valid = true
		}
		series = append(series, sample)
	}
	return series, nil
}

// Users lists every user with stored samples.
func (s *Storage) Users(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM samples ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// SaveAlert persists an alert. Existing rows are replaced, so repeated
// saves after transitions are safe.
func (s *Storage) SaveAlert(ctx context.Context, alert *models.Alert) error {
	if err := alert.Validate(); err != nil {
		return fmt.Errorf("invalid alert: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO alerts
			(id, user_id, status, title, message, recommendation,
			 biomarker, anomaly_type, priority, value, expected_low, expected_high,
			 deviation_score, description, clinical_context, anomaly_ts,
			 created_at, acknowledged_at, resolved_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		alert.ID, alert.UserID, string(alert.Status), alert.Title, alert.Message, alert.Recommendation,
		alert.Anomaly.Biomarker, string(alert.Anomaly.Type), string(alert.Anomaly.Priority),
		alert.Anomaly.Value, alert.Anomaly.ExpectedRange.Low, alert.Anomaly.ExpectedRange.High,
		alert.Anomaly.DeviationScore, alert.Anomaly.Description, alert.Anomaly.ClinicalContext,
		alert.Anomaly.Timestamp.UnixNano(), alert.CreatedAt.UnixNano(),
		nullableNano(alert.AcknowledgedAt), nullableNano(alert.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// GetAlert loads one alert by ID. Returns nil when not found.
func (s *Storage) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertCols+` FROM alerts WHERE id = ?`, id)
	alert, err := scanAlert(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// AlertsByUser lists a user's alerts, optionally filtered by status,
// newest first. An empty status returns all alerts.
func (s *Storage) AlertsByUser(ctx context.Context, userID string, status models.AlertStatus) ([]models.Alert, error) {
	query := `SELECT ` + alertCols + ` FROM alerts WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

// TransitionAlert applies the alert state machine against the persisted
// row, mirroring the edges the in-memory manager enforces. Returns false
// for an unknown alert or a rejected transition.
func (s *Storage) TransitionAlert(ctx context.Context, id string, next models.AlertStatus) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM alerts WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read alert status: %w", err)
	}

	if !models.AlertStatus(current).CanTransition(next) {
		return false, nil
	}

	now := time.Now().UTC().UnixNano()
	switch next {
	case models.AlertAcknowledged:
		_, err = tx.ExecContext(ctx, `UPDATE alerts SET status = ?, acknowledged_at = ? WHERE id = ?`, string(next), now, id)
	case models.AlertResolved:
		_, err = tx.ExecContext(ctx, `UPDATE alerts SET status = ?, resolved_at = ? WHERE id = ?`, string(next), now, id)
	default:
		_, err = tx.ExecContext(ctx, `UPDATE alerts SET status = ? WHERE id = ?`, string(next), id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to update alert: %w", err)
	}
	return true, tx.Commit()
}

const alertCols = `id, user_id, status, title, message, recommendation,
	biomarker, anomaly_type, priority, value, expected_low, expected_high,
	deviation_score, description, clinical_context, anomaly_ts,
	created_at, acknowledged_at, resolved_at`

func scanAlert(scan func(...any) error) (*models.Alert, error) {
	var a models.Alert
	var status, anomalyType, priority string
	var recommendation, clinicalContext sql.NullString
	var anomalyTsNano, createdAtNano int64
	var ackNano, resNano sql.NullInt64

	err := scan(
		&a.ID, &a.UserID, &status, &a.Title, &a.Message, &recommendation,
		&a.Anomaly.Biomarker, &anomalyType, &priority,
		&a.Anomaly.Value, &a.Anomaly.ExpectedRange.Low, &a.Anomaly.ExpectedRange.High,
		&a.Anomaly.DeviationScore, &a.Anomaly.Description, &clinicalContext,
		&anomalyTsNano, &createdAtNano, &ackNano, &resNano,
	)
	if err != nil {
		return nil, err
	}

	a.Status = models.AlertStatus(status)
	a.Anomaly.Type = models.AnomalyType(anomalyType)
	a.Anomaly.Priority = models.Priority(priority)
	a.Recommendation = recommendation.String
	a.Anomaly.ClinicalContext = clinicalContext.String
	a.Anomaly.Timestamp = time.Unix(0, anomalyTsNano).UTC()
	a.CreatedAt = time.Unix(0, createdAtNano).UTC()
	if ackNano.Valid {
		t := time.Unix(0, ackNano.Int64).UTC()
		a.AcknowledgedAt = &t
	}
	if resNano.Valid {
		t := time.Unix(0, resNano.Int64).UTC()
		a.ResolvedAt = &t
	}
	return &a, nil
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func nullableNano(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
