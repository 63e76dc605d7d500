package scan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eargollo/shelfscan/internal/camera"
	"github.com/eargollo/shelfscan/internal/session"
)

// ErrNotFound is returned when a history row does not exist.
var ErrNotFound = errors.New("not found")

// SessionRecord is one row of scan_sessions.
type SessionRecord struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       string     `json:"status"`
	TriggeredBy  string     `json:"triggered_by"`
	Camera       string     `json:"camera"`
	Decoder      string     `json:"decoder"`
	ErrorCause   string     `json:"error_cause,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Frames       int64      `json:"frames"`
	DecodeErrors int64      `json:"decode_errors"`
	Discarded    int64      `json:"discarded"`
}

// Detection is one accepted code and the outcome of its lookup.
type Detection struct {
	ID           int64          `json:"id"`
	SessionID    string         `json:"session_id"`
	Code         string         `json:"code"`
	Format       string         `json:"format,omitempty"`
	DetectedAt   time.Time      `json:"detected_at"`
	LookupStatus string         `json:"lookup_status"`
	LookupSource string         `json:"lookup_source,omitempty"`
	RecordID     string         `json:"record_id,omitempty"`
	RecordFields map[string]any `json:"record_fields,omitempty"`
	LookupError  string         `json:"lookup_error,omitempty"`
	LookedUpAt   *time.Time     `json:"looked_up_at,omitempty"`
}

// Timestamps are stored as Unix milliseconds.
func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func insertSession(db *sql.DB, id string, startedAt time.Time, triggeredBy, cameraName, decoderName string) error {
	_, err := db.Exec(`
		INSERT INTO scan_sessions (id, started_at, status, triggered_by, camera, decoder)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, startedAt.UnixMilli(), StatusScanning, triggeredBy, cameraName, decoderName)
	return err
}

func updateSessionFinished(db *sql.DB, id, status string, at time.Time, ae *camera.AcquireError, c session.CounterSnapshot) error {
	var cause, msg sql.NullString
	if ae != nil {
		cause = sql.NullString{String: ae.Cause.String(), Valid: true}
		msg = sql.NullString{String: ae.Cause.Message(), Valid: true}
	}
	_, err := db.Exec(`
		UPDATE scan_sessions
		SET status = ?, finished_at = ?, error_cause = ?, error_message = ?,
		    frames = ?, decode_errors = ?, discarded = ?
		WHERE id = ?`,
		status, at.UnixMilli(), cause, msg, c.Frames, c.DecodeErrors, c.Discarded(), id)
	return err
}

func insertDetection(db *sql.DB, ev session.DetectionEvent) (int64, error) {
	res, err := db.Exec(`
		INSERT INTO detections (session_id, code, format, detected_at, lookup_status)
		VALUES (?, ?, ?, ?, ?)`,
		ev.SessionID, ev.Code, ev.Format, ev.Timestamp.UnixMilli(), LookupPending)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func updateDetectionLookup(db *sql.DB, id int64, res LookupResult, at time.Time) error {
	var source, recordID, fields, lookupErr sql.NullString
	if res.Record != nil {
		source = sql.NullString{String: res.Record.Source, Valid: true}
		recordID = sql.NullString{String: res.Record.ID, Valid: true}
		b, err := json.Marshal(res.Record.Fields)
		if err != nil {
			return fmt.Errorf("marshal record fields: %w", err)
		}
		fields = sql.NullString{String: string(b), Valid: true}
	}
	if res.Error != "" {
		lookupErr = sql.NullString{String: res.Error, Valid: true}
	}
	_, err := db.Exec(`
		UPDATE detections
		SET lookup_status = ?, lookup_source = ?, record_id = ?, record_fields = ?,
		    lookup_error = ?, looked_up_at = ?
		WHERE id = ?`,
		res.Status, source, recordID, fields, lookupErr, at.UnixMilli(), id)
	return err
}

// ListSessions returns sessions newest first, plus the total row count.
func ListSessions(ctx context.Context, db *sql.DB, limit, offset int) ([]SessionRecord, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_sessions`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, triggered_by, camera, decoder,
		       error_cause, error_message, frames, decode_errors, discarded
		FROM scan_sessions
		ORDER BY started_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := []SessionRecord{}
	for rows.Next() {
		var (
			s          SessionRecord
			started    int64
			finished   sql.NullInt64
			cause, msg sql.NullString
		)
		if err := rows.Scan(&s.ID, &started, &finished, &s.Status, &s.TriggeredBy, &s.Camera, &s.Decoder,
			&cause, &msg, &s.Frames, &s.DecodeErrors, &s.Discarded); err != nil {
			return nil, 0, fmt.Errorf("scan session row: %w", err)
		}
		s.StartedAt = fromMillis(started)
		s.FinishedAt = nullTime(finished)
		s.ErrorCause, s.ErrorMessage = cause.String, msg.String
		out = append(out, s)
	}
	return out, total, rows.Err()
}

const detectionColumns = `
	id, session_id, code, format, detected_at, lookup_status, lookup_source,
	record_id, record_fields, lookup_error, looked_up_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDetection(r rowScanner) (Detection, error) {
	var (
		d                         Detection
		detectedAt                int64
		source, recID, fields, le sql.NullString
		lookedUp                  sql.NullInt64
	)
	if err := r.Scan(&d.ID, &d.SessionID, &d.Code, &d.Format, &detectedAt, &d.LookupStatus,
		&source, &recID, &fields, &le, &lookedUp); err != nil {
		return Detection{}, err
	}
	d.DetectedAt = fromMillis(detectedAt)
	d.LookupSource, d.RecordID, d.LookupError = source.String, recID.String, le.String
	d.LookedUpAt = nullTime(lookedUp)
	if fields.Valid && fields.String != "" {
		if err := json.Unmarshal([]byte(fields.String), &d.RecordFields); err != nil {
			return Detection{}, fmt.Errorf("decode record fields: %w", err)
		}
	}
	return d, nil
}

// DetectionFilter narrows ListDetections. Zero values match everything.
type DetectionFilter struct {
	SessionID string
	Code      string
}

// ListDetections returns detections newest first, plus the total count of
// matching rows.
func ListDetections(ctx context.Context, db *sql.DB, f DetectionFilter, limit, offset int) ([]Detection, int, error) {
	where := ` WHERE (? = '' OR session_id = ?) AND (? = '' OR code = ?)`
	args := []any{f.SessionID, f.SessionID, f.Code, f.Code}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM detections`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count detections: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT`+detectionColumns+` FROM detections`+where+` ORDER BY detected_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()

	out := []Detection{}
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan detection row: %w", err)
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

// GetDetection returns one detection or ErrNotFound.
func GetDetection(ctx context.Context, db *sql.DB, id int64) (*Detection, error) {
	d, err := scanDetection(db.QueryRowContext(ctx,
		`SELECT`+detectionColumns+` FROM detections WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get detection %d: %w", id, err)
	}
	return &d, nil
}

// PurgeHistory deletes finished sessions (and their detections) that started
// more than retentionDays ago. Zero or negative keeps everything.
func PurgeHistory(ctx context.Context, db *sql.DB, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()
	res, err := db.ExecContext(ctx,
		`DELETE FROM scan_sessions WHERE started_at < ? AND status != ?`, cutoff, StatusScanning)
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}
	return res.RowsAffected()
}
