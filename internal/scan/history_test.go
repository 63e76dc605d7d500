package scan

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eargollo/shelfscan/internal/lookup"
	"github.com/eargollo/shelfscan/internal/session"
)

// seedDetection inserts a session started at startedAt with one detection.
func seedDetection(t *testing.T, db *sql.DB, sessionID, code string, startedAt time.Time) int64 {
	t.Helper()
	require.NoError(t, insertSession(db, sessionID, startedAt, "test", "stub", "multi"))
	require.NoError(t, updateSessionFinished(db, sessionID, StatusDetected, startedAt.Add(time.Second), nil, session.CounterSnapshot{Frames: 10}))
	id, err := insertDetection(db, session.DetectionEvent{SessionID: sessionID, Code: code, Format: "EAN_13", Timestamp: startedAt.Add(time.Second)})
	require.NoError(t, err)
	return id
}

func TestListDetectionsFilterAndOrder(t *testing.T) {
	db := mustOpenDB(t)
	base := time.Now().Add(-time.Hour)
	seedDetection(t, db, "s1", "111", base)
	seedDetection(t, db, "s2", "222", base.Add(time.Minute))
	seedDetection(t, db, "s3", "111", base.Add(2*time.Minute))

	ctx := context.Background()
	all, total, err := ListDetections(ctx, db, DetectionFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, "s3", all[0].SessionID)
	assert.Equal(t, LookupPending, all[0].LookupStatus)

	byCode, total, err := ListDetections(ctx, db, DetectionFilter{Code: "111"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, byCode, 2)

	bySession, _, err := ListDetections(ctx, db, DetectionFilter{SessionID: "s2"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, bySession, 1)
	assert.Equal(t, "222", bySession[0].Code)

	page, total, err := ListDetections(ctx, db, DetectionFilter{}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "s2", page[0].SessionID)
}

func TestGetDetection(t *testing.T) {
	db := mustOpenDB(t)
	id := seedDetection(t, db, "s1", "999", time.Now())

	rec := &lookup.Record{ID: "recZ", Source: "b/t", Fields: map[string]any{"name": "Z"}}
	require.NoError(t, updateDetectionLookup(db, id, LookupResult{Status: LookupFound, Record: rec}, time.Now()))

	d, err := GetDetection(context.Background(), db, id)
	require.NoError(t, err)
	assert.Equal(t, "999", d.Code)
	assert.Equal(t, "EAN_13", d.Format)
	assert.Equal(t, "recZ", d.RecordID)
	assert.Equal(t, "Z", d.RecordFields["name"])

	_, err = GetDetection(context.Background(), db, id+100)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSessions(t *testing.T) {
	db := mustOpenDB(t)
	seedDetection(t, db, "old", "1", time.Now().Add(-time.Hour))
	seedDetection(t, db, "new", "2", time.Now())

	sessions, total, err := ListSessions(context.Background(), db, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, sessions, 2)
	assert.Equal(t, "new", sessions[0].ID)
	assert.Equal(t, StatusDetected, sessions[0].Status)
	assert.Equal(t, int64(10), sessions[0].Frames)
	assert.NotNil(t, sessions[0].FinishedAt)
}

func TestPurgeHistory(t *testing.T) {
	db := mustOpenDB(t)
	seedDetection(t, db, "ancient", "1", time.Now().AddDate(0, 0, -40))
	seedDetection(t, db, "recent", "2", time.Now().AddDate(0, 0, -1))
	require.NoError(t, insertSession(db, "live", time.Now().AddDate(0, 0, -40), "test", "stub", "multi"))

	n, err := PurgeHistory(context.Background(), db, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var detections int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM detections`).Scan(&detections))
	assert.Equal(t, 1, detections, "detections of purged sessions cascade")

	n, err = PurgeHistory(context.Background(), db, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMarkStaleSessions(t *testing.T) {
	db := mustOpenDB(t)
	require.NoError(t, insertSession(db, "crashed", time.Now(), "api", "stub", "multi"))
	seedDetection(t, db, "done", "1", time.Now())

	require.NoError(t, MarkStaleSessions(db))

	var status string
	require.NoError(t, db.QueryRow(`SELECT status FROM scan_sessions WHERE id = 'crashed'`).Scan(&status))
	assert.Equal(t, StatusInterrupted, status)
	require.NoError(t, db.QueryRow(`SELECT status FROM scan_sessions WHERE id = 'done'`).Scan(&status))
	assert.Equal(t, StatusDetected, status)
}
