package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "medcrew.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newConsultation() *Consultation {
	return &Consultation{
		Crew:           "healthcare",
		Mode:           "form",
		Gender:         "Male",
		Age:            61,
		Symptoms:       "chest pain",
		MedicalHistory: "hypertension",
	}
}

func TestOpen_MigrateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medcrew.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	require.NoError(t, db.Ping())
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.conn.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&n))
	require.Equal(t, 2, n)
}

func TestCreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	c := newConsultation()
	require.NoError(t, db.Create(c))
	require.NotEmpty(t, c.ID)
	require.Equal(t, StatusPending, c.Status)

	got, err := db.Get(c.ID)
	require.NoError(t, err)
	require.Equal(t, c.ID, got.ID)
	require.Equal(t, "form", got.Mode)
	require.Equal(t, 61, got.Age)
	require.Equal(t, "hypertension", got.MedicalHistory)
	require.Equal(t, StatusPending, got.Status)
	require.WithinDuration(t, c.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestGet_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, db.MarkRunning("missing"), ErrNotFound)
}

func TestLifecycle_Complete(t *testing.T) {
	db := setupTestDB(t)
	c := newConsultation()
	require.NoError(t, db.Create(c))
	require.NoError(t, db.MarkRunning(c.ID))

	tasks := []TaskOutput{
		{Task: "diagnose", Agent: "Medical Diagnostician", Output: "angina?", Duration: 1500 * time.Millisecond},
		{Task: "treatment", Agent: "Treatment Advisor", Output: "see a cardiologist", Duration: 2 * time.Second},
	}
	require.NoError(t, db.Complete(c.ID, "see a cardiologist", tasks))

	got, err := db.Get(c.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, "see a cardiologist", got.Output)
	require.Equal(t, tasks, got.Tasks)

	// final states are sticky
	require.ErrorIs(t, db.Fail(c.ID, "late"), ErrFinished)
	require.ErrorIs(t, db.Cancel(c.ID, "late"), ErrFinished)
}

func TestLifecycle_FailAndCancel(t *testing.T) {
	db := setupTestDB(t)

	failed := newConsultation()
	require.NoError(t, db.Create(failed))
	require.NoError(t, db.Fail(failed.ID, "llm down"))
	got, err := db.Get(failed.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "llm down", got.Error)

	canceled := newConsultation()
	require.NoError(t, db.Create(canceled))
	require.NoError(t, db.MarkRunning(canceled.ID))
	require.NoError(t, db.Cancel(canceled.ID, "canceled by user"))
	got, err = db.Get(canceled.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCanceled, got.Status)
}

func TestList_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	var ids []string
	for i := 0; i < 3; i++ {
		c := newConsultation()
		require.NoError(t, db.Create(c))
		ids = append(ids, c.ID)
	}

	list, err := db.List(2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, ids[2], list[0].ID)
	require.Equal(t, ids[1], list[1].ID)
}

func TestPurgeOlderThan(t *testing.T) {
	db := setupTestDB(t)
	done := newConsultation()
	require.NoError(t, db.Create(done))
	require.NoError(t, db.Complete(done.ID, "ok", []TaskOutput{{Task: "t", Agent: "a", Output: "ok"}}))
	pending := newConsultation()
	require.NoError(t, db.Create(pending))

	n, err := db.PurgeOlderThan(-time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = db.Get(done.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = db.Get(pending.ID)
	require.NoError(t, err)
}

func TestOpen_Memory(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	c := newConsultation()
	require.NoError(t, db.Create(c))
	_, err = db.Get(c.ID)
	require.NoError(t, err)
}

func TestParseTime_AnyFractionWidth(t *testing.T) {
	want := time.Date(2026, 10, 18, 9, 15, 55, 532802660, time.UTC)
	for _, s := range []string{
		formatTime(want),
		"2026-10-18T09:15:55.53280266Z",
	} {
		got, err := parseTime(s)
		require.NoError(t, err, s)
		require.True(t, want.Equal(got), s)
	}

	got, err := parseTime("2026-10-18T09:15:55Z")
	require.NoError(t, err)
	require.Equal(t, 0, got.Nanosecond())
}

func TestCreateGetList_ManyRecords(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	const n = 300
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		c := newConsultation()
		require.NoError(t, db.Create(c))
		ids = append(ids, c.ID)
	}
	for _, id := range ids {
		got, err := db.Get(id)
		require.NoError(t, err)
		require.Equal(t, id, got.ID)
	}

	list, err := db.List(n)
	require.NoError(t, err)
	require.Len(t, list, n)
	require.Equal(t, ids[n-1], list[0].ID)
	for i := 1; i < len(list); i++ {
		require.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt))
	}
}
