package async

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/common"
	"github.com/joseph-ayodele/docufill/internal/repository"
)

type captureQueue struct {
	enqueued []Job
}

func (q *captureQueue) Enqueue(_ context.Context, job Job) error {
	q.enqueued = append(q.enqueued, job)
	return nil
}

func (q *captureQueue) Shutdown(context.Context) {}

func TestSweepReenqueuesOrphanedPending(t *testing.T) {
	db, err := repository.Open(common.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := repository.NewJobRepository(db)
	ctx := context.Background()

	orphan := &repository.Job{
		ID:       uuid.New(),
		DedupKey: uuid.NewString(),
		Stage:    constants.StageRecognize,
		Category: constants.Passport,
		Document: []byte("Name: JOHN SMITH\n"),
		Format:   constants.TXT,
		Target:   []byte(`[{"name":"full_name","required":true}]`),
	}
	require.NoError(t, repo.Create(ctx, orphan))
	_, err = db.Exec(`UPDATE jobs SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-24*time.Hour), orphan.ID.String())
	require.NoError(t, err)

	q := &captureQueue{}
	s := NewSweeper(repo, q, 15*time.Minute, time.Minute, nil)
	s.sweep()

	require.Len(t, q.enqueued, 1, "the orphaned pending job must reach the queue again")
	assert.Equal(t, orphan.ID, q.enqueued[0].JobID)

	got, err := repo.GetByID(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusPending, got.Status, "requeueing never rewrites status; the worker claims it")
}
