package jobs

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docufill/constants"
	"github.com/joseph-ayodele/docufill/internal/async"
	"github.com/joseph-ayodele/docufill/internal/common"
	"github.com/joseph-ayodele/docufill/internal/repository"
)

type fakeQueue struct {
	enqueued []async.Job
}

func (q *fakeQueue) Enqueue(_ context.Context, job async.Job) error {
	q.enqueued = append(q.enqueued, job)
	return nil
}

func (q *fakeQueue) Shutdown(context.Context) {}

func newTestService(t *testing.T) (*Service, *fakeQueue, *sql.DB) {
	t.Helper()
	db, err := repository.Open(common.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	queue := &fakeQueue{}
	return NewService(repository.NewJobRepository(db), queue, nil), queue, db
}

func submitRequest() SubmitRequest {
	return SubmitRequest{
		Document: []byte("Name: JOHN SMITH\nDate of Birth: 03/04/1985\n"),
		Format:   constants.TXT,
		Category: "passport",
		Target:   []byte(`[{"name":"full_name","required":true},{"name":"date_of_birth","type":"date"}]`),
	}
}

func TestSubmitAcceptsAndEnqueues(t *testing.T) {
	svc, queue, _ := newTestService(t)

	resp, err := svc.Submit(context.Background(), submitRequest())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, resp.JobID)
	assert.Equal(t, constants.JobStatusPending, resp.Status)
	assert.False(t, resp.Duplicate)

	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, resp.JobID, queue.enqueued[0].JobID)
}

func TestSubmitIsIdempotent(t *testing.T) {
	svc, queue, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Submit(ctx, submitRequest())
	require.NoError(t, err)

	second, err := svc.Submit(ctx, submitRequest())
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.JobID, second.JobID)

	// The duplicate is acknowledged, never re-enqueued.
	assert.Len(t, queue.enqueued, 1)
}

func TestSubmitDistinguishesTargets(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Submit(ctx, submitRequest())
	require.NoError(t, err)

	// Same document, different form: a different job.
	req := submitRequest()
	req.Target = []byte(`[{"name":"full_name"}]`)
	second, err := svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.False(t, second.Duplicate)
	assert.NotEqual(t, first.JobID, second.JobID)
}

func TestHashSegmentsEncodesBoundary(t *testing.T) {
	// The same bytes split differently across the document/schema boundary
	// must produce distinct keys; bare concatenation would collide.
	a := hashSegments([]byte("AB"), []byte("C"))
	b := hashSegments([]byte("A"), []byte("BC"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, hashSegments([]byte("AB"), []byte("C")))
}

func TestSubmitRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	req := submitRequest()
	req.Document = nil
	_, err := svc.Submit(ctx, req)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	req = submitRequest()
	req.Format = ""
	_, err = svc.Submit(ctx, req)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	req = submitRequest()
	req.Target = []byte(`{"not":"a list"}`)
	_, err = svc.Submit(ctx, req)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	req = submitRequest()
	req.Target = []byte(`[{"name":"  "}]`)
	_, err = svc.Submit(ctx, req)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestSubmitCanonicalizesCategory(t *testing.T) {
	svc, _, db := newTestService(t)

	req := submitRequest()
	req.Category = "travel-document"
	resp, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)

	job, err := repository.NewJobRepository(db).GetByID(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, constants.Passport, job.Category)
}

func TestGetResult(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Submit(ctx, submitRequest())
	require.NoError(t, err)

	res, err := svc.GetResult(ctx, resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, resp.JobID, res.JobID)
	assert.Equal(t, constants.JobStatusPending, res.Status)
	assert.Empty(t, res.ExtractedFields)

	_, err = svc.GetResult(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetAudit(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.Submit(ctx, submitRequest())
	require.NoError(t, err)

	entries, err := svc.GetAudit(ctx, resp.JobID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "job.accepted", entries[0].Event)

	_, err = svc.GetAudit(ctx, uuid.New())
	assert.ErrorIs(t, err, common.ErrNotFound)
}
