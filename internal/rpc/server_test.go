package rpc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslister/postflow/api/schemas"
	"github.com/crosslister/postflow/internal/workflow"
)

// fakeEngine scripts the orchestrator surface for handler tests.
type fakeEngine struct {
	startErr  error
	resumeErr error
	started   []schemas.ListingPayload
	resumed   []schemas.StepID
	status    schemas.StatusResponse
	ready     schemas.CheckReadyResponse
	readyErr  error
}

func (f *fakeEngine) Start(_ context.Context, payload schemas.ListingPayload) error {
	f.started = append(f.started, payload)
	return f.startErr
}

func (f *fakeEngine) Resume(_ context.Context, fromStep schemas.StepID, _ schemas.ListingPayload) error {
	f.resumed = append(f.resumed, fromStep)
	return f.resumeErr
}

func (f *fakeEngine) Status(context.Context) schemas.StatusResponse { return f.status }

func (f *fakeEngine) Ready(context.Context) (schemas.CheckReadyResponse, error) {
	return f.ready, f.readyErr
}

func TestStartFillSuccess(t *testing.T) {
	engine := &fakeEngine{}
	h := NewHandlers(engine, nil)

	resp := h.StartFill(context.Background(), schemas.StartFillRequest{
		Data: schemas.ListingPayload{Title: "Couch", Price: "150"},
	})
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)
	require.Len(t, engine.started, 1)
	assert.Equal(t, "Couch", engine.started[0].Title)
}

func TestStartFillDuplicateIsAcknowledged(t *testing.T) {
	engine := &fakeEngine{startErr: workflow.ErrAlreadyAttempted}
	h := NewHandlers(engine, nil)

	resp := h.StartFill(context.Background(), schemas.StartFillRequest{})
	assert.True(t, resp.Success, "the duplicate call is a no-op acknowledgement")
	assert.Equal(t, "already attempted", resp.Message)
}

func TestStartFillFailurePropagatesMessage(t *testing.T) {
	engine := &fakeEngine{startErr: errors.New("element not found")}
	h := NewHandlers(engine, nil)

	resp := h.StartFill(context.Background(), schemas.StartFillRequest{})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "element not found")
}

func TestCheckReady(t *testing.T) {
	engine := &fakeEngine{ready: schemas.CheckReadyResponse{
		Ready: true, URL: "https://marketplace.example/create", Step: schemas.StepIdle,
	}}
	h := NewHandlers(engine, nil)

	resp := h.CheckReady(context.Background())
	assert.True(t, resp.Ready)
	assert.Equal(t, schemas.StepIdle, resp.Step)
}

func TestCheckReadyReportsNotReadyOnError(t *testing.T) {
	engine := &fakeEngine{readyErr: errors.New("tab gone")}
	h := NewHandlers(engine, nil)

	resp := h.CheckReady(context.Background())
	assert.False(t, resp.Ready)
}

func TestGetStatus(t *testing.T) {
	engine := &fakeEngine{status: schemas.StatusResponse{
		Step:              schemas.StepPublishing,
		FormFillAttempted: true,
		ImagesUploaded:    2,
	}}
	h := NewHandlers(engine, nil)

	resp := h.GetStatus(context.Background())
	assert.Equal(t, schemas.StepPublishing, resp.Step)
	assert.True(t, resp.FormFillAttempted)
	assert.Equal(t, 2, resp.ImagesUploaded)
}

func TestResume(t *testing.T) {
	engine := &fakeEngine{}
	h := NewHandlers(engine, nil)

	resp := h.Resume(context.Background(), schemas.ResumeRequest{
		FromStep: schemas.StepClickingNext2,
		Data:     schemas.ListingPayload{Title: "Couch", Price: "150"},
	})
	assert.True(t, resp.Success)
	require.Equal(t, []schemas.StepID{schemas.StepClickingNext2}, engine.resumed)
}

func TestResumeFailure(t *testing.T) {
	engine := &fakeEngine{resumeErr: errors.New("not a mid-flow step")}
	h := NewHandlers(engine, nil)

	resp := h.Resume(context.Background(), schemas.ResumeRequest{FromStep: "bogus"})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "mid-flow")
}
