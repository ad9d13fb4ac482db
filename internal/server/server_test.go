package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"solanaetl/internal/mapper"
	"solanaetl/internal/model"
	"solanaetl/internal/storage"
)

// stubSink implements storage.Sink with canned responses.
type stubSink struct {
	pingErr error
	cursor  model.Cursor
	open    []model.Checkpoint
}

func (s *stubSink) ApplyBatch(context.Context, mapper.Batch) (storage.ApplyResult, error) {
	return storage.ApplyResult{}, nil
}
func (s *stubSink) InsertCheckpoint(context.Context, *model.Checkpoint) error { return nil }
func (s *stubSink) ClaimCheckpoint(context.Context, string) (*model.Checkpoint, bool, error) {
	return nil, false, nil
}
func (s *stubSink) AdvanceCheckpoint(context.Context, string, uint64) error { return nil }
func (s *stubSink) CompleteCheckpoint(context.Context, string) error        { return nil }
func (s *stubSink) FailCheckpoint(context.Context, string, string) error    { return nil }
func (s *stubSink) OpenCheckpoints(context.Context) ([]model.Checkpoint, error) {
	return s.open, nil
}
func (s *stubSink) ReleaseClaims(context.Context) (int, error) { return 0, nil }
func (s *stubSink) OverlappingInProgress(context.Context, uint64, uint64) (bool, error) {
	return false, nil
}
func (s *stubSink) LoadCursor(context.Context) (model.Cursor, error) { return s.cursor, nil }
func (s *stubSink) AdvanceCursor(context.Context, string, uint64) (bool, error) {
	return true, nil
}
func (s *stubSink) AppendError(context.Context, model.ErrorRecord) error { return nil }
func (s *stubSink) Ping(context.Context) error                           { return s.pingErr }

type stubTipper struct {
	slot uint64
	err  error
}

func (s stubTipper) GetSlot(context.Context) (uint64, error) { return s.slot, s.err }

func TestHealthOK(t *testing.T) {
	srv := New(&stubSink{}, stubTipper{slot: 1000}, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestHealthDegradedWhenSinkDown(t *testing.T) {
	srv := New(&stubSink{pingErr: fmt.Errorf("connection refused")}, stubTipper{slot: 1000}, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp["status"])
	assert.Contains(t, resp["sink"], "connection refused")
}

func TestProgress(t *testing.T) {
	cp, err := model.NewCheckpoint(100, 199)
	require.NoError(t, err)
	sink := &stubSink{
		cursor: model.Cursor{LastConfirmedSlot: 995, ChainTipSlot: 1000, LastBackfillSlot: 150},
		open:   []model.Checkpoint{*cp},
	}
	srv := New(sink, stubTipper{slot: 1000}, zaptest.NewLogger(t))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/progress", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Cursor          model.Cursor       `json:"cursor"`
		OpenCheckpoints []model.Checkpoint `json:"open_checkpoints"`
		TipLag          *uint64            `json:"tip_lag"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(995), resp.Cursor.LastConfirmedSlot)
	require.Len(t, resp.OpenCheckpoints, 1)
	assert.Equal(t, cp.ID, resp.OpenCheckpoints[0].ID)
	require.NotNil(t, resp.TipLag)
	assert.Equal(t, uint64(5), *resp.TipLag)
}
