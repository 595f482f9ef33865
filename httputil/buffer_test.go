package httputil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedWriter_ResetDiscardsEarlierOutput(t *testing.T) {
	rec := httptest.NewRecorder()
	bw := NewBufferedWriter(rec)

	bw.Header().Set("X-Kept", "yes")
	_, _ = io.WriteString(bw, "Warning: stray output\n")
	assert.Equal(t, http.StatusOK, bw.Status())
	assert.Positive(t, bw.Len())

	WriteStatus(bw, http.StatusOK, "done")
	require.NoError(t, bw.Commit())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "yes", rec.Header().Get("X-Kept"))
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var got Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, Status{Status: StatusSuccess, Message: "done"}, got)
}

func TestBufferedWriter_CommitOnce(t *testing.T) {
	rec := httptest.NewRecorder()
	bw := NewBufferedWriter(rec)

	Error(bw, http.StatusTooManyRequests, "slow down")
	require.NoError(t, bw.Commit())
	require.NoError(t, bw.Commit())

	assert.True(t, bw.Committed())
	assert.False(t, bw.Reset(), "a committed response cannot be reset")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"slow down"}`, rec.Body.String())
}

func TestBufferedWriter_EmptyCommitDefaults200(t *testing.T) {
	rec := httptest.NewRecorder()
	bw := NewBufferedWriter(rec)
	require.NoError(t, bw.Commit())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestResetResponse_FollowsUnwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	bw := NewBufferedWriter(rec)
	ww := middleware.NewWrapResponseWriter(bw, 1)

	_, _ = bw.Write([]byte("partial"))
	assert.True(t, ResetResponse(ww))
	assert.Zero(t, bw.Len())

	assert.False(t, ResetResponse(httptest.NewRecorder()), "plain writers have nothing to reset")
}

func TestWriteStatus_DiscardsEarlierOutput(t *testing.T) {
	rec := httptest.NewRecorder()
	bw := NewBufferedWriter(rec)
	_, _ = bw.Write([]byte("noise"))
	WriteStatus(bw, http.StatusBadRequest, "Name is required.")
	assert.NoError(t, bw.Commit())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"Name is required."}`, rec.Body.String())
}

func TestWriteJSON_ClampsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, 42, map[string]string{"a": "b"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
