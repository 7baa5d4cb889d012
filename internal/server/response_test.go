package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp.Error
}

func TestWriteJSON_ChatResponse(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusOK, ChatResponse{Reply: "It is 9am in Tokyo.", SessionKey: 2})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"reply":"It is 9am in Tokyo.","sessionKey":2}`, w.Body.String())
}

func TestWriteError_Envelope(t *testing.T) {
	tests := []struct {
		status  int
		code    string
		message string
	}{
		{http.StatusBadRequest, ErrCodeInvalidRequest, "prompt is required"},
		{http.StatusNotFound, ErrCodeNotFound, "no active session"},
		{http.StatusBadGateway, ErrCodeBackendError, "backend unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.status, tt.code, tt.message)

			assert.Equal(t, tt.status, w.Code)
			detail := decodeError(t, w)
			assert.Equal(t, tt.code, detail.Code)
			assert.Equal(t, tt.message, detail.Message)
			assert.Nil(t, detail.Details)
		})
	}
}

func TestWriteErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()
	writeErrorWithDetails(w, http.StatusBadRequest, ErrCodeInvalidRequest, "attachment not readable", map[string]any{
		"path": "/tmp/missing.png",
	})

	detail := decodeError(t, w)
	assert.Equal(t, "/tmp/missing.png", detail.Details["path"])
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	writeSuccess(w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestDecodeBody(t *testing.T) {
	var body ChatRequest

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"prompt":"hi","sessionKey":3}`))
	require.True(t, decodeBody(w, r, &body))
	assert.Equal(t, "hi", body.Prompt)
	assert.Equal(t, 3, body.SessionKey)

	for name, reader := range map[string]io.Reader{
		"truncated": strings.NewReader(`{"prompt":`),
		"broken":    failingReader{},
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/chat", reader)
			assert.False(t, decodeBody(w, r, &body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, ErrCodeInvalidRequest, decodeError(t, w).Code)
		})
	}
}
