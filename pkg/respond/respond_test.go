package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var got map[string]interface{}
	err := json.NewDecoder(w.Body).Decode(&got)
	require.NoError(t, err)
	return got
}

func TestJSON(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		data     interface{}
		wantCode int
		wantBody map[string]interface{}
	}{
		{
			name:     "success response",
			code:     http.StatusOK,
			data:     map[string]string{"status": "pending"},
			wantCode: http.StatusOK,
			wantBody: map[string]interface{}{"status": "pending"},
		},
		{
			name:     "created response",
			code:     http.StatusCreated,
			data:     map[string]int{"version": 0},
			wantCode: http.StatusCreated,
			wantBody: map[string]interface{}{"version": float64(0)}, // JSON unmarshals numbers as float64
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/", nil)

			JSON(w, r, tt.code, tt.data)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantBody, decodeBody(t, w))
		})
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(w, r, http.StatusConflict, "version conflict")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "version conflict", decodeBody(t, w)["error"])
}

func TestList(t *testing.T) {
	t.Run("items with total", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)

		List(w, r, http.StatusOK, []string{"a", "b"}, 42)

		assert.Equal(t, http.StatusOK, w.Code)
		got := decodeBody(t, w)
		assert.Equal(t, []interface{}{"a", "b"}, got["items"])
		assert.Equal(t, float64(42), got["total"])
	})

	t.Run("empty page keeps total", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)

		List(w, r, http.StatusOK, []string{}, 7)

		got := decodeBody(t, w)
		assert.Equal(t, []interface{}{}, got["items"])
		assert.Equal(t, float64(7), got["total"])
	})
}
