package sweeper

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payrouter/internal/common/api"
)

func trigger(h *Handler, method string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/jobs/transfer-retry", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_PostOnly(t *testing.T) {
	h := NewHandler(newSweeper(newFakeProvider(), Config{}), testLogger())

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := trigger(h, method)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
	}
}

func TestHandler_ReturnsSummary(t *testing.T) {
	provider := newFakeProvider(pendingIntent("pi_1"))
	h := NewHandler(newSweeper(provider, Config{}), testLogger())

	rec := trigger(h, http.MethodPost)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.Response[Summary]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Scanned)
	assert.Equal(t, 1, resp.Data.Completed)
}

func TestHandler_SweepFailureIs500(t *testing.T) {
	provider := newFakeProvider()
	provider.searchErr = errors.New("search unavailable")
	provider.listErr = errors.New("list unavailable")
	h := NewHandler(newSweeper(provider, Config{}), testLogger())

	rec := trigger(h, http.MethodPost)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
