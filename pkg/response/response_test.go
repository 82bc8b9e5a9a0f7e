package response

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/letter-workflow-api/internal/models"
	appErrors "github.com/noah-isme/letter-workflow-api/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestJSONWithPaginationAndMeta(t *testing.T) {
	c, w := newContext()
	JSON(c, http.StatusOK, []string{"req-1"}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, map[string]interface{}{"cache_hit": false})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	body := decodeEnvelope(t, w)
	assert.JSONEq(t, `["req-1"]`, string(body["data"]))
	assert.Contains(t, body, "pagination")
	assert.JSONEq(t, `{"cache_hit":false}`, string(body["meta"]))
	assert.NotContains(t, body, "error")
}

func TestCreatedAndAccepted(t *testing.T) {
	c, w := newContext()
	Created(c, map[string]string{"id": "req-1"})
	assert.Equal(t, http.StatusCreated, w.Code)

	c, w = newContext()
	Accepted(c, map[string]string{"status": "QUEUED"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"status":"QUEUED"}`, string(decodeEnvelope(t, w)["data"]))
}

func TestErrorUsesTypedStatus(t *testing.T) {
	c, w := newContext()
	Error(c, appErrors.Clone(appErrors.ErrInvalidState, "request is not awaiting signature"))

	assert.Equal(t, http.StatusConflict, w.Code)
	body := decodeEnvelope(t, w)
	assert.JSONEq(t, `{"code":"INVALID_STATE","message":"request is not awaiting signature","status":409}`, string(body["error"]))
	assert.Empty(t, c.Errors)
}

func TestErrorHidesInternalCause(t *testing.T) {
	c, w := newContext()
	Error(c, sql.ErrConnDone)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), sql.ErrConnDone.Error())
	require.Len(t, c.Errors, 1)
	assert.ErrorIs(t, c.Errors[0].Err, sql.ErrConnDone)
}
