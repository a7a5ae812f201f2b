package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/schemata/internal/model"
	"github.com/roach88/schemata/internal/notify"
	"github.com/roach88/schemata/internal/orchestrator"
	"github.com/roach88/schemata/internal/store/memory"
	"github.com/roach88/schemata/internal/testutil"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, notify.Message) error { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ids := testutil.NewSequentialIDs()
	o := orchestrator.New(memory.NewSchemaStore(ids), memory.NewPropertyStore(ids), discardPublisher{})
	return New(o, nil)
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

var personBody = map[string]any{
	"schemaName": "person",
	"schemaProperties": []map[string]any{
		{"propertyName": "age", "type": map[string]any{"kind": "number"}},
		{"propertyName": "status", "type": map[string]any{"kind": "enum", "values": []string{"active"}}},
	},
}

func TestSchemaLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/schemas", personBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Aggregate](t, rec)
	assert.Equal(t, "person", created.Name)
	require.Len(t, created.Properties, 2)

	rec = do(t, s, http.MethodGet, "/api/schemas/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.PropertyIDs, decode[model.Aggregate](t, rec).PropertyIDs)

	rec = do(t, s, http.MethodGet, "/api/schemas", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Schema](t, rec), 1)

	update := map[string]any{
		"schemaName": "human",
		"schemaProperties": []map[string]any{
			{"id": created.Properties[0].ID, "propertyName": "years", "type": map[string]any{"kind": "number"}},
		},
	}
	rec = do(t, s, http.MethodPut, "/api/schemas/"+created.ID, update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.Aggregate](t, rec)
	assert.Equal(t, "human", updated.Name)
	assert.Equal(t, []string{created.Properties[0].ID}, updated.PropertyIDs)

	rec = do(t, s, http.MethodDelete, "/api/schemas/"+created.ID+"/properties/"+created.Properties[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decode[model.Aggregate](t, rec).Properties)

	rec = do(t, s, http.MethodGet, "/api/consistency", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[orchestrator.Report](t, rec).Consistent())

	rec = do(t, s, http.MethodDelete, "/api/schemas/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/schemas/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/schemas", personBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[model.Aggregate](t, rec)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   orchestrator.ErrorCode
	}{
		{"invalid id", http.MethodGet, "/api/schemas/abc", nil, http.StatusBadRequest, orchestrator.CodeInvalidID},
		{"not found", http.MethodGet, "/api/schemas/" + testutil.ID(999), nil, http.StatusNotFound, orchestrator.CodeNotFound},
		{"duplicate schema", http.MethodPost, "/api/schemas", personBody, http.StatusConflict, orchestrator.CodeDuplicateSchemaName},
		{"duplicate property", http.MethodPost, "/api/schemas", map[string]any{
			"schemaName": "other",
			"schemaProperties": []map[string]any{
				{"propertyName": "a", "type": map[string]any{"kind": "string"}},
				{"propertyName": "a", "type": map[string]any{"kind": "string"}},
			},
		}, http.StatusConflict, orchestrator.CodeDuplicatePropertyName},
		{"property not in schema", http.MethodDelete, "/api/schemas/" + created.ID + "/properties/" + testutil.ID(999), nil, http.StatusNotFound, orchestrator.CodePropertyNotInSchema},
		{"invalid value", http.MethodPost, "/api/schemas", map[string]any{
			"schemaName":       "typed",
			"schemaProperties": []map[string]any{{"propertyName": "a", "type": map[string]any{"kind": "blob"}}},
		}, http.StatusBadRequest, orchestrator.CodeInvalidValueInSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, string(tt.code), decode[errorResponse](t, rec).Error.Code)
		})
	}
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/schemas", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(orchestrator.CodeInvalidValueInSchema), decode[errorResponse](t, rec).Error.Code)
}

// failingService returns err from the read routes.
type failingService struct {
	Service
	err error
}

func (f failingService) GetAll(context.Context) ([]model.Schema, error) { return nil, f.err }

func (f failingService) GetByID(context.Context, string) (model.Aggregate, error) {
	return model.Aggregate{}, f.err
}

func TestInternalErrorsAreNotEchoed(t *testing.T) {
	s := New(&failingService{err: errors.New("sqlite: database is locked")}, nil)
	rec := do(t, s, http.MethodGet, "/api/schemas", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sqlite")
	assert.Equal(t, "INTERNAL", decode[errorResponse](t, rec).Error.Code)
}

func TestInconsistentStateIs500(t *testing.T) {
	err := &orchestrator.InconsistentStateError{Workflow: "update", Failures: []error{errors.New("x")}}
	s := New(&failingService{err: err}, nil)
	rec := do(t, s, http.MethodGet, "/api/schemas/"+testutil.ID(1), nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(orchestrator.CodeInconsistentState), decode[errorResponse](t, rec).Error.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, model.ServiceVersion, health["version"])

	rec = do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "schemata_http_requests_total")
}

func TestEventsRouteOnlyWithHandler(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/api/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	called := false
	s = New(newTestServer(t).svc, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	}))
	rec = do(t, s, http.MethodGet, "/api/events", nil)
	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func preflight(s *Server, path, origin, method string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, path, nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", method)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCORS_Preflight(t *testing.T) {
	s := New(newTestServer(t).svc, nil, WithCORS("http://localhost:3000", ""))
	path := "/api/schemas/" + testutil.ID(1)

	rec := preflight(s, path, "http://localhost:3000", http.MethodPut)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)

	rec = preflight(s, path, "http://elsewhere.example", http.MethodPut)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_DisabledWithoutOrigins(t *testing.T) {
	s := New(newTestServer(t).svc, nil, WithCORS(""))

	req := httptest.NewRequest(http.MethodGet, "/api/schemas", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
