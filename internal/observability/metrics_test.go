package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("GET", "/health", 200, 12*time.Millisecond)
	RecordWorkflow("create", nil, time.Millisecond)
	RecordWorkflow("create", errors.New("boom"), time.Millisecond)
	RecordCompensation("update", true)
	RecordDelivery("schema-created", OutcomeSuccess)
	SetQueueDepth(3)

	assert.Equal(t, float64(3), testutil.ToFloat64(queueDepth))
}

func TestRecordCompensation_Labels(t *testing.T) {
	before := testutil.ToFloat64(compensations.WithLabelValues("delete-property", OutcomeFailed))
	RecordCompensation("delete-property", true)
	after := testutil.ToFloat64(compensations.WithLabelValues("delete-property", OutcomeFailed))
	assert.Equal(t, before+1, after)
}

func TestRequestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(), RequestMetricsMiddleware())
	r.GET("/api/schemas/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/schemas/:id", "204"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/schemas/abc", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/schemas/:id", "204"))
	assert.Equal(t, before+1, after)
}

func TestSetup_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
