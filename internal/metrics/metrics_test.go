package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGinMiddlewareObservesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/v1/sessions/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	before := testutil.CollectAndCount(APIRequestDuration)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/sessions/abc", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, before+1, testutil.CollectAndCount(APIRequestDuration))
}

func TestCaptureOutcomesCounter(t *testing.T) {
	before := testutil.ToFloat64(CaptureOutcomes.WithLabelValues("created"))
	CaptureOutcomes.WithLabelValues("created").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(CaptureOutcomes.WithLabelValues("created")))
}
