package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"lectureattend/internal/auth"
	"lectureattend/internal/httpmiddleware"
	"lectureattend/internal/logger"
	"lectureattend/internal/metrics"
)

// Checker reports the health of a backing service.
type Checker interface {
	Healthy(ctx context.Context) bool
}

// RouterConfig carries what the router needs beyond the handler itself.
type RouterConfig struct {
	SigningKey            string
	Issuer                string
	RateLimitPerMin       int
	DeviceRateLimitPerMin int
	Checks                map[string]Checker
	Logger                *zap.Logger
}

// NewRouter mounts every route on a fresh gin engine.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(log, "/healthz", "/metrics"))
	r.Use(metrics.GinMiddleware())
	r.Use(httpmiddleware.CORS())
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", health(cfg.Checks))

	// The device key header is unauthenticated at this point, so captures
	// always draw from the per-address bucket before the per-key one.
	captureIPLimit := httpmiddleware.NewSimpleTokenBucket(cfg.DeviceRateLimitPerMin, cfg.DeviceRateLimitPerMin)
	deviceLimit := httpmiddleware.NewSimpleTokenBucket(cfg.DeviceRateLimitPerMin, cfg.DeviceRateLimitPerMin)
	userLimit := httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)

	v1 := r.Group("/v1")
	v1.POST("/captures",
		captureIPLimit.GinMiddleware(httpmiddleware.ByClientIP),
		deviceLimit.GinMiddleware(httpmiddleware.ByHeaderOrIP(auth.DeviceKeyHeader)),
		h.Capture,
	)

	users := v1.Group("", userLimit.GinMiddleware(httpmiddleware.ByClientIP), auth.UserAuth(cfg.SigningKey, cfg.Issuer))
	users.POST("/subjects/:id/template", h.EnrollTemplate)
	users.POST("/courses/:id/sessions", h.StartSession)
	users.POST("/sessions/:id/end", h.EndSession)
	users.PATCH("/records/:id", h.AmendRecord)
	users.POST("/admin/devices", h.ProvisionDevice)
	users.POST("/admin/devices/:id/deactivate", h.DeactivateDevice)

	return r
}

func health(checks map[string]Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		for name, check := range checks {
			ok := check != nil && check.Healthy(c.Request.Context())
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}
