package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fleet_gateway/internal/auth"
	"fleet_gateway/internal/gateway"
	"fleet_gateway/internal/metrics"
	"fleet_gateway/internal/normalizer"
)

const (
	headerProxyToken = "X-Proxy-Token"
	headerUserID     = "X-User-Id"

	maxRequestBytes = 1 << 20
)

// NewRouter builds the HTTP surface over the dispatcher. The returned engine is a plain
// http.Handler and can be mounted behind any server or edge worker.
func NewRouter(d *gateway.Dispatcher, corsOrigins string, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(recovery(d, logger))
	r.Use(cors.New(corsConfig(corsOrigins)))
	r.Use(instrument())

	h := &handler{dispatcher: d, logger: logger}

	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/verify", h.dispatch(""))
	r.GET("/verify", h.dispatch(""))
	r.POST("/verify/:service", h.dispatchService)
	r.GET("/verify/:service", h.dispatchService)

	vehicles := r.Group("/vehicles")
	{
		vehicles.POST("", h.dispatchVehicle)
		vehicles.POST("/:action", h.dispatchVehicle)
	}

	return r
}

// corsConfig: "*" или пустая строка разрешают любой origin без credentials, иначе список через запятую
func corsConfig(origins string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Authorization", "Content-Type", headerProxyToken, headerUserID},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}

	var allowed []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 || (len(allowed) == 1 && allowed[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = allowed
	cfg.AllowCredentials = true
	return cfg
}

func recovery(d *gateway.Dispatcher, logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic in http handler",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.Stack("stack"))

		resp := d.Reject(errors.New(fmt.Sprint(recovered)))
		c.AbortWithStatusJSON(resp.Status, resp.Envelope)
	})
}

// instrument записывает длительность и статус по шаблону маршрута
func instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

type handler struct {
	dispatcher *gateway.Dispatcher
	logger     *zap.Logger
}

func (h *handler) health(c *gin.Context) {
	h.serve(c, gateway.Request{Service: "health"})
}

func (h *handler) dispatchService(c *gin.Context) {
	h.dispatch(c.Param("service"))(c)
}

func (h *handler) dispatchVehicle(c *gin.Context) {
	req, ok := h.request(c, "vehicle")
	if !ok {
		return
	}
	req.Action = c.Param("action")
	h.serve(c, req)
}

func (h *handler) dispatch(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := h.request(c, service)
		if !ok {
			return
		}
		h.serve(c, req)
	}
}

func (h *handler) request(c *gin.Context, service string) (gateway.Request, bool) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBytes))
	if err != nil {
		h.logger.Warn("failed to read request body", zap.Error(err))
		resp := h.dispatcher.Reject(normalizer.NewValidationError(normalizer.CodeInvalidBody, "failed to read request body"))
		c.JSON(resp.Status, resp.Envelope)
		return gateway.Request{}, false
	}

	return gateway.Request{
		Service:     service,
		Body:        body,
		Query:       c.Request.URL.Query(),
		Credentials: credentials(c.Request.Header),
	}, true
}

func (h *handler) serve(c *gin.Context, req gateway.Request) {
	resp := h.dispatcher.Dispatch(c.Request.Context(), req)
	c.JSON(resp.Status, resp.Envelope)
}

func credentials(header http.Header) auth.Credentials {
	return auth.Credentials{
		Authorization: header.Get("Authorization"),
		ProxyToken:    header.Get(headerProxyToken),
		UserID:        header.Get(headerUserID),
	}
}
