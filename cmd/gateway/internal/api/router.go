package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gobwas/ws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-ratio/cmd/gateway/internal/gateway"
	"github.com/shubham-shewale/stock-ratio/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/stock-ratio/internal/chart"
)

var requestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ratio_gateway_request_duration_seconds",
		Help:    "API request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	},
	[]string{"endpoint"},
)

// Bounds is the alert band served to chart clients for the reference lines
type Bounds struct {
	InstrumentA string  `json:"instrument_a"`
	InstrumentB string  `json:"instrument_b"`
	UpperBound  float64 `json:"upper_bound"`
	LowerBound  float64 `json:"lower_bound"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Rows    int    `json:"rows"`
}

type Handler struct {
	hub    *hub.Hub
	table  *chart.Table
	bounds Bounds
	logger *zap.Logger
}

func NewHandler(h *hub.Hub, table *chart.Table, bounds Bounds, logger *zap.Logger) *Handler {
	return &Handler{hub: h, table: table, bounds: bounds, logger: logger}
}

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.observe)

	r.GET("/ws", h.ServeWS)
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/rows", h.GetRows)
		v1.GET("/bounds", h.GetBounds)
	}
	return r
}

func (h *Handler) observe(c *gin.Context) {
	start := time.Now()
	c.Next()
	requestDuration.WithLabelValues(c.FullPath()).Observe(time.Since(start).Seconds())
}

func (h *Handler) ServeWS(c *gin.Context) {
	conn, _, _, err := ws.UpgradeHTTP(c.Request, c.Writer)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	gateway.NewClient(conn, h.hub, h.logger).Start()
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "ratio-gateway",
		Rows:    h.table.Len(),
	})
}

// GetRows returns aggregated rows, optionally only those at or after ?since=RFC3339
func (h *Handler) GetRows(c *gin.Context) {
	var since time.Time
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = t
	}
	c.JSON(http.StatusOK, h.table.Points(since))
}

func (h *Handler) GetBounds(c *gin.Context) {
	c.JSON(http.StatusOK, h.bounds)
}
