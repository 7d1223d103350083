package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fund-manager/internal/config"
	"fund-manager/internal/messaging"
	"fund-manager/internal/models"
)

// Publisher sends requests to the fund service
type Publisher interface {
	Publish(ctx context.Context, payload interface{}, action messaging.TriggerAction) error
}

// SummarySource exposes the locally tracked portfolio
type SummarySource interface {
	Current() models.FundSummaryData
	Funds() []models.Fund
}

// SummaryFeed streams summary updates until ctx ends
type SummaryFeed interface {
	Subscribe(ctx context.Context) (<-chan models.FundSummaryData, error)
}

// Handler serves the fund client's HTTP and WebSocket API
type Handler struct {
	publisher Publisher
	source    SummarySource
	stream    *SummaryStream
	timeout   time.Duration
	logger    *logrus.Entry
}

func NewHandler(cfg config.GatewayConfig, publisher Publisher, source SummarySource, feed SummaryFeed, logger *logrus.Entry) *Handler {
	log := logger.WithField("component", "gateway")
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Handler{
		publisher: publisher,
		source:    source,
		stream:    NewSummaryStream(feed, source, cfg.PingInterval, cfg.AllowedOrigins, log),
		timeout:   timeout,
		logger:    log,
	}
}

// NewRouter builds the gin engine with the gateway middleware and routes
func NewRouter(cfg config.GatewayConfig, h *Handler, logger *logrus.Entry) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(Logger(logger))
	router.Use(CORS(cfg.AllowedOrigins))

	h.RegisterRoutes(router)
	return router
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.Health)

	api := r.Group("/api")
	{
		api.POST("/funds", h.AddFund)
		api.GET("/funds", h.ListFunds)
		api.POST("/funds/download", h.DownloadFunds)
		api.GET("/summary", h.GetSummary)
	}

	r.GET("/ws/summary", h.stream.Serve)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "fund-client",
	})
}

// AddFund publishes an AddFund request for the posted stock
func (h *Handler) AddFund(c *gin.Context) {
	var stock models.Stock
	if err := c.ShouldBindJSON(&stock); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := stock.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.publish(c, stock, messaging.AddFund)
}

// DownloadFunds publishes a DownloadFund request. An empty body asks for the
// default dataset size.
func (h *Handler) DownloadFunds(c *gin.Context) {
	var req models.DownloadFundsRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.publish(c, req, messaging.DownloadFund)
}

func (h *Handler) publish(c *gin.Context, payload interface{}, action messaging.TriggerAction) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.publisher.Publish(ctx, payload, action); err != nil {
		h.logger.WithField("action", action).Errorf("Failed to publish request: %v", err)
		c.JSON(publishStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "accepted",
		"action": action,
	})
}

func publishStatus(err error) int {
	var unsupported *messaging.UnsupportedActionError
	switch {
	case errors.As(err, &unsupported):
		return http.StatusBadRequest
	case errors.Is(err, messaging.ErrNotStarted):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) GetSummary(c *gin.Context) {
	c.JSON(http.StatusOK, h.source.Current())
}

func (h *Handler) ListFunds(c *gin.Context) {
	funds := h.source.Funds()
	c.JSON(http.StatusOK, gin.H{
		"funds": funds,
		"count": len(funds),
	})
}
