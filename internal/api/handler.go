package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"till-service/internal/models"
	"till-service/internal/service"
	"till-service/internal/txclient"
	"till-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/text/currency"
)

// SalesJournal answers summary queries over recorded sales
type SalesJournal interface {
	Summary(ctx context.Context, tillID string, from, to time.Time) (*models.SalesSummary, error)
}

// Options configures optional handler collaborators
type Options struct {
	TillID   string
	Currency currency.Unit
	Journal  SalesJournal
	// Checks are run by the readiness endpoint, keyed by dependency name
	Checks map[string]func(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	till     *service.TillService
	tillID   string
	currency currency.Unit
	journal  SalesJournal
	checks   map[string]func(ctx context.Context) error
	now      func() time.Time
}

// NewHandler creates a new HTTP handler
func NewHandler(till *service.TillService, opts Options) *Handler {
	return &Handler{
		till:     till,
		tillID:   opts.TillID,
		currency: opts.Currency,
		journal:  opts.Journal,
		checks:   opts.Checks,
		now:      time.Now,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1/till")
	{
		v1.GET("", h.getTill)
		v1.POST("/catalog/refresh", h.refreshCatalog)
		v1.POST("/cart/:productId", h.addItem)
		v1.PUT("/cash", h.setCash)
		v1.POST("/checkout", h.checkout)
		v1.POST("/reset", h.reset)
		v1.POST("/acknowledge", h.acknowledge)
		v1.GET("/journal/summary", h.journalSummary)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports not ready while any configured dependency fails
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failures := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"failures": failures,
			"time":     time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) getTill(c *gin.Context) {
	c.JSON(http.StatusOK, h.render(h.till.View()))
}

func (h *Handler) refreshCatalog(c *gin.Context) {
	if err := h.till.RefreshCatalog(c.Request.Context()); err != nil {
		h.fail(c, err, h.till.View())
		return
	}
	c.JSON(http.StatusOK, h.render(h.till.View()))
}

func (h *Handler) addItem(c *gin.Context) {
	productID, err := strconv.ParseInt(c.Param("productId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid product ID",
		})
		return
	}

	view, err := h.till.AddItem(c.Request.Context(), productID)
	if err != nil {
		h.fail(c, err, view)
		return
	}
	c.JSON(http.StatusOK, h.render(view))
}

type setCashRequest struct {
	CashPaid json.RawMessage `json:"cashPaid"`
}

// setCash accepts cashPaid as a JSON string or number; an empty string or
// null clears the entry.
func (h *Handler) setCash(c *gin.Context) {
	var req setCashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	view, err := h.till.SetCashPaid(rawCash(req.CashPaid))
	if err != nil {
		h.fail(c, err, view)
		return
	}
	c.JSON(http.StatusOK, h.render(view))
}

func (h *Handler) checkout(c *gin.Context) {
	view, err := h.till.Checkout(c.Request.Context())
	if err != nil {
		h.fail(c, err, view)
		return
	}
	c.JSON(http.StatusOK, h.render(view))
}

func (h *Handler) reset(c *gin.Context) {
	view, err := h.till.Reset(c.Request.Context())
	if err != nil {
		h.fail(c, err, view)
		return
	}
	c.JSON(http.StatusOK, h.render(view))
}

func (h *Handler) acknowledge(c *gin.Context) {
	c.JSON(http.StatusOK, h.render(h.till.Acknowledge()))
}

// journalSummary aggregates the journal over [from, to); both default to the
// current UTC day.
func (h *Handler) journalSummary(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Sales journal is not configured",
		})
		return
	}

	day := h.now().UTC().Truncate(24 * time.Hour)
	from, err := parseTime(c.Query("from"), day)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from", "details": err.Error()})
		return
	}
	to, err := parseTime(c.Query("to"), day.Add(24*time.Hour))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to", "details": err.Error()})
		return
	}
	if !to.After(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be after from"})
		return
	}

	summary, err := h.journal.Summary(c.Request.Context(), h.tillID, from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to summarize sales",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tillId":      summary.TillID,
		"from":        summary.From,
		"to":          summary.To,
		"currency":    h.currency.String(),
		"sales":       summary.Sales,
		"resets":      summary.Resets,
		"revenue":     money(summary.Revenue),
		"changeGiven": money(summary.ChangeGiven),
	})
}

// fail writes the error with the till view so the operator sees the state the
// failure left behind.
func (h *Handler) fail(c *gin.Context, err error, view service.View) {
	c.JSON(statusFor(err), gin.H{
		"error":   txclient.Message(err, err.Error()),
		"details": err.Error(),
		"till":    h.render(view),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, txclient.ErrRequestTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, service.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, txclient.ErrOutOfStock),
		errors.Is(err, service.ErrBusy),
		errors.Is(err, service.ErrCheckoutInFlight),
		errors.Is(err, service.ErrResetInFlight),
		errors.Is(err, service.ErrStaleResult):
		return http.StatusConflict
	case errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrCashRequired),
		errors.Is(err, service.ErrInvalidCash):
		return http.StatusUnprocessableEntity
	case errors.Is(err, txclient.ErrInsufficientPayment):
		return http.StatusPaymentRequired
	case errors.Is(err, txclient.ErrCatalogUnavailable),
		errors.Is(err, txclient.ErrAddFailed),
		errors.Is(err, txclient.ErrCheckoutFailed),
		errors.Is(err, txclient.ErrUnknownSession),
		errors.Is(err, txclient.ErrResetFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func rawCash(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return trimmed
}

func parseTime(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, value)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
