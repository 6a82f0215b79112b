package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"order-payments/internal/models"
	"order-payments/internal/service"
	"order-payments/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	serviceName     = "order-payments"
	serviceVersion  = "1.0.0"
	paymentsPerPage = 10
)

// OrderService is the order catalogue used by the handlers
type OrderService interface {
	CreateOrder(ctx context.Context, req *service.CreateOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, page, perPage int) (*service.OrderPage, error)
	GetOrderSummary(ctx context.Context) (*models.OrderSummary, error)
}

// PaymentService runs payment attempts synchronously
type PaymentService interface {
	ProcessPayment(ctx context.Context, orderID int64) (*service.PaymentResult, error)
	ResetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	GetProcessingStats(ctx context.Context, orderID int64) (*models.ProcessingStats, error)
	ListPayments(ctx context.Context, orderID int64, page, perPage int) (*service.PaymentHistory, error)
	GatewayHealth(ctx context.Context) error
}

// PaymentRequester queues payment attempts for the async worker
type PaymentRequester interface {
	RequestPayment(ctx context.Context, orderID int64, idempotencyKey string) (*service.PaymentRequest, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	orders    OrderService
	payments  PaymentService
	requester PaymentRequester
	deps      map[string]Pinger
	env       string
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler. requester may be nil when async
// payments are disabled.
func NewHandler(orders OrderService, payments PaymentService, requester PaymentRequester, env string) *Handler {
	return &Handler{
		orders:    orders,
		payments:  payments,
		requester: requester,
		deps:      map[string]Pinger{},
		env:       env,
		logger:    util.GetLogger(),
	}
}

// WithDependency registers a dependency checked by /ready
func (h *Handler) WithDependency(name string, p Pinger) *Handler {
	h.deps[name] = p
	return h
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/stats", h.orderStats)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/pay", h.payOrder)
		v1.POST("/orders/:id/pay/async", h.payOrderAsync)
		v1.GET("/orders/:id/payments", h.listPayments)
		v1.POST("/orders/:id/reset", h.resetOrder)
		v1.GET("/gateway/health", h.gatewayHealth)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"message": "Endpoint not found",
			"available_endpoints": []string{
				"GET /api/v1/orders",
				"POST /api/v1/orders",
				"GET /api/v1/orders/stats",
				"GET /api/v1/orders/{id}",
				"POST /api/v1/orders/{id}/pay",
				"POST /api/v1/orders/{id}/pay/async",
				"GET /api/v1/orders/{id}/payments",
				"POST /api/v1/orders/{id}/reset",
				"GET /api/v1/gateway/health",
			},
		})
	})
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "OK",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"service":     serviceName,
		"version":     serviceVersion,
		"environment": h.env,
	})
}

// readinessCheck pings every registered dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	code, status := http.StatusOK, "ready"
	if !ready {
		code, status = http.StatusServiceUnavailable, "not ready"
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		writeError(c, "Failed to create order", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Order created successfully",
		"data":    orderResource(order),
	})
}

// listOrders returns one page of orders, newest first
func (h *Handler) listOrders(c *gin.Context) {
	page := queryInt(c, "page", 1)
	perPage := queryInt(c, "per_page", 0)

	result, err := h.orders.ListOrders(c.Request.Context(), page, perPage)
	if err != nil {
		writeError(c, "Failed to list orders", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": orderResources(result.Orders),
		"meta": gin.H{
			"total":        result.Total,
			"per_page":     result.PerPage,
			"current_page": result.Page,
			"last_page":    result.LastPage,
		},
	})
}

func (h *Handler) orderStats(c *gin.Context) {
	summary, err := h.orders.GetOrderSummary(c.Request.Context())
	if err != nil {
		writeError(c, "Failed to load order statistics", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"total_orders":        summary.Total,
			"pending_orders":      summary.Pending,
			"paid_orders":         summary.Paid,
			"failed_orders":       summary.Failed,
			"total_revenue":       jsonMoney(summary.TotalRevenue.StringFixed(2)),
			"average_order_value": jsonMoney(summary.AverageOrderValue.StringFixed(2)),
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, "Failed to load order", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": orderResource(order)})
}

// payOrder runs one payment attempt and waits for its outcome. A declined
// charge is still a recorded attempt and answers 201.
func (h *Handler) payOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	result, err := h.payments.ProcessPayment(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, "Payment could not be started", err)
		return
	}

	message := "Payment could not be processed"
	if result.Payment.IsSuccessful() {
		message = "Payment processed successfully"
	}

	body := gin.H{
		"message": message,
		"payment": paymentResource(result.Payment),
		"order": gin.H{
			"id":            result.Order.ID,
			"status":        result.Order.Status,
			"customer_name": result.Order.CustomerName,
			"amount":        money(result.Order),
		},
	}
	if stats, err := h.payments.GetProcessingStats(c.Request.Context(), orderID); err == nil {
		body["attempts"] = stats.TotalAttempts
	} else {
		h.logger.Warn("Failed to load attempt count", zap.Int64("order_id", orderID), zap.Error(err))
	}

	c.JSON(http.StatusCreated, body)
}

// payOrderAsync queues a payment attempt for the worker
func (h *Handler) payOrderAsync(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	if h.requester == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Asynchronous payments are disabled",
		})
		return
	}

	receipt, err := h.requester.RequestPayment(c.Request.Context(), orderID, c.GetHeader("Idempotency-Key"))
	if err != nil {
		writeError(c, "Payment could not be queued", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":   "Payment request accepted",
		"event_id":  receipt.EventID,
		"order_id":  receipt.OrderID,
		"duplicate": receipt.Duplicate,
		"links": gin.H{
			"order":    "/api/v1/orders/" + strconv.FormatInt(orderID, 10),
			"payments": "/api/v1/orders/" + strconv.FormatInt(orderID, 10) + "/payments",
		},
	})
}

// listPayments returns the attempt history of an order
func (h *Handler) listPayments(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	history, err := h.payments.ListPayments(c.Request.Context(), orderID,
		queryInt(c, "page", 1), queryInt(c, "per_page", paymentsPerPage))
	if err != nil {
		writeError(c, "Failed to load payments", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": paymentResources(history.Payments),
		"meta": gin.H{
			"order_id":     history.Order.ID,
			"order_status": history.Order.Status,
			"stats":        history.Stats,
			"pagination": gin.H{
				"total":        history.Total,
				"per_page":     history.PerPage,
				"current_page": history.Page,
				"last_page":    history.LastPage,
			},
		},
	})
}

// resetOrder moves a failed order back to pending
func (h *Handler) resetOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	order, err := h.payments.ResetOrder(c.Request.Context(), orderID)
	if err != nil {
		writeError(c, "Order could not be reset", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order reset to pending",
		"data":    orderResource(order),
	})
}

func (h *Handler) gatewayHealth(c *gin.Context) {
	err := h.payments.GatewayHealth(c.Request.Context())
	if err != nil {
		h.logger.Warn("Payment gateway health check failed", zap.Error(err))
		code := http.StatusInternalServerError
		if errors.Is(err, service.ErrGatewayUnavailable) {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"gateway":   "unavailable",
			"error":     err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"gateway":   "available",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func orderIDParam(c *gin.Context) (int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || orderID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid order ID",
		})
		return 0, false
	}
	return orderID, true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}
