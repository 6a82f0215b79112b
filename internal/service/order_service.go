package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"order-payments/internal/models"
	"order-payments/internal/store"
	"order-payments/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

var (
	customerNamePattern = regexp.MustCompile(`^[\p{L}\s\-.]+$`)
	minOrderAmount      = decimal.RequireFromString("0.01")
	maxOrderAmount      = decimal.RequireFromString("999999.99")
)

// OrderStore is the persistence the order service depends on
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context, limit, offset int) ([]models.Order, int, error)
	GetOrderSummary(ctx context.Context) (*models.OrderSummary, error)
}

// OrderService handles order creation and lookups
type OrderService struct {
	store  OrderStore
	logger *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(store OrderStore) *OrderService {
	return &OrderService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	CustomerName string `json:"customer_name" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
}

// OrderPage is one page of orders
type OrderPage struct {
	Orders   []models.Order `json:"data"`
	Total    int            `json:"total"`
	Page     int            `json:"current_page"`
	PerPage  int            `json:"per_page"`
	LastPage int            `json:"last_page"`
}

// CreateOrder validates the request and stores a new pending order
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	name, err := NormalizeCustomerName(req.CustomerName)
	if err != nil {
		return nil, err
	}
	amount, err := ParseOrderAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		CustomerName: name,
		Amount:       amount,
		Status:       models.OrderStatusPending,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("customer_name", order.CustomerName),
		zap.String("amount", order.Amount.StringFixed(2)))

	return order, nil
}

// GetOrder retrieves an order by ID
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// ListOrders returns a page of orders, newest first
func (s *OrderService) ListOrders(ctx context.Context, page, perPage int) (*OrderPage, error) {
	page, perPage = normalizePage(page, perPage)

	orders, total, err := s.store.ListOrders(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	return &OrderPage{
		Orders:   orders,
		Total:    total,
		Page:     page,
		PerPage:  perPage,
		LastPage: lastPage(total, perPage),
	}, nil
}

// GetOrderSummary returns order counts per status and paid revenue
func (s *OrderService) GetOrderSummary(ctx context.Context) (*models.OrderSummary, error) {
	summary, err := s.store.GetOrderSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get order summary: %w", err)
	}
	return summary, nil
}

// NormalizeCustomerName trims and collapses whitespace, then checks length and characters
func NormalizeCustomerName(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	n := utf8.RuneCountInString(name)
	switch {
	case n < 2:
		return "", fmt.Errorf("customer_name must have at least 2 characters: %w", ErrInvalidOrderInput)
	case n > 100:
		return "", fmt.Errorf("customer_name must not exceed 100 characters: %w", ErrInvalidOrderInput)
	case !customerNamePattern.MatchString(name):
		return "", fmt.Errorf("customer_name may only contain letters, spaces, hyphens and dots: %w", ErrInvalidOrderInput)
	}
	return name, nil
}

// ParseOrderAmount accepts a decimal with at most two places. A comma is
// read as the decimal separator.
func ParseOrderAmount(raw string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a number: %w", raw, ErrInvalidOrderInput)
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return decimal.Zero, fmt.Errorf("amount must have at most two decimal places: %w", ErrInvalidOrderInput)
	}
	if amount.LessThan(minOrderAmount) || amount.GreaterThan(maxOrderAmount) {
		return decimal.Zero, fmt.Errorf("amount must be between %s and %s: %w",
			minOrderAmount.StringFixed(2), maxOrderAmount.StringFixed(2), ErrInvalidOrderInput)
	}
	return amount.Round(2), nil
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func lastPage(total, perPage int) int {
	if total == 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}
