package api

import (
	"encoding/json"
	"fmt"
	"time"

	"order-payments/internal/models"

	"github.com/gin-gonic/gin"
)

func money(o *models.Order) json.Number {
	return jsonMoney(o.Amount.StringFixed(2))
}

func jsonMoney(s string) json.Number {
	return json.Number(s)
}

func orderResource(o *models.Order) gin.H {
	return gin.H{
		"id":               o.ID,
		"customer_name":    o.CustomerName,
		"amount":           money(o),
		"status":           o.Status,
		"status_label":     o.Status.Label(),
		"payment_attempts": o.PaymentAttempts,
		"created_at":       o.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":       o.UpdatedAt.UTC().Format(time.RFC3339),
		"links": gin.H{
			"self":     fmt.Sprintf("/api/v1/orders/%d", o.ID),
			"payments": fmt.Sprintf("/api/v1/orders/%d/payments", o.ID),
		},
	}
}

func paymentResource(p *models.Payment) gin.H {
	return gin.H{
		"id":                      p.ID,
		"order_id":                p.OrderID,
		"status":                  p.Status,
		"status_label":            p.Status.Label(),
		"external_transaction_id": p.ExternalTransactionID(),
		"external_message":        p.ExternalMessage(),
		"gateway_response":        p.ExternalResponse,
		"created_at":              p.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":              p.UpdatedAt.UTC().Format(time.RFC3339),
		"links": gin.H{
			"order": fmt.Sprintf("/api/v1/orders/%d", p.OrderID),
		},
	}
}

func paymentResources(ps []models.Payment) []gin.H {
	out := make([]gin.H, 0, len(ps))
	for i := range ps {
		out = append(out, paymentResource(&ps[i]))
	}
	return out
}

func orderResources(os []models.Order) []gin.H {
	out := make([]gin.H, 0, len(os))
	for i := range os {
		out = append(out, orderResource(&os[i]))
	}
	return out
}
