// Package api contains the HTTP handlers and routing for the checkout gateways.
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fitstack/checkout-gateways/internal/adapters/gateway"
	"github.com/fitstack/checkout-gateways/internal/adapters/registry"
	"github.com/fitstack/checkout-gateways/internal/core/domain"
	"github.com/fitstack/checkout-gateways/internal/core/ports"
	"github.com/fitstack/checkout-gateways/internal/core/service"
	"github.com/fitstack/checkout-gateways/internal/settings"
)

// Handler contains the HTTP handlers for the checkout API.
type Handler struct {
	checkout   *service.CheckoutService
	dispatcher *service.NotificationDispatcher
	gateways   *registry.Registry
	options    ports.OptionsStore
	logger     *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	checkout *service.CheckoutService,
	dispatcher *service.NotificationDispatcher,
	gateways *registry.Registry,
	options ports.OptionsStore,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		checkout:   checkout,
		dispatcher: dispatcher,
		gateways:   gateways,
		options:    options,
		logger:     logger,
	}
}

// CheckoutRequest represents the JSON body for the checkout endpoint.
type CheckoutRequest struct {
	OrderID string `json:"order_id" binding:"required"`
}

// CheckoutResponse wraps the purchase result.
type CheckoutResponse struct {
	Success bool `json:"success"`
	*domain.PurchaseResult
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// Checkout handles POST /api/v1/checkout/:gateway
// Starts a checkout and returns where to send the payer.
func (h *Handler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	res, err := h.checkout.Purchase(c.Request.Context(), c.Param("gateway"), req.OrderID)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	if !res.Redirect && !res.Successful {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Success: false,
			Error:   res.Message,
			Code:    res.Code,
		})
		return
	}
	c.JSON(http.StatusOK, CheckoutResponse{Success: true, PurchaseResult: res})
}

// Return handles GET|POST /return/:gateway
// The payer's browser lands here after paying.
func (h *Handler) Return(c *gin.Context) {
	params, err := requestParams(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Success: false, Error: err.Error(), Code: "VALIDATION_ERROR"})
		return
	}

	out, err := h.checkout.CompletePurchase(c.Request.Context(), c.Param("gateway"), params)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": out.Successful || out.Pending,
		"result":  out,
	})
}

// Notify handles POST /notify/:gateway
// Called by the payment provider. The body of the reply is the provider's
// acknowledgement string and is parsed literally to decide on retries.
func (h *Handler) Notify(c *gin.Context) {
	gatewayID := c.Param("gateway")

	gw, err := h.gateways.Gateway(gatewayID)
	if err != nil {
		c.String(http.StatusNotFound, "unknown gateway")
		return
	}

	params, err := requestParams(c)
	if err != nil {
		h.logger.Warn("notification body unreadable", zap.String("gateway", gatewayID), zap.Error(err))
		c.String(http.StatusOK, gw.CallbackFailureResponse("invalid body"))
		return
	}

	ack, err := h.dispatcher.Handle(c.Request.Context(), gatewayID, params)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownGateway) {
			c.String(http.StatusNotFound, "unknown gateway")
			return
		}
		h.logger.Error("notification failed", zap.String("gateway", gatewayID), zap.Error(err))
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	c.String(http.StatusOK, ack)
}

// PaymentInfo handles GET /api/v1/orders/:id/payment-info
func (h *Handler) PaymentInfo(c *gin.Context) {
	info, err := h.checkout.PaymentInfo(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"order_id":     c.Param("id"),
		"payment_info": info,
	})
}

// RemittanceRequest represents the JSON body for the remittance endpoint.
type RemittanceRequest struct {
	Last5 string `json:"last5" binding:"required"`
}

// SaveRemittance handles POST /api/v1/orders/:id/remittance
func (h *Handler) SaveRemittance(c *gin.Context) {
	var req RemittanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	if err := h.checkout.SaveRemittanceLast5(c.Request.Context(), c.Param("id"), req.Last5); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CreateOrderRequest represents the JSON body for order creation.
type CreateOrderRequest struct {
	ID       string `json:"id" binding:"required"`
	Total    int64  `json:"total" binding:"required,gt=0"`
	Currency string `json:"currency"`
}

// CreateOrder handles POST /api/v1/orders
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	order := &domain.Order{ID: req.ID, Total: req.Total, Currency: req.Currency}
	if err := h.checkout.CreateOrder(c.Request.Context(), order); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "order": order})
}

// GatewayInfo describes one served gateway.
type GatewayInfo struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Title    string `json:"title,omitempty"`
}

// ListGateways handles GET /api/v1/gateways
func (h *Handler) ListGateways(c *gin.Context) {
	ids := h.gateways.IDs()
	out := make([]GatewayInfo, 0, len(ids))
	for _, id := range ids {
		gw, err := h.gateways.Gateway(id)
		if err != nil {
			continue
		}
		out = append(out, GatewayInfo{
			ID:       gw.ID(),
			Provider: gw.Provider(),
			Title:    gw.Settings().String(gateway.SettingTitle, ""),
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "gateways": out})
}

// UpdateGatewaySettings handles PUT /api/v1/gateways/:gateway/settings
// Stores the instance tier and reconfigures the gateway.
func (h *Handler) UpdateGatewaySettings(c *gin.Context) {
	id := c.Param("gateway")
	if _, err := h.gateways.Gateway(id); err != nil {
		handleServiceError(c, err)
		return
	}

	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Error:   "Invalid request body: " + err.Error(),
			Code:    "VALIDATION_ERROR",
		})
		return
	}

	ctx := c.Request.Context()
	if err := h.options.Set(ctx, settings.GatewayKey(id), body); err != nil {
		handleServiceError(c, fmt.Errorf("%w: %v", domain.ErrStoreFailure, err))
		return
	}
	if err := h.gateways.ReloadGateway(ctx, id); err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "gateway": id})
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "checkout-gateways",
	})
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrOrderNotFound, http.StatusNotFound, "ORDER_NOT_FOUND"},
	{domain.ErrUnknownGateway, http.StatusNotFound, "UNKNOWN_GATEWAY"},
	{domain.ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
	{domain.ErrInvalidSignature, http.StatusBadRequest, "INVALID_SIGNATURE"},
	{domain.ErrNetwork, http.StatusBadGateway, "NETWORK_ERROR"},
	{domain.ErrPaymentGatewayError, http.StatusBadGateway, "GATEWAY_ERROR"},
	{domain.ErrConfiguration, http.StatusServiceUnavailable, "GATEWAY_NOT_CONFIGURED"},
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			statusCode, code = e.status, e.code
			break
		}
	}

	var serviceErr *domain.ServiceError
	if errors.As(err, &serviceErr) {
		if serviceErr.Code != "" {
			code = serviceErr.Code
		}
		c.JSON(statusCode, ErrorResponse{
			Success: false,
			Error:   serviceErr.Message,
			Code:    code,
		})
		return
	}

	message := err.Error()
	if statusCode == http.StatusInternalServerError {
		message = "Internal server error"
	}
	c.JSON(statusCode, ErrorResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}
