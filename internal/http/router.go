// README: HTTP router registration.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"streeteats/internal/http/handlers"
	"streeteats/internal/http/middleware"
	"streeteats/internal/infra"
	"streeteats/internal/modules/dashboard"
	"streeteats/internal/modules/dispatch"
	"streeteats/internal/modules/notify"
	"streeteats/internal/modules/order"
	"streeteats/internal/modules/payment"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterDeps struct {
	Orders    *order.Service
	Payments  *payment.Service
	Dispatch  *dispatch.Service
	Dashboard *dashboard.Service
	Events    notify.Subscriber
	Verifier  infra.TokenVerifier
	Logger    zerolog.Logger
	Checks    map[string]HealthCheck

	RateLimit float64
	RateBurst int
	// Verbose puts internal error text into 500 responses (development only).
	Verbose bool
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(d.Logger), middleware.Logging(d.Logger))

	r.GET("/api/health", health(d.Checks))

	api := r.Group("/api", middleware.RateLimit(d.RateLimit, d.RateBurst))

	paymentHandler := handlers.NewPaymentHandler(d.Payments, d.Verbose)
	// the gateway signs webhooks; there is no bearer token
	api.POST("/payments/webhook", paymentHandler.Webhook)

	authed := api.Group("", middleware.Auth(d.Verifier))

	orderHandler := handlers.NewOrderHandler(d.Orders, d.Verbose)
	authed.POST("/orders", orderHandler.Create)
	authed.GET("/orders/customer", orderHandler.List(order.RoleCustomer))
	authed.GET("/orders/vendor", orderHandler.List(order.RoleVendor))
	authed.GET("/orders/delivery", orderHandler.List(order.RoleDelivery))
	authed.GET("/orders/:id", orderHandler.Get)
	authed.PUT("/orders/:id/status", orderHandler.UpdateStatus)
	authed.PUT("/orders/:id/accept-delivery", orderHandler.AcceptDelivery)
	authed.PUT("/orders/:id/rate", orderHandler.Rate)

	authed.POST("/payments/create-order", paymentHandler.CreateOrder)
	authed.POST("/payments/verify", paymentHandler.Verify)
	authed.POST("/payments/confirm-upi-payment", paymentHandler.ConfirmUPI)
	authed.POST("/payments/refund", paymentHandler.Refund)

	deliveryHandler := handlers.NewDeliveryHandler(d.Dispatch, d.Verbose)
	authed.PUT("/delivery/availability", deliveryHandler.Availability)
	authed.PUT("/delivery/location", deliveryHandler.Location)

	dashboardHandler := handlers.NewDashboardHandler(d.Dashboard, d.Verbose)
	authed.GET("/vendors/dashboard/stats", dashboardHandler.VendorStats)
	authed.GET("/delivery/dashboard", dashboardHandler.Delivery)
	authed.GET("/delivery/history", dashboardHandler.History)
	authed.GET("/delivery/earnings", dashboardHandler.Earnings)

	eventsHandler := handlers.NewEventsHandler(d.Events, 0, d.Verbose)
	r.GET("/api/events/:room", middleware.TokenFromQuery(), middleware.Auth(d.Verifier), eventsHandler.Stream)

	return r
}

func health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		c.JSON(status, gin.H{
			"success": status == http.StatusOK,
			"message": "Street Eats API",
			"checks":  results,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}
