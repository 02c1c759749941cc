// README: Dashboard handlers: vendor summary and delivery partner dashboard, history and earnings.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"streeteats/internal/modules/dashboard"
	"streeteats/internal/modules/order"
)

type DashboardHandler struct {
	base
	dash *dashboard.Service
}

func NewDashboardHandler(svc *dashboard.Service, verbose bool) *DashboardHandler {
	return &DashboardHandler{base: base{verbose: verbose}, dash: svc}
}

func (h *DashboardHandler) VendorStats(c *gin.Context) {
	actor, ok := requireActor(c, order.RoleVendor)
	if !ok {
		return
	}
	d, err := h.dash.Vendor(c.Request.Context(), actor.ID)
	if err != nil {
		h.writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "", gin.H{"dashboard": d})
}

func (h *DashboardHandler) Delivery(c *gin.Context) {
	actor, ok := requireActor(c, order.RoleDelivery)
	if !ok {
		return
	}
	d, err := h.dash.Partner(c.Request.Context(), actor.ID)
	if err != nil {
		h.writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "", gin.H{"dashboard": d})
}

func (h *DashboardHandler) History(c *gin.Context) {
	actor, ok := requireActor(c, order.RoleDelivery)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	res, err := h.dash.History(c.Request.Context(), actor.ID, dashboard.HistoryQuery{
		Status: c.Query("status"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		h.writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "", gin.H{
		"orders": res.Entries,
		"pagination": gin.H{
			"current": res.Page,
			"pages":   res.Pages,
			"total":   res.Total,
		},
	})
}

func (h *DashboardHandler) Earnings(c *gin.Context) {
	actor, ok := requireActor(c, order.RoleDelivery)
	if !ok {
		return
	}
	res, err := h.dash.Earnings(c.Request.Context(), actor.ID, dashboard.Period(c.DefaultQuery("period", string(dashboard.PeriodWeek))))
	if err != nil {
		h.writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "", gin.H{
		"summary": gin.H{
			"totalEarnings":      res.TotalEarnings,
			"totalDeliveries":    res.TotalDeliveries,
			"averagePerDelivery": res.AveragePerDelivery,
			"period":             res.Period,
			"since":              res.Since,
		},
		"chartData": res.Chart,
	})
}
