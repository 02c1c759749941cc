// README: Delivery partner handlers: online toggle and live location.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"streeteats/internal/modules/dispatch"
	"streeteats/internal/modules/order"
	"streeteats/internal/types"
)

type DeliveryHandler struct {
	base
	dispatch *dispatch.Service
}

func NewDeliveryHandler(svc *dispatch.Service, verbose bool) *DeliveryHandler {
	return &DeliveryHandler{base: base{verbose: verbose}, dispatch: svc}
}

type availabilityReq struct {
	IsOnline *bool `json:"isOnline"`
}

func (h *DeliveryHandler) Availability(c *gin.Context) {
	actor, ok := requireActor(c, order.RoleDelivery)
	if !ok {
		return
	}
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil || req.IsOnline == nil {
		writeError(c, http.StatusBadRequest, "isOnline is required")
		return
	}
	p, err := h.dispatch.SetAvailability(c.Request.Context(), actor.ID, *req.IsOnline)
	if err != nil {
		h.writeOrderError(c, err)
		return
	}
	msg := "You are now offline"
	if p.IsOnline {
		msg = "You are now online"
	}
	writeJSON(c, http.StatusOK, msg, gin.H{"isOnline": p.IsOnline})
}

type locationReq struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (h *DeliveryHandler) Location(c *gin.Context) {
	actor, ok := requireActor(c, order.RoleDelivery)
	if !ok {
		return
	}
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Latitude == nil || req.Longitude == nil {
		writeError(c, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	pt := types.Point{Lat: *req.Latitude, Lng: *req.Longitude}
	if err := h.dispatch.UpdateLocation(c.Request.Context(), actor.ID, pt); err != nil {
		h.writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "Location updated", gin.H{"location": pt})
}
