// README: Order handlers: place, list, view, status changes, delivery acceptance and rating.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"streeteats/internal/modules/order"
	"streeteats/internal/types"
)

type OrderHandler struct {
	base
	order *order.Service
}

func NewOrderHandler(svc *order.Service, verbose bool) *OrderHandler {
	return &OrderHandler{base: base{verbose: verbose}, order: svc}
}

type itemReq struct {
	MenuItemID     string                `json:"menuItemId"`
	Quantity       int                   `json:"quantity"`
	Customizations []order.Customization `json:"customizations"`
}

type createOrderReq struct {
	VendorID            string         `json:"vendorId"`
	Items               []itemReq      `json:"items"`
	OrderType           string         `json:"orderType"`
	DeliveryAddress     *order.Address `json:"deliveryAddress"`
	PaymentMethod       string         `json:"paymentMethod"`
	SpecialInstructions string         `json:"specialInstructions"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c, order.RoleCustomer)
	if !ok {
		return
	}
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !isValidID(req.VendorID) {
		writeError(c, http.StatusBadRequest, "invalid vendor id")
		return
	}
	items := make([]order.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, order.ItemRequest{
			MenuItemID:     types.ID(it.MenuItemID),
			Quantity:       it.Quantity,
			Customizations: it.Customizations,
		})
	}
	o, err := h.order.Place(c.Request.Context(), order.PlaceCommand{
		CustomerID:          actor.ID,
		VendorID:            types.ID(req.VendorID),
		Items:               items,
		OrderType:           order.OrderType(req.OrderType),
		DeliveryAddress:     req.DeliveryAddress,
		PaymentMethod:       order.PaymentMethod(req.PaymentMethod),
		SpecialInstructions: req.SpecialInstructions,
	})
	if err != nil {
		h.writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, "Order placed successfully", gin.H{"order": o})
}

// List serves the role-scoped lists; role is fixed per route and admins may use any of them.
func (h *OrderHandler) List(role order.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := requireActor(c, role, order.RoleAdmin)
		if !ok {
			return
		}
		page, _ := strconv.Atoi(c.Query("page"))
		limit, _ := strconv.Atoi(c.Query("limit"))
		res, err := h.order.List(c.Request.Context(), actor, order.ListQuery{
			Status: c.Query("status"),
			Page:   page,
			Limit:  limit,
		})
		if err != nil {
			h.writeOrderError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, "", gin.H{
			"orders": res.Orders,
			"pagination": gin.H{
				"current": res.Page,
				"pages":   res.Pages,
				"total":   res.Total,
			},
		})
	}
}

func (h *OrderHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.order.View(c.Request.Context(), id, actor)
	if err != nil {
		h.writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "", gin.H{"order": o})
}

type updateStatusReq struct {
	Status         string `json:"status"`
	ExpectedStatus string `json:"expectedStatus"`
	Reason         string `json:"reason"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		writeError(c, http.StatusBadRequest, "status is required")
		return
	}
	res, err := h.order.Transition(c.Request.Context(), order.TransitionCommand{
		OrderID:      id,
		To:           order.Status(req.Status),
		Actor:        actor,
		ExpectedFrom: order.Status(req.ExpectedStatus),
		Reason:       req.Reason,
	})
	if err != nil {
		h.writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "Order status updated successfully", gin.H{
		"order":   res.Order,
		"from":    res.From,
		"effects": res.Effects,
	})
}

func (h *OrderHandler) AcceptDelivery(c *gin.Context) {
	actor, ok := requireActor(c, order.RoleDelivery)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.order.AcceptDelivery(c.Request.Context(), id, actor.ID)
	if err != nil {
		h.writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "Delivery accepted successfully", gin.H{"order": res.Order, "effects": res.Effects})
}

type rateReq struct {
	Food     int    `json:"food"`
	Delivery int    `json:"delivery"`
	Overall  int    `json:"overall"`
	Review   string `json:"review"`
}

func (h *OrderHandler) Rate(c *gin.Context) {
	actor, ok := requireActor(c, order.RoleCustomer)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req rateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	o, err := h.order.Rate(c.Request.Context(), order.RateCommand{
		OrderID:    id,
		CustomerID: actor.ID,
		Food:       req.Food,
		Delivery:   req.Delivery,
		Overall:    req.Overall,
		Review:     req.Review,
	})
	if err != nil {
		h.writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, "Order rated successfully", gin.H{"order": o})
}
