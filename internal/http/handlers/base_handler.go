// README: Base handler utilities (JSON envelopes, caller identity, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"streeteats/internal/http/middleware"
	"streeteats/internal/modules/dispatch"
	"streeteats/internal/modules/order"
	"streeteats/internal/modules/payment"
	"streeteats/internal/types"
)

// base carries what every handler needs to answer errors.
type base struct {
	// verbose exposes internal error text in 500 responses.
	verbose bool
}

// isValidID accepts generated hex IDs and the slug-like IDs of seeded documents.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, message string, fields gin.H) {
	body := gin.H{"success": true, "message": message}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(status, body)
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": msg})
}

func (b base) writeOrderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, order.ErrValidation), errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, payment.ErrInvalidSignature), errors.Is(err, order.ErrVendorUnavailable):
		status = http.StatusBadRequest
	case errors.Is(err, order.ErrAccessDenied):
		status = http.StatusForbidden
	case errors.Is(err, order.ErrNotFound), errors.Is(err, dispatch.ErrPartnerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, order.ErrStaleState), errors.Is(err, order.ErrAlreadyTerminal),
		errors.Is(err, order.ErrAlreadyRated), errors.Is(err, order.ErrAlreadyAssigned):
		status = http.StatusConflict
	case errors.Is(err, order.ErrUpstream):
		status = http.StatusBadGateway
	case errors.Is(err, payment.ErrDisabled):
		status = http.StatusServiceUnavailable
	}
	_ = c.Error(err)

	if status == http.StatusInternalServerError {
		body := gin.H{"success": false, "message": "internal error"}
		if b.verbose {
			body["error"] = err.Error()
		}
		c.AbortWithStatusJSON(status, body)
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": err.Error(), "error": errorCode(err)})
}

// errorCode names the sentinel behind err for clients that branch on it.
func errorCode(err error) string {
	for _, e := range []struct {
		target error
		code   string
	}{
		{order.ErrValidation, "validation_failed"},
		{order.ErrVendorUnavailable, "vendor_unavailable"},
		{order.ErrInvalidTransition, "invalid_transition"},
		{payment.ErrInvalidSignature, "invalid_signature"},
		{order.ErrAccessDenied, "access_denied"},
		{order.ErrNotFound, "not_found"},
		{dispatch.ErrPartnerNotFound, "not_found"},
		{order.ErrStaleState, "stale_state"},
		{order.ErrAlreadyTerminal, "already_terminal"},
		{order.ErrAlreadyRated, "already_rated"},
		{order.ErrAlreadyAssigned, "already_assigned"},
		{order.ErrUpstream, "upstream_failure"},
		{payment.ErrDisabled, "payments_disabled"},
	} {
		if errors.Is(err, e.target) {
			return e.code
		}
	}
	return "internal"
}

// callerActor builds the order actor from the auth middleware's context values.
func callerActor(c *gin.Context) (order.Actor, bool) {
	role, ok := order.ParseRole(middleware.CallerRole(c))
	if !ok {
		return order.Actor{}, false
	}
	id := types.ID(middleware.CallerEntity(c))
	if id == "" {
		return order.Actor{}, false
	}
	return order.Actor{Role: role, ID: id}, true
}

// requireActor writes 403 and returns false when the caller is missing or not one of roles.
func requireActor(c *gin.Context, roles ...order.Role) (order.Actor, bool) {
	actor, ok := callerActor(c)
	if !ok {
		writeError(c, http.StatusForbidden, "unknown caller role")
		return order.Actor{}, false
	}
	if len(roles) == 0 {
		return actor, true
	}
	for _, r := range roles {
		if actor.Role == r {
			return actor, true
		}
	}
	writeError(c, http.StatusForbidden, "access denied")
	return order.Actor{}, false
}

func pathID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return "", false
	}
	return types.ID(id), true
}
