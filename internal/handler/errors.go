package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart/internal/domain/auth"
	"github.com/xenking/kart/internal/domain/cart"
	"github.com/xenking/kart/internal/domain/coupon"
	"github.com/xenking/kart/internal/domain/identity"
	"github.com/xenking/kart/internal/domain/order"
	"github.com/xenking/kart/internal/domain/product"
	"github.com/xenking/kart/internal/domain/stock"
)

// apiError is the JSON error body: a stable machine code plus a message.
type apiError struct {
	status int
	code   string
}

// sentinels maps domain errors to responses. The first match wins.
var sentinels = []struct {
	err error
	apiError
}{
	{errBadRequest, apiError{http.StatusBadRequest, "bad_request"}},
	{cart.ErrInvalidQuantity, apiError{http.StatusBadRequest, "invalid_quantity"}},
	{stock.ErrInvalidQuantity, apiError{http.StatusBadRequest, "invalid_quantity"}},
	{cart.ErrInvalidPoints, apiError{http.StatusBadRequest, "invalid_points"}},
	{identity.ErrInvalidPoints, apiError{http.StatusBadRequest, "invalid_points"}},
	{order.ErrInvalidStatus, apiError{http.StatusBadRequest, "invalid_status"}},
	{order.ErrPaymentMethodRequired, apiError{http.StatusBadRequest, "payment_method_required"}},

	{auth.ErrUnauthorized, apiError{http.StatusUnauthorized, "unauthorized"}},
	{identity.ErrInvalidCredentials, apiError{http.StatusUnauthorized, "invalid_credentials"}},
	{order.ErrGuestCheckout, apiError{http.StatusUnauthorized, "login_required"}},
	{auth.ErrForbidden, apiError{http.StatusForbidden, "forbidden"}},

	{product.ErrNotFound, apiError{http.StatusNotFound, "product_not_found"}},
	{order.ErrNotFound, apiError{http.StatusNotFound, "order_not_found"}},
	{cart.ErrLineNotFound, apiError{http.StatusNotFound, "line_not_found"}},
	{identity.ErrUserNotFound, apiError{http.StatusNotFound, "user_not_found"}},

	{stock.ErrInsufficientStock, apiError{http.StatusConflict, "insufficient_stock"}},
	{identity.ErrEmailTaken, apiError{http.StatusConflict, "email_taken"}},

	{coupon.ErrInvalidCoupon, apiError{http.StatusUnprocessableEntity, "invalid_coupon"}},
	{order.ErrEmptyCart, apiError{http.StatusUnprocessableEntity, "empty_cart"}},
	{identity.ErrInsufficientPoints, apiError{http.StatusUnprocessableEntity, "insufficient_points"}},
	{stock.ErrNoSource, apiError{http.StatusServiceUnavailable, "no_stock_source"}},
}

// classify maps err to a response; ok is false for unexpected errors.
func classify(err error) (apiError, bool) {
	var (
		pnf *cart.ProductNotFoundError
		inv *cart.InvalidOptionError
		tr  *order.InvalidTransitionError
	)
	switch {
	case errors.As(err, &pnf):
		return apiError{http.StatusNotFound, "product_not_found"}, true
	case errors.As(err, &inv):
		return apiError{http.StatusBadRequest, "invalid_option"}, true
	case errors.As(err, &tr):
		return apiError{http.StatusConflict, "invalid_transition"}, true
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.apiError, true
		}
	}
	return apiError{}, false
}

// fail writes the error response for err. Unexpected errors are logged and
// answered with a generic 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	ae, ok := classify(err)
	msg := err.Error()
	if !ok {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		ae = apiError{http.StatusInternalServerError, "internal"}
		msg = "internal server error"
	}
	writeJSON(w, ae.status, func(e *jx.Encoder) {
		e.ObjStart()
		fieldStr(e, "code", ae.code)
		fieldStr(e, "message", msg)
		e.ObjEnd()
	})
}
