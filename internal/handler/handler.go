package handler

import (
	"context"
	"net/http"

	"github.com/xenking/kart/internal/domain/auth"
	"github.com/xenking/kart/internal/domain/cart"
	"github.com/xenking/kart/internal/domain/identity"
	"github.com/xenking/kart/internal/domain/order"
	"github.com/xenking/kart/internal/domain/product"
	"github.com/xenking/kart/internal/domain/stock"
	"github.com/xenking/kart/pkg/httpmiddleware"
)

// APIKeyHeader carries the admin API key.
const APIKeyHeader = "X-API-Key"

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// StockSources are re-read, in order, by the admin stock reset.
	StockSources []stock.Source
	// Session names the header and cookie that carry session ids; it must
	// match the config given to httpmiddleware.Session.
	Session httpmiddleware.SessionConfig
}

// Services bundles the domain services the Handler delegates to.
type Services struct {
	Products product.Repository
	Carts    *cart.Service
	Orders   *order.Service
	Identity *identity.Service
	Stock    *stock.Service
	Auth     *auth.Authenticator
}

// Handler serves the storefront and admin JSON API. The caller is resolved
// from the session id that httpmiddleware.Session stores in the context.
type Handler struct {
	products product.Repository
	carts    *cart.Service
	orders   *order.Service
	identity *identity.Service
	stock    *stock.Service
	auth     *auth.Authenticator
	sources  []stock.Source
	session  httpmiddleware.SessionConfig
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg HandlerConfig, svc Services) *Handler {
	return &Handler{
		products: svc.Products,
		carts:    svc.Carts,
		orders:   svc.Orders,
		identity: svc.Identity,
		stock:    svc.Stock,
		auth:     svc.Auth,
		sources:  cfg.StockSources,
		session:  cfg.Session,
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products", h.listProducts)
	mux.HandleFunc("GET /api/products/{id}", h.getProduct)
	mux.HandleFunc("GET /api/categories", h.listCategories)
	mux.HandleFunc("GET /api/coupons", h.listCoupons)

	mux.HandleFunc("GET /api/session", h.getSession)
	mux.HandleFunc("POST /api/session", h.newSession)
	mux.HandleFunc("POST /api/session/register", h.register)
	mux.HandleFunc("POST /api/session/login", h.login)
	mux.HandleFunc("POST /api/session/logout", h.logout)

	mux.HandleFunc("GET /api/cart", h.withActor(h.getCart))
	mux.HandleFunc("DELETE /api/cart", h.withActor(h.clearCart))
	mux.HandleFunc("POST /api/cart/items", h.withActor(h.addItem))
	mux.HandleFunc("PUT /api/cart/items", h.withActor(h.setItemQuantity))
	mux.HandleFunc("DELETE /api/cart/items/{productId}", h.withActor(h.removeItem))
	mux.HandleFunc("PUT /api/cart/coupon", h.withActor(h.applyCoupon))
	mux.HandleFunc("DELETE /api/cart/coupon", h.withActor(h.removeCoupon))
	mux.HandleFunc("PUT /api/cart/points", h.withActor(h.setPoints))
	mux.HandleFunc("DELETE /api/cart/points", h.withActor(h.clearPoints))

	mux.HandleFunc("GET /api/orders", h.withActor(h.listOrders))
	mux.HandleFunc("POST /api/orders", h.withActor(h.createOrder))
	mux.HandleFunc("GET /api/orders/{id}", h.withActor(h.getOrder))
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.withActor(h.cancelOrder))

	mux.Handle("GET /api/admin/stats", h.admin(h.stats))
	mux.Handle("PATCH /api/admin/orders/{actorId}/{id}", h.admin(h.updateOrderStatus))
	mux.Handle("GET /api/admin/stock", h.admin(h.stockSnapshot))
	mux.Handle("POST /api/admin/stock/reset", h.admin(h.resetStock))
}

// actor resolves the caller. Unknown or expired sessions resolve to the guest.
func (h *Handler) actor(ctx context.Context) (identity.Actor, error) {
	return h.identity.Resolve(ctx, httpmiddleware.SessionFromContext(ctx))
}

// admin requires an API key carrying the admin scope.
func (h *Handler) admin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.auth.Authenticate(r.Context(), r.Header.Get(APIKeyHeader), auth.ScopeAdmin); err != nil {
			h.fail(w, r, err)
			return
		}
		next(w, r)
	})
}
