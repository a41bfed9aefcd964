package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/kart/internal/domain/cart"
	"github.com/xenking/kart/internal/domain/identity"
	"github.com/xenking/kart/pkg/httpmiddleware"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	products, err := h.products.List(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ledger, err := h.stock.Snapshot(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			available := ledger.Get(p.ID)
			encodeProduct(e, p, &available)
		}
		e.ArrEnd()
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := h.products.GetByID(ctx, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	available, err := h.stock.Get(ctx, p.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeProduct(e, *p, &available)
	})
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.products.Categories(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeCategories(e, cats)
	})
}

func (h *Handler) listCoupons(w http.ResponseWriter, _ *http.Request) {
	rules := h.carts.Coupons().Rules()
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, rule := range rules {
			encodeCoupon(e, rule)
		}
		e.ArrEnd()
	})
}

// --- Session ---

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := h.actor(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	count, err := h.carts.ItemCount(ctx, a.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		fieldStr(e, "sessionId", httpmiddleware.SessionFromContext(ctx))
		e.FieldStart("actor")
		encodeActor(e, a)
		fieldInt(e, "cartItemCount", count)
		e.ObjEnd()
	})
}

// newSession issues a fresh session id and hands it to the client. A
// caller that arrived without one already got a minted id from the
// session middleware, which is returned as is.
func (h *Handler) newSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := httpmiddleware.SessionFromContext(ctx)
	if !httpmiddleware.SessionIssued(ctx) {
		id = uuid.NewString()
		h.session.SetSession(w, id)
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		fieldStr(e, "sessionId", id)
		e.FieldStart("actor")
		encodeActor(e, identity.Actor{ID: identity.GuestFor(id)})
		e.ObjEnd()
	})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	in, err := decodeStrings(w, r, "name", "email", "password")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.identity.Register(r.Context(), identity.RegisterRequest{
		Name:     in["name"],
		Email:    in["email"],
		Password: in["password"],
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeActor(e, u.Actor())
	})
}

// login binds the session to the user and moves the session's guest cart
// into theirs. The shared default session is never bound: the caller gets
// a fresh session instead, and the shared guest cart stays where it is.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	in, err := decodeStrings(w, r, "email", "password")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ctx := r.Context()
	sid := httpmiddleware.SessionFromContext(ctx)
	shared := sid == "" || sid == identity.DefaultSession
	guestID := identity.GuestFor(sid)
	if shared {
		sid = uuid.NewString()
	}

	a, err := h.identity.Login(ctx, sid, in["email"], in["password"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if shared {
		h.session.SetSession(w, sid)
	} else if err := h.carts.MigrateGuestCart(ctx, guestID, a.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeActor(e, a)
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.identity.Logout(ctx, httpmiddleware.SessionFromContext(ctx)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Cart ---

// respondCart answers with the caller's priced cart.
func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, actorID string, status int) {
	q, err := h.carts.View(r.Context(), actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		encodeQuote(e, q)
	})
}

// withActor resolves the caller and hands its id to fn.
func (h *Handler) withActor(fn func(w http.ResponseWriter, r *http.Request, actorID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := h.actor(r.Context())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		fn(w, r, a.ID)
	}
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request, actorID string) {
	h.respondCart(w, r, actorID, http.StatusOK)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request, actorID string) {
	if err := h.carts.Clear(r.Context(), actorID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondCart(w, r, actorID, http.StatusOK)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request, actorID string) {
	req, err := decodeLine(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.carts.AddLineItem(r.Context(), actorID, req.ProductID, req.Quantity, req.Options); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondCart(w, r, actorID, http.StatusOK)
}

func (h *Handler) setItemQuantity(w http.ResponseWriter, r *http.Request, actorID string) {
	req, err := decodeLine(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.carts.SetLineItemQuantity(r.Context(), actorID, req.ProductID, req.Quantity, req.Options); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondCart(w, r, actorID, http.StatusOK)
}

// removeItem takes the line's options from the size and color query
// parameters; anything else in the query string is ignored.
func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request, actorID string) {
	var opts cart.Options
	q := r.URL.Query()
	for _, k := range cart.OptionNames {
		if !q.Has(k) {
			continue
		}
		if opts == nil {
			opts = make(cart.Options, len(cart.OptionNames))
		}
		opts[k] = q.Get(k)
	}
	if err := h.carts.RemoveLineItem(r.Context(), actorID, r.PathValue("productId"), opts); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondCart(w, r, actorID, http.StatusOK)
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request, actorID string) {
	in, err := decodeStrings(w, r, "code")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.carts.ApplyCoupon(r.Context(), actorID, in["code"]); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondCart(w, r, actorID, http.StatusOK)
}

func (h *Handler) removeCoupon(w http.ResponseWriter, r *http.Request, actorID string) {
	if err := h.carts.RemoveCoupon(r.Context(), actorID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondCart(w, r, actorID, http.StatusOK)
}

func (h *Handler) setPoints(w http.ResponseWriter, r *http.Request, actorID string) {
	points, err := decodeInt(w, r, "points")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.carts.SetPointsUsed(r.Context(), actorID, points); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondCart(w, r, actorID, http.StatusOK)
}

func (h *Handler) clearPoints(w http.ResponseWriter, r *http.Request, actorID string) {
	if err := h.carts.ClearPointsUsed(r.Context(), actorID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondCart(w, r, actorID, http.StatusOK)
}
