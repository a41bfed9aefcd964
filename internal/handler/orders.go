package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart/internal/domain/order"
)

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request, actorID string) {
	orders, err := h.orders.List(r.Context(), actorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i])
		}
		e.ArrEnd()
	})
}

// createOrder checks out the caller's cart.
func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request, actorID string) {
	req, err := decodeCheckout(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req.ActorID = actorID

	o, err := h.orders.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request, actorID string) {
	o, err := h.orders.Get(r.Context(), actorID, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// cancelOrder answers 200 even when part of the reversal failed; the body
// reports which steps did not complete.
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request, actorID string) {
	res, err := h.orders.Cancel(r.Context(), actorID, r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeCancelResult(e, res)
	})
}

// --- Admin ---

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.orders.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeSummary(e, s)
	})
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	in, err := decodeStrings(w, r, "status")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := order.ParseStatus(in["status"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), r.PathValue("actorId"), r.PathValue("id"), to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

func (h *Handler) stockSnapshot(w http.ResponseWriter, r *http.Request) {
	l, err := h.stock.Snapshot(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeLedger(e, l)
	})
}

// resetStock reloads the ledger from the configured sources, discarding
// every sale since the last reset.
func (h *Handler) resetStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	source, err := h.stock.Reset(ctx, h.sources...)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	zctx.From(ctx).Info("Stock ledger reset", zap.String("source", source))

	l, err := h.stock.Snapshot(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		fieldStr(e, "source", source)
		e.FieldStart("ledger")
		encodeLedger(e, l)
		e.ObjEnd()
	})
}
