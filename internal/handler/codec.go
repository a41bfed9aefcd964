package handler

import (
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart/internal/domain/cart"
	"github.com/xenking/kart/internal/domain/coupon"
	"github.com/xenking/kart/internal/domain/identity"
	"github.com/xenking/kart/internal/domain/order"
	"github.com/xenking/kart/internal/domain/product"
	"github.com/xenking/kart/internal/domain/stock"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks request decoding failures.
var errBadRequest = errors.New("malformed request body")

// readBody decodes a JSON object body field by field.
func readBody(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	d := jx.DecodeBytes(b)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return field(d, string(key))
	}); err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}

func decodeOptions(d *jx.Decoder) (cart.Options, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	opts := cart.Options{}
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		v, err := d.Str()
		if err != nil {
			return err
		}
		opts[string(key)] = v
		return nil
	})
	return opts, err
}

type lineRequest struct {
	ProductID string
	Quantity  int64
	Options   cart.Options
}

func decodeLine(w http.ResponseWriter, r *http.Request) (lineRequest, error) {
	var req lineRequest
	err := readBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			req.ProductID, err = d.Str()
		case "quantity":
			req.Quantity, err = d.Int64()
		case "options":
			req.Options, err = decodeOptions(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil && req.ProductID == "" {
		err = errors.Wrap(errBadRequest, "productId is required")
	}
	return req, err
}

func decodeStrings(w http.ResponseWriter, r *http.Request, fields ...string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	err := readBody(w, r, func(d *jx.Decoder, key string) error {
		for _, f := range fields {
			if f == key {
				v, err := d.Str()
				out[key] = v
				return err
			}
		}
		return d.Skip()
	})
	return out, err
}

func decodeInt(w http.ResponseWriter, r *http.Request, field string) (int64, error) {
	var (
		v     int64
		found bool
	)
	err := readBody(w, r, func(d *jx.Decoder, key string) error {
		if key != field {
			return d.Skip()
		}
		found = true
		var err error
		v, err = d.Int64()
		return err
	})
	if err == nil && !found {
		err = errors.Wrapf(errBadRequest, "%s is required", field)
	}
	return v, err
}

func decodeCheckout(w http.ResponseWriter, r *http.Request) (order.CreateRequest, error) {
	var req order.CreateRequest
	err := readBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "paymentMethod":
			req.PaymentMethod, err = d.Str()
		case "notes":
			req.Notes, err = d.Str()
		case "shippingAddress":
			err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				var (
					v   string
					err error
				)
				if v, err = d.Str(); err != nil {
					return err
				}
				a := &req.ShippingAddress
				switch string(key) {
				case "recipient":
					a.Recipient = v
				case "phone":
					a.Phone = v
				case "postalCode":
					a.PostalCode = v
				case "line1":
					a.Line1 = v
				case "line2":
					a.Line2 = v
				case "city":
					a.City = v
				}
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

// --- Encoding ---

func writeJSON(w http.ResponseWriter, status int, enc func(e *jx.Encoder)) {
	var e jx.Encoder
	enc(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func fieldStr(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func fieldInt(e *jx.Encoder, name string, v int64) {
	e.FieldStart(name)
	e.Int64(v)
}

func fieldTime(e *jx.Encoder, name string, t time.Time) {
	e.FieldStart(name)
	if t.IsZero() {
		e.Null()
		return
	}
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeStrings(e *jx.Encoder, vs []string) {
	e.ArrStart()
	for _, v := range vs {
		e.Str(v)
	}
	e.ArrEnd()
}

func encodeOptions(e *jx.Encoder, o cart.Options) {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.ObjStart()
	for _, k := range keys {
		fieldStr(e, k, o[k])
	}
	e.ObjEnd()
}

func encodeProduct(e *jx.Encoder, p product.Product, available *int64) {
	e.ObjStart()
	fieldStr(e, "id", p.ID)
	fieldStr(e, "name", p.Name)
	fieldInt(e, "price", p.Price)
	fieldInt(e, "memberPrice", p.MemberPrice)
	fieldStr(e, "category", p.Category)
	if len(p.Sizes) > 0 {
		e.FieldStart("sizes")
		encodeStrings(e, p.Sizes)
	}
	if len(p.Colors) > 0 {
		e.FieldStart("colors")
		encodeStrings(e, p.Colors)
	}
	if available != nil {
		fieldInt(e, "stock", *available)
	}
	e.ObjEnd()
}

func encodeCategories(e *jx.Encoder, cats []product.Category) {
	e.ArrStart()
	for _, c := range cats {
		e.ObjStart()
		fieldStr(e, "id", c.ID)
		fieldStr(e, "name", c.Name)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeActor(e *jx.Encoder, a identity.Actor) {
	e.ObjStart()
	fieldStr(e, "id", a.ID)
	fieldStr(e, "name", a.Name)
	e.FieldStart("guest")
	e.Bool(a.IsGuest())
	e.FieldStart("member")
	e.Bool(a.Member)
	fieldInt(e, "points", a.Points)
	e.ObjEnd()
}

func encodeTotals(e *jx.Encoder, t cart.Totals) {
	e.ObjStart()
	fieldInt(e, "subtotal", t.Subtotal)
	fieldInt(e, "discount", t.Discount)
	fieldInt(e, "pointsUsed", t.PointsDiscount)
	fieldInt(e, "shipping", t.Shipping)
	fieldInt(e, "total", t.Total)
	if t.CouponCode != "" {
		fieldStr(e, "couponCode", t.CouponCode)
		fieldStr(e, "couponDescription", t.CouponDescription)
	}
	e.ObjEnd()
}

func encodeQuote(e *jx.Encoder, q *cart.Quote) {
	e.ObjStart()
	fieldStr(e, "actorId", q.Cart.ActorID)
	fieldInt(e, "itemCount", q.Cart.ItemCount())
	e.FieldStart("items")
	e.ArrStart()
	for _, l := range q.Lines {
		e.ObjStart()
		fieldStr(e, "productId", l.ProductID)
		fieldStr(e, "name", l.Name)
		if len(l.Options) > 0 {
			e.FieldStart("options")
			encodeOptions(e, l.Options)
		}
		fieldInt(e, "quantity", l.Quantity)
		fieldInt(e, "price", l.Price)
		fieldInt(e, "appliedPrice", l.AppliedPrice)
		fieldInt(e, "subtotal", l.Subtotal)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("totals")
	encodeTotals(e, q.Totals)
	fieldTime(e, "lastUpdated", q.Cart.LastUpdated)
	e.ObjEnd()
}

func encodeCoupon(e *jx.Encoder, r coupon.Rule) {
	e.ObjStart()
	fieldStr(e, "code", r.Code)
	fieldStr(e, "percent", r.Percent.String())
	e.FieldStart("membersOnly")
	e.Bool(r.MembersOnly)
	fieldStr(e, "description", r.Description)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	fieldStr(e, "id", o.ID)
	fieldStr(e, "actorId", o.ActorID)
	fieldStr(e, "status", string(o.Status))
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		fieldStr(e, "productId", it.ProductID)
		fieldStr(e, "name", it.Name)
		if len(it.Options) > 0 {
			e.FieldStart("options")
			encodeOptions(e, it.Options)
		}
		fieldInt(e, "quantity", it.Quantity)
		fieldInt(e, "price", it.Price)
		fieldInt(e, "appliedPrice", it.AppliedPrice)
		fieldInt(e, "subtotal", it.Subtotal)
		e.ObjEnd()
	}
	e.ArrEnd()
	fieldInt(e, "subtotal", o.Subtotal)
	fieldInt(e, "discount", o.Discount)
	fieldInt(e, "pointsUsed", o.PointsUsed)
	fieldInt(e, "shippingFee", o.ShippingFee)
	fieldInt(e, "totalAmount", o.Total)
	fieldInt(e, "pointsEarned", o.PointsEarned)
	if o.CouponCode != "" {
		fieldStr(e, "couponCode", o.CouponCode)
	}
	a := o.ShippingAddress
	e.FieldStart("shippingAddress")
	e.ObjStart()
	fieldStr(e, "recipient", a.Recipient)
	fieldStr(e, "phone", a.Phone)
	fieldStr(e, "postalCode", a.PostalCode)
	fieldStr(e, "line1", a.Line1)
	fieldStr(e, "line2", a.Line2)
	fieldStr(e, "city", a.City)
	e.ObjEnd()
	fieldStr(e, "paymentMethod", o.PaymentMethod)
	if o.Notes != "" {
		fieldStr(e, "notes", o.Notes)
	}
	fieldTime(e, "orderDate", o.OrderDate)
	fieldTime(e, "updatedAt", o.UpdatedAt)
	e.ObjEnd()
}

func encodeCancelResult(e *jx.Encoder, res *order.CancelResult) {
	e.ObjStart()
	e.FieldStart("order")
	encodeOrder(e, res.Order)
	e.FieldStart("degraded")
	e.Bool(res.Degraded())
	e.FieldStart("stockRestored")
	e.Bool(res.StockRestored)
	e.FieldStart("pointsRefunded")
	e.Bool(res.PointsRefunded)
	e.FieldStart("earnedReversed")
	e.Bool(res.EarnedReversed)
	if len(res.Issues) > 0 {
		e.FieldStart("issues")
		encodeStrings(e, res.Issues)
	}
	e.ObjEnd()
}

func encodeSummary(e *jx.Encoder, s *order.Summary) {
	e.ObjStart()
	fieldInt(e, "orderCount", int64(s.OrderCount))
	fieldInt(e, "revenue", s.Revenue)
	fieldStr(e, "averageOrderValue", s.AverageOrderValue.StringFixed(2))

	e.FieldStart("byStatus")
	e.ObjStart()
	for _, st := range order.Statuses {
		fieldInt(e, string(st), int64(s.ByStatus[st]))
	}
	e.ObjEnd()

	methods := make([]string, 0, len(s.ByPaymentMethod))
	for m := range s.ByPaymentMethod {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	e.FieldStart("byPaymentMethod")
	e.ObjStart()
	for _, m := range methods {
		ps := s.ByPaymentMethod[m]
		e.FieldStart(m)
		e.ObjStart()
		fieldInt(e, "count", int64(ps.Count))
		fieldInt(e, "revenue", ps.Revenue)
		e.ObjEnd()
	}
	e.ObjEnd()

	e.FieldStart("productSales")
	e.ArrStart()
	for _, ps := range s.ProductSales {
		e.ObjStart()
		fieldStr(e, "productId", ps.ProductID)
		fieldStr(e, "name", ps.Name)
		fieldInt(e, "quantity", ps.Quantity)
		fieldInt(e, "revenue", ps.Revenue)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

func encodeLedger(e *jx.Encoder, l *stock.Ledger) {
	ids := make([]string, 0, len(l.Items))
	for id := range l.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	e.ObjStart()
	e.FieldStart("items")
	e.ObjStart()
	for _, id := range ids {
		fieldInt(e, id, l.Items[id])
	}
	e.ObjEnd()
	fieldTime(e, "lastUpdated", l.LastUpdated)
	e.ObjEnd()
}
