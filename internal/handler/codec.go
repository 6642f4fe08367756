package handler

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/user"
)

const maxBodyBytes = 64 << 10

type placeOrderBody struct {
	ShippingAddressID string
}

type updateStatusBody struct {
	Status order.Status
}

// readObject reads a JSON object body and calls field for every key. An empty
// body is treated as {}.
func readObject(r io.Reader, field func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	d := jx.DecodeBytes(data)
	if err := d.Obj(field); err != nil {
		return errors.Wrap(err, "decode body")
	}
	return nil
}

// optStr reads a string that may be null.
func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodePlaceOrder(r io.Reader) (placeOrderBody, error) {
	var b placeOrderBody
	err := readObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "shippingAddressId":
			v, err := optStr(d)
			b.ShippingAddressID = v
			return err
		default:
			return d.Skip()
		}
	})
	return b, err
}

func decodeUpdateStatus(r io.Reader) (updateStatusBody, error) {
	var b updateStatusBody
	err := readObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			v, err := d.Str()
			b.Status = order.Status(v)
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return b, err
	}
	if !b.Status.Valid() {
		return b, errors.Errorf("unknown status %q", b.Status)
	}
	return b, nil
}

func encodeAddress(e *jx.Encoder, a user.Address) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(a.ID) })
		e.Field("street", func(e *jx.Encoder) { e.Str(a.Street) })
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		e.Field("state", func(e *jx.Encoder) { e.Str(a.State) })
		e.Field("zipCode", func(e *jx.Encoder) { e.Str(a.ZipCode) })
		e.Field("country", func(e *jx.Encoder) { e.Str(a.Country) })
	})
}

// encodeOrder writes the order projection. Money is a fixed two-decimal
// string so clients never see float rounding.
func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("total", func(e *jx.Encoder) { e.Str(o.Total.StringFixed(2)) })
		e.Field("createdAt", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339Nano)) })
		e.Field("updatedAt", func(e *jx.Encoder) { e.Str(o.UpdatedAt.UTC().Format(time.RFC3339Nano)) })
		e.Field("shippingAddress", func(e *jx.Encoder) { encodeAddress(e, o.ShippingAddress) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(it.ID) })
						e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("productName", func(e *jx.Encoder) { e.Str(it.ProductName) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("priceAtTime", func(e *jx.Encoder) { e.Str(it.PriceAtTime.StringFixed(2)) })
						e.Field("subtotal", func(e *jx.Encoder) { e.Str(it.Subtotal().StringFixed(2)) })
					})
				}
			})
		})
	})
}

func writeOrder(w http.ResponseWriter, code int, o *order.Order) {
	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, code, e.Bytes())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(code) })
		e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
	})
	writeJSON(w, code, e.Bytes())
}

func writeJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
