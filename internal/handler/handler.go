package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/product"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored in the database.
	ImageBaseURL string
}

// Handler serves the storefront API, delegating business logic to the order
// service, the discount validator and the product repository.
type Handler struct {
	products     product.Repository
	coupons      coupon.Validator
	orderService *order.Service
	imageBaseURL string
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	products product.Repository,
	coupons coupon.Validator,
	orderService *order.Service,
) *Handler {
	return &Handler{
		products:     products,
		coupons:      coupons,
		orderService: orderService,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Route is one method+path pattern served by the Handler.
type Route struct {
	Pattern string
	Handler http.HandlerFunc
}

// Routes lists the API endpoints in http.ServeMux pattern form.
func (h *Handler) Routes() []Route {
	return []Route{
		{"GET /api/products", h.ListProducts},
		{"GET /api/products/{productId}", h.GetProduct},
		{"POST /api/discounts/validate", h.ValidateDiscount},
		{"POST /api/orders", h.PlaceOrder},
		{"GET /api/orders/{orderId}", h.GetOrder},
	}
}

// ServeMux registers Routes on a new mux. wrap, when non-nil, decorates
// individual routes, e.g. to rate limit one endpoint.
func (h *Handler) ServeMux(wrap func(pattern string, next http.Handler) http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	for _, r := range h.Routes() {
		var next http.Handler = r.Handler
		if wrap != nil {
			next = wrap(r.Pattern, next)
		}
		mux.Handle(r.Pattern, next)
	}
	return mux
}

func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || strings.Contains(path, "://") {
		return path
	}
	return h.imageBaseURL + path
}

func readBody(r *http.Request) (*jx.Decoder, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return nil, errors.New("request body must be a JSON object")
	}
	return d, nil
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// WriteError writes the {code, message} error body used by every endpoint.
func WriteError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(message)
		e.ObjEnd()
	})
}

// internalError logs err and answers 500 without leaking details.
func internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	zctx.From(r.Context()).Error("Request failed",
		zap.String("op", op),
		zap.Error(err),
	)
	WriteError(w, http.StatusInternalServerError, "internal error")
}
