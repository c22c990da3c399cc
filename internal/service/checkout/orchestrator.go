package checkout

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/google/uuid"
	"tiketloka-storefront/internal/backend"
	"tiketloka-storefront/internal/domain"
)

type checkoutAPI interface {
	Checkout(ctx context.Context, token string, in backend.CheckoutInput) (string, error)
}

// Cart is the part of the cart engine a checkout needs.
type Cart interface {
	Purchasable(ids []int64) []int64
	Selected() []int64
	CompletePurchase(ctx context.Context, ids []int64)
}

// TokenSource yields the current bearer token.
type TokenSource interface {
	Token() string
}

// Orchestrator submits checkouts and settles the cart afterwards.
type Orchestrator struct {
	api      checkoutAPI
	cart     Cart
	tokens   TokenSource
	logger   *log.Logger
	newKey   func() string
	inFlight atomic.Bool
}

// New builds an Orchestrator. logger may be nil.
func New(api checkoutAPI, cart Cart, tokens TokenSource, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		api:    api,
		cart:   cart,
		tokens: tokens,
		logger: logger,
		newKey: uuid.NewString,
	}
}

// Checkout books the given cart lines. An empty selection is
// ErrInvalidSelection and a missing session is ErrUnauthenticated, both
// before anything else is looked at. Unknown, pending and repeated ids are
// dropped; nothing left is ErrInvalidSelection. On success only the bought
// lines leave the cart. On failure the cart is untouched and the error is
// returned as is; there is no retry.
func (o *Orchestrator) Checkout(ctx context.Context, ids []int64, method string) (domain.Booking, error) {
	if len(ids) == 0 {
		return domain.Booking{}, domain.ErrInvalidSelection
	}
	token := o.tokens.Token()
	if token == "" {
		return domain.Booking{}, domain.ErrUnauthenticated
	}
	pm, ok := domain.ParsePaymentMethod(method)
	if !ok {
		return domain.Booking{}, &domain.ValidationError{
			Message: "payment method is invalid",
			Fields:  map[string][]string{"payment_method": {"choose qris or bca"}},
		}
	}
	lines := o.cart.Purchasable(ids)
	if len(lines) == 0 {
		return domain.Booking{}, domain.ErrInvalidSelection
	}
	if !o.inFlight.CompareAndSwap(false, true) {
		return domain.Booking{}, domain.ErrCheckoutInFlight
	}
	defer o.inFlight.Store(false)

	key := o.newKey()
	code, err := o.api.Checkout(ctx, token, backend.CheckoutInput{
		CartIDs:        lines,
		PaymentMethod:  pm,
		IdempotencyKey: key,
	})
	if err != nil {
		o.logf("checkout %s: %v", key, err)
		return domain.Booking{}, fmt.Errorf("checkout: %w", err)
	}

	o.cart.CompletePurchase(context.WithoutCancel(ctx), lines)
	o.logf("checkout %s: booked %s for %d line(s)", key, code, len(lines))
	return domain.Booking{Code: code, LineItemIDs: lines, PaymentMethod: pm}, nil
}

// CheckoutSelection books the current selection.
func (o *Orchestrator) CheckoutSelection(ctx context.Context, method string) (domain.Booking, error) {
	return o.Checkout(ctx, o.cart.Selected(), method)
}

// InFlight reports whether a checkout is being submitted.
func (o *Orchestrator) InFlight() bool { return o.inFlight.Load() }

func (o *Orchestrator) logf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Printf(format, args...)
	}
}
