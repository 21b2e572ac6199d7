package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"masterbook/pkg/logger"
	"masterbook/pkg/model"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type intentCapturer interface {
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
}

type refundCreator interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeGateway captures the payment intent referenced by a booking on
// confirmation and refunds it when a confirmed booking is cancelled.
type StripeGateway struct {
	intents intentCapturer
	refunds refundCreator
	log     *logger.Logger
}

func NewStripeGateway(secretKey string, log *logger.Logger) *StripeGateway {
	sc := client.New(secretKey, nil)
	return &StripeGateway{
		intents: sc.PaymentIntents,
		refunds: sc.Refunds,
		log:     log,
	}
}

func (g *StripeGateway) Capture(ctx context.Context, req model.PaymentRequest) error {
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(minorUnits(req.Amount, req.Currency)),
	}
	params.Context = ctx
	params.SetIdempotencyKey("capture-" + req.BookingID)

	intent, err := g.intents.Capture(req.Reference, params)
	if err != nil {
		if hasCode(err, stripe.ErrorCodePaymentIntentUnexpectedState) {
			g.log.Warn("Payment intent not capturable, skipping",
				"booking_id", req.BookingID,
				"payment_ref", req.Reference,
				"error", err,
			)
			return nil
		}
		return fmt.Errorf("capture payment %s for booking %s: %w", req.Reference, req.BookingID, err)
	}

	g.log.Info("Payment captured",
		"booking_id", req.BookingID,
		"payment_ref", req.Reference,
		"status", intent.Status,
		"amount", req.Amount.String(),
		"currency", req.Currency,
	)
	return nil
}

func (g *StripeGateway) Refund(ctx context.Context, req model.PaymentRequest) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.Reference),
		Amount:        stripe.Int64(minorUnits(req.Amount, req.Currency)),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + req.BookingID)
	params.AddMetadata("booking_id", req.BookingID)

	refund, err := g.refunds.New(params)
	if err != nil {
		if hasCode(err, stripe.ErrorCodeChargeAlreadyRefunded) {
			g.log.Warn("Payment already refunded", "booking_id", req.BookingID, "payment_ref", req.Reference)
			return nil
		}
		return fmt.Errorf("refund payment %s for booking %s: %w", req.Reference, req.BookingID, err)
	}

	g.log.Info("Payment refunded",
		"booking_id", req.BookingID,
		"payment_ref", req.Reference,
		"refund_id", refund.ID,
		"amount", req.Amount.String(),
		"currency", req.Currency,
	)
	return nil
}

func hasCode(err error, code stripe.ErrorCode) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Code == code
}

// Currencies Stripe charges in whole units.
var zeroDecimal = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true,
	"KRW": true, "MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true,
	"VUV": true, "XAF": true, "XOF": true, "XPF": true,
}

func minorUnits(amount model.Money, currency string) int64 {
	if zeroDecimal[strings.ToUpper(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.MinorUnits()
}

// LogGateway stands in for a real gateway when no Stripe key is configured.
type LogGateway struct {
	log *logger.Logger
}

func NewLogGateway(log *logger.Logger) *LogGateway {
	return &LogGateway{log: log}
}

func (g *LogGateway) Capture(_ context.Context, req model.PaymentRequest) error {
	g.log.Info("Payment capture requested",
		"booking_id", req.BookingID,
		"payment_ref", req.Reference,
		"amount", req.Amount.String(),
		"currency", req.Currency,
	)
	return nil
}

func (g *LogGateway) Refund(_ context.Context, req model.PaymentRequest) error {
	g.log.Info("Payment refund requested",
		"booking_id", req.BookingID,
		"payment_ref", req.Reference,
		"amount", req.Amount.String(),
		"currency", req.Currency,
	)
	return nil
}
