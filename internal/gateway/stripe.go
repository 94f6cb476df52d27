// internal/gateway/stripe.go
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/subscription"

	"github.com/javajoker/vendormatch-backend/internal/config"
	"github.com/javajoker/vendormatch-backend/internal/metrics"
)

const metadataExternalReference = "external_reference"

// StripeGateway implements Gateway with Checkout Sessions and PaymentIntents.
// The external reference travels as client_reference_id and as payment
// intent metadata so the search API can find it.
type StripeGateway struct {
	currency string
}

func NewStripeGateway(cfg config.PaymentConfig) *StripeGateway {
	// Initialize Stripe
	stripe.Key = cfg.StripeSecretKey

	return &StripeGateway{currency: cfg.Currency}
}

func (g *StripeGateway) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	metadata := map[string]string{metadataExternalReference: req.ExternalReference}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.ExternalReference),
		SuccessURL:        stripe.String(req.BackURLs.Success),
		CancelURL:         stripe.String(req.BackURLs.Failure),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx
	if req.PayerEmail != "" {
		params.CustomerEmail = stripe.String(req.PayerEmail)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	for _, item := range req.Items {
		currency := item.Currency
		if currency == "" {
			currency = g.currency
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(item.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(currency)),
				UnitAmount: stripe.Int64(toMinorUnits(item.UnitPrice)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String(item.Title),
					Description: optionalString(item.Description),
				},
			},
		})
	}

	s, err := session.New(params)
	metrics.GatewayCalls.WithLabelValues("create_preference", metrics.Result(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", classifyStripeError(err))
	}

	return &Preference{ID: s.ID, InitPoint: s.URL}, nil
}

func (g *StripeGateway) GetPayment(ctx context.Context, paymentID string) (*PaymentDetail, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(paymentID, params)
	metrics.GatewayCalls.WithLabelValues("get_payment", metrics.Result(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", classifyStripeError(err))
	}

	detail := paymentDetail(pi)
	return &detail, nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*PaymentDetail, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(subscriptionID, params)
	metrics.GatewayCalls.WithLabelValues("get_subscription", metrics.Result(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", classifyStripeError(err))
	}

	return &PaymentDetail{
		ID:                sub.ID,
		Kind:              KindSubscription,
		Status:            subscriptionStatus(sub.Status),
		RawStatus:         string(sub.Status),
		ExternalReference: sub.Metadata[metadataExternalReference],
		Currency:          string(sub.Currency),
		Metadata:          sub.Metadata,
	}, nil
}

func (g *StripeGateway) SearchPayments(ctx context.Context, externalReference, status string) ([]PaymentDetail, error) {
	query := fmt.Sprintf("metadata['%s']:'%s'", metadataExternalReference, externalReference)
	if status == StatusApproved {
		query += " AND status:'succeeded'"
	}

	params := &stripe.PaymentIntentSearchParams{}
	params.Query = query
	params.Context = ctx

	var results []PaymentDetail
	iter := paymentintent.Search(params)
	for iter.Next() {
		detail := paymentDetail(iter.PaymentIntent())
		if status != "" && detail.Status != status {
			continue
		}
		results = append(results, detail)
	}
	err := iter.Err()
	metrics.GatewayCalls.WithLabelValues("search_payments", metrics.Result(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("failed to search payment intents: %w", classifyStripeError(err))
	}

	logrus.WithFields(logrus.Fields{
		"external_reference": externalReference,
		"results":            len(results),
	}).Debug("Searched payments")

	return results, nil
}

func paymentDetail(pi *stripe.PaymentIntent) PaymentDetail {
	return PaymentDetail{
		ID:                pi.ID,
		Kind:              KindPayment,
		Status:            paymentIntentStatus(pi.Status),
		RawStatus:         string(pi.Status),
		ExternalReference: pi.Metadata[metadataExternalReference],
		Amount:            decimal.New(pi.Amount, -2),
		Currency:          string(pi.Currency),
		Metadata:          pi.Metadata,
	}
}

func paymentIntentStatus(status stripe.PaymentIntentStatus) string {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusApproved
	case stripe.PaymentIntentStatusProcessing:
		return StatusInProcess
	case stripe.PaymentIntentStatusCanceled:
		return StatusRejected
	default:
		return StatusPending
	}
}

func subscriptionStatus(status stripe.SubscriptionStatus) string {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return StatusApproved
	case stripe.SubscriptionStatusIncomplete:
		return StatusInProcess
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired, stripe.SubscriptionStatusUnpaid:
		return StatusRejected
	default:
		return StatusPending
	}
}

func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	switch {
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case stripeErr.HTTPStatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == 0:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// toMinorUnits converts a decimal amount to cents.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return stripe.String(s)
}
