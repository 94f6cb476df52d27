// internal/gateway/gateway.go
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Gateway status vocabulary shared by every adapter.
const (
	StatusApproved  = "approved"
	StatusInProcess = "in_process"
	StatusRejected  = "rejected"
	StatusPending   = "pending"
)

const (
	KindPayment      = "payment"
	KindSubscription = "subscription"
)

var (
	ErrRateLimited = errors.New("payment gateway rate limited")
	ErrUnavailable = errors.New("payment gateway unavailable")
	ErrNotFound    = errors.New("payment gateway resource not found")
)

type Item struct {
	Title       string
	Description string
	Quantity    int64
	UnitPrice   decimal.Decimal
	Currency    string
}

type BackURLs struct {
	Success string
	Failure string
	Pending string
}

type PreferenceRequest struct {
	Items             []Item
	PayerEmail        string
	BackURLs          BackURLs
	ExternalReference string
	Metadata          map[string]string
}

type Preference struct {
	ID        string
	InitPoint string
}

// PaymentDetail is the authoritative view of a payment or subscription.
type PaymentDetail struct {
	ID                string
	Kind              string
	Status            string
	RawStatus         string
	ExternalReference string
	Amount            decimal.Decimal
	Currency          string
	Metadata          map[string]string
}

type Gateway interface {
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
	GetPayment(ctx context.Context, paymentID string) (*PaymentDetail, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*PaymentDetail, error)
	SearchPayments(ctx context.Context, externalReference, status string) ([]PaymentDetail, error)
}

func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// Event is the parsed notification body. Both the compact {type, data:{id}}
// form and the nested {type, data:{object:{id}}} form are accepted.
type Event struct {
	ID         string
	Type       string
	Kind       string
	ResourceID string
}

type rawEvent struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID     string `json:"id"`
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

func ParseEvent(body []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}

	event := &Event{
		ID:         raw.ID,
		Type:       raw.Type,
		Kind:       eventKind(raw.Type),
		ResourceID: raw.Data.ID,
	}
	if event.ResourceID == "" {
		event.ResourceID = raw.Data.Object.ID
	}
	if event.Type == "" {
		event.Type = raw.Action
		event.Kind = eventKind(raw.Action)
	}
	return event, nil
}

func eventKind(eventType string) string {
	switch {
	case eventType == "payment", strings.HasPrefix(eventType, "payment."), strings.HasPrefix(eventType, "payment_intent."):
		return KindPayment
	case eventType == "subscription", strings.HasPrefix(eventType, "subscription"), strings.HasPrefix(eventType, "customer.subscription."):
		return KindSubscription
	default:
		return ""
	}
}
