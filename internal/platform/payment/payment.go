// Package payment verifies Stripe webhooks and routes payment intent
// outcomes to the booking lifecycle.
package payment

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/islandmassage/booking/internal/platform/apperr"
)

const (
	eventSucceeded = "payment_intent.succeeded"
	eventFailed    = "payment_intent.payment_failed"

	unknownFailure = "Unknown error"
)

// MetadataPaymentIntent is the metadata key Parse adds carrying the payment
// intent id.
const MetadataPaymentIntent = "payment_intent"

// Kind classifies a verified webhook event.
type Kind int

const (
	KindIgnored Kind = iota
	KindSucceeded
	KindFailed
)

// Event is the part of a verified webhook the lifecycle cares about.
type Event struct {
	ID              string
	Type            string
	Kind            Kind
	PaymentIntentID string
	Metadata        map[string]string
	FailureReason   string
}

// Verifier checks the Stripe-Signature header and decodes payment intents.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Parse verifies payload against sigHeader. Signature problems are
// Unauthorized; malformed payment intents are Validation.
func (v *Verifier) Parse(payload []byte, sigHeader string) (*Event, error) {
	if v.secret == "" {
		return nil, apperr.Unauthorized("webhook secret not configured")
	}
	se, err := webhook.ConstructEventWithOptions(payload, sigHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, &apperr.Error{Kind: apperr.KindUnauthorized, Msg: "invalid webhook signature", Err: err}
	}

	evt := &Event{ID: se.ID, Type: string(se.Type)}
	switch evt.Type {
	case eventSucceeded:
		evt.Kind = KindSucceeded
	case eventFailed:
		evt.Kind = KindFailed
	default:
		return evt, nil
	}

	if se.Data == nil {
		return nil, apperr.Validation("event %s has no data", se.ID)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(se.Data.Raw, &pi); err != nil {
		return nil, &apperr.Error{Kind: apperr.KindValidation, Msg: fmt.Sprintf("decode payment intent of event %s", se.ID), Err: err}
	}
	evt.PaymentIntentID = pi.ID
	evt.Metadata = make(map[string]string, len(pi.Metadata)+1)
	for k, v := range pi.Metadata {
		evt.Metadata[k] = v
	}
	evt.Metadata[MetadataPaymentIntent] = pi.ID
	if evt.Kind == KindFailed {
		evt.FailureReason = unknownFailure
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			evt.FailureReason = pi.LastPaymentError.Msg
		}
	}
	return evt, nil
}
