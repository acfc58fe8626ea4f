package providers

import (
	"encoding/json"
	"errors"
	"time"
)

// Provider identifies an external payment provider.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderPaypal Provider = "paypal"
	ProviderPaddle Provider = "paddle"
)

// EventKind is the canonical event vocabulary the state machine consumes.
type EventKind string

const (
	KindSubscriptionCreated     EventKind = "subscription_created"
	KindSubscriptionUpdated     EventKind = "subscription_updated"
	KindSubscriptionCancelled   EventKind = "subscription_cancelled"
	KindSubscriptionReactivated EventKind = "subscription_reactivated"
	KindCheckoutCompleted       EventKind = "checkout_completed"
	KindChargeSucceeded         EventKind = "charge_succeeded"
	KindChargeFailed            EventKind = "charge_failed"
)

var (
	// ErrUnsupportedEvent marks provider event types the core does not act
	// on. Callers acknowledge these, they are never retried.
	ErrUnsupportedEvent = errors.New("unsupported event kind")
	// ErrMalformedPayload marks payloads that cannot be parsed.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Event is the canonical form every provider payload is normalized into.
// Payloads are parsed exactly once; nothing downstream of the normalizer
// touches provider field names.
type Event struct {
	Kind                   EventKind
	Provider               Provider
	ExternalEventID        string
	ExternalSubscriptionID string
	ExternalCustomerID     string
	ExternalTransactionID  string
	RawStatus              string
	Amount                 float64
	Currency               string
	PeriodStart            *time.Time
	PeriodEnd              *time.Time
	TrialEndsAt            *time.Time
	FailureReason          string
	EffectiveAt            time.Time
	Raw                    json.RawMessage
}

// Adapter is one provider's verification and normalization boundary.
type Adapter interface {
	Name() Provider
	// SignatureHeader returns the HTTP header carrying the provider's
	// webhook signature.
	SignatureHeader() string
	// VerifySignature checks the signature against the raw, unparsed body.
	// Reserializing the body before verification breaks the signature.
	VerifySignature(body []byte, header string) bool
	// Normalize parses a verified payload into a canonical Event. Returns
	// ErrUnsupportedEvent for event types the core ignores.
	Normalize(body []byte) (*Event, error)
}

// Registry holds the configured provider adapters keyed by name.
type Registry map[Provider]Adapter

func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.Name()] = a
	}
	return r
}

func (r Registry) Get(name Provider) (Adapter, bool) {
	a, ok := r[name]
	return a, ok
}
