package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// signatureTolerance bounds how old a signed timestamp may be before the
// signature is rejected, limiting replay of captured deliveries.
const signatureTolerance = 5 * time.Minute

// StripeAdapter verifies and normalizes Stripe webhook deliveries.
type StripeAdapter struct {
	secret string
	now    func() time.Time
}

func NewStripeAdapter(secret string) *StripeAdapter {
	return &StripeAdapter{secret: secret, now: time.Now}
}

func (a *StripeAdapter) Name() Provider { return ProviderStripe }

func (a *StripeAdapter) SignatureHeader() string { return "Stripe-Signature" }

// VerifySignature checks the "t=<ts>,v1=<hmac>" header. The HMAC-SHA256 is
// computed over "<ts>.<raw body>" with the endpoint secret.
func (a *StripeAdapter) VerifySignature(body []byte, header string) bool {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return false
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if a.now().Sub(time.Unix(unix, 0)) > signatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(a.secret))
	fmt.Fprintf(mac, "%s.", ts)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range sigs {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object stripeObject `json:"object"`
	} `json:"data"`
}

type stripeObject struct {
	ID                 string  `json:"id"`
	Customer           string  `json:"customer"`
	Subscription       string  `json:"subscription"`
	Status             string  `json:"status"`
	CurrentPeriodStart int64   `json:"current_period_start"`
	CurrentPeriodEnd   int64   `json:"current_period_end"`
	TrialEnd           int64   `json:"trial_end"`
	PeriodStart        int64   `json:"period_start"`
	PeriodEnd          int64   `json:"period_end"`
	AmountPaid         int64   `json:"amount_paid"`
	AmountDue          int64   `json:"amount_due"`
	AmountTotal        int64   `json:"amount_total"`
	Currency           string  `json:"currency"`
	Plan               *struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	} `json:"plan"`
}

func (a *StripeAdapter) Normalize(body []byte) (*Event, error) {
	var raw stripeEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw.ID == "" || raw.Type == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedPayload)
	}

	ev := &Event{
		Provider:        ProviderStripe,
		ExternalEventID: raw.ID,
		EffectiveAt:     time.Unix(raw.Created, 0).UTC(),
		Raw:             json.RawMessage(body),
	}

	obj := raw.Data.Object
	switch raw.Type {
	case "customer.subscription.created":
		ev.Kind = KindSubscriptionCreated
	case "customer.subscription.updated":
		ev.Kind = KindSubscriptionUpdated
	case "customer.subscription.deleted":
		ev.Kind = KindSubscriptionCancelled
	case "customer.subscription.resumed":
		ev.Kind = KindSubscriptionReactivated
	case "checkout.session.completed":
		ev.Kind = KindCheckoutCompleted
		ev.ExternalSubscriptionID = obj.Subscription
		ev.ExternalCustomerID = obj.Customer
		ev.Amount = float64(obj.AmountTotal) / 100
		ev.Currency = strings.ToUpper(obj.Currency)
		return ev, nil
	case "invoice.payment_succeeded":
		ev.Kind = KindChargeSucceeded
		a.fillCharge(ev, &obj)
		ev.Amount = float64(obj.AmountPaid) / 100
		return ev, nil
	case "invoice.payment_failed":
		ev.Kind = KindChargeFailed
		a.fillCharge(ev, &obj)
		ev.Amount = float64(obj.AmountDue) / 100
		ev.FailureReason = "payment_failed"
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: stripe %s", ErrUnsupportedEvent, raw.Type)
	}

	// Subscription lifecycle events carry the subscription object itself.
	ev.ExternalSubscriptionID = obj.ID
	ev.ExternalCustomerID = obj.Customer
	ev.RawStatus = obj.Status
	if obj.Plan != nil {
		ev.Amount = float64(obj.Plan.Amount) / 100
		ev.Currency = strings.ToUpper(obj.Plan.Currency)
	}
	if obj.CurrentPeriodStart > 0 {
		t := time.Unix(obj.CurrentPeriodStart, 0).UTC()
		ev.PeriodStart = &t
	}
	if obj.CurrentPeriodEnd > 0 {
		t := time.Unix(obj.CurrentPeriodEnd, 0).UTC()
		ev.PeriodEnd = &t
	}
	if obj.TrialEnd > 0 {
		t := time.Unix(obj.TrialEnd, 0).UTC()
		ev.TrialEndsAt = &t
	}
	return ev, nil
}

// fillCharge populates the fields shared by invoice events.
func (a *StripeAdapter) fillCharge(ev *Event, obj *stripeObject) {
	ev.ExternalTransactionID = obj.ID
	ev.ExternalSubscriptionID = obj.Subscription
	ev.ExternalCustomerID = obj.Customer
	ev.Currency = strings.ToUpper(obj.Currency)
	if obj.PeriodStart > 0 {
		t := time.Unix(obj.PeriodStart, 0).UTC()
		ev.PeriodStart = &t
	}
	if obj.PeriodEnd > 0 {
		t := time.Unix(obj.PeriodEnd, 0).UTC()
		ev.PeriodEnd = &t
	}
}
