package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// PaypalAdapter verifies and normalizes PayPal billing webhook deliveries.
type PaypalAdapter struct {
	secret string
}

func NewPaypalAdapter(secret string) *PaypalAdapter {
	return &PaypalAdapter{secret: secret}
}

func (a *PaypalAdapter) Name() Provider { return ProviderPaypal }

func (a *PaypalAdapter) SignatureHeader() string { return "Paypal-Transmission-Sig" }

// VerifySignature checks an HMAC-SHA256 hex digest of the raw body keyed by
// the webhook shared secret.
func (a *PaypalAdapter) VerifySignature(body []byte, header string) bool {
	if header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(header), []byte(expected))
}

type paypalEvent struct {
	ID         string `json:"id"`
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time"`
	Resource   struct {
		ID                 string `json:"id"`
		Status             string `json:"status"`
		BillingAgreementID string `json:"billing_agreement_id"`
		Subscriber         struct {
			PayerID string `json:"payer_id"`
		} `json:"subscriber"`
		Amount struct {
			Total    string `json:"total"`
			Currency string `json:"currency"`
		} `json:"amount"`
		BillingInfo struct {
			NextBillingTime string `json:"next_billing_time"`
			LastPayment     struct {
				Amount struct {
					Value        string `json:"value"`
					CurrencyCode string `json:"currency_code"`
				} `json:"amount"`
			} `json:"last_payment"`
		} `json:"billing_info"`
	} `json:"resource"`
	Summary string `json:"summary"`
}

func (a *PaypalAdapter) Normalize(body []byte) (*Event, error) {
	var raw paypalEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw.ID == "" || raw.EventType == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedPayload)
	}

	ev := &Event{
		Provider:        ProviderPaypal,
		ExternalEventID: raw.ID,
		Raw:             json.RawMessage(body),
		EffectiveAt:     time.Now().UTC(),
	}
	if t, err := time.Parse(time.RFC3339, raw.CreateTime); err == nil {
		ev.EffectiveAt = t.UTC()
	}

	res := raw.Resource
	switch raw.EventType {
	case "BILLING.SUBSCRIPTION.CREATED":
		ev.Kind = KindSubscriptionCreated
	case "BILLING.SUBSCRIPTION.ACTIVATED", "BILLING.SUBSCRIPTION.UPDATED",
		"BILLING.SUBSCRIPTION.SUSPENDED", "BILLING.SUBSCRIPTION.EXPIRED":
		ev.Kind = KindSubscriptionUpdated
	case "BILLING.SUBSCRIPTION.CANCELLED":
		ev.Kind = KindSubscriptionCancelled
	case "BILLING.SUBSCRIPTION.RE-ACTIVATED":
		ev.Kind = KindSubscriptionReactivated
	case "PAYMENT.SALE.COMPLETED":
		ev.Kind = KindChargeSucceeded
		return a.fillSale(ev, &raw), nil
	case "PAYMENT.SALE.DENIED":
		ev.Kind = KindChargeFailed
		ev.FailureReason = raw.Summary
		if ev.FailureReason == "" {
			ev.FailureReason = "payment_denied"
		}
		return a.fillSale(ev, &raw), nil
	default:
		return nil, fmt.Errorf("%w: paypal %s", ErrUnsupportedEvent, raw.EventType)
	}

	ev.ExternalSubscriptionID = res.ID
	ev.ExternalCustomerID = res.Subscriber.PayerID
	ev.RawStatus = res.Status
	if v, err := strconv.ParseFloat(res.BillingInfo.LastPayment.Amount.Value, 64); err == nil {
		ev.Amount = v
		ev.Currency = res.BillingInfo.LastPayment.Amount.CurrencyCode
	}
	if t, err := time.Parse(time.RFC3339, res.BillingInfo.NextBillingTime); err == nil {
		u := t.UTC()
		ev.PeriodEnd = &u
	}
	return ev, nil
}

// fillSale populates charge fields from a PAYMENT.SALE resource, where the
// sale id is the transaction and billing_agreement_id references the
// subscription.
func (a *PaypalAdapter) fillSale(ev *Event, raw *paypalEvent) *Event {
	res := raw.Resource
	ev.ExternalTransactionID = res.ID
	ev.ExternalSubscriptionID = res.BillingAgreementID
	if v, err := strconv.ParseFloat(res.Amount.Total, 64); err == nil {
		ev.Amount = v
	}
	ev.Currency = res.Amount.Currency
	return ev
}
