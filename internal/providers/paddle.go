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

// PaddleAdapter verifies and normalizes Paddle billing webhook deliveries.
type PaddleAdapter struct {
	secret string
	now    func() time.Time
}

func NewPaddleAdapter(secret string) *PaddleAdapter {
	return &PaddleAdapter{secret: secret, now: time.Now}
}

func (a *PaddleAdapter) Name() Provider { return ProviderPaddle }

func (a *PaddleAdapter) SignatureHeader() string { return "Paddle-Signature" }

// VerifySignature checks the "ts=<ts>;h1=<hmac>" header. The HMAC-SHA256 is
// computed over "<ts>:<raw body>".
func (a *PaddleAdapter) VerifySignature(body []byte, header string) bool {
	var ts, sig string
	for _, part := range strings.Split(header, ";") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "h1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
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
	fmt.Fprintf(mac, "%s:", ts)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}

type paddleEvent struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	OccurredAt string `json:"occurred_at"`
	Data       struct {
		ID                   string `json:"id"`
		CustomerID           string `json:"customer_id"`
		SubscriptionID       string `json:"subscription_id"`
		Status               string `json:"status"`
		CurrentBillingPeriod *struct {
			StartsAt string `json:"starts_at"`
			EndsAt   string `json:"ends_at"`
		} `json:"current_billing_period"`
		TrialDates *struct {
			EndsAt string `json:"ends_at"`
		} `json:"trial_dates"`
		Items []struct {
			Price struct {
				UnitPrice struct {
					Amount       string `json:"amount"`
					CurrencyCode string `json:"currency_code"`
				} `json:"unit_price"`
			} `json:"price"`
		} `json:"items"`
		Details *struct {
			Totals struct {
				Total        string `json:"total"`
				CurrencyCode string `json:"currency_code"`
			} `json:"totals"`
		} `json:"details"`
	} `json:"data"`
}

func (a *PaddleAdapter) Normalize(body []byte) (*Event, error) {
	var raw paddleEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw.EventID == "" || raw.EventType == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedPayload)
	}

	ev := &Event{
		Provider:        ProviderPaddle,
		ExternalEventID: raw.EventID,
		Raw:             json.RawMessage(body),
		EffectiveAt:     time.Now().UTC(),
	}
	if t, err := time.Parse(time.RFC3339, raw.OccurredAt); err == nil {
		ev.EffectiveAt = t.UTC()
	}

	data := raw.Data
	switch raw.EventType {
	case "subscription.created":
		ev.Kind = KindSubscriptionCreated
	case "subscription.updated", "subscription.paused":
		ev.Kind = KindSubscriptionUpdated
	case "subscription.canceled":
		ev.Kind = KindSubscriptionCancelled
	case "subscription.resumed":
		ev.Kind = KindSubscriptionReactivated
	case "transaction.completed":
		ev.Kind = KindChargeSucceeded
		return a.fillTransaction(ev, &raw), nil
	case "transaction.payment_failed":
		ev.Kind = KindChargeFailed
		ev.FailureReason = "payment_failed"
		return a.fillTransaction(ev, &raw), nil
	default:
		return nil, fmt.Errorf("%w: paddle %s", ErrUnsupportedEvent, raw.EventType)
	}

	ev.ExternalSubscriptionID = data.ID
	ev.ExternalCustomerID = data.CustomerID
	ev.RawStatus = data.Status
	if len(data.Items) > 0 {
		unit := data.Items[0].Price.UnitPrice
		if v, err := strconv.ParseFloat(unit.Amount, 64); err == nil {
			// Paddle amounts are in the currency's lowest denomination.
			ev.Amount = v / 100
		}
		ev.Currency = unit.CurrencyCode
	}
	if p := data.CurrentBillingPeriod; p != nil {
		if t, err := time.Parse(time.RFC3339, p.StartsAt); err == nil {
			u := t.UTC()
			ev.PeriodStart = &u
		}
		if t, err := time.Parse(time.RFC3339, p.EndsAt); err == nil {
			u := t.UTC()
			ev.PeriodEnd = &u
		}
	}
	if d := data.TrialDates; d != nil {
		if t, err := time.Parse(time.RFC3339, d.EndsAt); err == nil {
			u := t.UTC()
			ev.TrialEndsAt = &u
		}
	}
	return ev, nil
}

// fillTransaction populates charge fields from a paddle transaction payload.
func (a *PaddleAdapter) fillTransaction(ev *Event, raw *paddleEvent) *Event {
	data := raw.Data
	ev.ExternalTransactionID = data.ID
	ev.ExternalSubscriptionID = data.SubscriptionID
	ev.ExternalCustomerID = data.CustomerID
	if d := data.Details; d != nil {
		if v, err := strconv.ParseFloat(d.Totals.Total, 64); err == nil {
			ev.Amount = v / 100
		}
		ev.Currency = d.Totals.CurrencyCode
	}
	return ev
}
