// Package payment hands parsed UPI intents off to whatever handles payments.
package payment

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/zombor/scanlens/internal/extract"
)

// Dispatcher receives a UPI payment intent. Callers do not wait on or act
// upon the outcome.
type Dispatcher interface {
	Dispatch(ctx context.Context, p extract.UPIPayment) error
}

// IntentURI rebuilds a canonical upi://pay link from p
func IntentURI(p extract.UPIPayment) string {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("pa", p.PayeeAddress)
	set("pn", p.PayeeName)
	set("am", p.Amount)
	set("cu", p.Currency)
	set("tn", p.Note)
	set("mc", p.MerchantCode)
	set("tr", p.TransactionRef)

	u := url.URL{Scheme: "upi", Host: "pay", RawQuery: q.Encode()}
	return u.String()
}

// LogDispatcher only records the intent
type LogDispatcher struct{}

// Dispatch logs the intent URI
func (LogDispatcher) Dispatch(ctx context.Context, p extract.UPIPayment) error {
	slog.Info("Payment intent", "uri", IntentURI(p), "payee", p.PayeeAddress, "amount", p.Amount, "currency", p.Currency)
	return nil
}
