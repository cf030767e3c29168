package extract

import (
	"net/url"
	"strings"
)

// DefaultCurrency is assumed when a UPI intent carries no cu parameter
const DefaultCurrency = "INR"

// ParseUPI reads the query of a upi://pay link. Malformed pairs are skipped
// and the rest kept, so the result may be partially populated.
func ParseUPI(raw string) UPIPayment {
	payment := UPIPayment{Currency: DefaultCurrency}

	i := strings.Index(raw, "?")
	if i < 0 {
		return payment
	}

	// ParseQuery keeps every pair it could decode alongside the first error
	values, _ := url.ParseQuery(raw[i+1:])
	params := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[strings.ToLower(k)] = v[0]
		}
	}

	payment.PayeeAddress = params["pa"]
	payment.PayeeName = params["pn"]
	payment.Amount = params["am"]
	payment.Note = params["tn"]
	payment.MerchantCode = params["mc"]
	payment.TransactionRef = params["tr"]
	if cu := params["cu"]; cu != "" {
		payment.Currency = cu
	}
	return payment
}
