// Package extract classifies decoded content and turns it into typed payloads.
package extract

import (
	"encoding/json"
	"fmt"
	"time"
)

// PayloadType is the JSON discriminator of a Payload
type PayloadType string

const (
	PayloadUPIPayment PayloadType = "upi_payment"
	PayloadURL        PayloadType = "url"
	PayloadProduct    PayloadType = "product"
	PayloadText       PayloadType = "text"
	PayloadReceipt    PayloadType = "receipt"
)

// Payload is the structured data extracted from one recognition.
// The set of implementations is closed.
type Payload interface {
	PayloadType() PayloadType
	sealed()
}

// UPIPayment is a parsed upi://pay intent. Every field is optional.
type UPIPayment struct {
	PayeeAddress   string `json:"payee_address,omitempty"`
	PayeeName      string `json:"payee_name,omitempty"`
	Amount         string `json:"amount,omitempty"`
	Currency       string `json:"currency"`
	Note           string `json:"note,omitempty"`
	MerchantCode   string `json:"merchant_code,omitempty"`
	TransactionRef string `json:"transaction_ref,omitempty"`
}

// URLContent is a link and its host
type URLContent struct {
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

// ProductInfo describes a scanned retail barcode
type ProductInfo struct {
	Barcode   string    `json:"barcode"`
	Name      string    `json:"name"`
	Brand     string    `json:"brand"`
	Category  string    `json:"category"`
	Price     string    `json:"price"`
	Format    string    `json:"format"`
	ScannedAt time.Time `json:"scanned_at"`
}

// GenericText is decoded content with no better interpretation
type GenericText struct {
	Content string `json:"content"`
	Length  int    `json:"length"`
}

// LineItem is one priced line of a receipt
type LineItem struct {
	Description string  `json:"description"`
	Price       float64 `json:"price"`
}

// ReceiptData is the heuristic reading of OCR'd receipt text
type ReceiptData struct {
	MerchantName string     `json:"merchant_name"`
	Date         string     `json:"date"`
	TotalAmount  *float64   `json:"total_amount"`
	Items        []LineItem `json:"items"`
	ItemCount    int        `json:"item_count"`
	RawText      string     `json:"raw_text"`
}

func (UPIPayment) PayloadType() PayloadType  { return PayloadUPIPayment }
func (URLContent) PayloadType() PayloadType  { return PayloadURL }
func (ProductInfo) PayloadType() PayloadType { return PayloadProduct }
func (GenericText) PayloadType() PayloadType { return PayloadText }
func (ReceiptData) PayloadType() PayloadType { return PayloadReceipt }

func (UPIPayment) sealed()  {}
func (URLContent) sealed()  {}
func (ProductInfo) sealed() {}
func (GenericText) sealed() {}
func (ReceiptData) sealed() {}

type envelope struct {
	Type PayloadType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalPayload encodes p as {"type": ..., "data": ...}
func MarshalPayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", p.PayloadType(), err)
	}
	return json.Marshal(envelope{Type: p.PayloadType(), Data: data})
}

// UnmarshalPayload decodes the output of MarshalPayload
func UnmarshalPayload(data []byte) (Payload, error) {
	if string(data) == "null" {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshaling payload envelope: %w", err)
	}

	var (
		p   Payload
		err error
	)
	switch env.Type {
	case PayloadUPIPayment:
		var v UPIPayment
		err = json.Unmarshal(env.Data, &v)
		p = v
	case PayloadURL:
		var v URLContent
		err = json.Unmarshal(env.Data, &v)
		p = v
	case PayloadProduct:
		var v ProductInfo
		err = json.Unmarshal(env.Data, &v)
		p = v
	case PayloadText:
		var v GenericText
		err = json.Unmarshal(env.Data, &v)
		p = v
	case PayloadReceipt:
		var v ReceiptData
		err = json.Unmarshal(env.Data, &v)
		if v.Items == nil {
			v.Items = []LineItem{}
		}
		p = v
	default:
		return nil, fmt.Errorf("unknown payload type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshaling %s payload: %w", env.Type, err)
	}
	return p, nil
}
