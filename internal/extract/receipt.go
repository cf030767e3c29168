package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultCurrencySymbol is the symbol receipts are assumed to use
	DefaultCurrencySymbol = "₹"

	// UnknownMerchant is used when no header line looks like a name
	UnknownMerchant = "Unknown Merchant"

	// ReceiptDateLayout formats the fallback date (DD/MM/YYYY)
	ReceiptDateLayout = "02/01/2006"
)

var datePattern = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{4}`)

// ReceiptParser reads merchant, date, total and line items out of OCR text.
// It handles a single currency symbol.
type ReceiptParser struct {
	symbol  string
	amounts *regexp.Regexp
	now     func() time.Time
}

// ReceiptOption configures a ReceiptParser
type ReceiptOption func(*ReceiptParser)

// WithClock sets the clock used for the fallback date
func WithClock(now func() time.Time) ReceiptOption {
	return func(p *ReceiptParser) {
		p.now = now
	}
}

// NewReceiptParser creates a parser for amounts prefixed with symbol
// (DefaultCurrencySymbol when empty).
func NewReceiptParser(symbol string, opts ...ReceiptOption) *ReceiptParser {
	if symbol == "" {
		symbol = DefaultCurrencySymbol
	}
	symbol = norm.NFKC.String(symbol)
	p := &ReceiptParser{
		symbol:  symbol,
		amounts: regexp.MustCompile(regexp.QuoteMeta(symbol) + `\s*\d[\d,]*(?:\.\d+)?`),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse never fails; missing pieces fall back to defaults
func (p *ReceiptParser) Parse(text string) ReceiptData {
	lines := splitLines(norm.NFKC.String(text))

	data := ReceiptData{
		MerchantName: p.merchant(lines),
		Date:         p.date(lines),
		Items:        []LineItem{},
		RawText:      text,
	}

	for _, line := range lines {
		for _, match := range p.amounts.FindAllString(line, -1) {
			amount, ok := p.parseAmount(match)
			if !ok {
				continue
			}
			if data.TotalAmount == nil || amount > *data.TotalAmount {
				total := amount
				data.TotalAmount = &total
			}
		}

		if !strings.Contains(line, p.symbol) || utf8.RuneCountInString(line) <= 5 {
			continue
		}
		data.Items = append(data.Items, p.lineItem(line))
	}
	data.ItemCount = len(data.Items)

	return data
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// merchant picks the first plausible name among the first three lines
func (p *ReceiptParser) merchant(lines []string) string {
	for i, line := range lines {
		if i == 3 {
			break
		}
		if utf8.RuneCountInString(line) <= 3 || isAllDigits(line) {
			continue
		}
		if strings.Contains(line, p.symbol) || datePattern.MatchString(line) {
			continue
		}
		return line
	}
	return UnknownMerchant
}

func (p *ReceiptParser) date(lines []string) string {
	for _, line := range lines {
		if d := datePattern.FindString(line); d != "" {
			return d
		}
	}
	return p.now().Format(ReceiptDateLayout)
}

// lineItem uses the first amount on the line. A line whose symbol is not
// followed by a number gets price 0 and keeps its full text.
func (p *ReceiptParser) lineItem(line string) LineItem {
	loc := p.amounts.FindStringIndex(line)
	if loc == nil {
		return LineItem{Description: line}
	}

	price, _ := p.parseAmount(line[loc[0]:loc[1]])
	return LineItem{
		Description: strings.TrimSpace(line[:loc[0]] + line[loc[1]:]),
		Price:       price,
	}
}

func (p *ReceiptParser) parseAmount(match string) (float64, bool) {
	digits := strings.TrimSpace(strings.TrimPrefix(match, p.symbol))
	digits = strings.ReplaceAll(digits, ",", "")
	amount, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	return amount, true
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
