package parsers

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/ahorrito/src/models"
)

// MerchantNotIdentified is the sentinel merchant used when no pattern
// captures a merchant name.
const MerchantNotIdentified = "Comercio no identificado"

// ParseResult carries the outcome of parsing one notification text.
// Failures are values, not errors: callers decide whether to drop the
// notification or surface the message.
type ParseResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	models.ParsedNotification
}

// NotificationParser converts unstructured bank notification text into a
// structured transaction candidate. It is a pure function over its
// input: no network, no persistence.
type NotificationParser struct{}

func NewNotificationParser() *NotificationParser {
	return &NotificationParser{}
}

var expenseKeywords = []string{"compra", "pago", "consumo", "débito", "debito", "gasto", "compraste", "pagaste"}

var incomeKeywords = []string{"abono", "crédito", "credito", "depósito", "deposito", "recibiste"}

// specialTypeLabels flavor the generated description; they never
// override the expense/income classification.
var specialTypeLabels = []struct {
	keyword string
	label   string
}{
	{"recarga", "Recarga"},
	{"retiro", "Retiro"},
	{"transferencia", "Transferencia"},
	{"depósito", "Depósito"},
	{"deposito", "Depósito"},
}

// Parse extracts a transaction candidate from raw notification text,
// using the bank hint to pick a rule set (generic when absent or
// unknown).
func (p *NotificationParser) Parse(rawText, bankHint string) ParseResult {
	text := strings.TrimSpace(rawText)
	if text == "" {
		return ParseResult{Success: false, Error: "notification text is empty"}
	}

	rule := ruleForBank(bankHint)
	lower := strings.ToLower(text)

	result := ParseResult{}
	result.Bank = rule.key

	amount, ok := extractAmount(text, rule)
	if !ok {
		return ParseResult{Success: false, Error: "no amount could be extracted from notification text"}
	}
	result.Amount = amount

	result.Merchant = extractMerchant(text, rule)
	result.Reference = firstSubmatch(text, rule.referencePattern)
	result.DateToken = firstSubmatch(text, rule.datePattern)
	result.CardLast4 = firstSubmatch(text, rule.cardPattern)
	result.Phone = firstSubmatch(text, rule.phonePattern)

	result.TransactionType = classifyDirection(lower)
	result.Description = buildDescription(lower, &result.ParsedNotification)

	result.Success = true
	return result
}

// extractAmount applies the rule's amount pattern and normalizes the
// captured token (currency symbol and thousands separators stripped)
// into an exact decimal.
func extractAmount(text string, rule *bankRule) (decimal.Decimal, bool) {
	matches := rule.amountPattern.FindStringSubmatch(text)
	if matches == nil {
		matches = genericAmountPattern.FindStringSubmatch(text)
	}
	if matches == nil {
		return decimal.Zero, false
	}
	// First non-empty capture group wins; some patterns use alternation.
	for _, group := range matches[1:] {
		if group != "" {
			return normalizeAmountToken(group)
		}
	}
	return decimal.Zero, false
}

// normalizeAmountToken turns tokens like "45.000", "45.000,50" or
// "45,000.50" into decimals. Whichever of '.' and ',' appears last is
// the decimal separator; a lone separator followed by exactly three
// digits is a thousands separator (Colombian convention).
func normalizeAmountToken(token string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(token)
	s = strings.ReplaceAll(s, " ", "")
	// A valid amount never starts or ends with a separator; the greedy
	// capture can drag one in (e.g. "45.000," before a clause break).
	s = strings.Trim(s, ".,")
	if s == "" {
		return decimal.Zero, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(s, ".") == 1 && len(s)-lastDot-1 <= 2 {
			// Decimal point, keep as is.
		} else {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

func extractMerchant(text string, rule *bankRule) string {
	for _, pattern := range rule.merchantPatterns {
		if matches := pattern.FindStringSubmatch(text); matches != nil {
			merchant := strings.TrimSpace(matches[1])
			if merchant != "" {
				return merchant
			}
		}
	}
	return MerchantNotIdentified
}

func firstSubmatch(text string, pattern *regexp.Regexp) string {
	if pattern == nil {
		return ""
	}
	if matches := pattern.FindStringSubmatch(text); matches != nil {
		return strings.TrimSpace(matches[1])
	}
	return ""
}

// classifyDirection scans for expense and income keywords; expense
// keywords take precedence, and an amount with no keyword defaults to
// EXPENSE.
func classifyDirection(lower string) models.TransactionType {
	for _, kw := range expenseKeywords {
		if strings.Contains(lower, kw) {
			return models.TypeExpense
		}
	}
	for _, kw := range incomeKeywords {
		if strings.Contains(lower, kw) {
			return models.TypeIncome
		}
	}
	return models.TypeExpense
}

func buildDescription(lower string, parsed *models.ParsedNotification) string {
	for _, special := range specialTypeLabels {
		if strings.Contains(lower, special.keyword) {
			if parsed.Merchant != MerchantNotIdentified {
				return special.label + " - " + parsed.Merchant
			}
			return special.label + " por $" + parsed.Amount.String()
		}
	}
	if parsed.TransactionType == models.TypeIncome {
		return "Ingreso por $" + parsed.Amount.String()
	}
	if parsed.Merchant != MerchantNotIdentified {
		return "Compra en " + parsed.Merchant
	}
	return "Compra por $" + parsed.Amount.String()
}
