package parsers

import (
	"regexp"
	"strings"
)

// bankRule is one bank's extraction pattern set. Rules are data, not
// control flow: adding a bank means adding an entry to bankRules.
type bankRule struct {
	key              string
	amountPattern    *regexp.Regexp
	merchantPatterns []*regexp.Regexp
	referencePattern *regexp.Regexp
	datePattern      *regexp.Regexp
	cardPattern      *regexp.Regexp
	phonePattern     *regexp.Regexp
}

// Generic merchant alternatives, tried in order after any bank-specific
// pattern. The first capturing match wins.
var genericMerchantPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)compra\s+en\s+(.+?)(?:\s+por\s+\$|\s+con\s+|\s+el\s+\d|[\.,;]|$)`),
	regexp.MustCompile(`(?i)pago\s+en\s+(.+?)(?:\s+por\s+\$|\s+con\s+|\s+el\s+\d|[\.,;]|$)`),
	regexp.MustCompile(`(?i)transacci[oó]n\s+en\s+(.+?)(?:\s+por\s+\$|\s+con\s+|\s+el\s+\d|[\.,;]|$)`),
}

var (
	genericAmountPattern    = regexp.MustCompile(`\$\s*([0-9][0-9\.,]*)`)
	genericReferencePattern = regexp.MustCompile(`(?i)(?:ref(?:erencia)?|aprobaci[oó]n|autorizaci[oó]n)[:\.\s]+([A-Za-z0-9\-]+)`)
	genericDatePattern      = regexp.MustCompile(`\b(\d{1,2}/\d{1,2}/\d{2,4})\b`)
	genericCardPattern      = regexp.MustCompile(`\*+\s?(\d{4})\b`)
	genericPhonePattern     = regexp.MustCompile(`\b(3\d{9})\b`)
)

var genericRule = &bankRule{
	key:              "generic",
	amountPattern:    genericAmountPattern,
	merchantPatterns: genericMerchantPatterns,
	referencePattern: genericReferencePattern,
	datePattern:      genericDatePattern,
	cardPattern:      genericCardPattern,
	phonePattern:     genericPhonePattern,
}

// bankRules maps a normalized bank key to its rule set. Every lookup
// falls back to genericRule when no key matches.
var bankRules = map[string]*bankRule{
	"bancolombia": {
		key:           "bancolombia",
		amountPattern: regexp.MustCompile(`(?i)(?:por|de)?\s*\$\s*([0-9][0-9\.,]*)`),
		merchantPatterns: append([]*regexp.Regexp{
			regexp.MustCompile(`(?i)compraste\s+(?:\$[0-9\.,]+\s+)?en\s+(.+?)(?:\s+con\s+|\s+el\s+\d|[\.,;]|$)`),
		}, genericMerchantPatterns...),
		referencePattern: genericReferencePattern,
		datePattern:      genericDatePattern,
		cardPattern:      regexp.MustCompile(`(?i)(?:t\.?\s*|tarjeta\s+)?\*+\s?(\d{4})\b`),
		phonePattern:     genericPhonePattern,
	},
	"nequi": {
		key:           "nequi",
		amountPattern: genericAmountPattern,
		merchantPatterns: append([]*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:pagaste|enviaste)\s+(?:\$[0-9\.,]+\s+)?(?:a|en)\s+(.+?)(?:\s+desde\s+|[\.,;]|$)`),
		}, genericMerchantPatterns...),
		referencePattern: genericReferencePattern,
		datePattern:      genericDatePattern,
		cardPattern:      genericCardPattern,
		phonePattern:     genericPhonePattern,
	},
	"daviplata": {
		key:           "daviplata",
		amountPattern: genericAmountPattern,
		merchantPatterns: append([]*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:pagaste|compraste)\s+(?:\$[0-9\.,]+\s+)?en\s+(.+?)(?:[\.,;]|$)`),
		}, genericMerchantPatterns...),
		referencePattern: genericReferencePattern,
		datePattern:      genericDatePattern,
		cardPattern:      genericCardPattern,
		phonePattern:     genericPhonePattern,
	},
	"davivienda": {
		key:           "davivienda",
		amountPattern: genericAmountPattern,
		merchantPatterns: append([]*regexp.Regexp{
			regexp.MustCompile(`(?i)compra\s+por\s+\$[0-9\.,]+\s+en\s+(.+?)(?:\s+con\s+|[\.,;]|$)`),
		}, genericMerchantPatterns...),
		referencePattern: genericReferencePattern,
		datePattern:      genericDatePattern,
		cardPattern:      genericCardPattern,
		phonePattern:     genericPhonePattern,
	},
	"bbva": {
		key:              "bbva",
		amountPattern:    regexp.MustCompile(`(?i)(?:por|de)\s+\$?\s*([0-9][0-9\.,]*)|\$\s*([0-9][0-9\.,]*)`),
		merchantPatterns: genericMerchantPatterns,
		referencePattern: genericReferencePattern,
		datePattern:      genericDatePattern,
		cardPattern:      genericCardPattern,
		phonePattern:     genericPhonePattern,
	},
}

// normalizeBankKey lowercases and trims a bank-name hint for lookup.
func normalizeBankKey(hint string) string {
	return strings.ToLower(strings.TrimSpace(hint))
}

// ruleForBank selects the rule set for a bank hint: exact key match,
// then substring match in either direction, then the generic rules.
func ruleForBank(hint string) *bankRule {
	norm := normalizeBankKey(hint)
	if norm == "" {
		return genericRule
	}
	if rule, ok := bankRules[norm]; ok {
		return rule
	}
	for key, rule := range bankRules {
		if strings.Contains(norm, key) || strings.Contains(key, norm) {
			return rule
		}
	}
	return genericRule
}
