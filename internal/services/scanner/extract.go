package scanner

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	UnknownRetailer = "Unknown Retailer"
	UnknownProduct  = "Unknown Product"
)

var returnKeywords = []string{
	"return", "refund", "money back", "rma", "return merchandise",
	"shipped", "order", "purchase", "receipt",
}

var retailerSuffixes = []string{
	" Inc", " LLC", " Ltd", " Team", " Support", " Customer Service",
	" Store", " Shop", " US", " USA", " NA", " Help", " Orders",
	" Receipts", " Order Confirmation", " noreply", " no-reply",
	" Notifications", " Info", " Mail",
}

var retailerPrefixes = []string{
	"The ", "Order from ", "Your Order from ", "Receipt from ",
	"orders@", "support@", "noreply@", "no-reply@", "info@",
	"customerservice@", "notifications@",
}

var subjectProductPatterns = compileAll(
	`(?i)return.*?for\s+(.+?)\s+confirmed`,
	`(?i)your\s+(.+?)\s+return`,
	`(?i)return\s+confirmation\s+for\s+(.+)`,
	`(?i)refund\s+for\s+(.+)`,
)

var bodyProductPatterns = compileAll(
	`(?i)item[:\s]+([\w-]+)`,
	`(?i)product[:\s]+([\w-]+)`,
	`(?i)order\s+item[:\s]+(.+?)(?:\n|\.|$)`,
)

var amountPatterns = compileAll(
	`(?i)refund\s+amount[:\s]+\$?(\d+\.\d{2})`,
	`(?i)amount[:\s]+\$?(\d+\.\d{2})`,
	`(?i)\$(\d+\.\d{2})\s+refund`,
	`\$(\d+\.\d{2})`,
)

var headerDateLayouts = []string{
	"Mon, 02 Jan 2006 15:04:05 -0700",
	"02 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// IsReturnEmail is a case-insensitive keyword match over subject and body.
func IsReturnEmail(subject, body string) bool {
	s := strings.ToLower(subject)
	b := strings.ToLower(body)
	for _, kw := range returnKeywords {
		if strings.Contains(s, kw) || strings.Contains(b, kw) {
			return true
		}
	}
	return false
}

// ExtractRetailer derives a merchant name from a From header.
func ExtractRetailer(from string) string {
	from = strings.TrimSpace(from)
	lt := strings.Index(from, "<")

	if lt >= 0 {
		if display := strings.TrimSpace(from[:lt]); display != "" {
			if clean := cleanupRetailer(display); utf8.RuneCountInString(clean) > 1 {
				return clean
			}
		}
	}

	addr := from
	if lt >= 0 {
		addr = from[lt+1:]
	}
	at := strings.Index(addr, "@")
	if at < 0 {
		return UnknownRetailer
	}
	domain := strings.TrimRight(addr[at+1:], ">")
	if dot := strings.Index(domain, "."); dot >= 0 {
		domain = domain[:dot]
	}
	if clean := cleanupRetailer(domain); clean != "" {
		return clean
	}
	return UnknownRetailer
}

func cleanupRetailer(name string) string {
	res := strings.TrimSpace(strings.ReplaceAll(name, `"`, ""))
	for _, suf := range retailerSuffixes {
		res = strings.TrimSuffix(res, suf)
	}
	for _, pre := range retailerPrefixes {
		res = strings.TrimPrefix(res, pre)
	}
	return titleCase(strings.TrimSpace(res))
}

func titleCase(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if size == 0 {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

// ExtractProduct tries subject patterns, then body patterns, in order.
func ExtractProduct(subject, body string) string {
	if p := firstCapture(subjectProductPatterns, subject); p != "" {
		return p
	}
	if p := firstCapture(bodyProductPatterns, body); p != "" {
		return p
	}
	return UnknownProduct
}

// ExtractAmount returns the first currency amount matched by the ordered patterns, or 0.
func ExtractAmount(body string) float64 {
	s := firstCapture(amountPatterns, body)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func firstCapture(patterns []*regexp.Regexp, s string) string {
	for _, re := range patterns {
		m := re.FindStringSubmatch(s)
		if len(m) > 1 {
			if v := strings.TrimSpace(m[1]); v != "" {
				return v
			}
		}
	}
	return ""
}

// ParseHeaderDate parses an RFC 5322 style Date header against the fixed layouts.
func ParseHeaderDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	// "... +0000 (UTC)"
	if i := strings.LastIndex(s, " ("); i > 0 && strings.HasSuffix(s, ")") {
		s = s[:i]
	}
	for _, layout := range headerDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
