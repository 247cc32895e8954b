package carrier

import (
	"sort"
	"strings"
)

const (
	UPS   = "ups"
	USPS  = "usps"
	FedEx = "fedex"
	DHL   = "dhl"

	// AutoDetect lets the provider figure the carrier out itself.
	AutoDetect = "shippo"
)

var prefixes = map[string]string{
	"1Z":   UPS,
	"9400": USPS,
	"9205": USPS,
	"9407": USPS,
	"94":   USPS,
	"92":   USPS,
	"93":   USPS,
	"96":   USPS,
	"FDX":  FedEx,
	"DHL":  DHL,
}

// отсортированы по убыванию длины, чтобы выигрывал самый длинный префикс
var orderedPrefixes = func() []string {
	out := make([]string, 0, len(prefixes))
	for p := range prefixes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i] < out[j]
	})
	return out
}()

// Detect guesses the carrier code for a tracking number.
// Longest matching prefix wins; 12 or 15 digit numbers are FedEx; anything else is AutoDetect.
func Detect(trackNumber string) string {
	n := strings.ToUpper(strings.TrimSpace(trackNumber))
	for _, p := range orderedPrefixes {
		if strings.HasPrefix(n, p) {
			return prefixes[p]
		}
	}
	if (len(n) == 12 || len(n) == 15) && allDigits(n) {
		return FedEx
	}
	return AutoDetect
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
