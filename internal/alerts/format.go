package alerts

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PrimaryText is the bare contract id so downstream bots can match it with a
// plain regex.
func PrimaryText(contractID string) string {
	return contractID
}

// EscalationText adds the category markers of the reporting sources and the
// timing that let the contract through the temporal filter.
func EscalationText(contractID string, markers []string, signals int, window, age time.Duration) string {
	var b strings.Builder
	b.WriteString(contractID)
	b.WriteString("\n\n")
	if len(markers) > 0 {
		b.WriteString(strings.Join(markers, ""))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Signals%d: %d | Age: %.1f min", int(window.Minutes()), signals, age.Minutes())
	return b.String()
}

// GrowthText announces a new multiplier tier
func GrowthText(contractID string, multiplier int64, initial, ath, current decimal.Decimal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚀 %dx 🚀\n\n", multiplier)
	b.WriteString(contractID)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Initial: $%s\n", addCommas(initial))
	fmt.Fprintf(&b, "ATH: $%s\n", addCommas(ath))
	fmt.Fprintf(&b, "Current: $%s", addCommas(current))
	return b.String()
}

// addCommas renders a whole-dollar amount with thousands separators
func addCommas(d decimal.Decimal) string {
	s := d.Round(0).StringFixed(0)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
