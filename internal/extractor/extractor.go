// Package extractor finds candidate token contract identifiers in free text.
package extractor

import (
	"regexp"
	"strings"

	"github.com/mr-tron/base58"
)

// A Solana public key is 32 bytes, which base58-encodes to 32-44 characters.
const pubkeyLen = 32

var (
	candidateRe = regexp.MustCompile(`\b[a-zA-Z0-9]{32,44}\b`)
	labelledRe  = regexp.MustCompile(`(?i)(?:contract|контракт|\bca)\s*:\s*([a-zA-Z0-9]{32,44})\b`)
	linkRe      = regexp.MustCompile(`https?://(?:www\.)?(?:dexscreener\.com|birdeye\.so|pump\.fun|photon-sol\.tinyastro\.io|gmgn\.ai|bullx\.io|axiom\.trade|solscan\.io)/[^\s\)\]]+`)
)

// Extract returns the distinct contract identifiers found in text, in order
// of first appearance. Identifiers come from three places:
//
//   - links to well-known token pages (dexscreener, pump.fun, birdeye, ...)
//   - an explicit "Contract: <id>" label
//   - bare 32-44 character runs that look like launchpad mints
//
// Bare runs are noisy (wallets, tx signatures, prose) so they must also carry
// a launchpad hint: "pump" or "moon" in the id, or a leading digit.
func Extract(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var found []string

	clean := text
	for _, link := range linkRe.FindAllString(text, -1) {
		if id := idFromLink(link); id != "" {
			found = appendUnique(found, id)
		}
		clean = strings.Replace(clean, link, " ", 1)
	}

	for _, m := range labelledRe.FindAllStringSubmatch(clean, -1) {
		if IsContractID(m[1]) {
			found = appendUnique(found, m[1])
		}
	}

	for _, candidate := range candidateRe.FindAllString(clean, -1) {
		if hasLaunchpadHint(candidate) && isMixedCase(candidate) && IsContractID(candidate) {
			found = appendUnique(found, candidate)
		}
	}

	return found
}

// IsContractID reports whether s decodes as a base58 public key
func IsContractID(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(raw) == pubkeyLen
}

func hasLaunchpadHint(s string) bool {
	lower := strings.ToLower(s)
	if strings.Contains(lower, "pump") || strings.Contains(lower, "moon") {
		return true
	}
	return s[0] >= '0' && s[0] <= '9'
}

func isMixedCase(s string) bool {
	hasUpper, hasLower := false, false
	for _, c := range s {
		switch {
		case c >= 'A' && c <= 'Z':
			hasUpper = true
		case c >= 'a' && c <= 'z':
			hasLower = true
		}
	}
	return hasUpper && hasLower
}

// idFromLink returns the last path segment or query value of link that is a
// valid contract id.
func idFromLink(link string) string {
	link = strings.TrimRight(link, "/.,!")
	if idx := strings.IndexAny(link, "?#"); idx > 0 {
		for _, param := range strings.Split(link[idx+1:], "&") {
			if _, val, ok := strings.Cut(param, "="); ok && IsContractID(val) {
				return val
			}
		}
		link = link[:idx]
	}

	parts := strings.Split(link, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if IsContractID(parts[i]) {
			return parts[i]
		}
	}
	return ""
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}
