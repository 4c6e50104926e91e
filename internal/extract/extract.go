// Package extract implements deterministic trust-claim extraction from
// plain-text pages. Extraction is pure: the same document always yields the
// same claim set.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/oversift/trustwatch/internal/trust"
)

// Claim is one extracted trust assertion before persistence.
type Claim struct {
	Type       trust.ClaimType
	Key        string
	Polarity   trust.Polarity
	Snippet    string
	Confidence float64
	Meta       *trust.Numeric
}

// matcher is one entry in the fixed pattern catalogue.
type matcher struct {
	key        string
	claimType  trust.ClaimType
	polarity   trust.Polarity
	confidence float64
	re         *regexp.Regexp
	// capture extracts numeric metadata from the match, when the pattern
	// carries a number (uptime percentages).
	capture func(match []string) *trust.Numeric
}

const (
	snippetWindow = 150
	sentenceMin   = 20
	sentenceMax   = 500
)

var catalogue = []matcher{
	{
		key: "SOC2_TYPE_II", claimType: trust.ClaimCompliance, polarity: trust.PolarityNeutral, confidence: 0.95,
		re: regexp.MustCompile(`(?i)\bSOC\s*[12](\s*Type\s*(II|I|1|2))?\b`),
	},
	{
		key: "ISO_27001", claimType: trust.ClaimCompliance, polarity: trust.PolarityNeutral, confidence: 0.95,
		re: regexp.MustCompile(`(?i)\bISO[\s/-]*27001\b`),
	},
	{
		key: "ISO_27017", claimType: trust.ClaimCompliance, polarity: trust.PolarityNeutral, confidence: 0.95,
		re: regexp.MustCompile(`(?i)\bISO[\s/-]*27017\b`),
	},
	{
		key: "ISO_27018", claimType: trust.ClaimCompliance, polarity: trust.PolarityNeutral, confidence: 0.95,
		re: regexp.MustCompile(`(?i)\bISO[\s/-]*27018\b`),
	},
	{
		key: "HIPAA", claimType: trust.ClaimCompliance, polarity: trust.PolarityNeutral, confidence: 0.9,
		re: regexp.MustCompile(`(?i)\bHIPAA\b`),
	},
	{
		key: "GDPR", claimType: trust.ClaimCompliance, polarity: trust.PolarityNeutral, confidence: 0.9,
		re: regexp.MustCompile(`(?i)\bGDPR\b`),
	},
	{
		key: "PCI_DSS", claimType: trust.ClaimCompliance, polarity: trust.PolarityNeutral, confidence: 0.9,
		re: regexp.MustCompile(`(?i)\bPCI[\s-]*DSS\b`),
	},
	{
		key: "CCPA", claimType: trust.ClaimCompliance, polarity: trust.PolarityNeutral, confidence: 0.9,
		re: regexp.MustCompile(`(?i)\bCCPA\b`),
	},
	{
		key: "FEDRAMP", claimType: trust.ClaimCompliance, polarity: trust.PolarityNeutral, confidence: 0.9,
		re: regexp.MustCompile(`(?i)\bFedRAMP\b`),
	},
	{
		key: "ENCRYPTION", claimType: trust.ClaimSecurity, polarity: trust.PolarityNeutral, confidence: 0.85,
		re: regexp.MustCompile(`(?i)\bAES[\s-]*(128|192|256)\b|\bTLS\s*1\.[0-9]\b|\bSSL\b|\bencrypt(ed|ion|s)?\b`),
	},
	{
		key: "DATA_PROTECTION", claimType: trust.ClaimPrivacy, polarity: trust.PolarityNeutral, confidence: 0.75,
		re: regexp.MustCompile(`(?i)\b(protect|secure|safeguard)\w*\b[^.!?]{0,40}\b(your\s+)?(data|information|privacy)\b`),
	},
	{
		key: "DO_NOT_SELL", claimType: trust.ClaimPrivacy, polarity: trust.PolarityNegative, confidence: 0.85,
		re: regexp.MustCompile(`(?i)\b(do\s+not|don'?t|never|will\s+not|won'?t)\s+(sell\b|share\b[^.!?]{0,40}\bthird)`),
	},
	{
		// Hedged sell/share phrasing maps to the same key so a weakened
		// rewrite of a no-sell promise versions the existing claim instead
		// of reading as a removal.
		key: "DO_NOT_SELL", claimType: trust.ClaimPrivacy, polarity: trust.PolarityNeutral, confidence: 0.7,
		re: regexp.MustCompile(`(?i)\b(may|might|could)\s+(sell|share)\b[^.!?]{0,60}\b(data|information)\b`),
	},
	{
		key: "UPTIME", claimType: trust.ClaimSLA, polarity: trust.PolarityNeutral, confidence: 0.9,
		re: regexp.MustCompile(`(?i)(\d{2,3}(?:\.\d{1,3})?)\s*%[^.!?]{0,40}\b(uptime|availability|SLA)\b|\b(uptime|availability|SLA)\b[^.!?%]{0,40}?(\d{2,3}(?:\.\d{1,3})?)\s*%`),
		capture: func(match []string) *trust.Numeric {
			for _, g := range []string{match[1], match[4]} {
				if g == "" {
					continue
				}
				if v, ok := parseFloat(g); ok {
					return &trust.Numeric{Value: v, Unit: "%"}
				}
			}
			return nil
		},
	},
	{
		key: "BACKUP", claimType: trust.ClaimSecurity, polarity: trust.PolarityNeutral, confidence: 0.75,
		re: regexp.MustCompile(`(?i)\bbackups?\b|\bredundan(t|cy)\b|\breplicat(e|ed|es|ion)\b`),
	},
	{
		key: "AUDIT", claimType: trust.ClaimCompliance, polarity: trust.PolarityNeutral, confidence: 0.8,
		re: regexp.MustCompile(`(?i)\b(independent|security)\s+audit\b|\baudit(ed|s)?\b`),
	},
	{
		key: "PENETRATION_TESTING", claimType: trust.ClaimSecurity, polarity: trust.PolarityNeutral, confidence: 0.85,
		re: regexp.MustCompile(`(?i)\b(pen|penetration|security)[\s-]*test(ing|ed|s)?\b`),
	},
	{
		key: "MFA", claimType: trust.ClaimSecurity, polarity: trust.PolarityNeutral, confidence: 0.9,
		re: regexp.MustCompile(`(?i)\btwo[\s-]*factor\b|\b2FA\b|\bmulti[\s-]*factor\b|\bMFA\b`),
	},
}

var sentenceSplit = regexp.MustCompile(`[.!?]\s+[A-Z]`)

// Extract runs the pattern catalogue over a document and returns the
// deduplicated claim set. Callers must not depend on output order.
func Extract(text, _ string) []Claim {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	best := make(map[string]Claim)

	// Ties keep the earlier representative, so sentence-scoped snippets win
	// over document windows: a sentence is stable when its neighbours change.
	consider := func(c Claim) {
		if prev, ok := best[c.Key]; ok && prev.Confidence >= c.Confidence {
			return
		}
		best[c.Key] = c
	}

	split := sentences(text)
	for _, m := range catalogue {
		for _, s := range split {
			if m.re.MatchString(s) {
				consider(m.toClaim(s, collapse(s)))
			}
		}
		if loc := m.re.FindStringIndex(text); loc != nil {
			consider(m.toClaim(text, windowSnippet(text, loc[0])))
		}
	}

	out := make([]Claim, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	return out
}

func (m matcher) toClaim(matched, snippet string) Claim {
	c := Claim{
		Type:       m.claimType,
		Key:        m.key,
		Polarity:   m.polarity,
		Snippet:    snippet,
		Confidence: m.confidence,
	}
	if m.capture != nil {
		if sub := m.re.FindStringSubmatch(matched); sub != nil {
			c.Meta = m.capture(sub)
		}
	}
	return c
}

// sentences splits text on terminal punctuation followed by whitespace and a
// capital letter, keeping fragments of reasonable length.
func sentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceSplit.FindAllStringIndex(text, -1) {
		// loc[0] points at the punctuation; the capital belongs to the next
		// sentence.
		end := loc[0] + 1
		s := strings.TrimSpace(text[start:end])
		if len(s) >= sentenceMin && len(s) <= sentenceMax {
			out = append(out, s)
		}
		start = loc[1] - 1
	}
	if s := strings.TrimSpace(text[start:]); len(s) >= sentenceMin && len(s) <= sentenceMax {
		out = append(out, s)
	}
	return out
}

// windowSnippet takes a +/-150 character window around the match index,
// collapses whitespace, and trims to the first sentence boundary within the
// leading 50 characters when one exists and the window does not start at the
// beginning of the text.
func windowSnippet(text string, idx int) string {
	lo := idx - snippetWindow
	if lo < 0 {
		lo = 0
	}
	hi := idx + snippetWindow
	if hi > len(text) {
		hi = len(text)
	}
	s := collapse(text[lo:hi])
	if cut := strings.IndexAny(first(s, 50), ".!?"); cut > 0 && lo > 0 {
		s = strings.TrimSpace(s[cut+1:])
	}
	return s
}

func first(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var spaces = regexp.MustCompile(`\s+`)

func collapse(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}
