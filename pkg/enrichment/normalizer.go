package enrichment

import (
	"encoding/json"
	"fmt"

	"github.com/convoforge-ai/platform/pkg/common/models"
)

// Normalizer produces the canonical on-disk form of an enriched
// document: stable two-space indentation with control characters
// scrubbed from every string value.
type Normalizer struct {
	minBytes int64
}

func NewNormalizer(minBytes int64) *Normalizer {
	return &Normalizer{minBytes: minBytes}
}

// Normalize canonicalizes a JSON document. Control bytes in the raw
// stream and control runes inside decoded strings are removed and
// recorded as fixed issues. A document that cannot be parsed after
// byte-level cleanup is a hard failure. A suspiciously small result is
// reported as a warning, not a failure.
func (n *Normalizer) Normalize(raw []byte) ([]byte, []models.NormalizationIssue, error) {
	issues := []models.NormalizationIssue{}

	cleaned, stripped := stripControlBytes(raw)
	if stripped > 0 {
		issues = append(issues, models.NormalizationIssue{
			Severity: "warning",
			Message:  fmt.Sprintf("removed %d raw control bytes", stripped),
			Fixed:    true,
		})
	}

	var doc interface{}
	if err := json.Unmarshal(cleaned, &doc); err != nil {
		issues = append(issues, models.NormalizationIssue{
			Severity: "error",
			Message:  fmt.Sprintf("document is not parseable JSON: %v", err),
			Fixed:    false,
		})
		return nil, issues, fmt.Errorf("normalizing document: %w", err)
	}

	var scrubbed int
	doc = scrubStrings(doc, &scrubbed)
	if scrubbed > 0 {
		issues = append(issues, models.NormalizationIssue{
			Severity: "warning",
			Message:  fmt.Sprintf("removed control characters from %d string values", scrubbed),
			Fixed:    true,
		})
	}

	canonical, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, issues, fmt.Errorf("encoding canonical document: %w", err)
	}

	if n.minBytes > 0 && int64(len(canonical)) < n.minBytes {
		issues = append(issues, models.NormalizationIssue{
			Severity: "warning",
			Message:  fmt.Sprintf("canonical document is %d bytes, below the expected minimum of %d", len(canonical), n.minBytes),
			Fixed:    false,
		})
	}

	return canonical, issues, nil
}

// stripControlBytes removes raw control bytes that break the JSON
// decoder, keeping newline, carriage return, and tab.
func stripControlBytes(raw []byte) ([]byte, int) {
	out := make([]byte, 0, len(raw))
	stripped := 0
	for _, b := range raw {
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' {
			stripped++
			continue
		}
		out = append(out, b)
	}
	return out, stripped
}

// scrubStrings walks the decoded document and removes control runes
// that arrived as escape sequences and so survived decoding.
func scrubStrings(v interface{}, scrubbed *int) interface{} {
	switch val := v.(type) {
	case string:
		cleaned, changed := scrubString(val)
		if changed {
			*scrubbed++
		}
		return cleaned
	case map[string]interface{}:
		for k, inner := range val {
			val[k] = scrubStrings(inner, scrubbed)
		}
		return val
	case []interface{}:
		for i, inner := range val {
			val[i] = scrubStrings(inner, scrubbed)
		}
		return val
	default:
		return v
	}
}

func scrubString(s string) (string, bool) {
	changed := false
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			changed = true
			continue
		}
		out = append(out, r)
	}
	if !changed {
		return s, false
	}
	return string(out), true
}
