// File: internal/apitesting/normalize.go
package apitesting

import (
	"math"
	"regexp"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

const (
	dynamicKey   = "__DYNAMIC_KEY__"
	dynamicValue = "__DYNAMIC_VALUE__"
)

// dynamicKeyPatterns match object keys whose values change between otherwise
// identical responses.
var dynamicKeyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)sess(ion)?_?(id|key|token)`),
	regexp.MustCompile(`(?i)(api|access|refresh|auth)_?token$`),
	regexp.MustCompile(`(?i)^(csrf|xsrf)`),
	regexp.MustCompile(`(?i)nonce`),
	regexp.MustCompile(`(?i)(correlation|request|trace)_?id`),
}

var timestampLayouts = []string{time.RFC3339, time.RFC3339Nano, time.RFC1123, "2006-01-02T15:04:05.000Z"}

// normalizer rewrites a decoded JSON value into a comparable form. With
// maskDynamic set, UUIDs, timestamps, high entropy tokens and values under
// session-like keys collapse into placeholders.
type normalizer struct {
	maskDynamic bool
}

func (n normalizer) normalize(v any) any {
	if n.maskDynamic && isDynamicValue(v) {
		return dynamicValue
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if n.maskDynamic && isDynamicKey(k) {
				out[k] = dynamicKey
				continue
			}
			out[k] = n.normalize(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = n.normalize(child)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}

// jsonEqual compares two decoded JSON values structurally and returns a
// human readable diff when they differ.
func jsonEqual(expected, actual any, maskDynamic bool) (bool, string) {
	n := normalizer{maskDynamic: maskDynamic}
	diff := cmp.Diff(n.normalize(expected), n.normalize(actual))
	return diff == "", diff
}

func isDynamicKey(k string) bool {
	for _, p := range dynamicKeyPatterns {
		if p.MatchString(k) {
			return true
		}
	}
	return false
}

func isDynamicValue(v any) bool {
	switch t := v.(type) {
	case string:
		if len(t) < 10 {
			return false
		}
		if _, err := uuid.Parse(t); err == nil {
			return true
		}
		for _, layout := range timestampLayouts {
			if _, err := time.Parse(layout, t); err == nil {
				return true
			}
		}
		return len(t) >= 16 && shannonEntropy(t) > 4.5
	case float64:
		return plausibleUnixTime(t)
	}
	return false
}

func shannonEntropy(s string) float64 {
	freq := make(map[rune]float64)
	var total float64
	for _, r := range s {
		freq[r]++
		total++
	}
	var h float64
	for _, c := range freq {
		p := c / total
		h -= p * math.Log2(p)
	}
	return h
}

// plausibleUnixTime accepts seconds, milliseconds or microseconds between 2015 and 2035.
func plausibleUnixTime(ts float64) bool {
	const minTS, maxTS = 1420070400, 2051222400
	return (ts >= minTS && ts <= maxTS) ||
		(ts >= minTS*1e3 && ts <= maxTS*1e3) ||
		(ts >= minTS*1e6 && ts <= maxTS*1e6)
}
