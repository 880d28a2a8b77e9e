// File: internal/testdata/unwrap.go
package testdata

import (
	"bytes"
	"regexp"
)

// The AI service is model backed and sometimes answers with the payload
// wrapped in a markdown fence or surrounded by prose.
var fencedJSON = regexp.MustCompile("(?s)^\x60\x60\x60(?:json|JSON)?\\s*(.*?)\\s*\x60\x60\x60")

// unwrapJSON returns the JSON payload embedded in body. Bodies that already
// start with a JSON value are returned unchanged.
func unwrapJSON(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed
	}
	if m := fencedJSON.FindSubmatch(trimmed); len(m) > 1 {
		return m[1]
	}

	// Prose around the value: take the widest bracket span, preferring an
	// array since that is what carries the records.
	for _, pair := range [][2]byte{{'[', ']'}, {'{', '}'}} {
		first := bytes.IndexByte(trimmed, pair[0])
		last := bytes.LastIndexByte(trimmed, pair[1])
		if first != -1 && last > first {
			return trimmed[first : last+1]
		}
	}
	return trimmed
}
