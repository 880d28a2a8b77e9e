// File: internal/apitesting/suggest.go
package apitesting

import (
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/xkilldash9x/scriptforge/api/schemas"
)

const (
	OpEquals   = "equals"
	OpContains = "contains"
	OpExists   = "exists"
	OpStatus   = "status"

	defaultMaxSuggestions = 20
	maxSuggestionsCap     = 50
	maxWalkDepth          = 4
	snippetLen            = 24
	maxHeaderSuggestions  = 5
)

// SuggestInput describes an observed response to derive assertions from.
type SuggestInput struct {
	ResponseBody   []byte            `json:"-"`
	Status         *int              `json:"status"`
	Headers        map[string]string `json:"headers"`
	Method         string            `json:"method"`
	Endpoint       string            `json:"endpoint"`
	MaxSuggestions *int              `json:"maxSuggestions"`
}

type suggester struct {
	max int
	out []schemas.AssertionSuggestion
}

func (s *suggester) add(path, op, expected, reason string) {
	if len(s.out) >= s.max {
		return
	}
	s.out = append(s.out, schemas.AssertionSuggestion{
		ID:       uuid.NewString(),
		Path:     path,
		Op:       op,
		Expected: expected,
		Reason:   reason,
	})
}

// SuggestAssertions proposes assertions for a response body, walking objects
// in document order down to a fixed depth. The observed status comes first
// and up to five header presence checks come last.
func SuggestAssertions(in SuggestInput) []schemas.AssertionSuggestion {
	limit := defaultMaxSuggestions
	if in.MaxSuggestions != nil {
		limit = min(max(*in.MaxSuggestions, 1), maxSuggestionsCap)
	}
	s := &suggester{max: limit, out: []schemas.AssertionSuggestion{}}

	if in.Status != nil {
		s.add("", OpStatus, strconv.Itoa(*in.Status), "Match observed HTTP status")
	}

	body := gjson.ParseBytes(in.ResponseBody)
	if gjson.ValidBytes(in.ResponseBody) {
		s.walk(body, "", 0)
	}

	keys := make([]string, 0, len(in.Headers))
	for k := range in.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > maxHeaderSuggestions {
		keys = keys[:maxHeaderSuggestions]
	}
	for _, k := range keys {
		s.add("headers."+k, OpExists, "", "Header '"+k+"' is present")
	}
	return s.out
}

func (s *suggester) walk(node gjson.Result, base string, depth int) {
	if depth > maxWalkDepth || !node.Exists() || node.Type == gjson.Null {
		return
	}
	switch {
	case node.IsArray():
		s.add(base, OpExists, "", "Array exists")
		if first := node.Get("0"); first.Exists() {
			s.walk(first, base+"[0]", depth+1)
		}
	case node.IsObject():
		s.add(base, OpExists, "", "Object exists")
		node.ForEach(func(key, child gjson.Result) bool {
			path := key.String()
			if base != "" {
				path = base + "." + path
			}
			switch {
			case child.Type == gjson.Null:
				s.add(path, OpExists, "", "Field may be optional")
			case child.Type == gjson.String:
				s.add(path, OpContains, snippet(child.String()), "String field contains sample")
			case child.Type == gjson.Number || child.IsBool():
				s.add(path, OpEquals, child.Raw, "Primitive equals observed value")
			case child.IsArray():
				s.add(path, OpExists, "", "Array exists")
				if first := child.Get("0"); first.Exists() {
					s.walk(first, path+"[0]", depth+1)
				}
			case child.IsObject():
				s.walk(child, path, depth+1)
			}
			return true
		})
	case node.Type == gjson.String:
		s.add(base, OpContains, snippet(node.String()), "String value contains sample")
	default:
		s.add(base, OpEquals, node.Raw, "Primitive equals observed value")
	}
}

func snippet(v string) string {
	r := []rune(v)
	if len(r) > snippetLen {
		return string(r[:snippetLen])
	}
	return v
}
