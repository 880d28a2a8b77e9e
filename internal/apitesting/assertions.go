// File: internal/apitesting/assertions.go
package apitesting

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"

	"github.com/xkilldash9x/scriptforge/api/schemas"
)

// Response is the observed side of an executed request that assertions inspect.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Decoded is the JSON-decoded body, or the body text when it is not JSON.
	Decoded  any
	IsJSON   bool
	Duration time.Duration
}

var reBracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// gjsonPath converts the dotted/bracketed paths users write ("$.items[0].id")
// into gjson syntax ("items.0.id").
func gjsonPath(p string) string {
	p = strings.TrimPrefix(strings.TrimPrefix(p, "$"), ".")
	p = reBracketIndex.ReplaceAllString(p, ".$1")
	return strings.TrimPrefix(p, ".")
}

// Evaluate applies one assertion to a response. Unknown types fail with a message.
func Evaluate(a schemas.Assertion, r *Response) schemas.AssertionResult {
	res := schemas.AssertionResult{Assertion: a}
	switch a.Type {
	case schemas.AssertStatus:
		res.Actual = r.StatusCode
		want, ok := asNumber(a.Expected)
		res.Passed = ok && want == float64(r.StatusCode)

	case schemas.AssertHeader:
		if a.Header == "" {
			res.Message = "header name is required"
			break
		}
		if vals := r.Header.Values(a.Header); len(vals) > 0 {
			res.Actual = vals[0]
		}
		if a.Expected == nil {
			res.Passed = res.Actual != nil
			break
		}
		res.Passed = res.Actual != nil && res.Actual == fmt.Sprint(a.Expected)

	case schemas.AssertBodyContains:
		text := string(r.Body)
		res.Actual = text
		needle, ok := a.Expected.(string)
		if !ok {
			needle = fmt.Sprint(a.Expected)
		}
		res.Passed = a.Expected != nil && strings.Contains(text, needle)

	case schemas.AssertJSONPath:
		if !r.IsJSON {
			res.Message = "response is not JSON"
			break
		}
		got := gjson.GetBytes(r.Body, gjsonPath(a.Path))
		if !got.Exists() {
			res.Message = fmt.Sprintf("path '%s' not found", a.Path)
			break
		}
		res.Actual = got.Value()
		if a.Expected == nil {
			res.Passed = true
			break
		}
		res.Passed = cmp.Equal(normalizer{}.normalize(a.Expected), normalizer{}.normalize(res.Actual))

	case schemas.AssertJSONEquals:
		if !r.IsJSON {
			res.Message = "response is not JSON"
			break
		}
		actual := r.Decoded
		if a.Path != "" {
			actual = gjson.GetBytes(r.Body, gjsonPath(a.Path)).Value()
		}
		res.Actual = actual
		ok, diff := jsonEqual(a.Expected, actual, a.IgnoreDynamic)
		res.Passed = ok
		if !ok {
			res.Message = diff
		}

	case schemas.AssertXMLPath:
		actual, err := xmlValue(r.Body, a.Path)
		if err != nil {
			res.Message = err.Error()
			break
		}
		res.Actual = actual
		res.Passed = a.Expected == nil || actual == fmt.Sprint(a.Expected)

	case schemas.AssertResponseTime:
		ms := r.Duration.Milliseconds()
		res.Actual = ms
		limit, ok := asNumber(a.Expected)
		res.Passed = ok && float64(ms) <= limit

	default:
		res.Message = fmt.Sprintf("unsupported assertion type '%s'", a.Type)
	}
	return res
}

// xmlValue resolves an etree path against an XML document. A trailing "/@name"
// selects an attribute of the matched element instead of its text.
func xmlValue(body []byte, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("xml path is required")
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return "", fmt.Errorf("response is not XML: %w", err)
	}

	attr := ""
	if i := strings.LastIndex(path, "/@"); i >= 0 {
		path, attr = path[:i], path[i+2:]
	}
	if path == "" {
		path = "."
	}
	ep, err := etree.CompilePath(path)
	if err != nil {
		return "", fmt.Errorf("invalid xml path '%s': %w", path, err)
	}
	el := doc.FindElementPath(ep)
	if el == nil {
		return "", fmt.Errorf("xml path '%s' not found", path)
	}
	if attr != "" {
		a := el.SelectAttr(attr)
		if a == nil {
			return "", fmt.Errorf("attribute '%s' not found", attr)
		}
		return a.Value, nil
	}
	return strings.TrimSpace(el.Text()), nil
}

// asNumber accepts JSON numbers and numeric strings.
func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
