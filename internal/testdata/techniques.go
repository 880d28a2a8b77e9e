// File: internal/testdata/techniques.go
package testdata

import (
	"fmt"
	"strings"
	"time"
)

type boundary struct {
	name        string
	valid       bool
	description string
}

var boundaries = []boundary{
	{"min", true, "Minimum valid value"},
	{"min-1", false, "Just below minimum"},
	{"min+1", true, "Just above minimum"},
	{"max", true, "Maximum valid value"},
	{"max+1", false, "Just above maximum"},
	{"max-1", true, "Just below maximum"},
	{"typical", true, "Typical value in the middle of the range"},
	{"zero", true, "Zero value"},
	{"negative", false, "Negative value"},
}

var bankingAmounts = map[string]float64{
	"min":      0.01,
	"min-1":    0,
	"min+1":    0.02,
	"max":      50000,
	"max+1":    50000.01,
	"max-1":    49999.99,
	"typical":  250,
	"zero":     0,
	"negative": -100,
}

// boundaryValue cycles through the boundary classes of one field.
func (f *faker) boundaryValue(i int, opts Options) map[string]any {
	lo, hi := 0.0, 100.0
	if opts.MinValue != nil {
		lo = *opts.MinValue
	}
	if opts.MaxValue != nil {
		hi = *opts.MaxValue
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	field := opts.FieldName
	if field == "" {
		field = "value"
	}
	fieldType := strings.ToLower(opts.FieldType)
	if fieldType == "" {
		fieldType = "number"
	}

	b := boundaries[i%len(boundaries)]
	num := boundaryNumber(b.name, lo, hi)
	// Zero is only valid when it lies within the range.
	valid := b.valid
	if b.name == "zero" {
		valid = lo <= 0 && 0 <= hi
	}

	var value any
	switch fieldType {
	case "string":
		n := max(int(num), 0)
		value = strings.Repeat("a", n)
		if b.name == "negative" {
			value = ""
		}
	case "date":
		base := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
		value = base.AddDate(0, 0, int(num)).Format("2006-01-02")
	default:
		value = num
	}

	rec := map[string]any{
		"id":             f.uuid(),
		"testCase":       fmt.Sprintf("BVA-%03d", i+1),
		"fieldName":      field,
		"fieldType":      fieldType,
		"boundaryType":   b.name,
		"value":          value,
		"range":          map[string]any{"min": lo, "max": hi},
		"expectedResult": validity(valid),
		"description":    fmt.Sprintf("%s for %s", b.description, field),
	}
	if field == "amount" {
		rec["bankingExample"] = map[string]any{
			"amount":         bankingAmounts[b.name],
			"currency":       "EUR",
			"expectedResult": validity(b.valid && b.name != "zero"),
		}
	}
	return rec
}

func boundaryNumber(name string, lo, hi float64) float64 {
	switch name {
	case "min":
		return lo
	case "min-1":
		return lo - 1
	case "min+1":
		return lo + 1
	case "max":
		return hi
	case "max+1":
		return hi + 1
	case "max-1":
		return hi - 1
	case "typical":
		return lo + (hi-lo)/2
	case "zero":
		return 0
	default:
		return -1 - (hi-lo)/2
	}
}

func validity(ok bool) string {
	if ok {
		return "valid"
	}
	return "invalid"
}

type partition struct {
	field   string
	name    string
	valid   bool
	example any
	rule    string
}

var bankingPartitions = []partition{
	{"transferAmount", "standard_transfer", true, 150.00, "0.01 to 10000.00"},
	{"transferAmount", "large_transfer", true, 25000.00, "10000.01 to 50000.00 requires approval"},
	{"transferAmount", "exceeds_limit", false, 75000.00, "above 50000.00"},
	{"transferAmount", "non_positive", false, -10.00, "0 or less"},
	{"accountType", "checking", true, "CHECKING", "supported account type"},
	{"accountType", "savings", true, "SAVINGS", "supported account type"},
	{"accountType", "unknown", false, "CRYPTO", "unsupported account type"},
	{"customerAge", "adult", true, 35, "18 to 120"},
	{"customerAge", "minor", false, 15, "under 18"},
	{"customerAge", "implausible", false, 150, "over 120"},
	{"iban", "valid_de", true, "DE89370400440532013000", "valid checksum"},
	{"iban", "bad_checksum", false, "DE00370400440532013000", "checksum mismatch"},
	{"iban", "too_short", false, "DE8937", "shorter than 15 characters"},
	{"currency", "supported", true, "EUR", "ISO 4217 supported currency"},
	{"currency", "unsupported", false, "XYZ", "not an ISO 4217 code"},
}

// equivalencePartition emits one representative per partition. With
// partitionType "all", even indexes draw a valid class and odd ones an invalid class.
func (f *faker) equivalencePartition(i int, opts Options) map[string]any {
	pool := bankingPartitions
	if opts.FieldName != "" {
		var filtered []partition
		for _, p := range bankingPartitions {
			if p.field == opts.FieldName {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) > 0 {
			pool = filtered
		}
	}
	switch opts.PartitionType {
	case "valid":
		pool = partitionsWhere(pool, true)
	case "invalid":
		pool = partitionsWhere(pool, false)
	case "all":
		if side := partitionsWhere(pool, i%2 == 0); len(side) > 0 {
			pool = side
		}
	}
	p := pool[i%len(pool)]
	return map[string]any{
		"id":             f.uuid(),
		"testCase":       fmt.Sprintf("EP-%03d", i+1),
		"field":          p.field,
		"partition":      p.name,
		"partitionClass": validity(p.valid),
		"value":          p.example,
		"rule":           p.rule,
		"expectedResult": validity(p.valid),
	}
}

func partitionsWhere(ps []partition, valid bool) []partition {
	var out []partition
	for _, p := range ps {
		if p.valid == valid {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return ps
	}
	return out
}

type attack struct {
	kind    string
	payload string
	owasp   string
	expect  string
}

var attacks = []attack{
	{"sql_injection", "' OR '1'='1' --", "A03:2021-Injection", "Input rejected or safely parameterized"},
	{"xss", `<script>alert('XSS')</script>`, "A03:2021-Injection", "Output encoded, script not executed"},
	{"command_injection", "; cat /etc/passwd", "A03:2021-Injection", "Command not executed"},
	{"path_traversal", "../../../etc/passwd", "A01:2021-Broken Access Control", "Access denied"},
	{"ldap_injection", "*)(uid=*))(|(uid=*", "A03:2021-Injection", "Filter escaped"},
	{"xxe", `<?xml version="1.0"?><!DOCTYPE foo [<!ENTITY xxe SYSTEM "file:///etc/passwd">]><foo>&xxe;</foo>`, "A05:2021-Security Misconfiguration", "External entities disabled"},
	{"ssrf", "http://169.254.169.254/latest/meta-data/", "A10:2021-Server-Side Request Forgery", "Internal address blocked"},
	{"nosql_injection", `{"$gt": ""}`, "A03:2021-Injection", "Operator rejected"},
	{"header_injection", "value\r\nSet-Cookie: session=hijacked", "A03:2021-Injection", "CRLF stripped"},
	{"auth_bypass", "admin'--", "A07:2021-Identification and Authentication Failures", "Authentication fails"},
}

// securityTest cycles through common attack payloads tagged with their OWASP category.
func securityTest(i int) map[string]any {
	a := attacks[i%len(attacks)]
	return map[string]any{
		"testCase":         fmt.Sprintf("SEC-%03d", i+1),
		"attackType":       a.kind,
		"payload":          a.payload,
		"owaspCategory":    a.owasp,
		"expectedBehavior": a.expect,
		"severity":         severity(a.kind),
	}
}

func severity(kind string) string {
	switch kind {
	case "sql_injection", "command_injection", "xxe", "auth_bypass":
		return "critical"
	case "xss", "ssrf", "path_traversal", "nosql_injection":
		return "high"
	default:
		return "medium"
	}
}
