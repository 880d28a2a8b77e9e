// File: internal/enhance/rules.go
package enhance

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Line is the view of one source line a rule evaluates.
type Line struct {
	Index  int
	Text   string
	Prev   string
	Indent string
}

// Rule pairs a line matcher with its rewrite. Rewrite reports ok=false when
// the line does not match or cannot be converted.
type Rule struct {
	ID         string
	Category   Category
	Confidence float64
	Rewrite    func(Line) (suggested, reason string, ok bool)
}

// Markers prepended by rules that annotate instead of rewrite. Each rule skips
// a line whose previous line already carries its marker.
const (
	xpathTodoMarker   = "// TODO: Consider converting XPath to Playwright locator for better maintainability"
	longLocatorMarker = "// TODO: Extract complex selector to page object class"
	chainedMarker     = "// TODO: Simplify chained locator - consider using .filter() or a single specific selector"
	fixtureMarker     = "./fixtures/"
)

var (
	reTextSelector  = regexp.MustCompile(`page\.(click|locator)\s*\(\s*['"]text=([^'"]+)['"]\s*\)`)
	reClassSelector = regexp.MustCompile(`page\.(click|fill|locator)\s*\(\s*['"]\.([a-zA-Z][\w-]*)['"]\s*\)`)
	reXPathLocator  = regexp.MustCompile(`page\.locator\s*\(\s*(?:"(//[^"]+)"|'(//[^']+)')\s*\)`)
	reXPathClick    = regexp.MustCompile(`page\.click\s*\(\s*(?:"(//[^"]+)"|'(//[^']+)')\s*\)`)
	reXPathFill     = regexp.MustCompile(`page\.fill\s*\(\s*(?:"(//[^"]+)"|'(//[^']+)')\s*,\s*`)
	reAbsoluteXPath = regexp.MustCompile(`page\.(click|dblclick|hover|check|fill|type|locator)\s*\(\s*(?:"(/html[^"]*)"|'(/html[^']*)')\s*([,)])\s*`)
	reXPathStep     = regexp.MustCompile(`^([a-zA-Z][\w-]*)(?:\[(\d+)\])?$`)
	reTitleAttr     = regexp.MustCompile(`page\.locator\s*\(\s*['"]\[title=['"]?([^'"\]]+)['"]?\]['"]\s*\)`)
	reAriaLabel     = regexp.MustCompile(`page\.locator\s*\(\s*['"]\[aria-label=['"]?([^'"\]]+)['"]?\]['"]\s*\)`)
	reButton        = regexp.MustCompile(`(?i)page\.(click|locator)\s*\(\s*(?:'([^']*button[^']*)'|"([^"]*button[^"]*)")\s*\)`)
	reInputLocator  = regexp.MustCompile(`(?i)page\.locator\s*\(\s*(?:'([^']*input[^']*)'|"([^"]*input[^"]*)")\s*\)`)
	reInputFill     = regexp.MustCompile(`(?i)page\.fill\s*\(\s*(?:'([^']*input[^']*)'|"([^"]*input[^"]*)")\s*,\s*`)
	reImgLocator    = regexp.MustCompile(`(?i)page\.locator\s*\(\s*(?:'([^']*img[^']*)'|"([^"]*img[^"]*)")\s*\)`)
	reAltAttr       = regexp.MustCompile(`alt\s*=\s*['"]?([^'"\]]+)`)
	reSelectorWord  = regexp.MustCompile(`[A-Za-z][A-Za-z0-9]*`)

	reWaitTimeout    = regexp.MustCompile(`await\s+(page\.waitForTimeout\s*\(\s*\d+\s*\))`)
	reTruthyLocator  = regexp.MustCompile(`expect\s*\(\s*page\.locator\([^)]+\)\s*\)\.toBeTruthy\s*\(\s*\)`)
	reTruthy         = regexp.MustCompile(`expect\s*\(\s*([a-zA-Z_]\w*)\s*\)\.toBeTruthy\s*\(\s*\)`)
	reToBeTruthyCall = regexp.MustCompile(`toBeTruthy\s*\(\s*\)`)

	reFillLiteral  = regexp.MustCompile(`await\s+page\.fill\([^,]+,\s*(['"]([^'"]*)['"])\s*\)`)
	reEmailValue   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	rePhoneValue   = regexp.MustCompile(`^(?:[0-9]{10,}|\+[0-9\s-]+)$`)
	reNameValue    = regexp.MustCompile(`^[A-Z][a-z]+\s+[A-Z][a-z]+$`)
	reHardcoded    = regexp.MustCompile(`await\s+page\.(?:fill|type)\s*\([^,]+,\s*(['"]([^'"]{3,})['"])\s*\)`)
	reGotoURL      = regexp.MustCompile(`await\s+page\.goto\s*\(\s*(['"](https?://[^'"]+)['"])\s*\)`)
	reConstURL     = regexp.MustCompile(`const\s+(\w+)\s*=\s*(['"]https?://[^'"]+['"])`)
	reFixture      = regexp.MustCompile(`const\s+(\w+Data)\s*=\s*\{[^}]+\}`)
	reUpperSnake   = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)
	reBareAction   = regexp.MustCompile(`^\s*await\s+page\.(click|fill|press|type)\([^)]+\);?\s*$`)
	reLoggedAction = regexp.MustCompile(`await\s+page\.(goto|click|fill)\s*\([^)]+\)`)
	reWaitSelector = regexp.MustCompile(`await\s+(page\.waitForSelector\s*\(\s*([^,)]+?)\s*\))`)
	reMagicTimeout = regexp.MustCompile(`timeout:\s*(\d{4,})`)
	reLongLocator  = regexp.MustCompile(`page\.locator\s*\(\s*['"][^'"]{15,}['"]\s*\)`)
	reChained      = regexp.MustCompile(`page\.locator\([^)]+\)\.locator\([^)]+\)\.locator\([^)]+\)`)
	rePressEnter   = regexp.MustCompile(`page\.keyboard\.press\s*\(\s*['"]Enter['"]\s*\)`)
	reFillTarget   = regexp.MustCompile(`(page\.\w+\([^)]*\))\.fill\(`)
	reFillSelector = regexp.MustCompile(`page\.fill\s*\(\s*(['"][^'"]+['"])`)

	reRepeatedSelector = regexp.MustCompile(`['"][#.][a-zA-Z][\w-]*['"]`)
	reSelectorConst    = regexp.MustCompile(`^\s*const\s+(\w+_SELECTOR)\s*=`)
)

var xpathAttrs = map[string]*regexp.Regexp{
	"id":          regexp.MustCompile(`@id\s*=\s*(?:"([^"]*)"|'([^']*)')`),
	"class":       regexp.MustCompile(`@class\s*=\s*(?:"([^"]*)"|'([^']*)')`),
	"text":        regexp.MustCompile(`text\(\)\s*=\s*(?:"([^"]*)"|'([^']*)')`),
	"data-testid": regexp.MustCompile(`@data-testid\s*=\s*(?:"([^"]*)"|'([^']*)')`),
	"placeholder": regexp.MustCompile(`@placeholder\s*=\s*(?:"([^"]*)"|'([^']*)')`),
}

// roleForTag maps the element name at the end of an absolute XPath to an ARIA role.
var roleForTag = map[string]string{
	"a":        "link",
	"button":   "button",
	"input":    "textbox",
	"textarea": "textbox",
	"select":   "combobox",
	"img":      "img",
	"h1":       "heading",
	"h2":       "heading",
	"h3":       "heading",
	"h4":       "heading",
	"h5":       "heading",
	"h6":       "heading",
	"li":       "listitem",
	"nav":      "navigation",
	"table":    "table",
}

// DefaultRules returns the built-in rule set in registration order.
func DefaultRules() []Rule {
	return []Rule{
		{ID: "text-selector", Category: CategorySelector, Confidence: 0.92, Rewrite: rewriteTextSelector},
		{ID: "class-selector", Category: CategorySelector, Confidence: 0.88, Rewrite: rewriteClassSelector},
		{ID: "xpath-locator", Category: CategorySelector, Confidence: 0.87, Rewrite: rewriteXPathLocator},
		{ID: "xpath-click", Category: CategorySelector, Confidence: 0.89, Rewrite: rewriteXPathClick},
		{ID: "xpath-fill", Category: CategorySelector, Confidence: 0.86, Rewrite: rewriteXPathFill},
		{ID: "absolute-xpath", Category: CategorySelector, Confidence: 0.90, Rewrite: rewriteAbsoluteXPath},
		{ID: "title-attribute", Category: CategorySelector, Confidence: 0.90, Rewrite: rewriteTitle},
		{ID: "aria-label", Category: CategorySelector, Confidence: 0.85, Rewrite: rewriteAriaLabel},
		{ID: "button-role", Category: CategorySelector, Confidence: 0.84, Rewrite: rewriteButton},
		{ID: "input-label", Category: CategorySelector, Confidence: 0.80, Rewrite: rewriteInput},
		{ID: "img-alt-text", Category: CategorySelector, Confidence: 0.82, Rewrite: rewriteImg},

		{ID: "wait-for-timeout", Category: CategoryWait, Confidence: 0.88, Rewrite: rewriteWaitTimeout},

		{ID: "truthy-locator", Category: CategoryAssertion, Confidence: 0.86, Rewrite: rewriteTruthyLocator},
		{ID: "truthy-value", Category: CategoryAssertion, Confidence: 0.82, Rewrite: rewriteTruthy},

		{ID: "faker-email", Category: CategoryParameterization, Confidence: 0.88, Rewrite: fakerRewrite(reEmailValue, "testEmail", "faker.internet.email()", "email")},
		{ID: "faker-phone", Category: CategoryParameterization, Confidence: 0.86, Rewrite: fakerRewrite(rePhoneValue, "testPhone", "faker.phone.number()", "phone")},
		{ID: "faker-name", Category: CategoryParameterization, Confidence: 0.84, Rewrite: fakerRewrite(reNameValue, "testName", "faker.person.fullName()", "name")},
		{ID: "hardcoded-string", Category: CategoryParameterization, Confidence: 0.78, Rewrite: rewriteHardcodedString},
		{ID: "goto-base-url", Category: CategoryParameterization, Confidence: 0.85, Rewrite: rewriteGotoURL},
		{ID: "const-url-env", Category: CategoryParameterization, Confidence: 0.79, Rewrite: rewriteConstURL},
		{ID: "inline-fixture", Category: CategoryParameterization, Confidence: 0.74, Rewrite: rewriteFixture},

		{ID: "try-catch-screenshot", Category: CategoryErrorHandling, Confidence: 0.75, Rewrite: rewriteTryCatch},

		{ID: "action-logging", Category: CategoryLogging, Confidence: 0.72, Rewrite: rewriteLogging},

		{ID: "wait-for-selector-timeout", Category: CategoryRetry, Confidence: 0.83, Rewrite: rewriteWaitForSelector},

		{ID: "magic-timeout", Category: CategoryBestPractice, Confidence: 0.77, Rewrite: rewriteMagicTimeout},
		{ID: "long-locator", Category: CategoryBestPractice, Confidence: 0.70, Rewrite: markerRewrite(reLongLocator, longLocatorMarker, "Complex selector detected - consider using page object pattern for better maintainability")},
		{ID: "chained-locators", Category: CategoryBestPractice, Confidence: 0.73, Rewrite: markerRewrite(reChained, chainedMarker, "Multiple chained locators detected - consider optimizing with filter() or a more specific single selector")},
		{ID: "enter-after-fill", Category: CategoryBestPractice, Confidence: 0.76, Rewrite: rewriteEnterAfterFill},
	}
}

// pageObjectRule describes the repeated selector post-pass. It has no line rewrite.
var pageObjectRule = Rule{ID: "page-object-extract", Category: CategoryPageObject, Confidence: 0.80}

// rewriteAll replaces every match of re in s with fn's result. Matches fn
// declines are kept verbatim. It reports whether anything changed.
func rewriteAll(re *regexp.Regexp, s string, fn func(m []string) (string, bool)) (string, bool) {
	changed := false
	out := re.ReplaceAllStringFunc(s, func(match string) string {
		m := re.FindStringSubmatch(match)
		if m == nil {
			return match
		}
		r, ok := fn(m)
		if !ok {
			return match
		}
		changed = true
		return r
	})
	return out, changed
}

// jsQuote wraps v, the body of a string literal taken from the script, in
// single quotes. Existing escapes are kept as written; only bare single
// quotes are escaped.
func jsQuote(v string) string {
	var b strings.Builder
	b.Grow(len(v) + 2)
	b.WriteByte('\'')
	escaped := false
	for _, r := range v {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '\'':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	if escaped {
		b.WriteByte('\\')
	}
	b.WriteByte('\'')
	return b.String()
}

// firstNonEmpty returns the first non-empty capture among the given groups.
func firstNonEmpty(m []string, groups ...int) string {
	for _, g := range groups {
		if g < len(m) && m[g] != "" {
			return m[g]
		}
	}
	return ""
}

func xpathAttr(xpath, attr string) (string, bool) {
	m := xpathAttrs[attr].FindStringSubmatch(xpath)
	if m == nil {
		return "", false
	}
	v := firstNonEmpty(m, 1, 2)
	return v, v != ""
}

func leadingIndent(s string) string {
	return s[:len(s)-len(strings.TrimLeftFunc(s, unicode.IsSpace))]
}

func rewriteTextSelector(l Line) (string, string, bool) {
	out, ok := rewriteAll(reTextSelector, l.Text, func(m []string) (string, bool) {
		loc := "page.getByText(" + jsQuote(m[2]) + ")"
		if m[1] == "click" {
			loc += ".click()"
		}
		return loc, true
	})
	return out, "Use getByText() for robust text-based selection (Playwright recommended pattern)", ok
}

func rewriteClassSelector(l Line) (string, string, bool) {
	out, ok := rewriteAll(reClassSelector, l.Text, func(m []string) (string, bool) {
		loc := "page.getByTestId(" + jsQuote(m[2]) + ")"
		switch m[1] {
		case "click":
			loc += ".click()"
		case "fill":
			loc += ".fill(value)"
		}
		return loc, true
	})
	return out, "Upgrade class selector to data-testid for better stability and specificity", ok
}

func rewriteXPathLocator(l Line) (string, string, bool) {
	reason := ""
	out, ok := rewriteAll(reXPathLocator, l.Text, func(m []string) (string, bool) {
		xpath := firstNonEmpty(m, 1, 2)
		if v, ok := xpathAttr(xpath, "id"); ok {
			reason = "Convert XPath with @id to CSS ID selector for better performance"
			return "page.locator(" + jsQuote("#"+v) + ")", true
		}
		if v, ok := xpathAttr(xpath, "class"); ok && len(strings.Fields(v)) > 0 {
			reason = "Convert XPath with @class to CSS class selector"
			return "page.locator(" + jsQuote("."+strings.Fields(v)[0]) + ")", true
		}
		if v, ok := xpathAttr(xpath, "text"); ok {
			reason = "Convert XPath text() to Playwright getByText() for better readability"
			return "page.getByText(" + jsQuote(v) + ")", true
		}
		if v, ok := xpathAttr(xpath, "data-testid"); ok {
			reason = "Convert XPath with data-testid to Playwright getByTestId()"
			return "page.getByTestId(" + jsQuote(v) + ")", true
		}
		if v, ok := xpathAttr(xpath, "placeholder"); ok {
			reason = "Convert XPath with placeholder to Playwright getByPlaceholder()"
			return "page.getByPlaceholder(" + jsQuote(v) + ")", true
		}
		return "", false
	})
	if ok {
		return out, reason, true
	}
	if !reXPathLocator.MatchString(l.Text) || strings.Contains(l.Prev, xpathTodoMarker) {
		return "", "", false
	}
	return l.Indent + xpathTodoMarker + "\n" + l.Text,
		"XPath detected - consider using Playwright locators (getByRole, getByText, getByTestId) for better resilience", true
}

func rewriteXPathClick(l Line) (string, string, bool) {
	reason := ""
	out, ok := rewriteAll(reXPathClick, l.Text, func(m []string) (string, bool) {
		xpath := firstNonEmpty(m, 1, 2)
		if v, ok := xpathAttr(xpath, "id"); ok {
			reason = "Convert XPath click to CSS ID selector"
			return "page.locator(" + jsQuote("#"+v) + ").click()", true
		}
		if v, ok := xpathAttr(xpath, "text"); ok {
			reason = "Convert XPath text-based click to getByText().click()"
			return "page.getByText(" + jsQuote(v) + ").click()", true
		}
		if v, ok := xpathAttr(xpath, "data-testid"); ok {
			reason = "Convert XPath click to getByTestId().click()"
			return "page.getByTestId(" + jsQuote(v) + ").click()", true
		}
		return "", false
	})
	return out, reason, ok
}

func rewriteXPathFill(l Line) (string, string, bool) {
	reason := ""
	out, ok := rewriteAll(reXPathFill, l.Text, func(m []string) (string, bool) {
		xpath := firstNonEmpty(m, 1, 2)
		if v, ok := xpathAttr(xpath, "placeholder"); ok {
			reason = "Convert XPath placeholder-based fill to getByPlaceholder().fill()"
			return "page.getByPlaceholder(" + jsQuote(v) + ").fill(", true
		}
		if v, ok := xpathAttr(xpath, "id"); ok {
			reason = "Convert XPath fill to CSS ID selector"
			return "page.locator(" + jsQuote("#"+v) + ").fill(", true
		}
		return "", false
	})
	return out, reason, ok
}

// locatorForAbsolutePath derives a role or tag locator from the last step of
// an absolute XPath such as /html/body/div[2]/ul/li[3].
func locatorForAbsolutePath(path string) (string, bool) {
	steps := strings.Split(strings.Trim(path, "/"), "/")
	m := reXPathStep.FindStringSubmatch(steps[len(steps)-1])
	if m == nil {
		return "", false
	}
	tag := strings.ToLower(m[1])
	loc := "page.locator(" + jsQuote(tag) + ")"
	if role, ok := roleForTag[tag]; ok {
		loc = "page.getByRole(" + jsQuote(role) + ")"
	}
	if m[2] != "" {
		if n, err := strconv.Atoi(m[2]); err == nil && n > 1 {
			loc += fmt.Sprintf(".nth(%d)", n-1)
		}
	}
	return loc, true
}

func rewriteAbsoluteXPath(l Line) (string, string, bool) {
	out, ok := rewriteAll(reAbsoluteXPath, l.Text, func(m []string) (string, bool) {
		method, path, closer := m[1], firstNonEmpty(m, 2, 3), m[4]
		loc, ok := locatorForAbsolutePath(path)
		if !ok {
			return "", false
		}
		switch {
		case method == "locator" && closer == ")":
			return loc, true
		case method == "locator":
			return "", false
		case closer == ")":
			return loc + "." + method + "()", true
		default:
			return loc + "." + method + "(", true
		}
	})
	return out, "Absolute XPath breaks on any layout change - use a role or tag based locator instead", ok
}

func rewriteTitle(l Line) (string, string, bool) {
	out, ok := rewriteAll(reTitleAttr, l.Text, func(m []string) (string, bool) {
		return "page.getByTitle(" + jsQuote(m[1]) + ")", true
	})
	return out, "Use getByTitle() for title-based selection - more readable than attribute selector", ok
}

func rewriteAriaLabel(l Line) (string, string, bool) {
	out, ok := rewriteAll(reAriaLabel, l.Text, func(m []string) (string, bool) {
		return "page.getByRole('region', { name: " + jsQuote(m[1]) + " })", true
	})
	return out, "Use getByRole() with aria-label - ensures ARIA compliance and screen reader compatibility", ok
}

// humanName extracts a readable accessible name from a CSS selector, skipping
// structural words. It falls back to def.
func humanName(selector string, def string, skip ...string) string {
	structural := map[string]bool{"name": true, "id": true, "type": true, "class": true, "data": true, "testid": true}
	for _, s := range skip {
		structural[s] = true
	}
	words := reSelectorWord.FindAllString(selector, -1)
	for i := len(words) - 1; i >= 0; i-- {
		if w := strings.ToLower(words[i]); !structural[w] {
			return strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return def
}

func rewriteButton(l Line) (string, string, bool) {
	if strings.Contains(l.Text, "getByRole") {
		return "", "", false
	}
	out, ok := rewriteAll(reButton, l.Text, func(m []string) (string, bool) {
		name := humanName(firstNonEmpty(m, 2, 3), "Submit", "button", "btn")
		loc := "page.getByRole('button', { name: " + jsQuote(name) + " })"
		if strings.EqualFold(m[1], "click") {
			loc += ".click()"
		}
		return loc, true
	})
	return out, "Use getByRole('button') for accessible, semantic button selection - improves accessibility testing", ok
}

func rewriteInput(l Line) (string, string, bool) {
	if strings.Contains(l.Text, "getByLabel") || strings.Contains(l.Text, "getByPlaceholder") {
		return "", "", false
	}
	label := func(m []string) string {
		return humanName(firstNonEmpty(m, 1, 2), "Input", "input")
	}
	out, filled := rewriteAll(reInputFill, l.Text, func(m []string) (string, bool) {
		return "page.getByLabel(" + jsQuote(label(m)) + ").fill(", true
	})
	out, located := rewriteAll(reInputLocator, out, func(m []string) (string, bool) {
		return "page.getByLabel(" + jsQuote(label(m)) + ")", true
	})
	return out, "Use getByLabel() for form inputs - ensures accessibility and better test resilience", filled || located
}

func rewriteImg(l Line) (string, string, bool) {
	if strings.Contains(l.Text, "getByAltText") {
		return "", "", false
	}
	out, ok := rewriteAll(reImgLocator, l.Text, func(m []string) (string, bool) {
		alt := "image description"
		if a := reAltAttr.FindStringSubmatch(firstNonEmpty(m, 1, 2)); a != nil {
			alt = strings.TrimSpace(a[1])
		}
		return "page.getByAltText(" + jsQuote(alt) + ")", true
	})
	return out, "Use getByAltText() for images - validates alt text presence and improves accessibility", ok
}

func rewriteWaitTimeout(l Line) (string, string, bool) {
	loc := reWaitTimeout.FindStringSubmatchIndex(l.Text)
	if loc == nil {
		return "", "", false
	}
	out := l.Text[:loc[2]] + "page.waitForLoadState('networkidle')" + l.Text[loc[3]:]
	return out, "Replace arbitrary timeout with explicit load state wait (networkidle)", true
}

func rewriteTruthyLocator(l Line) (string, string, bool) {
	out, ok := rewriteAll(reTruthyLocator, l.Text, func(m []string) (string, bool) {
		return reToBeTruthyCall.ReplaceAllString(m[0], "toBeVisible()"), true
	})
	if !ok {
		return "", "", false
	}
	if body := strings.TrimLeftFunc(out, unicode.IsSpace); strings.HasPrefix(body, "expect") {
		out = l.Indent + "await " + body
	}
	return out, "Use semantic assertion (toBeVisible) on locator instead of truthiness", true
}

func rewriteTruthy(l Line) (string, string, bool) {
	out, ok := rewriteAll(reTruthy, l.Text, func(m []string) (string, bool) {
		return reToBeTruthyCall.ReplaceAllString(m[0], "toBeDefined()"), true
	})
	return out, "Use specific assertion (toBeDefined) instead of truthiness check", ok
}

// fakerRewrite replaces a fill literal accepted by value with a faker generated variable.
func fakerRewrite(value *regexp.Regexp, varName, generator, kind string) func(Line) (string, string, bool) {
	return func(l Line) (string, string, bool) {
		loc := reFillLiteral.FindStringSubmatchIndex(l.Text)
		if loc == nil || !value.MatchString(l.Text[loc[4]:loc[5]]) {
			return "", "", false
		}
		replaced := l.Text[:loc[2]] + varName + l.Text[loc[3]:]
		return l.Indent + "const " + varName + " = " + generator + ";\n" + replaced,
			fmt.Sprintf("Replace hardcoded %s with Faker.js (@faker-js/faker) for dynamic, unique test data", kind), true
	}
}

// constantName derives an UPPER_SNAKE identifier for an extracted literal.
func constantName(value string) string {
	if len(value) > 20 {
		return "TEST_DATA"
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(value) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name[0] >= '0' && name[0] <= '9' {
		name = "VALUE_" + name
	}
	return name
}

func rewriteHardcodedString(l Line) (string, string, bool) {
	loc := reHardcoded.FindStringSubmatchIndex(l.Text)
	if loc == nil {
		return "", "", false
	}
	value := l.Text[loc[4]:loc[5]]
	name := constantName(value)
	replaced := l.Text[:loc[2]] + name + l.Text[loc[3]:]
	snippet := value
	if len(snippet) > 20 {
		snippet = snippet[:20] + "..."
	}
	return l.Indent + "const " + name + " = " + jsQuote(value) + ";\n" + replaced,
		fmt.Sprintf("Extract hard-coded test data '%s' to a named constant for reusability", snippet), true
}

func rewriteGotoURL(l Line) (string, string, bool) {
	loc := reGotoURL.FindStringSubmatchIndex(l.Text)
	if loc == nil {
		return "", "", false
	}
	raw := l.Text[loc[4]:loc[5]]
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", false
	}
	base := u.Scheme + "://" + u.Host
	if !strings.HasPrefix(raw, base) {
		return "", "", false
	}
	rest := strings.TrimPrefix(raw, base)
	target := "BASE_URL"
	if rest != "" && rest != "/" {
		target = "`${BASE_URL}" + strings.ReplaceAll(rest, "`", "\\`") + "`"
	}
	replaced := l.Text[:loc[2]] + target + l.Text[loc[3]:]
	return l.Indent + "const BASE_URL = process.env.BASE_URL || " + jsQuote(base) + ";\n" + replaced,
		"Move base URL to environment variable for flexible deployment across environments", true
}

func rewriteConstURL(l Line) (string, string, bool) {
	if strings.Contains(l.Text, "process.env") {
		return "", "", false
	}
	loc := reConstURL.FindStringSubmatchIndex(l.Text)
	if loc == nil {
		return "", "", false
	}
	env := "BASE_URL"
	if name := l.Text[loc[2]:loc[3]]; reUpperSnake.MatchString(name) {
		env = name
	}
	literal := l.Text[loc[4]:loc[5]]
	return l.Text[:loc[4]] + "process.env." + env + " || " + literal + l.Text[loc[5]:],
		"Extract URL to environment variable for multi-environment testing (dev, staging, prod)", true
}

func rewriteFixture(l Line) (string, string, bool) {
	m := reFixture.FindStringSubmatch(l.Text)
	if m == nil || strings.Contains(l.Prev, fixtureMarker) {
		return "", "", false
	}
	return l.Indent + "// Move '" + m[1] + "' to " + fixtureMarker + m[1] + ".ts and import it for reuse across tests\n" + l.Text,
		"Move test data object to fixture file for better organization and reusability", true
}

func rewriteTryCatch(l Line) (string, string, bool) {
	if !reBareAction.MatchString(l.Text) || strings.HasSuffix(strings.TrimSpace(l.Prev), "try {") {
		return "", "", false
	}
	in := l.Indent
	action := strings.TrimSpace(l.Text)
	block := strings.Join([]string{
		in + "try {",
		in + "  " + action,
		in + "} catch (error) {",
		in + "  await page.screenshot({ path: 'error-screenshot.png' });",
		in + "  throw error;",
		in + "}",
	}, "\n")
	return block, "Add error handling with screenshot capture for easier debugging when action fails", true
}

func rewriteLogging(l Line) (string, string, bool) {
	m := reLoggedAction.FindStringSubmatch(l.Text)
	if m == nil || l.Index == 0 || strings.Contains(l.Prev, "console.log") {
		return "", "", false
	}
	msg := "Filling input"
	switch m[1] {
	case "goto":
		msg = "Navigating to page"
	case "click":
		msg = "Clicking element"
	}
	return l.Indent + "console.log('[Test] " + msg + "');\n" + l.Text,
		"Add logging for critical test actions to improve debugging and test reporting", true
}

func rewriteWaitForSelector(l Line) (string, string, bool) {
	if strings.Contains(l.Text, "timeout") {
		return "", "", false
	}
	loc := reWaitSelector.FindStringSubmatchIndex(l.Text)
	if loc == nil {
		return "", "", false
	}
	selector := l.Text[loc[4]:loc[5]]
	out := l.Text[:loc[2]] + "page.waitForSelector(" + selector + ", { state: 'visible', timeout: 10000 })" + l.Text[loc[3]:]
	return out, "Add explicit timeout and state options for more resilient waiting strategy", true
}

func rewriteMagicTimeout(l Line) (string, string, bool) {
	loc := reMagicTimeout.FindStringSubmatchIndex(l.Text)
	if loc == nil {
		return "", "", false
	}
	n := l.Text[loc[2]:loc[3]]
	replaced := l.Text[:loc[0]] + "timeout: DEFAULT_TIMEOUT" + l.Text[loc[1]:]
	return l.Indent + "const DEFAULT_TIMEOUT = " + n + ";\n" + replaced,
		fmt.Sprintf("Extract magic number %s to a named constant for better maintainability", n), true
}

// markerRewrite builds a rule that prepends marker above lines matching re.
func markerRewrite(re *regexp.Regexp, marker, reason string) func(Line) (string, string, bool) {
	return func(l Line) (string, string, bool) {
		if !re.MatchString(l.Text) || strings.Contains(l.Prev, marker) {
			return "", "", false
		}
		return l.Indent + marker + "\n" + l.Text, reason, true
	}
}

func rewriteEnterAfterFill(l Line) (string, string, bool) {
	if l.Index == 0 || !strings.Contains(l.Prev, ".fill(") || !rePressEnter.MatchString(l.Text) {
		return "", "", false
	}
	target := "page.locator('input')"
	if m := reFillTarget.FindStringSubmatch(l.Prev); m != nil {
		target = m[1]
	} else if m := reFillSelector.FindStringSubmatch(l.Prev); m != nil {
		target = "page.locator(" + m[1] + ")"
	}
	out := rePressEnter.ReplaceAllLiteralString(l.Text, target+".press('Enter')")
	return out, "Press Enter on the filled field so the keyboard submission path is exercised", true
}

// selectorConstName turns a quoted selector such as '#login-btn' into LOGIN_BTN_SELECTOR.
func selectorConstName(quoted string) string {
	s := strings.Trim(quoted, `'"`)
	s = strings.TrimLeft(s, "#.")
	s = strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
	return s + "_SELECTOR"
}
