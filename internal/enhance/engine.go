// File: internal/enhance/engine.go
package enhance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Engine evaluates a fixed rule list against script source. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	rules  []Rule
	logger *zap.Logger
}

// NewEngine creates an engine over rules, or over DefaultRules when none are given.
func NewEngine(logger *zap.Logger, rules ...Rule) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Engine{rules: rules, logger: logger.Named("enhance")}
}

// Rules returns the registered rules in registration order.
func (e *Engine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// activeRules filters to the enabled categories and orders them by category
// rank, keeping registration order within a category.
func (e *Engine) activeRules(opts Options) []Rule {
	enabled := opts.enabled()
	rank := opts.order()
	active := lo.Filter(e.rules, func(r Rule, _ int) bool { return enabled[r.Category] })
	sort.SliceStable(active, func(i, j int) bool {
		return rank[active[i].Category] < rank[active[j].Category]
	})
	return active
}

func skipLine(text string) bool {
	t := strings.TrimSpace(text)
	return t == "" || strings.HasPrefix(t, "//") || strings.HasPrefix(t, "/*") || strings.HasPrefix(t, "*")
}

// Generate scans code line by line and returns suggestions, the code with
// every suggestion applied, a positional diff and a summary. It never fails:
// code with nothing to improve yields an empty suggestion list.
func (e *Engine) Generate(code string, opts Options) Result {
	res := Result{
		OriginalCode: code,
		EnhancedCode: code,
		Suggestions:  []Suggestion{},
		Diff:         Diff{Original: []DiffLine{}, Enhanced: []DiffLine{}},
	}
	if code == "" {
		res.Summary = Summarize(nil)
		return res
	}

	lines := strings.Split(code, "\n")
	active := e.activeRules(opts)
	for i, text := range lines {
		if skipLine(text) {
			continue
		}
		l := Line{Index: i, Text: text, Indent: leadingIndent(text)}
		if i > 0 {
			l.Prev = lines[i-1]
		}
		for _, r := range active {
			if r.Rewrite == nil {
				continue
			}
			suggested, reason, ok := r.Rewrite(l)
			if !ok || suggested == text {
				continue
			}
			res.Suggestions = append(res.Suggestions, Suggestion{
				LineNumber:    i,
				OriginalCode:  text,
				SuggestedCode: suggested,
				Reason:        reason,
				Confidence:    r.Confidence,
				Category:      r.Category,
				RuleID:        r.ID,
			})
			break
		}
	}

	if opts.enabled()[CategoryPageObject] {
		res.Suggestions = append(res.Suggestions, repeatedSelectorSuggestions(lines, res.Suggestions)...)
		sort.SliceStable(res.Suggestions, func(i, j int) bool {
			return res.Suggestions[i].LineNumber < res.Suggestions[j].LineNumber
		})
	}

	res.EnhancedCode = applyLines(lines, res.Suggestions)
	res.Diff = BuildDiff(lines, res.Suggestions)
	res.Summary = Summarize(res.Suggestions)

	e.logger.Debug("Generated enhancement suggestions",
		zap.Int("lines", len(lines)),
		zap.Int("rules", len(active)),
		zap.Int("suggestions", len(res.Suggestions)))
	return res
}

// repeatedSelectorSuggestions finds quoted #id or .class selectors used on at
// least three lines that have no suggestion yet, and proposes extracting each
// into a named constant on its first line. A selector whose constant is
// already declared is left alone.
func repeatedSelectorSuggestions(lines []string, existing []Suggestion) []Suggestion {
	taken := make(map[int]bool, len(existing))
	for _, s := range existing {
		taken[s.LineNumber] = true
	}

	var order []string
	usage := map[string][]int{}
	declared := map[string]bool{}
	for i, text := range lines {
		if skipLine(text) {
			continue
		}
		if m := reSelectorConst.FindStringSubmatch(text); m != nil {
			declared[m[1]] = true
			continue
		}
		for _, sel := range lo.Uniq(reRepeatedSelector.FindAllString(text, -1)) {
			if _, seen := usage[sel]; !seen {
				order = append(order, sel)
			}
			usage[sel] = append(usage[sel], i)
		}
	}

	var out []Suggestion
	for _, sel := range order {
		idx := usage[sel]
		name := selectorConstName(sel)
		if len(idx) < 3 || declared[name] || lo.SomeBy(idx, func(i int) bool { return taken[i] }) {
			continue
		}
		first := idx[0]
		text := lines[first]
		suggested := leadingIndent(text) + "const " + name + " = " + sel + ";\n" +
			strings.Replace(text, sel, name, 1)
		out = append(out, Suggestion{
			LineNumber:    first,
			OriginalCode:  text,
			SuggestedCode: suggested,
			Reason:        fmt.Sprintf("Selector %s is used %d times - extract to page object for maintainability", sel, len(idx)),
			Confidence:    pageObjectRule.Confidence,
			Category:      pageObjectRule.Category,
			RuleID:        pageObjectRule.ID,
		})
		taken[first] = true
	}
	return out
}

// Summarize counts suggestions per category. Every category key is present.
func Summarize(suggestions []Suggestion) Summary {
	by := make(map[Category]int, len(AllCategories))
	for _, c := range AllCategories {
		by[c] = 0
	}
	for c, n := range lo.CountValuesBy(suggestions, func(s Suggestion) Category { return s.Category }) {
		by[c] = n
	}
	n := len(suggestions)
	improvement := 0
	if n > 0 {
		improvement = min(95, 60+5*n)
	}
	return Summary{TotalSuggestions: n, ByCategory: by, EstimatedImprovement: improvement}
}
