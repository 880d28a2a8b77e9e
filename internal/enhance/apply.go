// File: internal/enhance/apply.go
package enhance

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrStaleSuggestion is returned when a suggestion's original line no longer
// matches the code it is being applied to.
var ErrStaleSuggestion = errors.New("suggestion does not match the current code")

// Apply replaces the line of every accepted suggestion with its suggested code.
// accepted holds indexes into suggestions; duplicates are ignored. Lines that
// are not accepted stay byte identical.
func Apply(code string, suggestions []Suggestion, accepted []int) (string, error) {
	if len(accepted) == 0 {
		return code, nil
	}
	lines := strings.Split(code, "\n")

	seen := make(map[int]bool, len(accepted))
	chosen := make([]Suggestion, 0, len(accepted))
	for _, idx := range accepted {
		if idx < 0 || idx >= len(suggestions) {
			return "", fmt.Errorf("%w: %d", ErrSuggestionIndex, idx)
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		s := suggestions[idx]
		if s.LineNumber < 0 || s.LineNumber >= len(lines) {
			return "", fmt.Errorf("%w: line %d", ErrSuggestionIndex, s.LineNumber)
		}
		if lines[s.LineNumber] != s.OriginalCode {
			return "", fmt.Errorf("%w: line %d", ErrStaleSuggestion, s.LineNumber)
		}
		chosen = append(chosen, s)
	}
	return applyLines(lines, chosen), nil
}

// applyLines substitutes suggestions into a copy of lines, highest line first.
func applyLines(lines []string, suggestions []Suggestion) string {
	out := append([]string(nil), lines...)
	ordered := append([]Suggestion(nil), suggestions...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].LineNumber > ordered[j].LineNumber })
	for _, s := range ordered {
		if s.LineNumber >= 0 && s.LineNumber < len(out) {
			out[s.LineNumber] = s.SuggestedCode
		}
	}
	return strings.Join(out, "\n")
}

// BuildDiff pairs every original line with its counterpart. A line carrying a
// suggestion is removed on the original side and added on the enhanced side;
// all others are unchanged. Both panes have exactly len(lines) entries.
func BuildDiff(lines []string, suggestions []Suggestion) Diff {
	byLine := make(map[int]Suggestion, len(suggestions))
	for _, s := range suggestions {
		if _, dup := byLine[s.LineNumber]; !dup {
			byLine[s.LineNumber] = s
		}
	}
	d := Diff{Original: make([]DiffLine, 0, len(lines)), Enhanced: make([]DiffLine, 0, len(lines))}
	for i, text := range lines {
		if s, ok := byLine[i]; ok {
			d.Original = append(d.Original, DiffLine{Line: i, Type: DiffRemoved, Content: text})
			d.Enhanced = append(d.Enhanced, DiffLine{Line: i, Type: DiffAdded, Content: s.SuggestedCode})
			continue
		}
		d.Original = append(d.Original, DiffLine{Line: i, Type: DiffUnchanged, Content: text})
		d.Enhanced = append(d.Enhanced, DiffLine{Line: i, Type: DiffUnchanged, Content: text})
	}
	return d
}
