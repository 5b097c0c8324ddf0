package generator

import (
	"regexp"
	"strings"

	"github.com/okian/duel/internal/domain/candidate"
	"github.com/okian/duel/internal/domain/selection"
)

// SystemPrompt instructs the model to balance exploitation and exploration.
const SystemPrompt = `You are a creative assistant that generates options based on given criteria.
When history is provided, use an exploitation/exploration balance:
- Option 1 should EXPLOIT: go deeper in the direction of previously selected options
- Option 2 should EXPLORE: try a different area of the criteria space
Always respond with exactly 2 options, one per line, without numbering or prefixes.`

// UserContent renders the criteria and session history for the model.
func UserContent(prompt string, summary selection.HistorySummary) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(prompt))

	if liked := positives(summary); len(liked) > 0 {
		b.WriteString("\n\nPreviously selected options (use as positive examples): ")
		b.WriteString(strings.Join(liked, ", "))
	}
	if rejected := negatives(summary); len(rejected) > 0 {
		b.WriteString("\n\nDeprioritize these options (user rejected both): ")
		b.WriteString(strings.Join(rejected, ", "))
	}
	b.WriteString("\n\nGenerate exactly 2 options, one per line.")
	return b.String()
}

// positives are the session's recent picks followed by the global favourites.
func positives(summary selection.HistorySummary) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(text string) {
		key := candidate.Normalize(text)
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, text)
	}
	for i := len(summary.Recent) - 1; i >= 0; i-- {
		if summary.Recent[i].Selected {
			add(summary.Recent[i].Text)
		}
	}
	for _, text := range summary.TopSelected {
		add(text)
	}
	return out
}

// negatives are recent rejections that were never picked by the session.
func negatives(summary selection.HistorySummary) []string {
	picked := make(map[string]struct{})
	for _, h := range summary.Recent {
		if h.Selected {
			picked[candidate.Normalize(h.Text)] = struct{}{}
		}
	}
	seen := make(map[string]struct{})
	var out []string
	for i := len(summary.Recent) - 1; i >= 0; i-- {
		h := summary.Recent[i]
		key := candidate.Normalize(h.Text)
		if h.Selected || key == "" {
			continue
		}
		if _, ok := picked[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, h.Text)
	}
	return out
}

// listMarker matches "1.", "2)", "-", "*", "•", "Option 1:" and similar prefixes.
var listMarker = regexp.MustCompile(`^(?i)(?:option\s*\d+\s*[:.)-]|\d+\s*[.)]|[-*•])\s*`)

// ParsePair extracts the first two non-empty lines of a response, stripping
// list markers and surrounding quotes.
func ParsePair(raw string) (string, string, bool) {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = listMarker.ReplaceAllString(line, "")
		line = strings.Trim(line, "\"'`*")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == 2 {
			return lines[0], lines[1], true
		}
	}
	return "", "", false
}
