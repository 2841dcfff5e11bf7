// Package fetch maps a planner.QueryPlan onto the remote API calls needed to
// satisfy it (spec §4.5): LIKE pattern resolution via browse, end-time
// defaulting, sorting-mode hints, and dispatch to the right remote.Client
// method per virtual table.
package fetch

import "strings"

// TranslateLike converts a SQL LIKE pattern into the backend's browse
// wildcard syntax (spec §4.5). The second return value reports whether an
// untranslatable construct (a `_` single-character wildcard) was present,
// so the caller can emit a warning without failing the query.
func TranslateLike(pattern string) (browsePattern string, warn bool) {
	if pattern == "%" {
		return "*", false
	}

	warn = strings.Contains(pattern, "_")

	leading := strings.HasPrefix(pattern, "%")
	trailing := strings.HasSuffix(pattern, "%") && len(pattern) > 1

	switch {
	case leading && trailing && strings.Count(pattern, "%") == 2:
		return "*" + pattern[1:len(pattern)-1] + "*", warn
	case trailing && strings.Count(pattern, "%") == 1:
		return pattern[:len(pattern)-1] + "*", warn
	case leading && strings.Count(pattern, "%") == 1:
		return "*" + pattern[1:], warn
	default:
		return strings.ReplaceAll(pattern, "%", "*"), warn
	}
}

// AsLoggingTagPattern appends the logging-tag suffix convention (":*") when
// a browse pattern destined for LoggedTagValues has no explicit ":" already
// (spec §4.5: "the backend stores logging tags as tag:logging").
func AsLoggingTagPattern(browsePattern string) string {
	if strings.Contains(browsePattern, ":") {
		return browsePattern
	}
	return browsePattern + ":*"
}

// SortingMode derives the remote sorting-mode hint from an ORDER BY clause
// on the timestamp or raise_time column (spec §4.5: defaults to TIME_ASC).
func SortingMode(orderByColumn string, desc bool) string {
	if orderByColumn != "timestamp" && orderByColumn != "raise_time" {
		return "TIME_ASC"
	}
	if desc {
		return "TIME_DESC"
	}
	return "TIME_ASC"
}

// DedupeNames returns names with duplicates removed, preserving first-seen order.
func DedupeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
