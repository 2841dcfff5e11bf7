// Package fetch maps a planner.QueryPlan onto the remote API calls needed to
// satisfy it (spec §4.5): LIKE pattern resolution via browse, end-time
// defaulting, sorting-mode hints, and dispatch to the right remote.Client
// method per virtual table. Remote results are materialised into a
// columnar.Batch (spec §4.6); predicates the remote API cannot express are
// applied locally as a post-fetch filter pass.
package fetch

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/akz4ol/histgate/internal/catalog"
	"github.com/akz4ol/histgate/internal/columnar"
	"github.com/akz4ol/histgate/internal/pgerr"
	"github.com/akz4ol/histgate/internal/planner"
	"github.com/akz4ol/histgate/internal/remote"
)

// endTimeLayout is the UTC, Z-suffixed format used for end-time defaulting
// (spec §4.5) — distinct from the planner's own interval-arithmetic layout,
// which omits the trailing Z.
const endTimeLayout = "2006-01-02T15:04:05.000Z"

// Fetcher dispatches resolved query plans to the historian backend and
// materialises their results into columnar batches.
type Fetcher struct {
	client *remote.Client
	cache  *PatternCache
	logger zerolog.Logger
}

// NewFetcher builds a Fetcher over an authenticated remote.Client.
func NewFetcher(client *remote.Client, cache *PatternCache, logger zerolog.Logger) *Fetcher {
	return &Fetcher{client: client, cache: cache, logger: logger}
}

// Execute resolves plan against the remote backend and returns a materialised
// batch. The caller (internal/connfsm) registers the batch in internal/engine and runs the
// original SQL text against it for projection, aggregation and ordering.
func (f *Fetcher) Execute(ctx context.Context, plan *planner.QueryPlan) (*columnar.Batch, error) {
	switch plan.Table {
	case catalog.TagValues:
		return f.fetchTagValues(ctx, plan)
	case catalog.LoggedTagValues:
		return f.fetchLoggedTagValues(ctx, plan)
	case catalog.ActiveAlarms:
		return f.fetchActiveAlarms(ctx, plan)
	case catalog.LoggedAlarms:
		return f.fetchLoggedAlarms(ctx, plan)
	case catalog.TagList:
		return f.fetchTagList(ctx, plan)
	default:
		return nil, pgerr.New(pgerr.UndefinedTable, "table %q has no remote fetch path", plan.Table.Name())
	}
}

// resolveNames extracts the concrete tag/logging-tag name list implied by
// filters on column (spec §4.5: "=", "IN" and "LIKE" all consume it). A LIKE
// filter is resolved to concrete names via browse, through the pattern cache
// when one is configured.
func (f *Fetcher) resolveNames(ctx context.Context, table catalog.VirtualTable, column string, plan *planner.QueryPlan, loggingTag bool) ([]string, error) {
	var names []string
	for _, flt := range plan.Filters {
		if flt.Column != column {
			continue
		}
		switch flt.Operator {
		case planner.OpEqual:
			names = append(names, flt.Value.Str)
		case planner.OpIn:
			names = append(names, flt.Value.List...)
		case planner.OpLike:
			resolved, err := f.resolveLikePattern(ctx, table, flt.Value.Str, loggingTag)
			if err != nil {
				return nil, err
			}
			names = append(names, resolved...)
		}
	}
	return DedupeNames(names), nil
}

func (f *Fetcher) resolveLikePattern(ctx context.Context, table catalog.VirtualTable, sqlPattern string, loggingTag bool) ([]string, error) {
	browsePattern, warn := TranslateLike(sqlPattern)
	if warn {
		f.logger.Warn().Str("pattern", sqlPattern).Msg("LIKE pattern uses unsupported '_' wildcard, browse cannot match single characters")
	}
	if loggingTag {
		browsePattern = AsLoggingTagPattern(browsePattern)
	}

	cacheTable := normalizeTable(table.Name())
	if names, ok := f.cache.Lookup(ctx, cacheTable, browsePattern); ok {
		return names, nil
	}

	var objectTypeFilters []string
	if loggingTag {
		objectTypeFilters = []string{"LOGGINGTAG"}
	}
	results, err := f.client.Browse(ctx, []string{browsePattern}, objectTypeFilters, nil, "")
	if err != nil {
		return nil, pgerr.Wrap(err)
	}
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	names = DedupeNames(names)
	f.cache.Store(ctx, cacheTable, browsePattern, names)
	return names, nil
}

func (f *Fetcher) fetchTagValues(ctx context.Context, plan *planner.QueryPlan) (*columnar.Batch, error) {
	names, err := f.resolveNames(ctx, plan.Table, "tag_name", plan, false)
	if err != nil {
		return nil, err
	}
	results, err := f.client.TagValues(ctx, names, false)
	if err != nil {
		return nil, pgerr.Wrap(err)
	}

	batch := columnar.NewBatch(plan.Table.Schema())
	for _, r := range results {
		row := map[string]columnar.Value{"tag_name": columnar.Value{Kind: columnar.Text, Text: r.Name}}
		if r.Value != nil {
			populateReading(row, *r.Value)
		}
		if !passesValueFilters(row, plan.Filters) {
			continue
		}
		batch.AppendRow(row)
	}
	return batch, nil
}

func (f *Fetcher) fetchLoggedTagValues(ctx context.Context, plan *planner.QueryPlan) (*columnar.Batch, error) {
	names, err := f.resolveNames(ctx, plan.Table, "tag_name", plan, true)
	if err != nil {
		return nil, err
	}

	startTime, endTime := timeBounds(plan.Filters, "timestamp")
	if endTime == nil {
		s := time.Now().UTC().Format(endTimeLayout)
		endTime = &s
	}
	var maxValues *int
	if plan.Limit != nil {
		n := int(*plan.Limit)
		maxValues = &n
	}
	sortMode := sortingModeFromPlan(plan)

	results, err := f.client.LoggedTagValues(ctx, names, startTime, endTime, maxValues, &sortMode)
	if err != nil {
		return nil, pgerr.Wrap(err)
	}

	batch := columnar.NewBatch(plan.Table.Schema())
	for _, r := range results {
		for _, lv := range r.Values {
			row := map[string]columnar.Value{"tag_name": columnar.Value{Kind: columnar.Text, Text: r.LoggingTagName}}
			populateReading(row, lv.Value)
			if !passesValueFilters(row, plan.Filters) {
				continue
			}
			batch.AppendRow(row)
		}
	}
	return batch, nil
}

func (f *Fetcher) fetchActiveAlarms(ctx context.Context, plan *planner.QueryPlan) (*columnar.Batch, error) {
	filterString := alarmFilterString(plan.Filters)
	results, err := f.client.ActiveAlarms(ctx, nil, filterString, "", nil)
	if err != nil {
		return nil, pgerr.Wrap(err)
	}

	batch := columnar.NewBatch(plan.Table.Schema())
	for _, a := range results {
		row := alarmRow(a)
		if !passesAlarmFilters(row, plan.Filters) {
			continue
		}
		batch.AppendRow(row)
	}
	return batch, nil
}

func (f *Fetcher) fetchLoggedAlarms(ctx context.Context, plan *planner.QueryPlan) (*columnar.Batch, error) {
	filterString := virtualEqualsFilter(plan.Filters, "filterString")
	if filterString == "" {
		filterString = alarmFilterString(plan.Filters)
	}
	filterLanguage := virtualEqualsFilter(plan.Filters, "filter_language")
	systemNames := virtualNamesFilter(plan.Filters, "system_name")

	startTime, endTime := timeBounds(plan.Filters, "raise_time")
	if startTime == nil {
		startTime, endTime = timeBounds(plan.Filters, "modification_time")
	}
	if endTime == nil {
		s := time.Now().UTC().Format(endTimeLayout)
		endTime = &s
	}
	var maxResults *int
	if plan.Limit != nil {
		n := int(*plan.Limit)
		maxResults = &n
	}

	results, err := f.client.LoggedAlarms(ctx, systemNames, filterString, filterLanguage, startTime, endTime, maxResults)
	if err != nil {
		return nil, pgerr.Wrap(err)
	}

	// Virtual columns are WHERE-only parameters with no backing data; every
	// fetched row is, by construction, one that satisfies them, so the value
	// actually used to drive the remote call is echoed onto each row. This
	// lets the engine re-run the original query's WHERE clause over the
	// materialised batch (spec §4.6) without a virtual-column predicate
	// spuriously failing against an otherwise-absent column.
	virtualCols := map[string]columnar.Value{}
	if filterString != "" {
		virtualCols["filterString"] = columnar.Value{Kind: columnar.Text, Text: filterString}
	}
	if filterLanguage != "" {
		virtualCols["filter_language"] = columnar.Value{Kind: columnar.Text, Text: filterLanguage}
	}
	if len(systemNames) == 1 {
		virtualCols["system_name"] = columnar.Value{Kind: columnar.Text, Text: systemNames[0]}
	}

	batch := columnar.NewBatch(plan.Table.Schema())
	for _, a := range results {
		row := alarmRow(a)
		if a.Duration != nil {
			row["duration"] = columnar.Value{Kind: columnar.Text, Text: *a.Duration}
		}
		for col, v := range virtualCols {
			row[col] = v
		}
		if !passesAlarmFilters(row, plan.Filters) {
			continue
		}
		batch.AppendRow(row)
	}
	return batch, nil
}

func (f *Fetcher) fetchTagList(ctx context.Context, plan *planner.QueryPlan) (*columnar.Batch, error) {
	nameFilters := browseNameFilters(plan.Filters)
	objectTypeFilters := browseObjectTypeFilters(plan.Filters)
	language := virtualEqualsFilter(plan.Filters, "language")

	results, err := f.client.Browse(ctx, nameFilters, objectTypeFilters, nil, language)
	if err != nil {
		return nil, pgerr.Wrap(err)
	}

	batch := columnar.NewBatch(plan.Table.Schema())
	for _, r := range results {
		row := map[string]columnar.Value{
			"tag_name":    {Kind: columnar.Text, Text: r.Name},
			"object_type": stringOrEmpty(r.ObjectType),
		}
		if r.DisplayName != nil {
			row["display_name"] = columnar.Value{Kind: columnar.Text, Text: *r.DisplayName}
		}
		if r.DataType != nil {
			row["data_type"] = columnar.Value{Kind: columnar.Text, Text: *r.DataType}
		}
		if language != "" {
			row["language"] = columnar.Value{Kind: columnar.Text, Text: language}
		}
		if !passesBrowseFilters(row, plan.Filters) {
			continue
		}
		batch.AppendRow(row)
	}
	return batch, nil
}

func stringOrEmpty(s *string) columnar.Value {
	if s == nil {
		return columnar.Value{Kind: columnar.Null}
	}
	return columnar.Value{Kind: columnar.Text, Text: *s}
}

// populateReading fills the value-bearing columns shared by TagValues and
// LoggedTagValues rows (spec §3: numeric vs string readings, quality, and
// the dual timestamp/timestamp_ms representation).
func populateReading(row map[string]columnar.Value, v remote.Value) {
	switch val := v.Value.(type) {
	case float64:
		row["numeric_value"] = columnar.Value{Kind: columnar.Float, Float: val}
	case string:
		row["string_value"] = columnar.Value{Kind: columnar.Text, Text: val}
	case bool:
		row["numeric_value"] = columnar.Value{Kind: columnar.Float, Float: boolToFloat(val)}
	}
	if v.Quality != nil {
		row["quality"] = columnar.Value{Kind: columnar.Text, Text: v.Quality.Quality}
	}
	if v.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, v.Timestamp); err == nil {
			row["timestamp"] = columnar.Value{Kind: columnar.Timestamp, Text: v.Timestamp, TimeNanos: t.UnixNano()}
			row["timestamp_ms"] = columnar.Value{Kind: columnar.Integer, Int: t.UnixMilli()}
		}
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func alarmRow(a remote.Alarm) map[string]columnar.Value {
	row := map[string]columnar.Value{
		"name":              {Kind: columnar.Text, Text: a.Name},
		"instance_id":       {Kind: columnar.Integer, Int: int64(a.InstanceID)},
		"raise_time":        parseTimestampValue(a.RaiseTime),
		"modification_time": parseTimestampValue(a.ModificationTime),
		"state":             {Kind: columnar.Text, Text: a.State},
		"event_text":        {Kind: columnar.Text, Text: strings.Join(a.EventText, "; ")},
		"info_text":         {Kind: columnar.Text, Text: strings.Join(a.InfoText, "; ")},
	}
	if a.AlarmGroupID != nil {
		row["alarm_group_id"] = columnar.Value{Kind: columnar.Integer, Int: int64(*a.AlarmGroupID)}
	}
	if a.AcknowledgmentTime != nil {
		row["acknowledgment_time"] = parseTimestampValue(*a.AcknowledgmentTime)
	}
	if a.ClearTime != nil {
		row["clear_time"] = parseTimestampValue(*a.ClearTime)
	}
	if a.ResetTime != nil {
		row["reset_time"] = parseTimestampValue(*a.ResetTime)
	}
	if a.Priority != nil {
		row["priority"] = columnar.Value{Kind: columnar.Integer, Int: int64(*a.Priority)}
	}
	if a.Origin != nil {
		row["origin"] = columnar.Value{Kind: columnar.Text, Text: *a.Origin}
	}
	if a.Area != nil {
		row["area"] = columnar.Value{Kind: columnar.Text, Text: *a.Area}
	}
	if a.HostName != nil {
		row["host_name"] = columnar.Value{Kind: columnar.Text, Text: *a.HostName}
	}
	if a.UserName != nil {
		row["user_name"] = columnar.Value{Kind: columnar.Text, Text: *a.UserName}
	}
	if s, ok := a.Value.(string); ok {
		row["value"] = columnar.Value{Kind: columnar.Text, Text: s}
	}
	return row
}

func parseTimestampValue(raw string) columnar.Value {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return columnar.Value{Kind: columnar.Timestamp, Text: raw, TimeNanos: t.UnixNano()}
	}
	return columnar.Value{Kind: columnar.Null}
}

// alarmFilterString derives the backend's free-text alarm filter from a
// name/event_text/info_text LIKE or equality predicate, stripping SQL
// wildcards rather than translating them (the backend's filterString has
// its own, simpler substring semantics).
func alarmFilterString(filters []planner.ColumnFilter) string {
	for _, flt := range filters {
		switch flt.Column {
		case "name", "event_text", "info_text":
			if flt.Operator == planner.OpLike || flt.Operator == planner.OpEqual {
				return strings.ReplaceAll(flt.Value.Str, "%", "")
			}
		}
	}
	return ""
}

func virtualEqualsFilter(filters []planner.ColumnFilter, column string) string {
	for _, flt := range filters {
		if flt.Column == column && flt.Operator == planner.OpEqual {
			return flt.Value.Str
		}
	}
	return ""
}

func virtualNamesFilter(filters []planner.ColumnFilter, column string) []string {
	for _, flt := range filters {
		if flt.Column != column {
			continue
		}
		switch flt.Operator {
		case planner.OpEqual:
			return []string{flt.Value.Str}
		case planner.OpIn:
			return flt.Value.List
		}
	}
	return nil
}

func browseNameFilters(filters []planner.ColumnFilter) []string {
	var out []string
	for _, flt := range filters {
		if flt.Column != "tag_name" {
			continue
		}
		switch flt.Operator {
		case planner.OpEqual:
			out = append(out, flt.Value.Str+"*")
		case planner.OpIn:
			for _, n := range flt.Value.List {
				out = append(out, n+"*")
			}
		case planner.OpLike:
			pattern, _ := TranslateLike(flt.Value.Str)
			out = append(out, pattern)
		}
	}
	return out
}

func browseObjectTypeFilters(filters []planner.ColumnFilter) []string {
	for _, flt := range filters {
		if flt.Column != "object_type" {
			continue
		}
		switch flt.Operator {
		case planner.OpEqual:
			return []string{flt.Value.Str}
		case planner.OpIn:
			return flt.Value.List
		}
	}
	return nil
}

// timeBounds extracts [start, end) from either a BETWEEN predicate or a pair
// of comparison predicates on column, formatted in the planner's own
// timestamp layout (spec §4.4/§4.5).
func timeBounds(filters []planner.ColumnFilter, column string) (start, end *string) {
	for _, flt := range filters {
		if flt.Column != column {
			continue
		}
		switch flt.Operator {
		case planner.OpBetween:
			lo, hi := flt.Value.RangeLo.Str, flt.Value.RangeHi.Str
			start, end = &lo, &hi
		case planner.OpGreaterThan, planner.OpGreaterThanOrEqual:
			s := flt.Value.Str
			start = &s
		case planner.OpLessThan, planner.OpLessThanOrEqual:
			e := flt.Value.Str
			end = &e
		case planner.OpEqual:
			s := flt.Value.Str
			start, end = &s, &s
		}
	}
	return start, end
}

func sortingModeFromPlan(plan *planner.QueryPlan) string {
	if plan.OrderBy == nil {
		return SortingMode("", false)
	}
	return SortingMode(plan.OrderBy.Column, plan.OrderBy.Desc)
}

// --- post-fetch filtering, grounded on the backend's own client-side filter
// pass for predicates it cannot express remotely (quality, numeric/string
// value comparisons, display_name/data_type on browse results). ---

func passesValueFilters(row map[string]columnar.Value, filters []planner.ColumnFilter) bool {
	for _, flt := range filters {
		switch flt.Column {
		case "tag_name":
			continue // already applied via the remote name list
		case "numeric_value":
			if v, ok := row["numeric_value"]; ok && !checkNumericFilter(v.Float, flt) {
				return false
			}
		case "string_value":
			if v, ok := row["string_value"]; ok && !checkStringFilter(v.Text, flt) {
				return false
			}
		case "quality":
			if v, ok := row["quality"]; ok {
				if !checkStringFilter(v.Text, flt) {
					return false
				}
			} else if !checkNullFilter(flt) {
				return false
			}
		}
	}
	return true
}

func passesAlarmFilters(row map[string]columnar.Value, filters []planner.ColumnFilter) bool {
	for _, flt := range filters {
		if flt.Column != "priority" {
			continue
		}
		v, ok := row["priority"]
		priority := int64(0)
		if ok {
			priority = v.Int
		}
		if !checkNumericFilter(float64(priority), flt) {
			return false
		}
	}
	return true
}

func passesBrowseFilters(row map[string]columnar.Value, filters []planner.ColumnFilter) bool {
	for _, flt := range filters {
		switch flt.Column {
		case "display_name":
			if !checkStringFilter(row["display_name"].Text, flt) {
				return false
			}
		case "data_type":
			if !checkStringFilter(row["data_type"].Text, flt) {
				return false
			}
		}
	}
	return true
}

func checkNumericFilter(value float64, flt planner.ColumnFilter) bool {
	target := flt.Value.Num
	if flt.Value.Kind == planner.ValInteger {
		target = float64(flt.Value.Int)
	}
	switch flt.Operator {
	case planner.OpEqual:
		return value == target
	case planner.OpNotEqual:
		return value != target
	case planner.OpGreaterThan:
		return value > target
	case planner.OpLessThan:
		return value < target
	case planner.OpGreaterThanOrEqual:
		return value >= target
	case planner.OpLessThanOrEqual:
		return value <= target
	default:
		return false
	}
}

func checkStringFilter(value string, flt planner.ColumnFilter) bool {
	switch flt.Operator {
	case planner.OpEqual:
		return value == flt.Value.Str
	case planner.OpNotEqual:
		return value != flt.Value.Str
	case planner.OpLike:
		return matchesLikePattern(value, flt.Value.Str)
	default:
		return false
	}
}

func checkNullFilter(flt planner.ColumnFilter) bool {
	switch flt.Operator {
	case planner.OpEqual:
		return strings.EqualFold(flt.Value.Str, "NULL")
	case planner.OpNotEqual:
		return !strings.EqualFold(flt.Value.Str, "NULL")
	default:
		return false
	}
}

// matchesLikePattern evaluates a raw SQL LIKE pattern against a value
// returned by the backend (as opposed to TranslateLike, which targets the
// browse endpoint's own wildcard syntax).
func matchesLikePattern(value, pattern string) bool {
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `%`, ".*")
	escaped = strings.ReplaceAll(escaped, `_`, ".")
	re, err := regexp.Compile("^" + escaped + "$")
	if err != nil {
		return strings.Contains(value, strings.ReplaceAll(pattern, "%", ""))
	}
	return re.MatchString(value)
}
