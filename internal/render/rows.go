package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/triagelabs/chainsaw/internal/datetime"
	"github.com/triagelabs/chainsaw/internal/document"
	"github.com/triagelabs/chainsaw/internal/hunt"
	"github.com/triagelabs/chainsaw/internal/search"
	"github.com/triagelabs/chainsaw/internal/value"
)

// DetectionRows adapts hunt.Detection output for all four renderers. It
// does not itself sort; callers that need the (timestamp, source,
// record_id, hunt_id) table ordering should run hunt.SortForTable first.
func DetectionRows(dets []hunt.Detection) []Row {
	out := make([]Row, len(dets))
	for i, d := range dets {
		out[i] = detectionRow{d}
	}
	return out
}

type detectionRow struct{ d hunt.Detection }

func (r detectionRow) TimestampForSort() *datetime.DateTime { return r.d.Timestamp }

func (r detectionRow) JSONValue() value.Value {
	obj := value.NewObject().
		WithField("rule", value.String(r.d.RuleName)).
		WithField("level", value.String(string(r.d.Level))).
		WithField("source", value.String(r.d.Source))
	if r.d.RuleID != "" {
		obj = obj.WithField("id", value.String(r.d.RuleID))
	}
	if r.d.RecordID != nil {
		obj = obj.WithField("record_id", value.Uint(*r.d.RecordID))
	}
	if r.d.Timestamp != nil {
		obj = obj.WithField("timestamp", value.String(r.d.Timestamp.String()))
	}
	if len(r.d.ExtractedFields) > 0 {
		keys := make([]string, 0, len(r.d.ExtractedFields))
		for k := range r.d.ExtractedFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := value.NewObject()
		for _, k := range keys {
			fields = fields.WithField(k, value.String(r.d.ExtractedFields[k]))
		}
		obj = obj.WithField("fields", fields)
	}
	if len(r.d.Tags) > 0 {
		tags := make([]value.Value, len(r.d.Tags))
		for i, t := range r.d.Tags {
			tags[i] = value.String(t)
		}
		obj = obj.WithField("tags", value.Array(tags))
	}
	return obj
}

func (r detectionRow) Columns() []string {
	ts := ""
	if r.d.Timestamp != nil {
		ts = r.d.Timestamp.String()
	}
	rec := ""
	if r.d.RecordID != nil {
		rec = fmt.Sprintf("%d", *r.d.RecordID)
	}
	return []string{ts, string(r.d.Level), r.d.RuleName, r.d.Source, rec, extractedFieldsSummary(r.d.ExtractedFields)}
}

func extractedFieldsSummary(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + fields[k]
	}
	return strings.Join(parts, ", ")
}

// DetectionTableHeaders is the fixed column set for rendering detections.
var DetectionTableHeaders = []string{"timestamp", "level", "rule", "source", "record_id", "fields"}

// SearchRows adapts search.Result output.
func SearchRows(results []search.Result) []Row {
	out := make([]Row, len(results))
	for i, r := range results {
		out[i] = searchRow{r}
	}
	return out
}

type searchRow struct{ r search.Result }

func (r searchRow) TimestampForSort() *datetime.DateTime { return r.r.Timestamp }

func (r searchRow) JSONValue() value.Value {
	obj := value.NewObject().WithField("source", value.String(r.r.Source))
	if r.r.RecordID != nil {
		obj = obj.WithField("record_id", value.Uint(*r.r.RecordID))
	}
	if r.r.Timestamp != nil {
		obj = obj.WithField("timestamp", value.String(r.r.Timestamp.String()))
	}
	return obj.WithField("data", r.r.Data)
}

func (r searchRow) Columns() []string {
	ts := ""
	if r.r.Timestamp != nil {
		ts = r.r.Timestamp.String()
	}
	rec := ""
	if r.r.RecordID != nil {
		rec = fmt.Sprintf("%d", *r.r.RecordID)
	}
	return []string{ts, r.r.Source, rec, r.r.Data.ToJSON(false)}
}

// SearchTableHeaders is the fixed column set for rendering search hits.
var SearchTableHeaders = []string{"timestamp", "source", "record_id", "data"}

// DocumentRows adapts raw reader/dump output.
func DocumentRows(docs []document.Document) []Row {
	out := make([]Row, len(docs))
	for i, d := range docs {
		out[i] = documentRow{d}
	}
	return out
}

type documentRow struct{ d document.Document }

func (r documentRow) TimestampForSort() *datetime.DateTime { return r.d.Timestamp }

func (r documentRow) JSONValue() value.Value { return r.d.Data }

func (r documentRow) Columns() []string {
	ts := ""
	if r.d.Timestamp != nil {
		ts = r.d.Timestamp.String()
	}
	rec := ""
	if r.d.RecordID != nil {
		rec = fmt.Sprintf("%d", *r.d.RecordID)
	}
	return []string{ts, r.d.Source, rec, r.d.Data.ToJSON(false)}
}

// DocumentTableHeaders is the fixed column set for rendering raw documents.
var DocumentTableHeaders = []string{"timestamp", "source", "record_id", "data"}
