// Package query builds retrieval requests against the time-series store.
//
// Label values are embedded as single-quoted literals without further escaping. They are expected
// to come from the store's own SHOW TAG VALUES output; deployments that accept arbitrary label text
// from untrusted callers need stricter escaping, or the parameterized SQLite store.
package query

import (
	"fmt"
	"strings"

	"github.com/miradorstack/mirador-activity/internal/utils"
)

// Query selects fields from a measurement where the label key equals any of the labels.
type Query struct {
	Measurement string
	// Fields is empty when every field is selected.
	Fields   []string
	LabelKey string
	Labels   []string
}

// Build constructs a Query. labels must be non-empty.
func Build(labels []string, fields []string, measurement, labelKey string) (Query, error) {
	const op = "query.Build"
	if len(labels) == 0 {
		return Query{}, utils.NewAppError(op, "labels must contain a list of label values", utils.ErrInvalidInput)
	}
	if strings.TrimSpace(measurement) == "" {
		return Query{}, utils.NewAppError(op, "measurement is required", utils.ErrInvalidInput)
	}
	if strings.TrimSpace(labelKey) == "" {
		return Query{}, utils.NewAppError(op, "label key is required", utils.ErrInvalidInput)
	}
	if len(fields) == 1 && fields[0] == "*" {
		fields = nil
	}
	return Query{
		Measurement: measurement,
		Fields:      append([]string(nil), fields...),
		LabelKey:    labelKey,
		Labels:      append([]string(nil), labels...),
	}, nil
}

// String renders the query as InfluxQL.
func (q Query) String() string {
	selectClause := "*"
	if len(q.Fields) > 0 {
		quoted := make([]string, 0, len(q.Fields))
		for _, f := range q.Fields {
			quoted = append(quoted, QuoteIdent(f))
		}
		selectClause = strings.Join(quoted, ", ")
	}

	predicates := make([]string, 0, len(q.Labels))
	for _, label := range q.Labels {
		predicates = append(predicates, fmt.Sprintf("%s = '%s'", q.LabelKey, label))
	}

	return fmt.Sprintf("SELECT %s FROM %s WHERE %s", selectClause, q.Measurement, strings.Join(predicates, " OR "))
}

// QuoteIdent double-quotes an identifier so names such as Accelerometer-X or reserved words parse.
func QuoteIdent(name string) string {
	escaped := strings.ReplaceAll(name, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

// ShowMeasurements lists every measurement in the database.
func ShowMeasurements() string {
	return "SHOW MEASUREMENTS"
}

// ShowTagValues lists the distinct values of key within measurement.
func ShowTagValues(measurement, key string) string {
	return fmt.Sprintf("SHOW TAG VALUES FROM %s WITH KEY = %s", QuoteIdent(measurement), QuoteIdent(key))
}

// ShowFieldKeys lists the field keys of measurement.
func ShowFieldKeys(measurement string) string {
	return fmt.Sprintf("SHOW FIELD KEYS FROM %s", QuoteIdent(measurement))
}
