package models

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/mirador-activity/internal/utils"
)

// MaxWindowMillis is the largest window that still fits a time.Duration.
const MaxWindowMillis = int64(math.MaxInt64 / int64(time.Millisecond))

// TrainingRequest describes one on-demand training call as received from a client.
type TrainingRequest struct {
	Dataset      string
	Classifier   string
	Sensors      []string
	Labels       []string
	Preprocessor string
	// Window is the preprocessing window in milliseconds; nil when absent.
	Window *int
	// Params holds classifier parameters exactly as supplied, before typing.
	Params map[string]string
	// RawQuery is the query string as received, part of the request signature.
	RawQuery string
}

// HasPreprocessing reports whether both preprocessor and window are supplied.
func (r TrainingRequest) HasPreprocessing() bool {
	return r.Preprocessor != "" && r.Window != nil
}

// Validate checks the request shape before any retrieval happens.
func (r TrainingRequest) Validate() error {
	const op = "models.TrainingRequest.Validate"
	if strings.TrimSpace(r.Dataset) == "" {
		return utils.NewAppError(op, "dataset is required", utils.ErrInvalidInput)
	}
	if strings.TrimSpace(r.Classifier) == "" {
		return utils.NewAppError(op, "classifier is required", utils.ErrInvalidInput)
	}
	if len(r.Sensors) == 0 {
		return utils.NewAppError(op, "at least one sensor is required", utils.ErrInvalidInput)
	}
	if len(r.Labels) == 0 {
		return utils.NewAppError(op, "at least one label is required", utils.ErrInvalidInput)
	}
	if (r.Preprocessor == "") != (r.Window == nil) {
		return utils.NewAppError(op, "both _window and _preprocessor need to be specified (or left out)", utils.ErrInvalidInput)
	}
	if r.Window != nil && *r.Window <= 0 {
		return utils.NewAppError(op, fmt.Sprintf("window must be positive, got %d", *r.Window), utils.ErrInvalidInput)
	}
	if r.Window != nil && int64(*r.Window) > MaxWindowMillis {
		return utils.NewAppError(op, fmt.Sprintf("window must be at most %d ms, got %d", MaxWindowMillis, *r.Window), utils.ErrInvalidInput)
	}
	return nil
}

// Key returns the request signature used by the result cache. Sensor and label order is
// significant; parameters are sorted by name and the raw query string is appended verbatim.
func (r TrainingRequest) Key() string {
	var b strings.Builder
	b.WriteString(strconv.Quote(r.Dataset))
	b.WriteByte('|')
	b.WriteString(strconv.Quote(r.Classifier))
	b.WriteByte('|')
	writeList(&b, r.Sensors)
	b.WriteByte('|')
	writeList(&b, r.Labels)
	b.WriteByte('|')
	b.WriteString(strconv.Quote(r.Preprocessor))
	b.WriteByte('|')
	if r.Window != nil {
		b.WriteString(strconv.Itoa(*r.Window))
	}
	b.WriteByte('|')

	names := make([]string, 0, len(r.Params))
	for name := range r.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(name))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(r.Params[name]))
	}
	b.WriteByte('|')
	b.WriteString(r.RawQuery)
	return b.String()
}

func writeList(b *strings.Builder, values []string) {
	b.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(v))
	}
	b.WriteByte(']')
}
