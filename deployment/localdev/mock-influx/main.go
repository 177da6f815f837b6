// Command mock-influx answers the InfluxQL statements the trainer issues from a seeded in-memory
// store, so the service can run locally without an InfluxDB server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/miradorstack/mirador-activity/internal/query"
	"github.com/miradorstack/mirador-activity/internal/repo"
	"github.com/miradorstack/mirador-activity/internal/utils"
)

var (
	showTagValues = regexp.MustCompile(`^SHOW TAG VALUES FROM (".*") WITH KEY = (".*")$`)
	showFieldKeys = regexp.MustCompile(`^SHOW FIELD KEYS FROM (".*")$`)
	selectStmt    = regexp.MustCompile(`^SELECT (.+) FROM (\S+) WHERE (.+)$`)
	labelEquals   = regexp.MustCompile(`(\S+) = '([^']*)'`)
)

type series struct {
	Name    string   `json:"name,omitempty"`
	Columns []string `json:"columns"`
	Values  [][]any  `json:"values"`
}

type statementResult struct {
	StatementID int      `json:"statement_id"`
	Series      []series `json:"series,omitempty"`
	Error       string   `json:"error,omitempty"`
}

type server struct {
	logger *slog.Logger
	store  *repo.SQLiteStore
}

func main() {
	var (
		addr     string
		perLabel int
		labelKey string
	)
	flag.StringVar(&addr, "addr", ":8086", "Listen address")
	flag.IntVar(&perLabel, "rows", 500, "Synthetic samples per activity")
	flag.StringVar(&labelKey, "label-key", "Traininglabel", "Tag key holding the activity label")
	flag.Parse()

	logger := utils.NewLogger("info", false)
	store, err := repo.NewSQLiteStore(":memory:")
	if err != nil {
		logger.Error("open store", slog.Any("error", err))
		return
	}
	defer store.Close()

	points := repo.SyntheticDeviceMotion(perLabel, time.Now().Add(-time.Hour), labelKey)
	if err := store.WritePoints(context.Background(), points); err != nil {
		logger.Error("seed store", slog.Any("error", err))
		return
	}

	s := &server{logger: logger, store: store}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/query", s.query)

	logger.Info("mock influxdb listening", slog.String("address", addr), slog.Int("points", len(points)))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("mock influxdb exited", slog.Any("error", err))
	}
}

func (s *server) query(w http.ResponseWriter, r *http.Request) {
	statement := strings.TrimSpace(r.URL.Query().Get("q"))
	ctx := r.Context()

	var (
		out []series
		err error
	)
	switch {
	case statement == query.ShowMeasurements():
		var names []string
		if names, err = s.store.Measurements(ctx); err == nil {
			out = []series{listSeries("measurements", "name", names)}
		}
	case showTagValues.MatchString(statement):
		m := showTagValues.FindStringSubmatch(statement)
		var values []string
		if values, err = s.store.LabelValues(ctx, unquote(m[1]), unquote(m[2])); err == nil {
			out = []series{tagSeries(unquote(m[1]), unquote(m[2]), values)}
		}
	case showFieldKeys.MatchString(statement):
		m := showFieldKeys.FindStringSubmatch(statement)
		var keys []string
		if keys, err = s.store.FieldKeys(ctx, unquote(m[1])); err == nil {
			out = []series{listSeries(unquote(m[1]), "fieldKey", keys)}
		}
	case selectStmt.MatchString(statement):
		out, err = s.selectRows(r, selectStmt.FindStringSubmatch(statement))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported statement: " + statement})
		return
	}

	if err != nil {
		s.logger.Warn("statement failed", slog.String("statement", statement), slog.Any("error", err))
		writeJSON(w, http.StatusOK, map[string]any{"results": []statementResult{{Error: err.Error()}}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": []statementResult{{Series: out}}})
}

func (s *server) selectRows(r *http.Request, m []string) ([]series, error) {
	var fields []string
	if m[1] != "*" {
		for _, f := range strings.Split(m[1], ", ") {
			fields = append(fields, unquote(f))
		}
	}
	var labelKey string
	var labels []string
	for _, p := range labelEquals.FindAllStringSubmatch(m[3], -1) {
		labelKey = p[1]
		labels = append(labels, p[2])
	}

	q, err := query.Build(labels, fields, m[2], labelKey)
	if err != nil {
		return nil, err
	}
	result, err := s.store.Query(r.Context(), q)
	if err != nil {
		return nil, err
	}
	if len(result.Values) == 0 {
		return nil, nil
	}
	return []series{{Name: m[2], Columns: result.Columns, Values: result.Values}}, nil
}

func listSeries(name, column string, values []string) series {
	rows := make([][]any, 0, len(values))
	for _, v := range values {
		rows = append(rows, []any{v})
	}
	return series{Name: name, Columns: []string{column}, Values: rows}
}

func tagSeries(measurement, key string, values []string) series {
	rows := make([][]any, 0, len(values))
	for _, v := range values {
		rows = append(rows, []any{key, v})
	}
	return series{Name: measurement, Columns: []string{"key", "value"}, Values: rows}
}

func unquote(ident string) string {
	ident = strings.TrimSpace(ident)
	if len(ident) >= 2 && strings.HasPrefix(ident, `"`) && strings.HasSuffix(ident, `"`) {
		ident = ident[1 : len(ident)-1]
		ident = strings.ReplaceAll(ident, `\"`, `"`)
		ident = strings.ReplaceAll(ident, `\\`, `\`)
	}
	return ident
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
