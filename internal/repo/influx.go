package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-activity/internal/query"
	ttlcache "github.com/miradorstack/mirador-activity/pkg/cache"
)

// Result is a tabular query result: a column header and one value slice per row.
type Result struct {
	Columns []string
	Values  [][]any
}

// InfluxConfig configures access to an InfluxDB 1.x HTTP API.
type InfluxConfig struct {
	BaseURL  string
	Database string
	Username string
	Password string
	Timeout  time.Duration
}

// InfluxClient runs InfluxQL statements over the /query endpoint.
type InfluxClient struct {
	baseURL    string
	database   string
	username   string
	password   string
	httpClient *http.Client
	discovery  *ttlcache.TTLCache
}

// NewInfluxClient constructs a client. A nil discovery cache disables caching of SHOW statements.
func NewInfluxClient(cfg InfluxConfig, discovery *ttlcache.TTLCache) *InfluxClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &InfluxClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		database:   cfg.Database,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
		discovery:  discovery,
	}
}

// Query executes q and returns the rows of every series concatenated in order.
func (c *InfluxClient) Query(ctx context.Context, q query.Query) (Result, error) {
	series, err := c.execute(ctx, q.String())
	if err != nil {
		return Result{}, fmt.Errorf("influxdb query failed: %w", err)
	}

	var result Result
	for _, s := range series {
		if result.Columns == nil {
			result.Columns = append([]string(nil), s.Columns...)
		} else if !sameColumns(result.Columns, s.Columns) {
			return Result{}, fmt.Errorf("influxdb returned series with differing columns: %v vs %v", result.Columns, s.Columns)
		}
		for _, row := range s.Values {
			result.Values = append(result.Values, normaliseRow(row))
		}
	}
	return result, nil
}

// Measurements lists every measurement in the database.
func (c *InfluxClient) Measurements(ctx context.Context) ([]string, error) {
	return c.discover(ctx, query.ShowMeasurements(), "name")
}

// LabelValues lists the distinct values of the tag key within measurement.
func (c *InfluxClient) LabelValues(ctx context.Context, measurement, key string) ([]string, error) {
	return c.discover(ctx, query.ShowTagValues(measurement, key), "value")
}

// FieldKeys lists the field keys of measurement.
func (c *InfluxClient) FieldKeys(ctx context.Context, measurement string) ([]string, error) {
	return c.discover(ctx, query.ShowFieldKeys(measurement), "fieldKey")
}

// Ping checks the server is reachable.
func (c *InfluxClient) Ping(ctx context.Context) error {
	if c.baseURL == "" {
		return fmt.Errorf("influxdb base URL not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolvePath("/ping"), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("influxdb ping returned %s", resp.Status)
	}
	return nil
}

func (c *InfluxClient) discover(ctx context.Context, statement, column string) ([]string, error) {
	if c.discovery != nil {
		if cached, ok := c.discovery.Get(statement); ok {
			return cached, nil
		}
	}

	series, err := c.execute(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("influxdb %q failed: %w", statement, err)
	}

	values := make([]string, 0)
	for _, s := range series {
		idx := indexOf(s.Columns, column)
		if idx < 0 {
			return nil, fmt.Errorf("influxdb %q returned no %s column", statement, column)
		}
		for _, row := range s.Values {
			if idx < len(row) {
				if v, ok := row[idx].(string); ok {
					values = append(values, v)
				}
			}
		}
	}

	// Empty answers are not cached so a measurement written after a miss shows up immediately.
	if c.discovery != nil && len(values) > 0 {
		c.discovery.Set(statement, values)
	}
	return values, nil
}

type influxSeries struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Values  [][]any  `json:"values"`
}

type influxResponse struct {
	Results []struct {
		StatementID int            `json:"statement_id"`
		Series      []influxSeries `json:"series"`
		Error       string         `json:"error"`
	} `json:"results"`
	Error string `json:"error"`
}

func (c *InfluxClient) execute(ctx context.Context, statement string) ([]influxSeries, error) {
	if c == nil {
		return nil, fmt.Errorf("influxdb client not initialised")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("influxdb base URL not configured")
	}

	params := url.Values{}
	params.Set("q", statement)
	params.Set("epoch", "ms")
	if c.database != "" {
		params.Set("db", c.database)
	}
	endpoint := c.resolvePath("/query") + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body bytes.Buffer
	if _, err := body.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var decoded influxResponse
	decoder := json.NewDecoder(&body)
	decoder.UseNumber()
	if err := decoder.Decode(&decoded); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("influxdb returned %s", resp.Status)
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("influxdb error: %s", decoded.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("influxdb returned %s", resp.Status)
	}

	var series []influxSeries
	for _, r := range decoded.Results {
		if r.Error != "" {
			return nil, fmt.Errorf("influxdb statement %d: %s", r.StatementID, r.Error)
		}
		series = append(series, r.Series...)
	}
	return series, nil
}

func (c *InfluxClient) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

// normaliseRow converts json.Number cells into int64 (when integral) or float64.
func normaliseRow(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if n, ok := v.(json.Number); ok {
			if iv, err := n.Int64(); err == nil {
				out[i] = iv
				continue
			}
			if fv, err := n.Float64(); err == nil {
				out[i] = fv
				continue
			}
			out[i] = n.String()
			continue
		}
		out[i] = v
	}
	return out
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func indexOf(values []string, target string) int {
	for i, v := range values {
		if v == target {
			return i
		}
	}
	return -1
}
