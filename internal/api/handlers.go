package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/miradorstack/mirador-activity/internal/models"
	"github.com/miradorstack/mirador-activity/internal/services"
	"github.com/miradorstack/mirador-activity/internal/utils"
)

// Service defines the behaviour the HTTP handlers need from the service facade.
type Service interface {
	Measurements(ctx context.Context) ([]string, error)
	Labels(ctx context.Context, measurement string) ([]string, error)
	Sensors(ctx context.Context, measurement string) ([]string, error)
	Classifiers() []services.ClassifierInfo
	Preprocessors() []string
	Train(ctx context.Context, req models.TrainingRequest) (models.Artifact, error)
	Healthy(ctx context.Context) error
}

// RouterOptions tunes the HTTP surface.
type RouterOptions struct {
	// Dialect is the file extension classifiers are served under ("js" or "json").
	Dialect   string
	RateLimit float64
	RateBurst int
}

type handlers struct {
	logger  *slog.Logger
	service Service
	dialect string
}

// NewRouter builds the HTTP API.
func NewRouter(logger *slog.Logger, service Service, opts RouterOptions) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Dialect == "" {
		opts.Dialect = "js"
	}
	h := &handlers{logger: logger, service: service, dialect: opts.Dialect}
	limiter := NewClientLimiter(opts.RateLimit, opts.RateBurst)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	r.Get("/healthz", h.health)
	r.Get("/measurements", h.measurements)
	r.Get("/classifiers", h.classifiers)
	r.Get("/preprocessors", h.preprocessors)
	r.Route("/measurements/{measurement}", func(r chi.Router) {
		r.Get("/labels", h.labels)
		r.Get("/sensors", h.sensors)
		r.With(limiter.Middleware).Get("/classifiers/{classifier}.{ext}", h.train)
	})
	return r
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Healthy(r.Context()); err != nil {
		writeJSONError(w, r, http.StatusServiceUnavailable, err.Error(), utils.ErrStoreUnavailable.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "SERVING"})
}

func (h *handlers) measurements(w http.ResponseWriter, r *http.Request) {
	values, err := h.service.Measurements(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (h *handlers) labels(w http.ResponseWriter, r *http.Request) {
	values, err := h.service.Labels(r.Context(), chi.URLParam(r, "measurement"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (h *handlers) sensors(w http.ResponseWriter, r *http.Request) {
	values, err := h.service.Sensors(r.Context(), chi.URLParam(r, "measurement"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, values)
}

func (h *handlers) classifiers(w http.ResponseWriter, r *http.Request) {
	kinds := h.service.Classifiers()
	if verbose, _ := strconv.ParseBool(r.URL.Query().Get("verbose")); verbose {
		out := make(map[string]map[string]models.ParamKind, len(kinds))
		for _, k := range kinds {
			out[k.Name] = k.Params
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	out := make(map[string][]string, len(kinds))
	for _, k := range kinds {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)
		out[k.Name] = names
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) preprocessors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Preprocessors())
}

func (h *handlers) train(w http.ResponseWriter, r *http.Request) {
	if ext := chi.URLParam(r, "ext"); ext != h.dialect {
		writeJSONError(w, r, http.StatusNotFound, "classifiers are served as ."+h.dialect, "")
		return
	}
	req, err := FromHTTPTrainingRequest(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	artifact, err := h.service.Train(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("X-Classifier-Classes", strings.Join(artifact.Classes, ","))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(artifact.Source))
}

// FromHTTPTrainingRequest maps a classifier request into a TrainingRequest. Path parameters name the
// dataset and classifier; _sensors and _labels are required comma-separated lists, _preprocessor and
// _window select optional preprocessing, and every other query parameter is a classifier argument.
func FromHTTPTrainingRequest(r *http.Request) (models.TrainingRequest, error) {
	const op = "api.FromHTTPTrainingRequest"
	query := r.URL.Query()

	req := models.TrainingRequest{
		Dataset:      chi.URLParam(r, "measurement"),
		Classifier:   chi.URLParam(r, "classifier"),
		Sensors:      splitList(query.Get("_sensors")),
		Labels:       splitList(query.Get("_labels")),
		Preprocessor: strings.TrimSpace(query.Get("_preprocessor")),
		Params:       make(map[string]string),
		RawQuery:     r.URL.RawQuery,
	}
	if len(req.Sensors) == 0 {
		return models.TrainingRequest{}, utils.NewAppError(op, "_sensors is required", utils.ErrInvalidInput)
	}
	if len(req.Labels) == 0 {
		return models.TrainingRequest{}, utils.NewAppError(op, "_labels is required", utils.ErrInvalidInput)
	}
	if raw := strings.TrimSpace(query.Get("_window")); raw != "" {
		window, err := strconv.Atoi(raw)
		if err != nil {
			return models.TrainingRequest{}, utils.NewAppError(op, "_window must be an integer", utils.ErrInvalidInput)
		}
		req.Window = &window
	}
	for key, values := range query {
		if strings.HasPrefix(key, "_") || len(values) == 0 {
			continue
		}
		req.Params[key] = values[0]
	}
	return req, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// StatusFor maps a pipeline error to its HTTP status.
func StatusFor(err error) int {
	switch utils.Kind(err) {
	case utils.ErrInvalidInput, utils.ErrIllegalArgument, utils.ErrUnknownPreprocessor:
		return http.StatusBadRequest
	case utils.ErrUnknownClassifier:
		return http.StatusNotFound
	case utils.ErrMissingColumn, utils.ErrTrainingFailed:
		return http.StatusUnprocessableEntity
	case utils.ErrCompilationFailed:
		return http.StatusInternalServerError
	case utils.ErrTimeout:
		return http.StatusGatewayTimeout
	case utils.ErrStoreUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		h.logger.Debug("client went away", slog.String("request_id", RequestIDFromContext(r.Context())))
		writeJSONError(w, r, http.StatusServiceUnavailable, "request cancelled", "")
		return
	}
	status := StatusFor(err)
	kind := ""
	if k := utils.Kind(err); k != nil {
		kind = k.Error()
	}
	message := err.Error()
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		message = appErr.Msg
	}
	writeJSONError(w, r, status, message, kind)
}

type errorBody struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, message, kind string) {
	writeJSON(w, status, errorBody{Error: message, Kind: kind, RequestID: RequestIDFromContext(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
