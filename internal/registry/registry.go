// Package registry is the closed catalog of trainable classifier kinds.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/miradorstack/mirador-activity/internal/fit"
	"github.com/miradorstack/mirador-activity/internal/models"
	"github.com/miradorstack/mirador-activity/internal/utils"
)

// Kind is one trainable model family with its legal, typed parameters.
type Kind struct {
	Name      string
	Params    map[string]models.ParamKind
	Estimator fit.Estimator
}

// ParamNames returns the legal parameter names in sorted order.
func (k Kind) ParamNames() []string {
	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseParams types raw parameter text against the kind's schema. Reserved keys (leading
// underscore) and empty values are skipped so the estimator falls back to its own defaults.
func (k Kind) ParseParams(raw map[string]string) (models.Params, error) {
	const op = "registry.Kind.ParseParams"
	params := make(models.Params, len(raw))
	for name, text := range raw {
		if strings.HasPrefix(name, "_") {
			continue
		}
		kind, ok := k.Params[name]
		if !ok {
			return nil, utils.NewAppError(op, fmt.Sprintf("illegal argument %s for %s", name, k.Name), utils.ErrIllegalArgument)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		value, err := models.ParseParamValue(kind, text)
		if err != nil {
			return nil, utils.NewAppError(op, fmt.Sprintf("argument %s for %s", name, k.Name), fmt.Errorf("%w: %v", utils.ErrInvalidInput, err))
		}
		params[name] = value
	}
	return params, nil
}

// CheckParams verifies every supplied parameter is legal for the kind and carries the declared type.
func (k Kind) CheckParams(params models.Params) error {
	const op = "registry.Kind.CheckParams"
	for name, value := range params {
		kind, ok := k.Params[name]
		if !ok {
			return utils.NewAppError(op, fmt.Sprintf("illegal argument %s for %s", name, k.Name), utils.ErrIllegalArgument)
		}
		if value.Kind != kind {
			return utils.NewAppError(op, fmt.Sprintf("argument %s for %s must be %s, got %s", name, k.Name, kind, value.Kind), utils.ErrInvalidInput)
		}
	}
	return nil
}

// Registry holds the fixed set of kinds. It is built once at startup and shared read-only.
type Registry struct {
	kinds map[string]Kind
}

// New returns the registry with every supported classifier kind.
func New() *Registry {
	kinds := []Kind{
		{
			Name: "DecisionTreeClassifier",
			Params: map[string]models.ParamKind{
				"criterion":                models.ParamString,
				"splitter":                 models.ParamString,
				"max_depth":                models.ParamInt,
				"min_samples_split":        models.ParamInt,
				"min_samples_leaf":         models.ParamInt,
				"min_weight_fraction_leaf": models.ParamFloat,
				"max_features":             models.ParamInt,
				"random_state":             models.ParamInt,
				"max_leaf_nodes":           models.ParamInt,
				"min_impurity_split":       models.ParamFloat,
				"presort":                  models.ParamBool,
			},
			Estimator: fit.DecisionTree{},
		},
		{
			Name: "RandomForestClassifier",
			Params: map[string]models.ParamKind{
				"n_estimators":             models.ParamInt,
				"criterion":                models.ParamString,
				"max_depth":                models.ParamInt,
				"min_samples_split":        models.ParamInt,
				"min_samples_leaf":         models.ParamInt,
				"min_weight_fraction_leaf": models.ParamFloat,
				"max_features":             models.ParamString,
				"max_leaf_nodes":           models.ParamInt,
				"min_impurity_split":       models.ParamFloat,
				"bootstrap":                models.ParamBool,
				"oob_score":                models.ParamBool,
				"random_state":             models.ParamInt,
				"warm_start":               models.ParamBool,
			},
			Estimator: fit.RandomForest{},
		},
	}

	r := &Registry{kinds: make(map[string]Kind, len(kinds))}
	for _, k := range kinds {
		r.kinds[k.Name] = k
	}
	return r
}

// All returns every kind sorted by name.
func (r *Registry) All() []Kind {
	out := make([]Kind, 0, len(r.kinds))
	for _, k := range r.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the kind registered under name.
func (r *Registry) Get(name string) (Kind, error) {
	k, ok := r.kinds[name]
	if !ok {
		return Kind{}, utils.NewAppError("registry.Get", fmt.Sprintf("unknown classifier: %s", name), utils.ErrUnknownClassifier)
	}
	return k, nil
}
