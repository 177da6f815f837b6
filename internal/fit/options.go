package fit

import (
	"fmt"
	"math"
	"strconv"

	"github.com/miradorstack/mirador-activity/internal/models"
)

type treeOptions struct {
	criterion             string
	splitter              string
	maxDepth              int
	minSamplesSplit       int
	minSamplesLeaf        int
	minWeightFractionLeaf float64
	maxFeatures           int
	maxLeafNodes          int
	minImpuritySplit      float64
	randomState           int64
}

func defaultTreeOptions() treeOptions {
	return treeOptions{
		criterion:        "gini",
		splitter:         "best",
		minSamplesSplit:  2,
		minSamplesLeaf:   1,
		minImpuritySplit: 1e-7,
	}
}

// treeOptionsFrom reads the tree parameters shared by both estimators. max_features is resolved by
// the caller because its type differs between kinds.
func treeOptionsFrom(params models.Params) (treeOptions, error) {
	opts := defaultTreeOptions()
	if v, ok := params.String("criterion"); ok {
		if v != "gini" && v != "entropy" {
			return opts, fmt.Errorf("%w: criterion must be gini or entropy, got %q", ErrInvalidData, v)
		}
		opts.criterion = v
	}
	if v, ok := params.String("splitter"); ok {
		if v != "best" && v != "random" {
			return opts, fmt.Errorf("%w: splitter must be best or random, got %q", ErrInvalidData, v)
		}
		opts.splitter = v
	}
	if v, ok := params.Int("max_depth"); ok {
		if v <= 0 {
			return opts, fmt.Errorf("%w: max_depth must be greater than zero", ErrInvalidData)
		}
		opts.maxDepth = v
	}
	if v, ok := params.Int("min_samples_split"); ok {
		if v < 2 {
			return opts, fmt.Errorf("%w: min_samples_split must be at least 2", ErrInvalidData)
		}
		opts.minSamplesSplit = v
	}
	if v, ok := params.Int("min_samples_leaf"); ok {
		if v < 1 {
			return opts, fmt.Errorf("%w: min_samples_leaf must be at least 1", ErrInvalidData)
		}
		opts.minSamplesLeaf = v
	}
	if v, ok := params.Float("min_weight_fraction_leaf"); ok {
		if v < 0 || v > 0.5 {
			return opts, fmt.Errorf("%w: min_weight_fraction_leaf must be in [0, 0.5]", ErrInvalidData)
		}
		opts.minWeightFractionLeaf = v
	}
	if v, ok := params.Int("max_leaf_nodes"); ok {
		if v < 2 {
			return opts, fmt.Errorf("%w: max_leaf_nodes must be at least 2", ErrInvalidData)
		}
		opts.maxLeafNodes = v
	}
	if v, ok := params.Float("min_impurity_split"); ok {
		if v < 0 {
			return opts, fmt.Errorf("%w: min_impurity_split must be non-negative", ErrInvalidData)
		}
		opts.minImpuritySplit = v
	}
	if v, ok := params.Int("random_state"); ok {
		opts.randomState = int64(v)
	}
	return opts, nil
}

// resolveMaxFeatures interprets the forest's string form: sqrt, auto, log2, an integer, or a
// fraction of the feature count.
func resolveMaxFeatures(setting string, nFeatures int) (int, error) {
	var k int
	switch setting {
	case "", "auto", "sqrt":
		k = int(math.Sqrt(float64(nFeatures)))
	case "log2":
		k = int(math.Log2(float64(nFeatures)))
	case "None", "none", "all":
		k = nFeatures
	default:
		if n, err := strconv.Atoi(setting); err == nil {
			k = n
			break
		}
		f, err := strconv.ParseFloat(setting, 64)
		if err != nil || f <= 0 || f > 1 {
			return 0, fmt.Errorf("%w: unsupported max_features %q", ErrInvalidData, setting)
		}
		k = int(f * float64(nFeatures))
	}
	if k < 1 {
		k = 1
	}
	if k > nFeatures {
		return 0, fmt.Errorf("%w: max_features %d exceeds %d features", ErrInvalidData, k, nFeatures)
	}
	return k, nil
}
