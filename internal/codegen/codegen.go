// Package codegen turns fitted models into self-contained source a client evaluates locally.
package codegen

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/miradorstack/mirador-activity/internal/fit"
)

// Dialect selects the output language.
type Dialect string

const (
	JavaScript Dialect = "js"
	JSON       Dialect = "json"
)

// ContentType returns the HTTP content type for artifacts in the dialect.
func (d Dialect) ContentType() string {
	if d == JSON {
		return "application/json"
	}
	return "application/javascript"
}

var (
	ErrUnsupportedDialect = errors.New("unsupported dialect")
	ErrUnsupportedModel   = errors.New("unsupported model")

	identPattern = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
)

// Generate renders model in the dialect. features names the model's input columns in order and
// is embedded so clients can build feature vectors by name.
func Generate(model fit.Model, dialect Dialect, className string, features []string) (string, error) {
	if !identPattern.MatchString(className) {
		return "", fmt.Errorf("invalid class name %q", className)
	}
	if len(features) != model.NumFeatures() {
		return "", fmt.Errorf("model expects %d features, %d names given", model.NumFeatures(), len(features))
	}

	var trees []*fit.Tree
	switch m := model.(type) {
	case *fit.Tree:
		trees = []*fit.Tree{m}
	case *fit.Forest:
		trees = m.Trees
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedModel, model)
	}

	switch dialect {
	case JavaScript, "":
		return generateJS(model, className, features, trees)
	case JSON:
		return generateJSON(model, className, features, trees)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDialect, dialect)
	}
}

var jsTemplate = template.Must(template.New("js").Parse(`var {{.ClassName}} = function() {
    this.features = {{.Features}};
    this.classes = {{.Classes}};

    var trees = [
{{- range $i, $body := .Trees}}{{if $i}},{{end}}
        function(features) {
{{$body}}        }
{{- end}}
    ];

    this.predict = function(features) {
        if (!features || features.length !== {{.NumFeatures}}) {
            return -1;
        }
        var votes = {{.Zeros}};
        for (var i = 0; i < trees.length; i++) {
            votes[trees[i](features)] += 1;
        }
        var best = 0;
        for (var c = 1; c < votes.length; c++) {
            if (votes[c] > votes[best]) {
                best = c;
            }
        }
        return best;
    };
};

if (typeof module !== 'undefined' && module.exports) {
    module.exports = {{.ClassName}};
}
`))

func generateJS(model fit.Model, className string, features []string, trees []*fit.Tree) (string, error) {
	featuresJSON, err := json.Marshal(features)
	if err != nil {
		return "", err
	}
	classesJSON, err := json.Marshal(model.Classes())
	if err != nil {
		return "", err
	}
	zeros := make([]int, len(model.Classes()))
	zerosJSON, _ := json.Marshal(zeros)

	bodies := make([]string, 0, len(trees))
	for _, t := range trees {
		var b strings.Builder
		writeNode(&b, t.Root, 3)
		bodies = append(bodies, b.String())
	}

	var out bytes.Buffer
	err = jsTemplate.Execute(&out, struct {
		ClassName   string
		Features    string
		Classes     string
		Zeros       string
		NumFeatures int
		Trees       []string
	}{
		ClassName:   className,
		Features:    string(featuresJSON),
		Classes:     string(classesJSON),
		Zeros:       string(zerosJSON),
		NumFeatures: model.NumFeatures(),
		Trees:       bodies,
	})
	if err != nil {
		return "", fmt.Errorf("render javascript: %w", err)
	}
	return out.String(), nil
}

func writeNode(b *strings.Builder, n *fit.Node, depth int) {
	indent := strings.Repeat("    ", depth)
	if n.IsLeaf() {
		fmt.Fprintf(b, "%sreturn %d;\n", indent, n.Class())
		return
	}
	fmt.Fprintf(b, "%sif (features[%d] <= %s) {\n", indent, n.Feature, strconv.FormatFloat(n.Threshold, 'g', -1, 64))
	writeNode(b, n.Left, depth+1)
	fmt.Fprintf(b, "%s} else {\n", indent)
	writeNode(b, n.Right, depth+1)
	fmt.Fprintf(b, "%s}\n", indent)
}

type jsonNode struct {
	Feature   *int      `json:"feature,omitempty"`
	Threshold *float64  `json:"threshold,omitempty"`
	Left      *jsonNode `json:"left,omitempty"`
	Right     *jsonNode `json:"right,omitempty"`
	Class     *int      `json:"class,omitempty"`
}

func toJSONNode(n *fit.Node) *jsonNode {
	if n.IsLeaf() {
		class := n.Class()
		return &jsonNode{Class: &class}
	}
	feature, threshold := n.Feature, n.Threshold
	return &jsonNode{
		Feature:   &feature,
		Threshold: &threshold,
		Left:      toJSONNode(n.Left),
		Right:     toJSONNode(n.Right),
	}
}

func generateJSON(model fit.Model, className string, features []string, trees []*fit.Tree) (string, error) {
	doc := struct {
		ClassName string      `json:"class_name"`
		Features  []string    `json:"features"`
		Classes   []string    `json:"classes"`
		Trees     []*jsonNode `json:"trees"`
	}{
		ClassName: className,
		Features:  features,
		Classes:   model.Classes(),
	}
	for _, t := range trees {
		doc.Trees = append(doc.Trees, toJSONNode(t.Root))
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render json: %w", err)
	}
	return string(data), nil
}
