package engine

import (
	"fmt"

	"github.com/miradorstack/mirador-activity/internal/codegen"
	"github.com/miradorstack/mirador-activity/internal/fit"
	"github.com/miradorstack/mirador-activity/internal/models"
	"github.com/miradorstack/mirador-activity/internal/utils"
)

// DefaultClassName is the variable name the generated script binds the classifier to.
const DefaultClassName = "Activity"

// Compiler turns fitted models into portable artifacts in one dialect.
type Compiler struct {
	dialect codegen.Dialect
}

// NewCompiler constructs a compiler for dialect ("js" when empty).
func NewCompiler(dialect string) (*Compiler, error) {
	d := codegen.Dialect(dialect)
	switch d {
	case "":
		d = codegen.JavaScript
	case codegen.JavaScript, codegen.JSON:
	default:
		return nil, fmt.Errorf("%w: %q", codegen.ErrUnsupportedDialect, dialect)
	}
	return &Compiler{dialect: d}, nil
}

// Dialect returns the configured output dialect.
func (c *Compiler) Dialect() codegen.Dialect {
	return c.dialect
}

// Compile renders model under className; features names its input columns in order.
func (c *Compiler) Compile(model fit.Model, className string, features []string) (models.Artifact, error) {
	if className == "" {
		className = DefaultClassName
	}
	source, err := codegen.Generate(model, c.dialect, className, features)
	if err != nil {
		return models.Artifact{}, utils.NewAppError("engine.Compiler.Compile", fmt.Sprintf("generate %s", c.dialect), fmt.Errorf("%w: %v", utils.ErrCompilationFailed, err))
	}
	return models.Artifact{
		Source:      source,
		Dialect:     string(c.dialect),
		ContentType: c.dialect.ContentType(),
		ClassName:   className,
		Classes:     append([]string(nil), model.Classes()...),
		Features:    append([]string(nil), features...),
	}, nil
}
