package gdpull

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"reflect"

	"github.com/goccy/go-yaml"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
	"github.com/mashiike/gdpull/pkg/pullevent"
)

//go:embed cel_validation_patterns.json
var celValidationPatternsJSON []byte

// RuleInput is what a rule expression is evaluated against.
type RuleInput struct {
	File   *pullevent.File   `json:"file"`
	Folder *pullevent.Folder `json:"folder"`
}

// CELEnv provides a CEL environment configured for evaluating expressions
// against a file and the folder it is pulled from.
type CELEnv struct {
	env                *cel.Env
	validationPatterns []*RuleInput
}

// NewCELEnv creates a new CEL environment with pullevent types registered.
// Field names in CEL expressions use lowerCamelCase (the cel struct tags),
// e.g., file.mimeType, file.size, folder.name.
func NewCELEnv() (*CELEnv, error) {
	env, err := cel.NewEnv(
		ext.NativeTypes(
			ext.ParseStructTags(true),
			reflect.TypeOf(&pullevent.File{}),
			reflect.TypeOf(&pullevent.Folder{}),
		),
		cel.Variable("file", cel.ObjectType("pullevent.File")),
		cel.Variable("folder", cel.ObjectType("pullevent.Folder")),
		ext.Strings(),
		cel.Function("env",
			cel.Overload("env_string",
				[]*cel.Type{cel.StringType},
				cel.StringType,
				cel.UnaryBinding(func(arg ref.Val) ref.Val {
					name, ok := arg.Value().(string)
					if !ok {
						return types.NewErr("env() requires a string argument")
					}
					return types.String(os.Getenv(name))
				}),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	var patterns []*RuleInput
	if err := json.Unmarshal(celValidationPatternsJSON, &patterns); err != nil {
		return nil, fmt.Errorf("failed to parse CEL validation patterns: %w", err)
	}
	return &CELEnv{env: env, validationPatterns: patterns}, nil
}

// CompiledExpression represents a compiled CEL expression.
type CompiledExpression struct {
	program cel.Program
}

// Compile compiles a CEL expression string.
func (e *CELEnv) Compile(expr string) (*CompiledExpression, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("CEL expression must return bool, got %s", ast.OutputType())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}
	return &CompiledExpression{program: prg}, nil
}

// Eval evaluates the compiled expression against the given input.
func (c *CompiledExpression) Eval(in *RuleInput) (bool, error) {
	vars := map[string]any{
		"file":   &pullevent.File{},
		"folder": &pullevent.Folder{},
	}
	if in != nil && in.File != nil {
		vars["file"] = in.File
	}
	if in != nil && in.Folder != nil {
		vars["folder"] = in.Folder
	}
	result, _, err := c.program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}
	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression returned non-bool value: %T", result.Value())
	}
	return b, nil
}

// ExprOrBool holds either a CEL bool expression or a static bool value.
type ExprOrBool struct {
	raw   string
	value bool
	expr  *CompiledExpression
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *ExprOrBool) UnmarshalYAML(data []byte) error {
	return yaml.Unmarshal(data, &e.raw)
}

// Bind compiles the expression if valid, otherwise parses as a static bool.
// When it's an expression, validates it against all validation patterns to ensure it evaluates correctly.
func (e *ExprOrBool) Bind(env *CELEnv) error {
	expr, err := env.Compile(e.raw)
	if err != nil {
		switch e.raw {
		case "true":
			e.value = true
		case "false":
			e.value = false
		default:
			return fmt.Errorf("invalid bool value: %s: %w", e.raw, err)
		}
		return nil
	}
	for i, pattern := range env.validationPatterns {
		if _, err := expr.Eval(pattern); err != nil {
			return fmt.Errorf("CEL expression validation failed on pattern[%d]: %w", i, err)
		}
	}
	e.expr = expr
	return nil
}

// Eval evaluates the expression or returns the static value.
func (e *ExprOrBool) Eval(in *RuleInput) (bool, error) {
	if e.expr == nil {
		return e.value, nil
	}
	return e.expr.Eval(in)
}

// IsExpr returns true if this holds an expression.
func (e *ExprOrBool) IsExpr() bool {
	return e.expr != nil
}

// Raw returns the raw string value.
func (e *ExprOrBool) Raw() string {
	return e.raw
}
