package matching

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"georesolve/pkg/logging"
	"georesolve/pkg/util/ipcodec"
)

var (
	celOnce sync.Once
	celEnv  *cel.Env
	celErr  error
)

// expressionEnv declares the variables an expression condition can use
func expressionEnv() (*cel.Env, error) {
	celOnce.Do(func() {
		celEnv, celErr = cel.NewEnv(
			cel.Variable("ip", cel.StringType),
			cel.Variable("version", cel.IntType),
			cel.Variable("country", cel.StringType),
			cel.Variable("continent", cel.StringType),
			cel.Variable("asn", cel.IntType),
		)
		if celErr != nil {
			celErr = fmt.Errorf("failed to create CEL environment: %w", celErr)
		}
	})
	return celEnv, celErr
}

// expression is a boolean CEL program; any program returning true matches
type expression struct {
	sources  []string
	programs []cel.Program
}

func newExpression(values []string) (*expression, error) {
	env, err := expressionEnv()
	if err != nil {
		return nil, err
	}

	c := &expression{}
	for _, src := range values {
		ast, issues := env.Compile(src)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("expression must return bool, got %v", ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("failed to create CEL program: %w", err)
		}
		c.sources = append(c.sources, src)
		c.programs = append(c.programs, prg)
	}
	return c, nil
}

func (c *expression) match(q *Query) bool {
	// geo variables are bound lazily so address-only expressions never
	// trigger the characteristics lookup
	vars := map[string]any{
		"ip":      q.IP.String(),
		"version": int64(ipcodec.Version(q.IP)),
		"country": func() any {
			chars, _ := q.Characteristics()
			return chars.Country
		},
		"continent": func() any {
			chars, _ := q.Characteristics()
			return chars.Continent
		},
		"asn": func() any {
			chars, _ := q.Characteristics()
			return int64(chars.ASN)
		},
	}

	for i, prg := range c.programs {
		out, _, err := prg.Eval(vars)
		if err != nil {
			log := logging.Component("matching")
			log.Debug().Err(err).Str("expression", c.sources[i]).Msg("expression evaluation failed")
			continue
		}
		if b, ok := out.Value().(bool); ok && b {
			return true
		}
	}
	return false
}

