package task

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/datar-psa/evalkit/log"
)

var filterEnv *cel.Env

func init() {
	// Variables visible to filter expressions, e.g.
	//   dataset == "gsm8k" && "few-shot" in tags
	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("dataset", cel.StringType),
		cel.Variable("split", cel.StringType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to create CEL environment: %v", err))
	}
	filterEnv = env
}

// CompileFilter compiles a boolean CEL expression over a task's name,
// dataset, split and tags into a Predicate. A task for which evaluation
// fails is not selected.
func CompileFilter(expr string) (Predicate, error) {
	if expr == "" {
		return nil, errors.New("cel: expression is empty")
	}
	ast, issues := filterEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("cel: expression %q must be boolean, got %s", expr, ast.OutputType())
	}
	prg, err := filterEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program build error: %w", err)
	}

	return func(t *Task) bool {
		tags := t.Tags
		if tags == nil {
			tags = []string{}
		}
		out, _, err := prg.Eval(map[string]any{
			"name":    t.Name,
			"dataset": t.DatasetName,
			"split":   t.Split,
			"tags":    tags,
		})
		if err != nil {
			log.Debugf("filter %q on task %s: %v", expr, t.Name, err)
			return false
		}
		b, ok := out.(types.Bool)
		return ok && bool(b)
	}, nil
}
