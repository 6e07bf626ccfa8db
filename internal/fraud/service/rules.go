package service

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/smallbiznis/digimart/internal/config"
	"go.uber.org/zap"
)

type compiledRule struct {
	name    string
	program cel.Program
}

// ruleSet caches compiled CEL programs for the last seen rule configuration.
type ruleSet struct {
	log *zap.Logger
	env *cel.Env

	mu          sync.Mutex
	fingerprint string
	rules       []compiledRule
}

func newRuleSet(log *zap.Logger) (*ruleSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("total", cel.DoubleType),
		cel.Variable("method", cel.StringType),
		cel.Variable("item_count", cel.IntType),
		cel.Variable("velocity", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	return &ruleSet{log: log, env: env}, nil
}

func (r *ruleSet) programs(rules []config.FraudRule) []compiledRule {
	fp := fingerprint(rules)

	r.mu.Lock()
	defer r.mu.Unlock()
	if fp == r.fingerprint {
		return r.rules
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		program, err := r.compile(rule.Expression)
		if err != nil {
			r.log.Error("fraud rule skipped",
				zap.String("rule", rule.Name),
				zap.String("expression", rule.Expression),
				zap.Error(err),
			)
			continue
		}
		compiled = append(compiled, compiledRule{name: rule.Name, program: program})
	}
	r.fingerprint = fp
	r.rules = compiled
	return compiled
}

func (r *ruleSet) compile(expr string) (cel.Program, error) {
	ast, iss := r.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must yield bool, got %s", ast.OutputType())
	}
	return r.env.Program(ast)
}

// evaluate returns the names of rules that matched. Evaluation errors count as no match.
func (r *ruleSet) evaluate(rules []compiledRule, vars map[string]any) []string {
	var matched []string
	for _, rule := range rules {
		out, _, err := rule.program.Eval(vars)
		if err != nil {
			r.log.Warn("fraud rule evaluation failed", zap.String("rule", rule.name), zap.Error(err))
			continue
		}
		if hit, ok := out.Value().(bool); ok && hit {
			matched = append(matched, rule.name)
		}
	}
	return matched
}

func fingerprint(rules []config.FraudRule) string {
	var b strings.Builder
	for _, rule := range rules {
		b.WriteString(rule.Name)
		b.WriteByte(0)
		b.WriteString(rule.Expression)
		b.WriteByte(0)
	}
	return b.String()
}
