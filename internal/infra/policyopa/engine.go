// Package policyopa evaluates the stage-authorization Rego bundle. The
// bundle decides which operator positions may run which stage types; with
// no bundle configured every authenticated operator is allowed.
package policyopa

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Testiot539/feec-workbench-daemon/internal/domain"

	"github.com/open-policy-agent/opa/rego"
)

const defaultQuery = "data.workbench.policy.result"

type Engine struct {
	query rego.PreparedEvalQuery
}

func NewEngineFromBundlePath(ctx context.Context, bundlePath string) (*Engine, error) {
	if bundlePath == "" {
		return nil, errors.New("policy bundle path is required")
	}
	r := rego.New(
		rego.Query(defaultQuery),
		rego.StrictBuiltinErrors(true),
		rego.Load([]string{bundlePath}, nil),
	)
	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	return &Engine{query: prepared}, nil
}

func (e *Engine) Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyResult, error) {
	if e == nil {
		return domain.PolicyResult{}, errors.New("policy engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.PolicyResult{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.PolicyResult{}, errors.New("empty policy result")
	}
	return decodePolicyResult(results[0].Expressions[0].Value)
}

func decodePolicyResult(value any) (domain.PolicyResult, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return domain.PolicyResult{}, err
	}
	var result domain.PolicyResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return domain.PolicyResult{}, err
	}
	return result, nil
}

// AllowAll is the engine used when no bundle is configured.
type AllowAll struct{}

func (AllowAll) Evaluate(context.Context, domain.PolicyInput) (domain.PolicyResult, error) {
	return domain.PolicyResult{Allow: true}, nil
}
