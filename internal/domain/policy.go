package domain

import "context"

// PolicyInput is what the stage-authorization policy sees: who wants to run
// which kind of stage on which schema.
type PolicyInput struct {
	OperatorID       string `json:"operator_id"`
	OperatorPosition string `json:"operator_position"`
	SchemaID         string `json:"schema_id"`
	StageID          string `json:"stage_id"`
	StageType        string `json:"stage_type"`
}

type PolicyResult struct {
	Allow   bool     `json:"allow"`
	Reasons []string `json:"reasons,omitempty"`
}

type PolicyEngine interface {
	Evaluate(ctx context.Context, input PolicyInput) (PolicyResult, error)
}
