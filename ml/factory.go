package ml

import (
	"github.com/snow-ghost/featsel/core"
)

// ModelTypes lists the accepted model_type values.
var ModelTypes = []string{"linear", "ridge", "logistic"}

// NewFactory resolves a model name for a task. Classification always uses
// logistic regression, whatever linear variant was asked for.
func NewFactory(modelType string, task core.TaskKind) (core.ModelFactory, error) {
	switch modelType {
	case "linear", "ridge", "logistic":
	default:
		return nil, &core.ContractError{Field: "model_type", Reason: "must be one of linear, ridge, logistic"}
	}
	if task == core.Classification {
		return func() core.Model { return NewLogisticRegression() }, nil
	}
	switch modelType {
	case "ridge":
		return func() core.Model { return NewRidge(1.0) }, nil
	case "logistic":
		return nil, &core.ContractError{Field: "model_type", Reason: "logistic requires problem_type classification"}
	}
	return func() core.Model { return NewLinearRegression() }, nil
}
