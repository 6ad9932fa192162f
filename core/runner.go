package core

import (
	"context"

	"pkt.systems/codebench/schema"
)

// Executor runs source text on a remote execution service.
type Executor interface {
	Execute(ctx context.Context, req ExecuteRequest) (schema.ExecutionResult, error)
}

// ExecuteRequest describes one remote execution.
type ExecuteRequest struct {
	Language   schema.Language
	SourceText string
}

// Generator produces text from a prompt on a remote inference service.
// The same capability serves code generation and chat; Purpose only selects
// the model the client routes to.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GenerateRequest describes one generation call.
type GenerateRequest struct {
	Prompt  string
	Purpose schema.GeneratePurpose
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req ExecuteRequest) (schema.ExecutionResult, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req ExecuteRequest) (schema.ExecutionResult, error) {
	return f(ctx, req)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return f(ctx, req)
}
