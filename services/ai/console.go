package aisvc

import (
	"context"
	"fmt"

	"github.com/trezcool/ustawi/core/ai"
)

// consoleAssistant is a canned ai.Assistant for dev and tests; it never
// reaches an external model.
type consoleAssistant struct{}

var _ ai.Assistant = (*consoleAssistant)(nil)

func NewConsoleAssistant() *consoleAssistant {
	return &consoleAssistant{}
}

func (consoleAssistant) Chat(ctx context.Context, system, message string) (string, error) {
	return fmt.Sprintf("I cannot reach an analysis model in this environment. You asked: %q", message), nil
}

// noopRunner is a ai.CodeRunner that refuses to execute anything.
type noopRunner struct{}

var _ ai.CodeRunner = (*noopRunner)(nil)

func NewNoopRunner() *noopRunner {
	return &noopRunner{}
}

func (noopRunner) Run(ctx context.Context, code string, file []byte) (ai.Output, error) {
	return ai.Output{Text: "(code execution is not available in this environment)"}, nil
}
