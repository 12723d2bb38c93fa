package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/ustawi/core/user"
)

const systemPrompt = "You are a data analysis assistant for social-work survey results. " +
	"When computation or charting is needed, answer with a single fenced python code block " +
	"operating on the staged CSV file (data.csv); it will be executed and its output " +
	"spliced into your reply."

var pythonBlockRegex = regexp.MustCompile("(?s)```python\n(.*?)```")

type (
	// Assistant is an external conversational model.
	Assistant interface {
		Chat(ctx context.Context, system, message string) (string, error)
	}

	// Output is what a code run produced.
	Output struct {
		Text string
		PNG  []byte // rendered chart, if any
	}

	// CodeRunner executes python code against an optional staged data file.
	CodeRunner interface {
		Run(ctx context.Context, code string, file []byte) (Output, error)
	}

	ChatRequest struct {
		Message string `json:"message" validate:"required"`
		File    []byte `json:"-"` // optional CSV staged for the runner
	}

	ChatReply struct {
		Reply string `json:"reply"`
	}

	Service interface {
		Chat(ctx context.Context, actor user.Actor, req ChatRequest) (ChatReply, error)
	}

	service struct {
		assistant Assistant
		runner    CodeRunner
		limiter   RateLimiter
	}
)

func (cr ChatRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(cr)
}

var _ Service = (*service)(nil) // interface compliance check

func NewService(assistant Assistant, runner CodeRunner, limiter RateLimiter) *service {
	return &service{assistant: assistant, runner: runner, limiter: limiter}
}

// Chat forwards the message to the assistant. When the reply carries a
// fenced python block, the block is executed and replaced by the run's
// output (plus an inline chart when one is rendered).
func (svc *service) Chat(ctx context.Context, actor user.Actor, req ChatRequest) (ChatReply, error) {
	if err := svc.limiter.Allow(ctx, actor.ID); err != nil {
		return ChatReply{}, err
	}

	reply, err := svc.assistant.Chat(ctx, systemPrompt, req.Message)
	if err != nil {
		return ChatReply{}, errors.Wrap(err, "querying assistant")
	}

	loc := pythonBlockRegex.FindStringSubmatchIndex(reply)
	if loc == nil {
		return ChatReply{Reply: reply}, nil
	}
	code := reply[loc[2]:loc[3]]

	out, err := svc.runner.Run(ctx, code, req.File)
	if err != nil {
		return ChatReply{}, errors.Wrap(err, "running code block")
	}

	result := out.Text
	if len(out.PNG) > 0 {
		result += fmt.Sprintf(
			"\n\n![chart](data:image/png;base64,%s)",
			base64.StdEncoding.EncodeToString(out.PNG),
		)
	}

	return ChatReply{Reply: reply[:loc[0]] + result + reply[loc[1]:]}, nil
}
