package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultMaxTokens = 4096

// AnthropicOptions configure the Anthropic completer.
type AnthropicOptions struct {
	// APIKey overrides the ANTHROPIC_API_KEY environment variable.
	APIKey string
	// BaseURL points the client at a proxy or compatible endpoint.
	BaseURL string
	// Model defaults to claude-3-7-sonnet-latest.
	Model string
	// MaxTokens defaults to 4096.
	MaxTokens int
}

// Anthropic implements Completer over the Anthropic Messages API.
type Anthropic struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropic builds the completer. Without an explicit key the underlying
// client reads ANTHROPIC_API_KEY from the environment.
func NewAnthropic(opts AnthropicOptions) *Anthropic {
	var reqOpts []option.RequestOption
	if opts.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	client := anthropic.NewClient(reqOpts...)

	model := anthropic.ModelClaude3_7SonnetLatest
	if opts.Model != "" {
		model = anthropic.Model(opts.Model)
	}
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Anthropic{client: &client, model: model, maxTokens: maxTokens}
}

// Complete runs one Messages round: the user input, every prior round's
// assistant message and tool results, and the aggregated tool schemas.
func (a *Anthropic) Complete(ctx context.Context, req *Request) (*Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  buildMessages(req),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, &CompletionError{Err: err}
		}
		params.Tools = tools
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &CompletionError{Err: err}
	}
	return convertMessage(msg), nil
}

func buildMessages(req *Request) []anthropic.MessageParam {
	msgs := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserInput)),
	}
	for _, round := range req.Rounds {
		msgs = append(msgs, round.Completion.assistantParam())
		if len(round.Outcomes) == 0 {
			continue
		}
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(round.Outcomes))
		for _, outcome := range round.Outcomes {
			blocks = append(blocks, anthropic.NewToolResultBlock(outcome.Request.ID, outcome.Output, outcome.IsError))
		}
		msgs = append(msgs, anthropic.NewUserMessage(blocks...))
	}
	return msgs
}

func (c *Completion) assistantParam() anthropic.MessageParam {
	if c.hasRaw {
		return c.raw
	}
	return anthropic.MessageParam{
		Role:    anthropic.MessageParamRoleAssistant,
		Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(c.Text)},
	}
}

func convertTools(tools []*mcp.Tool) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		if t == nil || strings.TrimSpace(t.Name) == "" {
			continue
		}
		schema, err := encodeSchema(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", t.Name, err)
		}
		tool := anthropic.ToolParam{
			Name:        t.Name,
			InputSchema: schema,
		}
		if strings.TrimSpace(t.Description) != "" {
			tool.Description = anthropic.String(t.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out, nil
}

func encodeSchema(raw any) (anthropic.ToolInputSchemaParam, error) {
	if raw == nil {
		return anthropic.ToolInputSchemaParam{Type: "object"}, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	var schema anthropic.ToolInputSchemaParam
	if err := json.Unmarshal(data, &schema); err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema, nil
}

func convertMessage(msg *anthropic.Message) *Completion {
	completion := &Completion{
		StopReason: string(msg.StopReason),
		raw:        msg.ToParam(),
		hasRaw:     true,
	}
	var textParts []string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				textParts = append(textParts, block.Text)
			}
		case "tool_use":
			completion.ToolCalls = append(completion.ToolCalls, ToolRequest{
				ID:    block.ID,
				Name:  block.Name,
				Input: decodeInput(block.Input),
			})
		}
	}
	completion.Text = strings.Join(textParts, "")
	return completion
}

func decodeInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return map[string]any{"raw": string(raw)}
	}
	return input
}
