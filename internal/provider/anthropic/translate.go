package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"llm-gateway/internal/models"
)

const jsonInstruction = "Respond only with a single valid JSON object. Do not wrap it in markdown or add commentary."

// maxTemperature is the upper bound the Messages API accepts.
const maxTemperature = 1.0

func (p *Provider) resolveModel(model string) string {
	model = strings.TrimSpace(model)
	switch strings.ToLower(model) {
	case "", ProviderName, "claude":
		return p.defaultModel
	}
	return model
}

func (p *Provider) translateRequest(req models.ChatRequest) (anthropic.MessageNewParams, error) {
	messages, system := translateMessages(req.Messages)
	if len(messages) == 0 {
		return anthropic.MessageNewParams{}, models.NewValidationError("messages", "at least one non-system message is required")
	}

	if req.Temperature > maxTemperature {
		return anthropic.MessageNewParams{}, models.NewValidationError("temperature", "must be between 0 and %g for anthropic models", float64(maxTemperature))
	}

	if instruction := jsonFormatInstruction(req.ResponseFormat); instruction != "" {
		system = append(system, instruction)
	}

	maxTokens := p.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.resolveModel(req.Model)),
		MaxTokens:   int64(maxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
		Tools:       translateTools(req.Tools),
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n")}}
	}
	if req.ToolChoice != nil {
		params.ToolChoice = translateToolChoice(*req.ToolChoice)
	}
	return params, nil
}

// translateMessages merges consecutive turns of the same role, since the
// Messages API requires user and assistant turns to alternate and expects
// every tool result of a turn in one user message.
func translateMessages(messages []models.Message) ([]anthropic.MessageParam, []string) {
	var (
		system []string
		out    []anthropic.MessageParam
	)

	appendBlocks := func(role anthropic.MessageParamRole, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			system = append(system, msg.Content)

		case models.RoleTool:
			appendBlocks(anthropic.MessageParamRoleUser,
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))

		case models.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if strings.TrimSpace(msg.Content) != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				input := call.Function.Arguments
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, call.Function.Name))
			}
			appendBlocks(anthropic.MessageParamRoleAssistant, blocks...)

		default:
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			appendBlocks(anthropic.MessageParamRoleUser, anthropic.NewTextBlock(msg.Content))
		}
	}
	return out, system
}

func jsonFormatInstruction(format *models.ResponseFormat) string {
	if !format.IsJSON() {
		return ""
	}
	if format.Type == models.ResponseFormatJSONSchema && len(format.Schema) > 0 {
		if schema, err := json.Marshal(format.Schema); err == nil {
			return jsonInstruction + " The object must conform to this JSON schema: " + string(schema)
		}
	}
	return jsonInstruction
}

func translateTools(tools []models.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{Properties: map[string]any{}}
		if props, ok := tool.Parameters["properties"].(map[string]any); ok {
			schema.Properties = props
		}
		schema.Required = requiredFields(tool.Parameters["required"])

		param := anthropic.ToolParam{
			Name:        tool.Name,
			InputSchema: schema,
		}
		if tool.Description != "" {
			param.Description = anthropic.String(tool.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}

func requiredFields(v any) []string {
	switch fields := v.(type) {
	case []string:
		return fields
	case []any:
		out := make([]string, 0, len(fields))
		for _, f := range fields {
			if s, ok := f.(string); ok {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return nil
}

func translateToolChoice(choice models.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch choice.Mode {
	case models.ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case models.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case models.ToolChoiceFunction:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice.Function}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

func (p *Provider) translateResponse(model string, msg *anthropic.Message) (*models.ChatResponse, error) {
	if msg == nil {
		return nil, errors.New("anthropic response was empty")
	}

	var (
		text  strings.Builder
		calls []models.ToolCall
	)
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					return nil, fmt.Errorf("tool_use input for %s: %w", block.Name, err)
				}
			}
			id := block.ID
			if id == "" {
				id = block.Name
			}
			calls = append(calls, models.ToolCall{
				ID:       id,
				Type:     "function",
				Function: models.FunctionCall{Name: block.Name, Arguments: args},
			})
		}
	}

	if msg.Model != "" {
		model = string(msg.Model)
	}

	return &models.ChatResponse{
		ID:      p.newID(),
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []models.Choice{{
			Index: 0,
			Message: models.Message{
				Role:      models.RoleAssistant,
				Content:   text.String(),
				ToolCalls: calls,
			},
			FinishReason: finishReason(msg.StopReason, len(calls) > 0),
		}},
		Usage: &models.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

func finishReason(reason anthropic.StopReason, hasCalls bool) string {
	if hasCalls {
		return models.FinishReasonToolCalls
	}
	switch reason {
	case anthropic.StopReasonMaxTokens:
		return models.FinishReasonLength
	case "refusal":
		return models.FinishReasonContentFilter
	default:
		return models.FinishReasonStop
	}
}
