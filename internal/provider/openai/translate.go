package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"llm-gateway/internal/models"
)

const defaultSchemaName = "response"

// reasoningPrefixes name the model families that only accept the default
// temperature and take their output budget as max_completion_tokens.
var reasoningPrefixes = []string{"o1", "o3", "o4", "gpt-5"}

func isReasoningModel(model string) bool {
	model = strings.ToLower(model)
	for _, prefix := range reasoningPrefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func (p *Provider) resolveModel(model string) string {
	model = strings.TrimSpace(model)
	switch strings.ToLower(model) {
	case "", ProviderName:
		return p.defaultModel
	}
	return model
}

func (p *Provider) translateRequest(req models.ChatRequest) (openai.ChatCompletionRequest, error) {
	messages, err := translateMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	payload := openai.ChatCompletionRequest{
		Model:    p.resolveModel(req.Model),
		Messages: messages,
		Tools:    translateTools(req.Tools),
	}
	if isReasoningModel(payload.Model) {
		if req.MaxTokens != nil {
			payload.MaxCompletionTokens = *req.MaxTokens
		}
	} else {
		payload.Temperature = wireTemperature(req.Temperature)
		if req.MaxTokens != nil {
			payload.MaxTokens = *req.MaxTokens
		}
	}
	if req.ToolChoice != nil {
		payload.ToolChoice = translateToolChoice(*req.ToolChoice)
	}

	format, err := translateResponseFormat(req.ResponseFormat)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}
	payload.ResponseFormat = format

	return payload, nil
}

// wireTemperature keeps an explicit zero on the wire; the SDK drops a zero
// float32 through omitempty and the API would then apply its own default.
func wireTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// translateMessages keeps roles as they are but folds system messages into a
// single leading instruction.
func translateMessages(messages []models.Message) ([]openai.ChatCompletionMessage, error) {
	var system []string
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	for i, msg := range messages {
		if msg.Role == models.RoleSystem {
			system = append(system, msg.Content)
			continue
		}

		m := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for j, call := range msg.ToolCalls {
			args, err := models.EncodeArguments(call.Function.Arguments)
			if err != nil {
				return nil, models.NewValidationError(fmt.Sprintf("messages[%d].tool_calls[%d].function.arguments", i, j), "%v", err)
			}
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Function.Name,
					Arguments: args,
				},
			})
		}
		out = append(out, m)
	}

	if len(system) > 0 {
		out = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: strings.Join(system, "\n"),
		}}, out...)
	}
	return out, nil
}

func translateTools(tools []models.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		def := &openai.FunctionDefinition{
			Name:        tool.Name,
			Description: tool.Description,
		}
		if len(tool.Parameters) > 0 {
			def.Parameters = tool.Parameters
		} else {
			def.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.Tool{Type: openai.ToolTypeFunction, Function: def})
	}
	return out
}

func translateToolChoice(choice models.ToolChoice) any {
	switch choice.Mode {
	case models.ToolChoiceNone:
		return "none"
	case models.ToolChoiceRequired:
		return "required"
	case models.ToolChoiceFunction:
		return openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: choice.Function},
		}
	default:
		return "auto"
	}
}

func translateResponseFormat(format *models.ResponseFormat) (*openai.ChatCompletionResponseFormat, error) {
	if format == nil {
		return nil, nil
	}
	switch format.Type {
	case models.ResponseFormatJSONObject:
		return &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}, nil
	case models.ResponseFormatJSONSchema:
		schema, err := json.Marshal(format.Schema)
		if err != nil {
			return nil, models.NewValidationError("response_format.json_schema.schema", "%v", err)
		}
		name := format.Name
		if name == "" {
			name = defaultSchemaName
		}
		return &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: json.RawMessage(schema),
				Strict: format.Strict,
			},
		}, nil
	default:
		return nil, nil
	}
}

func (p *Provider) translateResponse(model string, resp openai.ChatCompletionResponse) (*models.ChatResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai response contained no choices")
	}
	choice := resp.Choices[0]

	calls := make([]models.ToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		args, err := models.ParseArguments(tc.Function.Arguments)
		if err != nil {
			return nil, fmt.Errorf("tool call %s: %w", tc.Function.Name, err)
		}
		id := tc.ID
		if id == "" {
			id = tc.Function.Name
		}
		calls = append(calls, models.ToolCall{
			ID:       id,
			Type:     "function",
			Function: models.FunctionCall{Name: tc.Function.Name, Arguments: args},
		})
	}

	finish := string(choice.FinishReason)
	switch {
	case len(calls) > 0:
		finish = models.FinishReasonToolCalls
	case finish == "" || finish == string(openai.FinishReasonNull):
		finish = models.FinishReasonStop
	}
	if len(calls) == 0 {
		calls = nil
	}

	id := resp.ID
	if id == "" {
		id = p.newID()
	}
	if resp.Model != "" {
		model = resp.Model
	}

	return &models.ChatResponse{
		ID:      id,
		Created: resp.Created,
		Model:   model,
		Choices: []models.Choice{{
			Index: 0,
			Message: models.Message{
				Role:      models.RoleAssistant,
				Content:   choice.Message.Content,
				ToolCalls: calls,
			},
			FinishReason: finish,
		}},
		Usage: &models.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
