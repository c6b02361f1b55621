// Package translator converts between the OpenAI-compatible wire format and
// the canonical chat schema. Tool-call arguments are strings on the wire and
// structured data everywhere else; this package is the only place they change
// representation.
package translator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"llm-gateway/internal/models"
)

const (
	objectChatCompletion = "chat.completion"
	toolTypeFunction     = "function"
)

// ChatCompletionRequest models the OpenAI chat/completions request payload.
type ChatCompletionRequest struct {
	Model          string
	Messages       []ChatMessage
	Stream         bool
	MaxTokens      *int
	Temperature    *float64
	ResponseFormat *models.ResponseFormat
	Tools          []models.Tool
	ToolChoice     *models.ToolChoice
}

// UnmarshalJSON decodes the payload and normalises the polymorphic fields.
// Shape errors are reported as *models.ValidationError.
func (r *ChatCompletionRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		Model          string          `json:"model"`
		Messages       []ChatMessage   `json:"messages"`
		Stream         bool            `json:"stream"`
		MaxTokens      *int            `json:"max_tokens"`
		Temperature    *float64        `json:"temperature"`
		ResponseFormat json.RawMessage `json:"response_format"`
		Tools          json.RawMessage `json:"tools"`
		ToolChoice     json.RawMessage `json:"tool_choice"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	format, err := parseResponseFormat(raw.ResponseFormat)
	if err != nil {
		return err
	}
	tools, err := parseTools(raw.Tools)
	if err != nil {
		return err
	}
	choice, err := parseToolChoice(raw.ToolChoice)
	if err != nil {
		return err
	}

	r.Model = strings.TrimSpace(raw.Model)
	r.Messages = raw.Messages
	r.Stream = raw.Stream
	r.MaxTokens = raw.MaxTokens
	r.Temperature = raw.Temperature
	r.ResponseFormat = format
	r.Tools = tools
	r.ToolChoice = choice
	return nil
}

// ToCanonical converts the wire request into the canonical format, applying
// the default temperature when none was sent.
func (r ChatCompletionRequest) ToCanonical() models.ChatRequest {
	msgs := make([]models.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		msgs = append(msgs, models.Message{
			Role:       models.Role(m.Role),
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		})
	}

	temperature := models.DefaultTemperature
	if r.Temperature != nil {
		temperature = *r.Temperature
	}

	return models.ChatRequest{
		Model:          r.Model,
		Messages:       msgs,
		Temperature:    temperature,
		MaxTokens:      r.MaxTokens,
		ResponseFormat: r.ResponseFormat,
		Tools:          r.Tools,
		ToolChoice:     r.ToolChoice,
		Stream:         r.Stream,
	}
}

// ChatMessage captures a single message within the chat request.
type ChatMessage struct {
	Role       string
	Content    string
	Name       string
	ToolCalls  []models.ToolCall
	ToolCallID string
}

// UnmarshalJSON supports string, null and array-of-text content formats and
// decodes tool-call arguments into structured data.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role       string          `json:"role"`
		Content    json.RawMessage `json:"content"`
		Name       string          `json:"name"`
		ToolCalls  []wireToolCall  `json:"tool_calls"`
		ToolCallID string          `json:"tool_call_id"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	content, err := extractMessageContent(raw.Content)
	if err != nil {
		return err
	}

	calls := make([]models.ToolCall, 0, len(raw.ToolCalls))
	for i, tc := range raw.ToolCalls {
		args, err := decodeArguments(tc.Function.Arguments)
		if err != nil {
			return models.NewValidationError(fmt.Sprintf("tool_calls[%d].function.arguments", i), "%v", err)
		}
		calls = append(calls, models.ToolCall{
			ID:       tc.ID,
			Type:     tc.Type,
			Function: models.FunctionCall{Name: tc.Function.Name, Arguments: args},
		})
	}
	if len(calls) == 0 {
		calls = nil
	}

	m.Role = strings.TrimSpace(raw.Role)
	m.Content = content
	m.Name = strings.TrimSpace(raw.Name)
	m.ToolCalls = calls
	m.ToolCallID = strings.TrimSpace(raw.ToolCallID)
	return nil
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// decodeArguments accepts the canonical JSON-string form as well as a bare
// JSON object.
func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}
	if raw[0] == '{' {
		var args map[string]any
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		return args, nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON string or object")
	}
	return models.ParseArguments(encoded)
}

func extractMessageContent(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var segments []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &segments); err == nil {
		var builder strings.Builder
		for _, segment := range segments {
			if segment.Type != "text" {
				return "", models.NewValidationError("content", "segment type %q not supported", segment.Type)
			}
			builder.WriteString(segment.Text)
		}
		return builder.String(), nil
	}

	return "", models.NewValidationError("content", "unsupported content structure")
}

func parseResponseFormat(raw json.RawMessage) (*models.ResponseFormat, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var wire struct {
		Type       string `json:"type"`
		JSONSchema *struct {
			Name   string         `json:"name"`
			Schema map[string]any `json:"schema"`
			Strict bool           `json:"strict"`
		} `json:"json_schema"`
		Schema map[string]any `json:"schema"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, models.NewValidationError("response_format", "must be an object with a type")
	}

	format := &models.ResponseFormat{
		Type:   models.ResponseFormatType(strings.TrimSpace(wire.Type)),
		Schema: wire.Schema,
	}
	if wire.JSONSchema != nil {
		format.Name = wire.JSONSchema.Name
		format.Strict = wire.JSONSchema.Strict
		if wire.JSONSchema.Schema != nil {
			format.Schema = wire.JSONSchema.Schema
		}
	}
	return format, nil
}

func parseTools(raw json.RawMessage) ([]models.Tool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	type function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	}
	var wire []struct {
		Type     string    `json:"type"`
		Function *function `json:"function"`
		function
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, models.NewValidationError("tools", "must be an array of function declarations")
	}

	tools := make([]models.Tool, 0, len(wire))
	for i, w := range wire {
		if w.Type != "" && w.Type != toolTypeFunction {
			return nil, models.NewValidationError(fmt.Sprintf("tools[%d].type", i), "only %q tools are supported, got %q", toolTypeFunction, w.Type)
		}
		fn := w.function
		if w.Function != nil {
			fn = *w.Function
		}
		tools = append(tools, models.Tool{
			Name:        strings.TrimSpace(fn.Name),
			Description: fn.Description,
			Parameters:  fn.Parameters,
		})
	}
	if len(tools) == 0 {
		return nil, nil
	}
	return tools, nil
}

func parseToolChoice(raw json.RawMessage) (*models.ToolChoice, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var mode string
	if err := json.Unmarshal(raw, &mode); err == nil {
		return &models.ToolChoice{Mode: models.ToolChoiceMode(strings.TrimSpace(mode))}, nil
	}

	var forced struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &forced); err != nil {
		return nil, models.NewValidationError("tool_choice", "must be a string or a function object")
	}
	if forced.Type != "" && forced.Type != toolTypeFunction {
		return nil, models.NewValidationError("tool_choice.type", "must be %q, got %q", toolTypeFunction, forced.Type)
	}
	return &models.ToolChoice{
		Mode:     models.ToolChoiceFunction,
		Function: strings.TrimSpace(forced.Function.Name),
	}, nil
}

// ChatCompletionResponse models the OpenAI-compatible chat response.
type ChatCompletionResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   *OpenAIUsage `json:"usage,omitempty"`
}

// ChatChoice represents a single choice in the response payload.
// A nil FinishReason is rendered as JSON null.
type ChatChoice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason *string         `json:"finish_reason"`
}

// ResponseMessage is the assistant message returned to the client.
type ResponseMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []WireToolCall `json:"tool_calls,omitempty"`
}

// WireToolCall is a tool call with string-encoded arguments.
type WireToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function WireFunctionCall `json:"function"`
}

// WireFunctionCall carries the JSON-encoded arguments string.
type WireFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// OpenAIUsage mirrors the token usage block in OpenAI responses.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// FromCanonical constructs the OpenAI response shape from a canonical response.
func FromCanonical(resp *models.ChatResponse) (ChatCompletionResponse, error) {
	choices := make([]ChatChoice, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		calls := make([]WireToolCall, 0, len(c.Message.ToolCalls))
		for _, tc := range c.Message.ToolCalls {
			args, err := models.EncodeArguments(tc.Function.Arguments)
			if err != nil {
				return ChatCompletionResponse{}, fmt.Errorf("tool call %s: %w", tc.Function.Name, err)
			}
			callType := tc.Type
			if callType == "" {
				callType = toolTypeFunction
			}
			calls = append(calls, WireToolCall{
				ID:       tc.ID,
				Type:     callType,
				Function: WireFunctionCall{Name: tc.Function.Name, Arguments: args},
			})
		}
		if len(calls) == 0 {
			calls = nil
		}

		var finish *string
		if c.FinishReason != "" {
			reason := c.FinishReason
			finish = &reason
		}

		role := string(c.Message.Role)
		if role == "" {
			role = string(models.RoleAssistant)
		}

		choices = append(choices, ChatChoice{
			Index: c.Index,
			Message: ResponseMessage{
				Role:      role,
				Content:   c.Message.Content,
				ToolCalls: calls,
			},
			FinishReason: finish,
		})
	}

	var usage *OpenAIUsage
	if u := resp.Usage; u != nil && (u.TotalTokens != 0 || u.PromptTokens != 0 || u.CompletionTokens != 0) {
		usage = &OpenAIUsage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}

	return ChatCompletionResponse{
		ID:      resp.ID,
		Object:  objectChatCompletion,
		Created: resp.Created,
		Model:   resp.Model,
		Choices: choices,
		Usage:   usage,
	}, nil
}
