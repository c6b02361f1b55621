package models

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// DefaultTemperature is applied when a request does not specify one.
const DefaultTemperature = 0.7

// Finish reasons shared by every provider.
const (
	FinishReasonStop          = "stop"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonLength        = "length"
	FinishReasonContentFilter = "content_filter"
)

// Message represents a single conversational turn in the canonical schema.
type Message struct {
	Role       Role       `json:"role" validate:"required,oneof=system user assistant tool"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty" validate:"omitempty,dive"`
	ToolCallID string     `json:"tool_call_id,omitempty" validate:"required_if=Role tool"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type" validate:"omitempty,eq=function"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the name and structured arguments of an invocation.
// Arguments are only encoded to a JSON string at the wire boundary.
type FunctionCall struct {
	Name      string         `json:"name" validate:"required"`
	Arguments map[string]any `json:"arguments"`
}

// ResponseFormatType selects the structured-output mode.
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatPlain      ResponseFormatType = "plain"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// ResponseFormat constrains the shape of the model output.
type ResponseFormat struct {
	Type   ResponseFormatType `json:"type" validate:"required,oneof=text plain json_object json_schema"`
	Name   string             `json:"name,omitempty"`
	Strict bool               `json:"strict,omitempty"`
	Schema map[string]any     `json:"schema,omitempty" validate:"required_if=Type json_schema"`
}

// IsJSON reports whether the format asks for JSON output.
func (f *ResponseFormat) IsJSON() bool {
	if f == nil {
		return false
	}
	return f.Type == ResponseFormatJSONObject || f.Type == ResponseFormatJSONSchema
}

// Tool declares a function the model may call.
type Tool struct {
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolChoiceMode controls whether and how the model calls tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceFunction ToolChoiceMode = "function"
)

// ToolChoice is either a mode or a forced function name.
type ToolChoice struct {
	Mode     ToolChoiceMode `json:"mode" validate:"required,oneof=auto none required function"`
	Function string         `json:"function,omitempty" validate:"required_if=Mode function"`
}

// ChatRequest is the canonical representation of a chat completion.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages" validate:"required,min=1,dive"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      *int            `json:"max_tokens,omitempty" validate:"omitempty,gt=0,lte=2147483647"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty" validate:"omitempty"`
	Tools          []Tool          `json:"tools,omitempty" validate:"omitempty,dive"`
	ToolChoice     *ToolChoice     `json:"tool_choice,omitempty" validate:"omitempty"`
	Stream         bool            `json:"stream,omitempty"`
}

// WithModel returns a copy of the request targeting a different model.
func (r ChatRequest) WithModel(model string) ChatRequest {
	r.Model = model
	return r
}

// ChatResponse captures a provider response in the canonical schema.
type ChatResponse struct {
	ID      string   `json:"id"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is a single generated alternative. Only index 0 is ever produced.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage records token accounting information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelInfo describes the default model a registered provider exposes.
type ModelInfo struct {
	ID       string
	Provider string
}
