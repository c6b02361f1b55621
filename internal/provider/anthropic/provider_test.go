package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-gateway/internal/models"
	"llm-gateway/internal/provider"
)

type stubCreator struct {
	calls  int
	params anthropic.MessageNewParams
	msg    *anthropic.Message
	err    error
}

func (s *stubCreator) New(_ context.Context, params anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	s.calls++
	s.params = params
	return s.msg, s.err
}

func chatRequest(content string) models.ChatRequest {
	return models.ChatRequest{
		Model:       "claude-3-5-sonnet-latest",
		Messages:    []models.Message{{Role: models.RoleUser, Content: content}},
		Temperature: models.DefaultTemperature,
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})

	var cerr *provider.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, err, provider.ErrMissingCredential)
}

func TestTranslateRequestRejectsTemperatureAboveOne(t *testing.T) {
	stub := &stubCreator{}
	p := newProvider("", 0, stub)
	req := chatRequest("Hi")
	req.Temperature = 1.5

	_, err := p.Complete(context.Background(), req)

	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "temperature", verr.Field)
	assert.Zero(t, stub.calls)

	req.Temperature = 1
	params, err := p.translateRequest(req)
	require.NoError(t, err)
	assert.Equal(t, anthropic.Float(1), params.Temperature)
}

func TestTranslateRequestDefaults(t *testing.T) {
	p := newProvider("", 0, nil)
	req := chatRequest("Hi")
	req.Model = "claude"

	params, err := p.translateRequest(req)
	require.NoError(t, err)

	assert.Equal(t, anthropic.Model(DefaultModel), params.Model)
	assert.Equal(t, int64(DefaultMaxTokens), params.MaxTokens)
	assert.Empty(t, params.System)
	assert.Empty(t, params.Tools)
	require.Len(t, params.Messages, 1)
	assert.Equal(t, anthropic.MessageParamRoleUser, params.Messages[0].Role)
}

func TestTranslateRequestSystemAndJSONMode(t *testing.T) {
	p := newProvider("", 0, nil)
	maxTokens := 200
	req := chatRequest("List colors")
	req.MaxTokens = &maxTokens
	req.Messages = append([]models.Message{
		{Role: models.RoleSystem, Content: "A"},
		{Role: models.RoleSystem, Content: "B"},
	}, req.Messages...)
	req.ResponseFormat = &models.ResponseFormat{Type: models.ResponseFormatJSONObject}

	params, err := p.translateRequest(req)
	require.NoError(t, err)

	assert.Equal(t, int64(200), params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "A\nB\n"+jsonInstruction, params.System[0].Text)
}

func TestTranslateRequestMergesToolResults(t *testing.T) {
	p := newProvider("", 0, nil)
	req := chatRequest("Weather in Oslo and Rome?")
	req.Messages = append(req.Messages,
		models.Message{
			Role: models.RoleAssistant,
			ToolCalls: []models.ToolCall{
				{ID: "toolu_1", Type: "function", Function: models.FunctionCall{Name: "get_weather", Arguments: map[string]any{"city": "Oslo"}}},
				{ID: "toolu_2", Type: "function", Function: models.FunctionCall{Name: "get_weather", Arguments: map[string]any{"city": "Rome"}}},
			},
		},
		models.Message{Role: models.RoleTool, ToolCallID: "toolu_1", Content: "cold"},
		models.Message{Role: models.RoleTool, ToolCallID: "toolu_2", Content: "warm"},
	)

	params, err := p.translateRequest(req)
	require.NoError(t, err)

	require.Len(t, params.Messages, 3)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, params.Messages[1].Role)
	require.Len(t, params.Messages[1].Content, 2)
	require.NotNil(t, params.Messages[1].Content[0].OfToolUse)
	assert.Equal(t, "toolu_1", params.Messages[1].Content[0].OfToolUse.ID)
	assert.Equal(t, "get_weather", params.Messages[1].Content[0].OfToolUse.Name)

	results := params.Messages[2]
	assert.Equal(t, anthropic.MessageParamRoleUser, results.Role)
	require.Len(t, results.Content, 2)
	require.NotNil(t, results.Content[1].OfToolResult)
	assert.Equal(t, "toolu_2", results.Content[1].OfToolResult.ToolUseID)
}

func TestTranslateRequestTools(t *testing.T) {
	p := newProvider("", 0, nil)
	req := chatRequest("Hi")
	req.Tools = []models.Tool{{
		Name:        "get_weather",
		Description: "Look up weather",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"city": map[string]any{"type": "string"}},
			"required":   []any{"city"},
		},
	}}
	req.ToolChoice = &models.ToolChoice{Mode: models.ToolChoiceFunction, Function: "get_weather"}

	params, err := p.translateRequest(req)
	require.NoError(t, err)

	require.Len(t, params.Tools, 1)
	tool := params.Tools[0].OfTool
	require.NotNil(t, tool)
	assert.Equal(t, "get_weather", tool.Name)
	assert.Equal(t, []string{"city"}, tool.InputSchema.Required)
	assert.Equal(t, map[string]any{"city": map[string]any{"type": "string"}}, tool.InputSchema.Properties)

	require.NotNil(t, params.ToolChoice.OfTool)
	assert.Equal(t, "get_weather", params.ToolChoice.OfTool.Name)
}

func TestTranslateToolChoiceModes(t *testing.T) {
	assert.NotNil(t, translateToolChoice(models.ToolChoice{Mode: models.ToolChoiceNone}).OfNone)
	assert.NotNil(t, translateToolChoice(models.ToolChoice{Mode: models.ToolChoiceAuto}).OfAuto)
	assert.NotNil(t, translateToolChoice(models.ToolChoice{Mode: models.ToolChoiceRequired}).OfAny)
}

func TestTranslateRequestRequiresConversation(t *testing.T) {
	p := newProvider("", 0, nil)
	req := models.ChatRequest{Messages: []models.Message{{Role: models.RoleSystem, Content: "rules"}}}

	_, err := p.translateRequest(req)

	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestTranslateResponse(t *testing.T) {
	p := newProvider("", 0, nil)

	var text anthropic.Message
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-haiku-latest",
		"content": [{"type": "text", "text": "Hel"}, {"type": "text", "text": "lo"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 3, "output_tokens": 2}
	}`), &text))

	out, err := p.translateResponse("claude", &text)
	require.NoError(t, err)
	assert.Equal(t, "Hello", out.Choices[0].Message.Content)
	assert.Equal(t, models.FinishReasonStop, out.Choices[0].FinishReason)
	assert.Equal(t, "claude-3-5-haiku-latest", out.Model)
	assert.Equal(t, &models.Usage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}, out.Usage)

	var tools anthropic.Message
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "msg_2", "type": "message", "role": "assistant", "model": "claude-3-5-haiku-latest",
		"content": [{"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"city": "Oslo"}}],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 3, "output_tokens": 2}
	}`), &tools))

	out, err = p.translateResponse("claude", &tools)
	require.NoError(t, err)
	assert.Equal(t, "", out.Choices[0].Message.Content)
	assert.Equal(t, models.FinishReasonToolCalls, out.Choices[0].FinishReason)
	require.Len(t, out.Choices[0].Message.ToolCalls, 1)
	assert.Equal(t, "toolu_1", out.Choices[0].Message.ToolCalls[0].ID)
	assert.Equal(t, map[string]any{"city": "Oslo"}, out.Choices[0].Message.ToolCalls[0].Function.Arguments)
}

func TestFinishReason(t *testing.T) {
	assert.Equal(t, models.FinishReasonStop, finishReason(anthropic.StopReasonEndTurn, false))
	assert.Equal(t, models.FinishReasonStop, finishReason(anthropic.StopReasonStopSequence, false))
	assert.Equal(t, models.FinishReasonLength, finishReason(anthropic.StopReasonMaxTokens, false))
	assert.Equal(t, models.FinishReasonToolCalls, finishReason(anthropic.StopReasonToolUse, true))
}

func TestCompleteWrapsBackendErrors(t *testing.T) {
	stub := &stubCreator{err: errors.New("overloaded")}
	p := newProvider("", 0, stub)

	_, err := p.Complete(context.Background(), chatRequest("Hi"))

	var perr *provider.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ProviderName, perr.Provider)
	assert.Equal(t, 1, stub.calls)
}

func TestCompleteOverHTTP(t *testing.T) {
	var (
		gotPath string
		gotKey  string
		gotBody map[string]any
		hits    int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-3-5-sonnet-latest",
			"content": [{"type": "text", "text": "Hello"}],
			"stop_reason": "end_turn", "stop_sequence": null,
			"usage": {"input_tokens": 4, "output_tokens": 1}
		}`)
	}))
	defer srv.Close()

	p, err := New(Config{APIKey: "sk-ant-test", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	out, err := p.Complete(context.Background(), chatRequest("Hi"))
	require.NoError(t, err)

	assert.Equal(t, 1, hits)
	assert.Equal(t, "/v1/messages", gotPath)
	assert.Equal(t, "sk-ant-test", gotKey)
	assert.Equal(t, "claude-3-5-sonnet-latest", gotBody["model"])
	assert.EqualValues(t, DefaultMaxTokens, gotBody["max_tokens"])
	assert.Equal(t, "Hello", out.Choices[0].Message.Content)
	assert.Equal(t, 5, out.Usage.TotalTokens)
}
