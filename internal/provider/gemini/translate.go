package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"llm-gateway/internal/models"
)

const (
	mimeTypeText = "text/plain"
	mimeTypeJSON = "application/json"
)

// generateCall is the fully translated backend invocation.
type generateCall struct {
	Model    string
	Contents []*genai.Content
	Config   *genai.GenerateContentConfig
}

// resolveModel maps empty and vendor-family aliases to the configured default.
func (p *Provider) resolveModel(model string) string {
	model = strings.TrimSpace(model)
	switch strings.ToLower(model) {
	case "", "gemini", ProviderName:
		return p.defaultModel
	}
	return model
}

func (p *Provider) translateRequest(req models.ChatRequest) (generateCall, error) {
	contents, system := translateMessages(req.Messages)
	if len(contents) == 0 {
		return generateCall{}, models.NewValidationError("messages", "at least one non-system message is required")
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(req.Temperature)),
		ResponseMIMEType: mimeTypeText,
	}
	if req.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*req.MaxTokens)
	}
	if system != "" || hasSystem(req.Messages) {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	applyResponseFormat(cfg, req.ResponseFormat)
	cfg.Tools = translateTools(req.Tools)
	cfg.ToolConfig = translateToolChoice(req.ToolChoice)

	return generateCall{
		Model:    p.resolveModel(req.Model),
		Contents: contents,
		Config:   cfg,
	}, nil
}

// translateMessages folds system messages into one instruction and converts
// the remaining turns into Gemini contents.
func translateMessages(messages []models.Message) ([]*genai.Content, string) {
	var (
		system    []string
		contents  = make([]*genai.Content, 0, len(messages))
		callNames = make(map[string]string)
	)

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			system = append(system, msg.Content)

		case models.RoleTool:
			name := callNames[msg.ToolCallID]
			if name == "" {
				name = nameFromCallID(msg.ToolCallID)
			}
			contents = append(contents, &genai.Content{
				Role: string(genai.RoleUser),
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name:     name,
						Response: toolResponse(msg.Content),
					},
				}},
			})

		default:
			role := string(genai.RoleUser)
			if msg.Role == models.RoleAssistant {
				role = string(genai.RoleModel)
			}

			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				if call.ID != "" {
					callNames[call.ID] = call.Function.Name
				}
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						Name: call.Function.Name,
						Args: call.Function.Arguments,
					},
				})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}

	return contents, strings.Join(system, "\n")
}

func hasSystem(messages []models.Message) bool {
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			return true
		}
	}
	return false
}

// toolResponse uses JSON object output as-is and wraps anything else.
func toolResponse(content string) map[string]any {
	var output any
	if err := json.Unmarshal([]byte(content), &output); err != nil {
		output = content
	}
	if m, ok := output.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": output}
}

func applyResponseFormat(cfg *genai.GenerateContentConfig, format *models.ResponseFormat) {
	if format == nil {
		return
	}
	switch format.Type {
	case models.ResponseFormatJSONObject:
		cfg.ResponseMIMEType = mimeTypeJSON
	case models.ResponseFormatJSONSchema:
		cfg.ResponseMIMEType = mimeTypeJSON
		if len(format.Schema) > 0 {
			cfg.ResponseJsonSchema = format.Schema
		}
	}
}

func translateTools(tools []models.Tool) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		decl := &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
		}
		if len(tool.Parameters) > 0 {
			decl.ParametersJsonSchema = tool.Parameters
		}
		decls = append(decls, decl)
	}
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func translateToolChoice(choice *models.ToolChoice) *genai.ToolConfig {
	if choice == nil {
		return nil
	}

	fc := &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto}
	switch choice.Mode {
	case models.ToolChoiceNone:
		fc.Mode = genai.FunctionCallingConfigModeNone
	case models.ToolChoiceRequired:
		fc.Mode = genai.FunctionCallingConfigModeAny
	case models.ToolChoiceFunction:
		fc.Mode = genai.FunctionCallingConfigModeAny
		fc.AllowedFunctionNames = []string{choice.Function}
	}
	return &genai.ToolConfig{FunctionCallingConfig: fc}
}

func (p *Provider) translateResponse(model string, resp *genai.GenerateContentResponse) (*models.ChatResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, errors.New("gemini response contained no candidates")
	}

	var (
		text  strings.Builder
		calls []models.ToolCall
	)
	if content := resp.Candidates[0].Content; content != nil {
		for _, part := range content.Parts {
			if part == nil {
				continue
			}
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
			if fc := part.FunctionCall; fc != nil {
				id := fc.ID
				if id == "" {
					id = callID(len(calls), fc.Name)
				}
				args := fc.Args
				if args == nil {
					args = map[string]any{}
				}
				calls = append(calls, models.ToolCall{
					ID:       id,
					Type:     "function",
					Function: models.FunctionCall{Name: fc.Name, Arguments: args},
				})
			}
		}
	}

	finish := models.FinishReasonStop
	if len(calls) > 0 {
		finish = models.FinishReasonToolCalls
	}

	out := &models.ChatResponse{
		ID:      p.newID(),
		Created: p.now().Unix(),
		Model:   model,
		Choices: []models.Choice{{
			Index: 0,
			Message: models.Message{
				Role:      models.RoleAssistant,
				Content:   text.String(),
				ToolCalls: calls,
			},
			FinishReason: finish,
		}},
	}

	if usage := resp.UsageMetadata; usage != nil {
		out.Usage = &models.Usage{
			PromptTokens:     int(usage.PromptTokenCount),
			CompletionTokens: int(usage.CandidatesTokenCount),
			TotalTokens:      int(usage.TotalTokenCount),
		}
	}
	return out, nil
}

// callID names a function call Gemini returned without an ID. The index keeps
// repeated calls to the same function apart.
func callID(index int, name string) string {
	return fmt.Sprintf("call_%d_%s", index, name)
}

// nameFromCallID recovers the function name from an ID minted by callID when
// the originating assistant turn is missing from the history.
func nameFromCallID(id string) string {
	rest, ok := strings.CutPrefix(id, "call_")
	if !ok {
		return id
	}
	index, name, ok := strings.Cut(rest, "_")
	if !ok || name == "" {
		return id
	}
	if _, err := strconv.Atoi(index); err != nil {
		return id
	}
	return name
}
