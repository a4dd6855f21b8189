// Package google adapts Google's Gemini generateContent API to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/workflowrunner/workflowrunner/model"
)

// ChatModel implements model.ChatModel against Gemini models, surfacing
// safety-filter blocks as a distinguishable *SafetyFilterError.
type ChatModel struct {
	apiKey    string
	modelName string
	client    googleClient
}

type googleClient interface {
	generateContent(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error)
}

// NewChatModel builds a Gemini-backed ChatModel for apiModelID.
func NewChatModel(apiKey, apiModelID string) *ChatModel {
	if apiModelID == "" {
		apiModelID = "gemini-1.5-flash"
	}
	return &ChatModel{
		apiKey:    apiKey,
		modelName: apiModelID,
		client:    &defaultClient{apiKey: apiKey, modelName: apiModelID},
	}
}

func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}
	return m.client.generateContent(ctx, messages, tools)
}

type defaultClient struct {
	apiKey    string
	modelName string
}

func (c *defaultClient) generateContent(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, errors.New("google: API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("google: client init: %w", err)
	}
	defer client.Close()

	genModel := client.GenerativeModel(c.modelName)
	systemPrompt, conversation := extractSystemPrompt(messages)
	if systemPrompt != "" {
		genModel.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	}
	if len(tools) > 0 {
		genModel.Tools = convertTools(tools)
	}

	resp, err := genModel.GenerateContent(ctx, convertMessages(conversation)...)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("google: API error: %w", err)
	}

	out, blocked := convertResponse(resp)
	if blocked != nil {
		return model.ChatOut{}, blocked
	}
	return out, nil
}

// extractSystemPrompt pulls system-role messages out since Gemini takes
// system instructions through a dedicated field, not the turn sequence.
func extractSystemPrompt(messages []model.Message) (string, []model.Message) {
	var systemPrompt string
	var conversation []model.Message
	for _, msg := range messages {
		if msg.Role == model.RoleSystem {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
			continue
		}
		conversation = append(conversation, msg)
	}
	return systemPrompt, conversation
}

func convertMessages(messages []model.Message) []genai.Part {
	var parts []genai.Part
	for _, msg := range messages {
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}
	return parts
}

func convertTools(tools []model.ToolSpec) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, tool := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  convertSchema(tool.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

func convertSchema(schema map[string]interface{}) *genai.Schema {
	if schema == nil {
		return nil
	}
	result := &genai.Schema{Type: genai.TypeObject}

	if props, ok := schema["properties"].(map[string]interface{}); ok {
		properties := make(map[string]*genai.Schema, len(props))
		for key, val := range props {
			propMap, ok := val.(map[string]interface{})
			if !ok {
				continue
			}
			propSchema := &genai.Schema{}
			if typeStr, ok := propMap["type"].(string); ok {
				propSchema.Type = convertTypeString(typeStr)
			}
			if desc, ok := propMap["description"].(string); ok {
				propSchema.Description = desc
			}
			properties[key] = propSchema
		}
		result.Properties = properties
	}

	if required, ok := schema["required"].([]interface{}); ok {
		for _, v := range required {
			if s, ok := v.(string); ok {
				result.Required = append(result.Required, s)
			}
		}
	}
	return result
}

func convertTypeString(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// convertResponse returns the parsed ChatOut, or a non-nil *SafetyFilterError
// when Gemini returned no candidate content (almost always a safety block).
func convertResponse(resp *genai.GenerateContentResponse) (model.ChatOut, *SafetyFilterError) {
	if len(resp.Candidates) == 0 {
		return model.ChatOut{}, &SafetyFilterError{reason: "no_candidates"}
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return model.ChatOut{}, &SafetyFilterError{reason: candidate.FinishReason.String()}
	}

	out := model.ChatOut{}
	for _, part := range candidate.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += string(p)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: p.Name, Input: p.Args})
		}
	}
	return out, nil
}

// SafetyFilterError reports that Gemini withheld a response, typically
// because its safety filters blocked the candidate content.
type SafetyFilterError struct {
	reason string
}

func (e *SafetyFilterError) Error() string { return "google: content blocked: " + e.reason }

func (e *SafetyFilterError) Reason() string { return e.reason }
