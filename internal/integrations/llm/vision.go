// Package llm runs vision analysis of item photos through Anthropic or
// OpenAI and turns the reply into a domain.AnalysisResult.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"vintagevision/internal/domain"
	"vintagevision/internal/httpx"
)

const (
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultOpenAIBaseURL  = "https://api.openai.com/v1"
	maxImageBytes         = 5 << 20
)

var ErrNotConfigured = errors.New("llm provider not configured")

// Image is one item photo.
type Image struct {
	Data      []byte
	MediaType string
}

type Usage struct {
	InputTokens              int64 `json:"inputTokens"`
	OutputTokens             int64 `json:"outputTokens"`
	CacheCreationInputTokens int64 `json:"cacheCreationInputTokens,omitempty"`
	CacheReadInputTokens     int64 `json:"cacheReadInputTokens,omitempty"`
}

// CorrectionSource supplies recent expert corrections, newest first.
type CorrectionSource interface {
	CorrectionExamples(ctx context.Context, limit int) ([]CorrectionExample, error)
}

type CorrectionSourceFunc func(ctx context.Context, limit int) ([]CorrectionExample, error)

func (f CorrectionSourceFunc) CorrectionExamples(ctx context.Context, limit int) ([]CorrectionExample, error) {
	return f(ctx, limit)
}

type Client struct {
	Provider        string
	Model           string
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	HTTPClient      *http.Client

	Corrections   CorrectionSource
	ExampleCount  int
	ExampleMaxLen int
}

func (c *Client) Configured() bool {
	switch c.Provider {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	}
	return false
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return httpx.ExternalHTTPClient()
}

// Analyze identifies the item in img. hint is optional free text from the
// user (title, notes) used to pick relevant past corrections.
func (c *Client) Analyze(ctx context.Context, img Image, hint string) (domain.AnalysisResult, Usage, error) {
	if !c.Configured() {
		return domain.AnalysisResult{}, Usage{}, ErrNotConfigured
	}
	mediaType, err := normalizeImage(img)
	if err != nil {
		return domain.AnalysisResult{}, Usage{}, err
	}
	img.MediaType = mediaType

	var examples []CorrectionExample
	if c.Corrections != nil && c.ExampleCount > 0 {
		// Over-fetch so the similarity ranking has a pool to choose from.
		pool, err := c.Corrections.CorrectionExamples(ctx, c.ExampleCount*10)
		if err != nil {
			log.Printf("llm correction examples skipped: %v", err)
		}
		examples = selectExamples(pool, hint, c.ExampleCount)
	}
	systemPrompt := buildSystemPrompt(examples, c.ExampleMaxLen)
	userPrompt := buildUserPrompt(hint)

	var (
		text  string
		usage Usage
	)
	switch c.Provider {
	case "openai":
		model := c.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		text, usage, err = c.callOpenAI(ctx, model, systemPrompt, userPrompt, img)
	default:
		model := c.Model
		if model == "" {
			model = defaultAnthropicModel
		}
		text, usage, err = c.callAnthropic(ctx, model, systemPrompt, userPrompt, img)
	}
	if err != nil {
		return domain.AnalysisResult{}, usage, err
	}
	result, err := ParseAnalysisResponse(text)
	if err != nil {
		return domain.AnalysisResult{}, usage, err
	}
	log.Printf("llm analysis provider=%s name=%q domain=%s confidence=%.2f examples=%d", c.Provider, result.Name, result.DomainExpert, result.Confidence, len(examples))
	return result, usage, nil
}

var allowedMediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

func normalizeImage(img Image) (string, error) {
	if len(img.Data) == 0 {
		return "", fmt.Errorf("image is empty")
	}
	if len(img.Data) > maxImageBytes {
		return "", fmt.Errorf("image is %d bytes, limit is %d", len(img.Data), maxImageBytes)
	}
	mt := strings.ToLower(strings.TrimSpace(img.MediaType))
	if mt == "" || mt == "application/octet-stream" {
		mt = http.DetectContentType(img.Data)
	}
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if !allowedMediaTypes[mt] {
		return "", fmt.Errorf("unsupported image type %q", mt)
	}
	return mt, nil
}

// --- Anthropic ---

func (c *Client) callAnthropic(ctx context.Context, model, systemPrompt, userPrompt string, img Image) (string, Usage, error) {
	client := anthropic.NewClient(
		option.WithAPIKey(c.AnthropicAPIKey),
		option.WithHTTPClient(c.httpClient()),
	)

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 2048,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(img.MediaType, base64.StdEncoding.EncodeToString(img.Data)),
				anthropic.NewTextBlock(userPrompt),
			),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", Usage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := Usage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}
	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d cache_create=%d cache_read=%d", len(block.Text), usage.InputTokens, usage.OutputTokens, usage.CacheCreationInputTokens, usage.CacheReadInputTokens)
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

// --- OpenAI ---

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []openAIMessage `json:"messages"`
	ResponseFormat *openAIFormat   `json:"response_format,omitempty"`
}

type openAIFormat struct {
	Type string `json:"type"`
}

// Content is a string for system messages and a part list for the user
// message carrying the image.
type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) callOpenAI(ctx context.Context, model, systemPrompt, userPrompt string, img Image) (string, Usage, error) {
	dataURL := "data:" + img.MediaType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	reqBody := openAIRequest{
		Model: model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []openAIPart{
				{Type: "text", Text: userPrompt},
				{Type: "image_url", ImageURL: &openAIImageURL{URL: dataURL}},
			}},
		},
		ResponseFormat: &openAIFormat{Type: "json_object"},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshaling request: %w", err)
	}

	baseURL := strings.TrimRight(c.OpenAIBaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", Usage{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.OpenAIAPIKey)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		log.Printf("llm openai error: %v", err)
		return "", Usage{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("reading response: %w", err)
	}
	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", Usage{}, fmt.Errorf("parsing OpenAI response (status %d): %w", resp.StatusCode, err)
	}
	if openAIResp.Error != nil {
		log.Printf("llm openai api error: %s", openAIResp.Error.Message)
		return "", Usage{}, fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("no choices in OpenAI response")
	}
	usage := Usage{}
	if openAIResp.Usage != nil {
		usage.InputTokens = openAIResp.Usage.PromptTokens
		usage.OutputTokens = openAIResp.Usage.CompletionTokens
	}
	log.Printf("llm openai response size=%d tokens_in=%d tokens_out=%d", len(openAIResp.Choices[0].Message.Content), usage.InputTokens, usage.OutputTokens)
	return openAIResp.Choices[0].Message.Content, usage, nil
}
