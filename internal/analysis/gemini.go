package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mr1hm/go-guardian/internal/models"
)

var (
	ErrNotConfigured = errors.New("analyzer not configured")
	ErrNoCandidates  = errors.New("gemini returned no candidates")
)

const (
	minUrgency = 1
	maxUrgency = 10
)

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMIMEType string  `json:"responseMimeType"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GeminiAnalyzer scores how urgent a situation is from the user's own
// description via the Gemini generateContent endpoint.
type GeminiAnalyzer struct {
	httpClient *resty.Client
	apiKey     string
	model      string
}

func NewGeminiAnalyzer(baseURL, apiKey, model string) *GeminiAnalyzer {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &GeminiAnalyzer{
		httpClient: client,
		apiKey:     apiKey,
		model:      model,
	}
}

func (g *GeminiAnalyzer) Analyze(ctx context.Context, req models.AnalysisRequest) (*models.Analysis, error) {
	if g == nil || g.apiKey == "" {
		return nil, ErrNotConfigured
	}

	body := generateRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: buildPrompt(req)}},
		}},
		GenerationConfig: generationConfig{
			Temperature:      0.2,
			ResponseMIMEType: "application/json",
		},
	}

	var response generateResponse
	resp, err := g.httpClient.R().
		SetContext(ctx).
		SetQueryParam("key", g.apiKey).
		SetBody(body).
		SetResult(&response).
		SetError(&response).
		Post("/models/" + g.model + ":generateContent")
	if err != nil {
		return nil, fmt.Errorf("failed to call Gemini API: %w", err)
	}
	if resp.IsError() {
		msg := resp.Status()
		if response.Error != nil {
			msg = response.Error.Message
		}
		return nil, fmt.Errorf("gemini api error: %s (status: %d)", msg, resp.StatusCode())
	}

	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return nil, ErrNoCandidates
	}

	return parseAnalysis(response.Candidates[0].Content.Parts[0].Text)
}

func buildPrompt(req models.AnalysisRequest) string {
	var b strings.Builder
	b.WriteString("You assess emergencies for a personal safety monitor. ")
	b.WriteString("A possible incident was detected and the person described their situation. ")
	b.WriteString("Reply with JSON only: {\"urgency_level\": 1-10, \"recommended_actions\": [..], \"summary\": \"..\"}.\n\n")

	if req.Trigger != "" {
		fmt.Fprintf(&b, "Detected event: %s\n", req.Trigger)
	}
	if req.Position != nil {
		fmt.Fprintf(&b, "Position: %s (%s)\n", req.Position, req.Position.MapsURL())
	}
	if !req.At.IsZero() {
		fmt.Fprintf(&b, "Local time: %s (%s)\n", req.At.Format("15:04 Monday"), timeOfDay(req.At))
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		desc = "(no description given)"
	}
	fmt.Fprintf(&b, "Person's description: %q\n", desc)
	return b.String()
}

func timeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 6:
		return "night"
	case h < 12:
		return "morning"
	case h < 18:
		return "afternoon"
	case h < 22:
		return "evening"
	default:
		return "night"
	}
}

// parseAnalysis decodes the model's JSON answer, tolerating a fenced code
// block around it.
func parseAnalysis(text string) (*models.Analysis, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var a models.Analysis
	if err := json.Unmarshal([]byte(text), &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}
	a.UrgencyLevel = min(max(a.UrgencyLevel, minUrgency), maxUrgency)
	return &a, nil
}
