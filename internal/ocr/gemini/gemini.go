// Package gemini transcribes statements with Gemini's vision models.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/dvloznov/statement-pipeline/internal/domain"
	"github.com/dvloznov/statement-pipeline/internal/ocr"
)

const (
	ProviderName = "gemini"
	DefaultModel = "gemini-2.5-flash"
)

// Generator is the part of *genai.Models the provider needs.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config selects the Gemini API or Vertex AI backend.
type Config struct {
	APIKey      string
	Model       string
	UseVertexAI bool
	Project     string
	Location    string
}

// Provider implements ocr.Provider. The genai client is created on first use.
type Provider struct {
	cfg Config

	mu  sync.Mutex
	gen Generator
}

func New(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Provider{cfg: cfg}
}

// NewWithGenerator is used by tests and by callers that share a client.
func NewWithGenerator(cfg Config, gen Generator) *Provider {
	p := New(cfg)
	p.gen = gen
	return p
}

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) Configured() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != nil || p.cfg.APIKey != "" {
		return true
	}
	return p.cfg.UseVertexAI && p.cfg.Project != "" && p.cfg.Location != ""
}

func (p *Provider) generator(ctx context.Context) (Generator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != nil {
		return p.gen, nil
	}

	cc := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	if p.cfg.UseVertexAI {
		cc.Backend = genai.BackendVertexAI
		cc.Project = p.cfg.Project
		cc.Location = p.cfg.Location
	} else {
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = p.cfg.APIKey
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	p.gen = client.Models
	return p.gen, nil
}

const transcribePrompt = "You are an OCR engine for scanned bank statements.\n\n" +
	"Task:\n" +
	"- Transcribe EVERY line of text in the attached document exactly as printed, top to bottom, page by page.\n" +
	"- Keep each table row on one line, with columns separated by single spaces.\n" +
	"- Keep dates, amounts, signs, CR/DR markers and currency symbols exactly as printed. Do not compute or reformat numbers.\n" +
	"- Do not summarise, translate or skip lines.\n\n" +
	"Output STRICT JSON only, in this shape:\n" +
	"{\"lines\": [{\"page\": 1, \"text\": \"...\"}], \"confidence\": 0.0}\n" +
	"\"confidence\" is your estimate from 0 to 1 that the transcription is exact.\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n"

// transcript is the model's answer. Only lines[].text is required.
type transcript struct {
	Lines []struct {
		Page int     `json:"page"`
		Text *string `json:"text"`
	} `json:"lines"`
	Confidence *float64 `json:"confidence"`
}

func (p *Provider) Transcribe(ctx context.Context, data []byte, mimeType string) (*ocr.Result, error) {
	gen, err := p.generator(ctx)
	if err != nil {
		return nil, ocr.NewProviderError(ProviderName, ocr.KindAuth, fmt.Errorf("create genai client: %w", err))
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: transcribePrompt},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
			},
		},
	}

	resp, err := gen.GenerateContent(ctx, p.cfg.Model, contents, nil)
	if err != nil {
		return nil, ocr.NewProviderError(ProviderName, classify(err), fmt.Errorf("generate content: %w", err))
	}

	raw := resp.Text()
	if strings.TrimSpace(raw) == "" {
		return nil, ocr.NewProviderError(ProviderName, ocr.KindMalformed, errors.New("empty response from model"))
	}

	clean := cleanModelJSON(raw)
	var t transcript
	if err := json.Unmarshal([]byte(clean), &t); err != nil {
		return nil, ocr.NewProviderError(ProviderName, ocr.KindMalformed, fmt.Errorf("unmarshal JSON: %w", err))
	}
	if len(t.Lines) == 0 {
		return nil, ocr.NewProviderError(ProviderName, ocr.KindMalformed, errors.New("response has no lines"))
	}

	res := &ocr.Result{
		Provider:   ProviderName,
		Confidence: t.Confidence,
		Raw: &domain.ProviderOutput{
			Kind:    domain.OutputGeminiTranscript,
			Payload: json.RawMessage(clean),
		},
	}

	var sb strings.Builder
	page := 0
	for i, l := range t.Lines {
		if l.Text == nil {
			return nil, ocr.NewProviderError(ProviderName, ocr.KindMalformed, fmt.Errorf("line %d has no text", i))
		}
		lp := l.Page
		if lp < 1 {
			lp = max(page, 1)
		}
		switch {
		case i == 0:
		case lp > page:
			sb.WriteString("\f")
		default:
			sb.WriteString("\n")
		}
		page = lp
		sb.WriteString(*l.Text)
		res.Lines = append(res.Lines, ocr.LineHypothesis{Text: *l.Text, Page: lp})
	}
	res.Text = sb.String()
	return res, nil
}

// classify maps API failures onto provider error kinds.
func classify(err error) ocr.Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ocr.KindTimeout
	}

	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	}

	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ocr.KindAuth
	case code == http.StatusTooManyRequests:
		return ocr.KindQuota
	case code >= 500:
		return ocr.KindUnavailable
	}
	return ocr.KindFailed
}

// cleanModelJSON strips Markdown fences and any chatter around the JSON
// object when the model ignores instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return s
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
