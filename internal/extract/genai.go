package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"questlog/internal/logging"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

var ErrEmptyResponse = errors.New("empty model response")

// GenAIClient implements Extractor, TagMerger and Responder on top of the
// Gemini API.
type GenAIClient struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

func NewGenAIClient(ctx context.Context, apiKey, model string, log *zap.Logger) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIClient{client: client, model: model, log: logging.OrNop(log)}, nil
}

const extractSystemPrompt = `You analyse a finished reflective journaling conversation.
Reply with a single JSON object and nothing else, using exactly these keys:
{"title": string, "synopsis": string, "summary": string, "toneTags": [string],
 "suggestedTags": [string], "statXp": [{"name": string, "xp": integer 1-50, "reason": string}],
 "familyXp": [{"name": string, "xp": integer 1-50, "reason": string}],
 "todos": [string], "attributes": [string], "dayRating": integer 1-5 or null}
Only use stat and family names from the lists you are given. Keep todos short and actionable for the next day.`

func (c *GenAIClient) Extract(ctx context.Context, req Request) (*Metadata, error) {
	raw, err := c.generate(ctx, extractSystemPrompt, extractPrompt(req), true)
	if err != nil {
		return nil, err
	}
	return parseExtraction(raw, req.Context)
}

const mergeSystemPrompt = `You keep a user's tag vocabulary small.
Given existing tags and candidate tags, drop every candidate that means the same thing as an existing tag
(for example "family time" when "family" exists) and merge candidates that duplicate each other.
Reply with JSON {"newTags": [string]} listing only the tags that should be created.`

func (c *GenAIClient) MergeTags(ctx context.Context, existing, candidates []string) ([]string, error) {
	b, _ := json.Marshal(map[string][]string{"existing": existing, "candidates": candidates})
	raw, err := c.generate(ctx, mergeSystemPrompt, string(b), true)
	if err != nil {
		return nil, err
	}
	var out struct {
		NewTags []string `json:"newTags"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return nil, fmt.Errorf("decode merge response: %w", err)
	}
	return out.NewTags, nil
}

const replySystemPrompt = `You are a warm, concise journaling companion.
Ask one thoughtful follow-up question at a time and reflect back what you hear. Never give medical advice.`

func (c *GenAIClient) Reply(ctx context.Context, transcript []Turn, uc UserContext) (string, error) {
	var b strings.Builder
	writeContext(&b, uc)
	b.WriteString("\nConversation so far:\n")
	writeTranscript(&b, transcript)
	b.WriteString("\nWrite the assistant's next message.")
	raw, err := c.generate(ctx, replySystemPrompt, b.String(), false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

func (c *GenAIClient) generate(ctx context.Context, system, prompt string, jsonOut bool) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.3),
	}
	if jsonOut {
		cfg.ResponseMIMEType = "application/json"
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
	if err != nil {
		c.log.Warn("genai generate failed", zap.String("model", c.model), zap.Error(err))
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func extractPrompt(req Request) string {
	var b strings.Builder
	writeContext(&b, req.Context)
	b.WriteString("\nTranscript:\n")
	writeTranscript(&b, req.Transcript)
	return b.String()
}

func writeContext(b *strings.Builder, uc UserContext) {
	if uc.Character != "" {
		fmt.Fprintf(b, "Character: %s\n", uc.Character)
	}
	if len(uc.Goals) > 0 {
		fmt.Fprintf(b, "Active goals: %s\n", strings.Join(uc.Goals, "; "))
	}
	if len(uc.Family) > 0 {
		parts := make([]string, len(uc.Family))
		for i, f := range uc.Family {
			parts[i] = f.Name
			if f.Relationship != "" {
				parts[i] += " (" + f.Relationship + ")"
			}
		}
		fmt.Fprintf(b, "Family members: %s\n", strings.Join(parts, "; "))
	}
	if len(uc.Stats) > 0 {
		names := make([]string, len(uc.Stats))
		for i, s := range uc.Stats {
			names[i] = s.Name
		}
		fmt.Fprintf(b, "Skill stats: %s\n", strings.Join(names, "; "))
	}
}

func writeTranscript(b *strings.Builder, transcript []Turn) {
	for _, t := range transcript {
		if t.Role == RoleSystem {
			continue
		}
		fmt.Fprintf(b, "[%s] %s: %s\n", t.CreatedAt.Format("15:04"), t.Role, t.Content)
	}
}

type nameGrant struct {
	Name   string `json:"name"`
	XP     int64  `json:"xp"`
	Reason string `json:"reason"`
}

type extractionWire struct {
	Title         string      `json:"title"`
	Synopsis      string      `json:"synopsis"`
	Summary       string      `json:"summary"`
	ToneTags      []string    `json:"toneTags"`
	SuggestedTags []string    `json:"suggestedTags"`
	StatXP        []nameGrant `json:"statXp"`
	FamilyXP      []nameGrant `json:"familyXp"`
	Todos         []string    `json:"todos"`
	Attributes    []string    `json:"attributes"`
	DayRating     *int        `json:"dayRating"`
}

// parseExtraction decodes the model output and resolves stat and family
// names to ids. Unknown names are dropped; repeated names keep the first
// suggestion.
func parseExtraction(raw string, uc UserContext) (*Metadata, error) {
	var w extractionWire
	if err := json.Unmarshal([]byte(stripFences(raw)), &w); err != nil {
		return nil, fmt.Errorf("decode extraction: %w", err)
	}
	return &Metadata{
		Title:               strings.TrimSpace(w.Title),
		Synopsis:            strings.TrimSpace(w.Synopsis),
		Summary:             strings.TrimSpace(w.Summary),
		ToneTags:            w.ToneTags,
		SuggestedTags:       w.SuggestedTags,
		SuggestedStatTags:   byID(w.StatXP, uc.StatIndex().Lookup),
		SuggestedFamilyTags: byID(w.FamilyXP, uc.FamilyIndex().Lookup),
		SuggestedTodos:      w.Todos,
		SuggestedAttributes: w.Attributes,
		InferredDayRating:   ValidRating(w.DayRating),
	}, nil
}

func byID(grants []nameGrant, lookup func(string) (uint64, bool)) map[uint64]Suggestion {
	out := make(map[uint64]Suggestion, len(grants))
	for _, g := range grants {
		id, ok := lookup(g.Name)
		if !ok {
			continue
		}
		if _, dup := out[id]; dup {
			continue
		}
		xp := ClampXP(g.XP)
		if xp == 0 {
			continue
		}
		out[id] = Suggestion{XP: xp, Reason: strings.TrimSpace(g.Reason)}
	}
	return out
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
