package incident

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Classification is what a classifier extracts from raw resident text.
type Classification struct {
	IsIncident bool    `json:"is_incident"`
	Summary    string  `json:"summary"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Classifier turns free-form resident text into a structured classification.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

const classifierPrompt = `Eres un clasificador de incidencias para un administrador de fincas.
Analiza el texto del vecino y responde SOLO con un JSON:
{"is_incident": bool, "summary": "resumen corto", "type": "gotera|averia|ruido|limpieza|ascensor|pago|otro", "confidence": 0.0-1.0}
Marca is_incident=true solo si describe un problema que requiere actuación (avería, gotera, ruido, etc.).
Consultas generales, saludos o pagos rutinarios no son incidencias.`

// OpenAIClassifier asks a chat model for the classification and falls back to
// keyword heuristics when the API is unavailable or returns garbage.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
}

func NewOpenAIClassifier(apiKey, model string) *OpenAIClassifier {
	c := &OpenAIClassifier{model: model}
	if apiKey != "" {
		c.client = openai.NewClient(apiKey)
	}
	return c
}

func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	if c.client == nil {
		return heuristicClassify(text), nil
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.1,
		MaxTokens:   200,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifierPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		log.Printf("[Incident] classifier call failed, using heuristics: %v", err)
		return heuristicClassify(text), nil
	}
	if len(resp.Choices) == 0 {
		return heuristicClassify(text), nil
	}

	var out Classification
	raw := extractJSON(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		log.Printf("[Incident] unparseable classifier output, using heuristics: %v", err)
		return heuristicClassify(text), nil
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return Classification{}, fmt.Errorf("classifier returned confidence %f out of range", out.Confidence)
	}
	return out, nil
}

// extractJSON trims model chatter around the JSON object, including the
// markdown fences some models insist on.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

var keywordTypes = []struct {
	incType  string
	keywords []string
}{
	{"gotera", []string{"gotera", "fuga", "humedad", "mancha de agua", "filtración", "filtracion"}},
	{"ascensor", []string{"ascensor", "elevador"}},
	{"averia", []string{"avería", "averia", "no funciona", "roto", "rota", "estropeado", "estropeada", "portero"}},
	{"ruido", []string{"ruido", "ruidos", "molestia", "fiesta"}},
	{"limpieza", []string{"limpieza", "sucio", "sucia", "basura"}},
	{"pago", []string{"factura", "recibo", "pago", "cuota", "derrama"}},
}

// heuristicClassify is the offline fallback. It is deliberately conservative:
// no keyword hit means no incident.
func heuristicClassify(text string) Classification {
	lower := strings.ToLower(text)
	for _, kt := range keywordTypes {
		for _, kw := range kt.keywords {
			if strings.Contains(lower, kw) {
				summary := strings.TrimSpace(text)
				if len([]rune(summary)) > 140 {
					summary = string([]rune(summary)[:140])
				}
				return Classification{
					IsIncident: kt.incType != "pago",
					Summary:    summary,
					Type:       kt.incType,
					Confidence: 0.6,
				}
			}
		}
	}
	return Classification{IsIncident: false, Confidence: 0.0}
}
