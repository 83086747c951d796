// Package gemini wraps the Google GenAI SDK for the two model calls the
// pipeline needs: text embeddings and Arabic entity extraction.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// Embedder produces one embedding vector per text.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
}

// Extractor pulls named entities and a topic category out of Arabic
// news text.
type Extractor interface {
	ExtractEntities(ctx context.Context, text string) (*Extraction, error)
}

// Extraction is the structured output of the entity model.
type Extraction struct {
	People                      []string `json:"people"`
	Cities                      []string `json:"cities"`
	Regions                     []string `json:"regions"`
	Countries                   []string `json:"countries"`
	Organizations               []string `json:"organizations"`
	PoliticalPartiesAndMilitias []string `json:"political_parties_and_militias"`
	Brands                      []string `json:"brands"`
	JobTitles                   []string `json:"job_titles"`
	Category                    string   `json:"category"`
}

// Client rotates through a pool of API keys, one SDK client per key.
type Client struct {
	pool            *KeyPool
	clients         map[string]*genai.Client
	embeddingModel  string
	extractionModel string
	log             zerolog.Logger
}

var (
	_ Embedder  = (*Client)(nil)
	_ Extractor = (*Client)(nil)
)

// NewClient builds one SDK client per API key up front so that Next()
// only ever selects between ready clients.
func NewClient(ctx context.Context, keys []string, embeddingModel, extractionModel string, log zerolog.Logger) (*Client, error) {
	pool, err := NewKeyPool(keys)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]*genai.Client, pool.Len())
	for _, key := range pool.keys {
		if _, ok := clients[key]; ok {
			continue
		}
		c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: key})
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		clients[key] = c
	}

	return &Client{
		pool:            pool,
		clients:         clients,
		embeddingModel:  embeddingModel,
		extractionModel: extractionModel,
		log:             log,
	}, nil
}

func (c *Client) next() *genai.Client {
	return c.clients[c.pool.Next()]
}

// EmbedText returns the embedding vector for one text.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float64, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}

	resp, err := c.next().Models.EmbedContent(ctx, c.embeddingModel, genai.Text(trimmed), nil)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("embedding response is empty")
	}

	values := resp.Embeddings[0].Values
	vector := make([]float64, len(values))
	for i, v := range values {
		vector[i] = float64(v)
	}
	return vector, nil
}

// ExtractEntities asks the extraction model for a JSON entity document.
// A malformed model response degrades to an empty extraction rather
// than failing the article.
func (c *Client) ExtractEntities(ctx context.Context, text string) (*Extraction, error) {
	prompt := buildExtractionPrompt(text)

	result, err := c.next().Models.GenerateContent(ctx, c.extractionModel, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	raw, err := result.Text()
	if err != nil {
		return nil, fmt.Errorf("read model response: %w", err)
	}

	extraction, err := parseExtraction(raw)
	if err != nil {
		c.log.Warn().Err(err).Msg("entity extraction response was not valid JSON, storing empty entities")
		return &Extraction{}, nil
	}
	return extraction, nil
}

func buildExtractionPrompt(text string) string {
	return fmt.Sprintf(`مهمتك هي تحليل النص الإخباري العربي التالي واستخراج الكيانات المحددة بدقة.
يجب أن تكون إجابتك عبارة عن كائن JSON صالح فقط، بدون أي نصوص إضافية قبله أو بعده.

النص:
%q

الكيانات المطلوب استخراجها:
1. "people": أسماء الأشخاص المذكورين.
2. "cities": أسماء المدن المذكورة.
3. "regions": أسماء الأقاليم أو الولايات.
4. "countries": أسماء الدول.
5. "organizations": أسماء المنظمات والهيئات الرسمية أو الدولية.
6. "political_parties_and_militias": أسماء الأحزاب السياسية أو الحركات المسلحة أو الميليشيات.
7. "brands": أسماء العلامات التجارية.
8. "job_titles": المسميات الوظيفية والمناصب.
9. "category": اختر فئة واحدة فقط من: سياسة، أمن وعسكر، اقتصاد، رياضة، مجتمع وثقافة، مقالات رأي.

إذا لم تجد أي كيان من فئة معينة، أرجع قائمة فارغة []. أما "category" فأرجع سلسلة نصية فارغة "" إن لم تنطبق أي فئة.

أرجع المخرجات بتنسيق JSON التالي:
{"people": [], "cities": [], "regions": [], "countries": [], "organizations": [], "political_parties_and_militias": [], "brands": [], "job_titles": [], "category": ""}`, text)
}

// parseExtraction decodes the model output, tolerating markdown code
// fences around the JSON document.
func parseExtraction(raw string) (*Extraction, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var extraction Extraction
	if err := json.Unmarshal([]byte(cleaned), &extraction); err != nil {
		return nil, fmt.Errorf("decode extraction JSON: %w", err)
	}
	return &extraction, nil
}
