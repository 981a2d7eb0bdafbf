// Package narrative asks a chat model for a short written commentary on the
// merged dataset.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/lox/latamstats/internal/dataset"
	"github.com/lox/latamstats/internal/models"
)

// ErrNoAPIKey is returned when OPENAI_API_KEY is not set.
var ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")

const DefaultModel = "gpt-4o-mini"

const systemPrompt = `You are an economist writing for a general audience. ` +
	`Write three short paragraphs in Spanish commenting on the South American ` +
	`indicators you are given. Only use the numbers provided. Mention the ` +
	`observation year when comparing countries whose data come from different years.`

// Generator writes commentaries using OpenAI's chat API.
type Generator struct {
	client openai.Client
	model  string
	cache  *Cache
}

// NewGenerator creates a generator authenticated with OPENAI_API_KEY. Extra
// options are passed to the client.
func NewGenerator(opts ...option.RequestOption) (*Generator, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &Generator{client: client, model: DefaultModel}, nil
}

// SetModel overrides the chat model.
func (g *Generator) SetModel(model string) {
	g.model = model
}

// SetCache enables reuse of earlier commentaries for identical prompts.
func (g *Generator) SetCache(c *Cache) {
	g.cache = c
}

// Summarize returns the model's commentary on t.
func (g *Generator) Summarize(ctx context.Context, t models.Table) (string, error) {
	prompt := BuildPrompt(t)
	if prompt == "" {
		return "", errors.New("no indicators to summarize")
	}
	key := g.model + "\n" + prompt
	if g.cache != nil {
		if text, ok := g.cache.Get(key); ok {
			log.Printf("narrative: using cached summary")
			return text, nil
		}
	}

	log.Printf("narrative: requesting summary from %s (%d countries)", g.model, len(t.Rows))
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty completion returned")
	}
	if g.cache != nil {
		if err := g.cache.Set(key, text); err != nil {
			log.Printf("narrative: cache write failed: %v", err)
		}
	}
	return text, nil
}

// promptColumns are listed in this order when present.
var promptColumns = []string{
	models.ColGDPPerCapita,
	models.ColGDPBillions,
	models.ColPopulationMillion,
	models.ColPoverty,
	models.ColInflation,
	models.ColGini,
}

// BuildPrompt describes each available indicator as a ranking, highest value
// first. The output depends only on the table contents.
func BuildPrompt(t models.Table) string {
	var b strings.Builder
	for _, col := range promptColumns {
		if !t.HasColumn(col) {
			continue
		}
		type entry struct {
			name  string
			value float64
			year  int
		}
		var entries []entry
		for _, r := range t.Rows {
			v, ok := r.Values[col]
			if !ok {
				continue
			}
			y, ok := r.Years[col]
			if !ok {
				y = r.Years[models.ColYear]
			}
			entries = append(entries, entry{r.Name, v, y})
		}
		if len(entries) == 0 {
			continue
		}
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].value != entries[j].value {
				return entries[i].value > entries[j].value
			}
			return entries[i].name < entries[j].name
		})

		fmt.Fprintf(&b, "%s (highest first):\n", col)
		for _, e := range entries {
			if e.year > 0 {
				fmt.Fprintf(&b, "- %s: %s (%d)\n", e.name, dataset.FormatFloat(e.value), e.year)
			} else {
				fmt.Fprintf(&b, "- %s: %s\n", e.name, dataset.FormatFloat(e.value))
			}
		}
	}
	return b.String()
}
