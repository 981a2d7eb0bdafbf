package narrative

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go/v3/option"

	"github.com/lox/latamstats/internal/models"
)

func sampleTable() models.Table {
	return models.Table{
		Columns: []string{models.ColGDPBillions, models.ColPoverty, models.ColGDPPerCapita},
		Rows: []models.CountryRecord{
			{
				Name: "Bolivia", ISO3: "BOL",
				Values: map[string]float64{models.ColGDPBillions: 45, models.ColGDPPerCapita: 3750},
				Years:  map[string]int{models.ColGDPBillions: 2023, models.ColGDPPerCapita: 2023},
			},
			{
				Name: "Peru", ISO3: "PER",
				Values: map[string]float64{models.ColGDPBillions: 450, models.ColPoverty: 41.5, models.ColGDPPerCapita: 15000},
				Years:  map[string]int{models.ColGDPBillions: 2023, models.ColPoverty: 2024, models.ColGDPPerCapita: 2023},
			},
		},
	}
}

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt(sampleTable())
	want := "PBI_Per_Capita (highest first):\n" +
		"- Peru: 15000 (2023)\n" +
		"- Bolivia: 3750 (2023)\n" +
		"PBI_Billions (highest first):\n" +
		"- Peru: 450 (2023)\n" +
		"- Bolivia: 45 (2023)\n" +
		"Pobreza_Nacional (highest first):\n" +
		"- Peru: 41.5 (2024)\n"
	if got != want {
		t.Errorf("BuildPrompt() =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildPrompt_TiesAndFileYear(t *testing.T) {
	tbl := models.Table{
		Columns: []string{models.ColGini},
		Rows: []models.CountryRecord{
			{Name: "Uruguay", Values: map[string]float64{models.ColGini: 40}, Years: map[string]int{models.ColYear: 2022}},
			{Name: "Chile", Values: map[string]float64{models.ColGini: 40}, Years: map[string]int{models.ColYear: 2022}},
		},
	}
	got := BuildPrompt(tbl)
	want := "Indice_Gini (highest first):\n- Chile: 40 (2022)\n- Uruguay: 40 (2022)\n"
	if got != want {
		t.Errorf("BuildPrompt() = %q, want %q", got, want)
	}
}

func TestBuildPrompt_Empty(t *testing.T) {
	if got := BuildPrompt(models.Table{}); got != "" {
		t.Errorf("BuildPrompt(empty) = %q, want empty", got)
	}
}

func TestNewGenerator_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewGenerator(); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("NewGenerator() error = %v, want ErrNoAPIKey", err)
	}
}

const completion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "logprobs": null,
    "message": {"role": "assistant", "content": "  Peru lidera la region.  ", "refusal": null}
  }]
}`

func fakeOpenAI(t *testing.T) (*httptest.Server, *atomic.Int32, *string) {
	t.Helper()
	var calls atomic.Int32
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completion)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &body
}

func TestSummarize(t *testing.T) {
	srv, calls, body := fakeOpenAI(t)
	t.Setenv("OPENAI_API_KEY", "test-key")

	g, err := NewGenerator(option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	text, err := g.Summarize(context.Background(), sampleTable())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if text != "Peru lidera la region." {
		t.Errorf("text = %q", text)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if !strings.Contains(*body, "gpt-4o-mini") || !strings.Contains(*body, "Pobreza_Nacional") {
		t.Errorf("request body missing model or prompt: %s", *body)
	}
}

func TestSummarize_UsesCache(t *testing.T) {
	srv, calls, _ := fakeOpenAI(t)
	t.Setenv("OPENAI_API_KEY", "test-key")

	g, err := NewGenerator(option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	g.SetCache(NewCache(t.TempDir(), time.Hour))

	for i := 0; i < 3; i++ {
		if _, err := g.Summarize(context.Background(), sampleTable()); err != nil {
			t.Fatalf("Summarize #%d: %v", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestSummarize_EmptyTable(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	g, err := NewGenerator()
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if _, err := g.Summarize(context.Background(), models.Table{}); err == nil {
		t.Error("expected error for empty table")
	}
}

func TestCache(t *testing.T) {
	c := NewCache(t.TempDir(), 0)
	if _, ok := c.Get("p"); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	if err := c.Set("p", "texto"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, ok := c.Get("p"); !ok || got != "texto" {
		t.Errorf("Get = %q, %v", got, ok)
	}
	if _, ok := c.Get("other"); ok {
		t.Error("unexpected hit for different prompt")
	}
}
