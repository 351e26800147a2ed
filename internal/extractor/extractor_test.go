package extractor

import (
	"context"
	"testing"

	"github.com/tincomking/tinmem/internal/llm"
	"github.com/tincomking/tinmem/internal/types"
)

type fakeLLM struct {
	response string
	err      error
	calls    int
}

func (f *fakeLLM) Complete(_ context.Context, _ []llm.Message, _ bool) (string, error) {
	f.calls++
	return f.response, f.err
}

func TestExtractSkipsNoiseWithoutCallingLLM(t *testing.T) {
	fake := &fakeLLM{response: "[]"}
	e := New(fake)

	got, err := e.Extract(context.Background(), "thanks!")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != nil {
		t.Fatalf("Extract() = %v, want nil for noise input", got)
	}
	if fake.calls != 0 {
		t.Fatalf("Extract() called the LLM %d times for noise input, want 0", fake.calls)
	}
}

func TestExtractParsesPlainArray(t *testing.T) {
	fake := &fakeLLM{response: `[{"headline":"likes tea","summary":"the user prefers tea","content":"the user mentioned preferring tea over coffee","category":"preferences","importance":0.6,"tags":["tea"]}]`}
	e := New(fake)

	got, err := e.Extract(context.Background(), "I actually prefer tea over coffee most mornings")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Extract() returned %d items, want 1", len(got))
	}
	if got[0].Category != types.CategoryPreferences {
		t.Errorf("Category = %q, want preferences", got[0].Category)
	}
}

func TestExtractParsesFencedCodeBlock(t *testing.T) {
	fake := &fakeLLM{response: "```json\n[{\"headline\":\"h\",\"summary\":\"s\",\"content\":\"c\",\"category\":\"events\",\"importance\":0.5}]\n```"}
	e := New(fake)

	got, err := e.Extract(context.Background(), "yesterday we shipped the release after three days of testing")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Extract() returned %d items, want 1", len(got))
	}
}

func TestExtractParsesObjectWrappedArray(t *testing.T) {
	fake := &fakeLLM{response: `{"memories":[{"headline":"h","summary":"s","content":"c","category":"cases","importance":0.7}]}`}
	e := New(fake)

	got, err := e.Extract(context.Background(), "the incident last week involved a misconfigured cache ttl")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Extract() returned %d items, want 1", len(got))
	}
}

func TestExtractDropsItemsWithInvalidCategory(t *testing.T) {
	fake := &fakeLLM{response: `[{"headline":"h","summary":"s","content":"c","category":"not-a-category","importance":0.5}]`}
	e := New(fake)

	got, err := e.Extract(context.Background(), "some substantive conversation about ongoing work")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Extract() returned %d items, want 0 for invalid category", len(got))
	}
}

func TestExtractDropsItemsMissingRequiredFields(t *testing.T) {
	fake := &fakeLLM{response: `[{"headline":"","summary":"s","content":"","category":"profile"}]`}
	e := New(fake)

	got, err := e.Extract(context.Background(), "some substantive conversation about ongoing work")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Extract() returned %d items, want 0 for missing headline/content", len(got))
	}
}

func TestExtractDropsItemsMissingSummary(t *testing.T) {
	fake := &fakeLLM{response: `[{"headline":"h","summary":"","content":"c","category":"profile"}]`}
	e := New(fake)

	got, err := e.Extract(context.Background(), "some substantive conversation about ongoing work")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Extract() returned %d items, want 0 for missing summary", len(got))
	}
}

func TestExtractEmptyArrayReturnsNil(t *testing.T) {
	fake := &fakeLLM{response: "[]"}
	e := New(fake)

	got, err := e.Extract(context.Background(), "substantive conversation that yields nothing memorable")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Extract() = %v, want empty", got)
	}
}
