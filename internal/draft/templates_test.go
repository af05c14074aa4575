package draft

import (
	"strings"
	"testing"

	"github.com/basket/shopreply/internal/sentiment"
)

func TestSystemPrompt_TonePerSentiment(t *testing.T) {
	neg := SystemPrompt(sentiment.Negative)
	if !strings.Contains(neg, "apology") {
		t.Errorf("negative prompt missing apology instruction:\n%s", neg)
	}
	pos := SystemPrompt(sentiment.Positive)
	if !strings.Contains(pos, "Thank them") {
		t.Errorf("positive prompt missing gratitude instruction:\n%s", pos)
	}
	if SystemPrompt("bogus") != SystemPrompt(sentiment.Neutral) {
		t.Error("unknown tone should fall back to neutral")
	}
}

func TestUserPrompt(t *testing.T) {
	got := UserPrompt(Request{
		Text:         "  Is this dishwasher safe?  ",
		CustomerName: "Sam",
		ProductName:  "Ceramic Mug",
	})
	for _, want := range []string{"Customer: Sam", "Product: Ceramic Mug", "Is this dishwasher safe?"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "  Is this") {
		t.Error("inquiry text not trimmed")
	}
}

func TestUserPrompt_OmitsEmptyMetadata(t *testing.T) {
	got := UserPrompt(Request{Text: "hello"})
	if strings.Contains(got, "Customer:") || strings.Contains(got, "Product:") {
		t.Errorf("empty metadata rendered:\n%s", got)
	}
}
