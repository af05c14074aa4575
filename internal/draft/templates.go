package draft

import (
	"fmt"
	"strings"

	"github.com/basket/shopreply/internal/sentiment"
)

const baseSystemPrompt = `You are a customer service agent for an online marketplace storefront.
Write a single reply to the customer inquiry below.
Rules:
- Reply in the customer's language.
- Be concrete: address the question that was asked, nothing else.
- Never invent order status, stock levels, or refund decisions.
- Never include links or ask the customer to fill in forms.
- Sign off politely without using a personal name.`

var toneInstructions = map[sentiment.Score]string{
	sentiment.Negative: "The customer is upset. Open with a short, sincere apology before anything else, and keep the tone calm and accountable.",
	sentiment.Neutral:  "Keep the tone friendly and efficient.",
	sentiment.Positive: "The customer is happy. Thank them warmly and keep the reply short.",
}

// SystemPrompt builds the generation system prompt for a given tone.
func SystemPrompt(tone sentiment.Score) string {
	instr, ok := toneInstructions[tone]
	if !ok {
		instr = toneInstructions[sentiment.Neutral]
	}
	return baseSystemPrompt + "\n" + instr
}

// UserPrompt renders the inquiry into the generation user prompt.
func UserPrompt(req Request) string {
	var b strings.Builder
	if req.CustomerName != "" {
		fmt.Fprintf(&b, "Customer: %s\n", req.CustomerName)
	}
	if req.ProductName != "" {
		fmt.Fprintf(&b, "Product: %s\n", req.ProductName)
	}
	fmt.Fprintf(&b, "Inquiry:\n%s", strings.TrimSpace(req.Text))
	return b.String()
}
