package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/basket/shopreply/internal/draft"
	"github.com/basket/shopreply/internal/upstream"
)

// fakeClient is an in-memory upstream.Client with per-channel scripting.
type fakeClient struct {
	items     map[upstream.ChannelKind][]upstream.InquiryItem
	fetchErr  map[upstream.ChannelKind]error
	replyErr  error
	replyFail map[string]string // itemID -> rejection message
	confirmOK bool

	replies  []string // item IDs replied to, in order
	confirms []string
}

func (f *fakeClient) FetchUnanswered(_ context.Context, _ upstream.Credentials, ch upstream.ChannelKind, _ upstream.Window) ([]upstream.InquiryItem, error) {
	if err := f.fetchErr[ch]; err != nil {
		return nil, err
	}
	return f.items[ch], nil
}

func (f *fakeClient) Reply(_ context.Context, _ upstream.Credentials, itemID, text, actor string) (upstream.SubmitResult, error) {
	if f.replyErr != nil {
		return upstream.SubmitResult{}, f.replyErr
	}
	if msg, ok := f.replyFail[itemID]; ok {
		return upstream.SubmitResult{Success: false, Message: msg}, nil
	}
	f.replies = append(f.replies, itemID)
	return upstream.SubmitResult{Success: true, Message: "accepted"}, nil
}

func (f *fakeClient) Confirm(_ context.Context, _ upstream.Credentials, itemID, actor string) (upstream.SubmitResult, error) {
	if !f.confirmOK {
		return upstream.SubmitResult{Success: false, Message: "transfer closed"}, nil
	}
	f.confirms = append(f.confirms, itemID)
	return upstream.SubmitResult{Success: true}, nil
}

// fakeGen drafts deterministically and can be scripted to fail.
type fakeGen struct {
	err   error
	empty bool
}

func (f *fakeGen) Draft(_ context.Context, req draft.Request) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.empty {
		return "", nil
	}
	return "Dear " + req.CustomerName + ", thanks for your message.", nil
}

func testRunCreds() upstream.Credentials {
	return upstream.Credentials{AccountRef: "acct-42", Actor: "support-bot"}
}

func directItem(id, text string, answered bool) upstream.InquiryItem {
	return upstream.InquiryItem{
		ID:           id,
		Channel:      upstream.ChannelDirect,
		Text:         text,
		CustomerName: "Dana",
		ProductName:  "Mug",
		Answered:     answered,
	}
}

func TestRun_DirectChannelStateMachine(t *testing.T) {
	// Answered, empty-text and valid items in one fetch: one skip, one
	// failure, one submission.
	client := &fakeClient{
		items: map[upstream.ChannelKind][]upstream.InquiryItem{
			upstream.ChannelDirect: {
				directItem("a", "old question", true),
				directItem("b", "   ", false),
				directItem("c", "Where is my order?", false),
			},
		},
	}
	r := NewRunner(client, &fakeGen{}, nil)

	res, err := r.Run(context.Background(), testRunCreds(), []upstream.ChannelKind{upstream.ChannelDirect}, time.Hour)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Collected != 3 {
		t.Errorf("Collected = %d, want 3", res.Collected)
	}
	if res.Answered != 1 || res.Submitted != 1 || res.Failed != 1 {
		t.Errorf("counts = answered %d submitted %d failed %d", res.Answered, res.Submitted, res.Failed)
	}

	byID := map[string]ItemOutcome{}
	for _, o := range res.Outcomes {
		byID[o.InquiryID] = o
	}
	if byID["a"].State != StateSkipped || byID["a"].Reason != ReasonAlreadyAnswered {
		t.Errorf("outcome a = %+v", byID["a"])
	}
	if byID["b"].State != StateFailed || byID["b"].Reason != "empty content" {
		t.Errorf("outcome b = %+v", byID["b"])
	}
	if byID["c"].State != StateSubmitted {
		t.Errorf("outcome c = %+v", byID["c"])
	}
	if len(client.replies) != 1 || client.replies[0] != "c" {
		t.Errorf("replies = %v", client.replies)
	}
}

func TestRun_DraftFailureMarksItemFailed(t *testing.T) {
	client := &fakeClient{
		items: map[upstream.ChannelKind][]upstream.InquiryItem{
			upstream.ChannelDirect: {directItem("a", "question", false)},
		},
	}
	r := NewRunner(client, &fakeGen{err: errors.New("model unavailable")}, nil)

	res, err := r.Run(context.Background(), testRunCreds(), []upstream.ChannelKind{upstream.ChannelDirect}, time.Hour)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Failed != 1 || res.Outcomes[0].Reason != "draft generation failed" {
		t.Errorf("outcome = %+v", res.Outcomes)
	}
	if len(client.replies) != 0 {
		t.Error("failed draft must not be submitted")
	}
}

func TestRun_EmptyDraftMarksItemFailed(t *testing.T) {
	client := &fakeClient{
		items: map[upstream.ChannelKind][]upstream.InquiryItem{
			upstream.ChannelDirect: {directItem("a", "question", false)},
		},
	}
	r := NewRunner(client, &fakeGen{empty: true}, nil)

	res, _ := r.Run(context.Background(), testRunCreds(), []upstream.ChannelKind{upstream.ChannelDirect}, time.Hour)
	if res.Failed != 1 || res.Outcomes[0].Reason != "draft generation failed" {
		t.Errorf("outcome = %+v", res.Outcomes)
	}
}

func TestRun_SpecialFormInquirySkipped(t *testing.T) {
	withTag := directItem("tagged", "warranty claim", false)
	withTag.Tags = []string{"requires_form"}
	withText := directItem("texty", "The seller asked me to fill in the form at the portal", false)

	client := &fakeClient{
		items: map[upstream.ChannelKind][]upstream.InquiryItem{
			upstream.ChannelDirect: {withTag, withText},
		},
	}
	r := NewRunner(client, &fakeGen{}, nil)

	res, _ := r.Run(context.Background(), testRunCreds(), []upstream.ChannelKind{upstream.ChannelDirect}, time.Hour)
	for _, o := range res.Outcomes {
		if o.State != StateSkipped || o.Reason != ReasonSpecialForm {
			t.Errorf("outcome %s = %+v, want special_form skip", o.InquiryID, o)
		}
	}
	if len(client.replies) != 0 {
		t.Error("special-form inquiries must never be submitted")
	}
}

func TestRun_SubmitFailureDoesNotBlockNextItem(t *testing.T) {
	client := &fakeClient{
		items: map[upstream.ChannelKind][]upstream.InquiryItem{
			upstream.ChannelDirect: {
				directItem("a", "first", false),
				directItem("b", "second", false),
			},
		},
		replyFail: map[string]string{"a": "rate limited"},
	}
	r := NewRunner(client, &fakeGen{}, nil)

	res, _ := r.Run(context.Background(), testRunCreds(), []upstream.ChannelKind{upstream.ChannelDirect}, time.Hour)
	if res.Failed != 1 || res.Submitted != 1 {
		t.Errorf("failed=%d submitted=%d", res.Failed, res.Submitted)
	}
	byID := map[string]ItemOutcome{}
	for _, o := range res.Outcomes {
		byID[o.InquiryID] = o
	}
	if byID["a"].Reason != "rate limited" {
		t.Errorf("api message not recorded: %+v", byID["a"])
	}
	if byID["b"].State != StateSubmitted {
		t.Errorf("second item blocked: %+v", byID["b"])
	}
}

func TestRun_ChannelFailureIsolated(t *testing.T) {
	// A throwing fetch in the direct channel must not prevent the transfer
	// channel from executing in the same cycle.
	client := &fakeClient{
		fetchErr: map[upstream.ChannelKind]error{
			upstream.ChannelDirect: errors.New("connection reset"),
		},
		items: map[upstream.ChannelKind][]upstream.InquiryItem{
			upstream.ChannelTransfer: {{
				ID:      "t1",
				Channel: upstream.ChannelTransfer,
				Thread: []upstream.ThreadEntry{
					{ID: "e1", Status: upstream.ThreadStatusNeedsConfirm, CreatedAt: time.Now()},
				},
			}},
		},
		confirmOK: true,
	}
	r := NewRunner(client, &fakeGen{}, nil)

	res, err := r.Run(context.Background(), testRunCreds(),
		[]upstream.ChannelKind{upstream.ChannelDirect, upstream.ChannelTransfer}, time.Hour)
	if err != nil {
		t.Fatalf("partial channel failure must still return a result, got error %v", err)
	}
	if len(res.Errors) != 1 || res.Errors[0].Channel != upstream.ChannelDirect {
		t.Errorf("errors = %+v", res.Errors)
	}
	if res.Confirmed != 1 {
		t.Errorf("transfer channel did not run: %+v", res)
	}
}

func TestRun_LookbackClampedWithWarning(t *testing.T) {
	client := &fakeClient{}
	r := NewRunner(client, &fakeGen{}, nil)

	res, err := r.Run(context.Background(), testRunCreds(), []upstream.ChannelKind{upstream.ChannelDirect}, upstream.MaxLookback*2)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %v, want one clamp warning", res.Warnings)
	}
}

func TestRun_NoChannelsIsAnError(t *testing.T) {
	r := NewRunner(&fakeClient{}, &fakeGen{}, nil)
	if _, err := r.Run(context.Background(), testRunCreds(), nil, time.Hour); err == nil {
		t.Fatal("expected error with no channels")
	}
}

func TestRun_CancelledContextBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(&fakeClient{}, &fakeGen{}, nil)
	if _, err := r.Run(ctx, testRunCreds(), []upstream.ChannelKind{upstream.ChannelDirect}, time.Hour); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestRun_PanickingFetchContained(t *testing.T) {
	r := NewRunner(&panicClient{}, &fakeGen{}, nil)
	res, err := r.Run(context.Background(), testRunCreds(), []upstream.ChannelKind{upstream.ChannelDirect}, time.Hour)
	if err != nil {
		t.Fatalf("panic escaped the channel boundary: %v", err)
	}
	if len(res.Errors) != 1 {
		t.Errorf("panic not recorded: %+v", res.Errors)
	}
}

type panicClient struct{ fakeClient }

func (p *panicClient) FetchUnanswered(context.Context, upstream.Credentials, upstream.ChannelKind, upstream.Window) ([]upstream.InquiryItem, error) {
	panic(fmt.Errorf("boom"))
}
