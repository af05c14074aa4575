package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/basket/shopreply/internal/upstream"
)

func transferItem(id string, entries ...upstream.ThreadEntry) upstream.InquiryItem {
	return upstream.InquiryItem{ID: id, Channel: upstream.ChannelTransfer, Thread: entries}
}

func TestProcessTransfer_ConfirmsLatestActionableEntry(t *testing.T) {
	now := time.Now()
	client := &fakeClient{
		items: map[upstream.ChannelKind][]upstream.InquiryItem{
			upstream.ChannelTransfer: {
				transferItem("t1",
					upstream.ThreadEntry{ID: "old", Status: upstream.ThreadStatusNeedsConfirm, CreatedAt: now.Add(-time.Hour)},
					upstream.ThreadEntry{ID: "new", Status: upstream.ThreadStatusNeedsConfirm, CreatedAt: now},
					upstream.ThreadEntry{ID: "done", Status: "resolved", CreatedAt: now.Add(time.Minute)},
				),
			},
		},
		confirmOK: true,
	}
	r := NewRunner(client, &fakeGen{}, nil)

	res, err := r.Run(context.Background(), testRunCreds(), []upstream.ChannelKind{upstream.ChannelTransfer}, time.Hour)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Confirmed != 1 || res.Submitted != 0 {
		t.Errorf("confirmed=%d submitted=%d", res.Confirmed, res.Submitted)
	}
	if len(client.confirms) != 1 || client.confirms[0] != "t1" {
		t.Errorf("confirms = %v", client.confirms)
	}
}

func TestProcessTransfer_NoActionableEntrySkips(t *testing.T) {
	client := &fakeClient{
		items: map[upstream.ChannelKind][]upstream.InquiryItem{
			upstream.ChannelTransfer: {
				transferItem("t1", upstream.ThreadEntry{ID: "e", Status: "resolved"}),
				transferItem("t2"),
			},
		},
		confirmOK: true,
	}
	r := NewRunner(client, &fakeGen{}, nil)

	res, _ := r.Run(context.Background(), testRunCreds(), []upstream.ChannelKind{upstream.ChannelTransfer}, time.Hour)
	if len(res.Outcomes) != 2 {
		t.Fatalf("outcomes = %+v", res.Outcomes)
	}
	for _, o := range res.Outcomes {
		if o.State != StateSkipped || o.Reason != ReasonNoActionableEntry {
			t.Errorf("outcome %s = %+v", o.InquiryID, o)
		}
	}
	if len(client.confirms) != 0 {
		t.Errorf("unexpected confirms: %v", client.confirms)
	}
}

func TestProcessTransfer_RejectionRecordedAsFailure(t *testing.T) {
	client := &fakeClient{
		items: map[upstream.ChannelKind][]upstream.InquiryItem{
			upstream.ChannelTransfer: {
				transferItem("t1", upstream.ThreadEntry{ID: "e", Status: upstream.ThreadStatusNeedsConfirm, CreatedAt: time.Now()}),
			},
		},
		confirmOK: false,
	}
	r := NewRunner(client, &fakeGen{}, nil)

	res, _ := r.Run(context.Background(), testRunCreds(), []upstream.ChannelKind{upstream.ChannelTransfer}, time.Hour)
	if res.Failed != 1 {
		t.Fatalf("failed = %d, want 1", res.Failed)
	}
	if res.Outcomes[0].Reason != "transfer closed" {
		t.Errorf("api message not recorded: %+v", res.Outcomes[0])
	}
}
