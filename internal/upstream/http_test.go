package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testCreds() Credentials {
	return Credentials{
		AccountRef: "acct-1",
		APIKey:     "key-1",
		APISecret:  "secret-1",
		Actor:      "support-bot",
	}
}

func TestHTTPClient_FetchUnanswered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inquiries" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("category"); got != "direct" {
			t.Errorf("category = %q, want direct", got)
		}
		if r.Header.Get("X-Api-Key") != "key-1" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("X-Signature") == "" {
			t.Errorf("missing signature header")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"inquiries": []map[string]any{
				{
					"inquiry_id":    "inq-1",
					"body":          "Where is my order?",
					"customer_name": "Dana",
					"product_name":  "Ceramic Mug",
					"answered":      false,
					"tags":          []string{"shipping"},
					"received_at":   1700000000,
				},
			},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	now := time.Now()
	items, err := c.FetchUnanswered(context.Background(), testCreds(), ChannelDirect, Window{From: now.Add(-24 * time.Hour), To: now})
	if err != nil {
		t.Fatalf("FetchUnanswered: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	item := items[0]
	if item.ID != "inq-1" || item.Channel != ChannelDirect {
		t.Errorf("decoded item = %+v", item)
	}
	if item.CustomerName != "Dana" || item.ProductName != "Ceramic Mug" {
		t.Errorf("metadata lost: %+v", item)
	}
}

func TestHTTPClient_FetchRejectsOversizedWindow(t *testing.T) {
	c := NewHTTPClient("http://unused.invalid", nil)
	now := time.Now()
	_, err := c.FetchUnanswered(context.Background(), testCreds(), ChannelDirect, Window{From: now.Add(-MaxLookback - time.Hour), To: now})
	if err == nil {
		t.Fatal("expected error for window beyond provider maximum")
	}
}

func TestHTTPClient_Reply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inquiries/inq-9/reply" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["body"] != "Thanks for reaching out!" {
			t.Errorf("reply body = %q", body["body"])
		}
		if body["actor"] != "support-bot" {
			t.Errorf("actor = %q", body["actor"])
		}
		_ = json.NewEncoder(w).Encode(wireSubmitResponse{Result: "ok", Message: "accepted"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	res, err := c.Reply(context.Background(), testCreds(), "inq-9", "Thanks for reaching out!", "support-bot")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if !res.Success || res.Message != "accepted" {
		t.Errorf("result = %+v", res)
	}
}

func TestHTTPClient_ConfirmNonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(wireSubmitResponse{Result: "rejected", Message: "already handled"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	res, err := c.Confirm(context.Background(), testCreds(), "inq-2", "support-bot")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.Success {
		t.Error("expected non-success result")
	}
	if res.Message != "already handled" {
		t.Errorf("message = %q", res.Message)
	}
}

func TestHTTPClient_UpstreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, nil)
	_, err := c.Reply(context.Background(), testCreds(), "inq-1", "text", "actor")
	if err == nil {
		t.Fatal("expected error on 500 response")
	}
}
