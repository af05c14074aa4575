package upstream

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultRequestTimeout = 30 * time.Second

// HTTPClient talks to the marketplace inquiry REST API.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates a client for the given API base URL
// (e.g. https://api.marketplace.example/v2).
func NewHTTPClient(baseURL string, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: defaultRequestTimeout},
		logger:  logger,
	}
}

// SetTimeout overrides the default per-request timeout.
func (c *HTTPClient) SetTimeout(d time.Duration) {
	if d > 0 {
		c.hc.Timeout = d
	}
}

// wire types, kept private: the rest of the system only sees InquiryItem.
type wireInquiry struct {
	InquiryID    string       `json:"inquiry_id"`
	Category     string       `json:"category"`
	Body         string       `json:"body"`
	CustomerName string       `json:"customer_name"`
	ProductName  string       `json:"product_name"`
	Answered     bool         `json:"answered"`
	Tags         []string     `json:"tags"`
	Thread       []wireThread `json:"thread"`
	ReceivedAt   int64        `json:"received_at"`
}

type wireThread struct {
	EntryID   string `json:"entry_id"`
	Status    string `json:"status"`
	Body      string `json:"body"`
	CreatedAt int64  `json:"created_at"`
}

type wireSubmitResponse struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

func (c *HTTPClient) FetchUnanswered(ctx context.Context, creds Credentials, channel ChannelKind, window Window) ([]InquiryItem, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("unknown channel %q", channel)
	}
	if window.Span() > MaxLookback {
		return nil, fmt.Errorf("window %s exceeds provider maximum %s", window.Span(), MaxLookback)
	}

	q := url.Values{}
	q.Set("category", string(channel))
	q.Set("from", strconv.FormatInt(window.From.Unix(), 10))
	q.Set("to", strconv.FormatInt(window.To.Unix(), 10))
	q.Set("state", "unanswered")

	var payload struct {
		Inquiries []wireInquiry `json:"inquiries"`
	}
	if err := c.do(ctx, creds, http.MethodGet, "/inquiries?"+q.Encode(), nil, &payload); err != nil {
		return nil, fmt.Errorf("fetch %s inquiries: %w", channel, err)
	}

	items := make([]InquiryItem, 0, len(payload.Inquiries))
	for _, w := range payload.Inquiries {
		items = append(items, decodeInquiry(w, channel))
	}
	return items, nil
}

func (c *HTTPClient) Reply(ctx context.Context, creds Credentials, itemID, text, actor string) (SubmitResult, error) {
	body := map[string]string{
		"body":  text,
		"actor": actor,
	}
	var resp wireSubmitResponse
	if err := c.do(ctx, creds, http.MethodPost, "/inquiries/"+url.PathEscape(itemID)+"/reply", body, &resp); err != nil {
		return SubmitResult{}, fmt.Errorf("reply to inquiry %s: %w", itemID, err)
	}
	return SubmitResult{Success: resp.Result == "ok", Message: resp.Message}, nil
}

func (c *HTTPClient) Confirm(ctx context.Context, creds Credentials, itemID, actor string) (SubmitResult, error) {
	body := map[string]string{
		"actor": actor,
	}
	var resp wireSubmitResponse
	if err := c.do(ctx, creds, http.MethodPost, "/inquiries/"+url.PathEscape(itemID)+"/confirm", body, &resp); err != nil {
		return SubmitResult{}, fmt.Errorf("confirm inquiry %s: %w", itemID, err)
	}
	return SubmitResult{Success: resp.Result == "ok", Message: resp.Message}, nil
}

// do executes one signed request and decodes the JSON response into out.
func (c *HTTPClient) do(ctx context.Context, creds Credentials, method, path string, body any, out any) error {
	var reqBody io.Reader
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.sign(req, creds, raw)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("call upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(snippet))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// sign adds the provider's HMAC-SHA256 auth headers: key id, unix timestamp,
// and a signature over method, path, timestamp and body.
func (c *HTTPClient) sign(req *http.Request, creds Credentials, body []byte) {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(creds.APISecret))
	mac.Write([]byte(req.Method))
	mac.Write([]byte("\n"))
	mac.Write([]byte(req.URL.RequestURI()))
	mac.Write([]byte("\n"))
	mac.Write([]byte(ts))
	mac.Write([]byte("\n"))
	mac.Write(body)

	req.Header.Set("X-Api-Key", creds.APIKey)
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
}

func decodeInquiry(w wireInquiry, channel ChannelKind) InquiryItem {
	item := InquiryItem{
		ID:           w.InquiryID,
		Channel:      channel,
		Text:         w.Body,
		CustomerName: w.CustomerName,
		ProductName:  w.ProductName,
		Answered:     w.Answered,
		Tags:         w.Tags,
		ReceivedAt:   time.Unix(w.ReceivedAt, 0),
	}
	for _, t := range w.Thread {
		item.Thread = append(item.Thread, ThreadEntry{
			ID:        t.EntryID,
			Status:    t.Status,
			Body:      t.Body,
			CreatedAt: time.Unix(t.CreatedAt, 0),
		})
	}
	return item
}
