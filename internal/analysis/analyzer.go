// Package analysis talks to the remote content analysis and report
// services.
package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hpungsan/stickerjar/internal/errors"
	"github.com/hpungsan/stickerjar/internal/sticker"
)

// maxErrorBody bounds how much of a failed response is kept in the error.
const maxErrorBody = 512

// Profile personalises analysis output. All fields are optional.
type Profile struct {
	Name    string   `json:"name,omitempty"`
	Age     int      `json:"age,omitempty"`
	Pronoun string   `json:"pronoun,omitempty"`
	Goals   []string `json:"goals,omitempty"`
}

type analyzeRequest struct {
	ImageData   string   `json:"image_data"`
	IsSpecial   bool     `json:"is_special"`
	UserProfile *Profile `json:"user_profile,omitempty"`
}

type analyzeResponse struct {
	IsFood    bool   `json:"is_food"`
	Name      string `json:"name"`
	FunFact   string `json:"fun_fact"`
	Nutrition string `json:"nutrition"`
}

// Client calls the analysis endpoint. It never retries.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient returns a client posting to endpoint with the given timeout.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Analyze submits the sticker image and returns its enrichment.
func (c *Client) Analyze(ctx context.Context, image []byte, isSpecial bool, profile *Profile) (sticker.Enrichment, error) {
	body, err := json.Marshal(analyzeRequest{
		ImageData:   base64.StdEncoding.EncodeToString(image),
		IsSpecial:   isSpecial,
		UserProfile: profile,
	})
	if err != nil {
		return sticker.Enrichment{}, errors.NewInternal(err)
	}

	var out analyzeResponse
	if err := c.post(ctx, "analyze", body, &out); err != nil {
		return sticker.Enrichment{}, err
	}
	return sticker.Enrichment{
		IsFood:    out.IsFood,
		Name:      out.Name,
		FunFact:   out.FunFact,
		Nutrition: out.Nutrition,
	}, nil
}

func (c *Client) post(ctx context.Context, op string, body []byte, out any) error {
	return postJSON(ctx, c.httpClient, c.endpoint, op, body, out)
}

func postJSON(ctx context.Context, hc *http.Client, endpoint, op string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.NewRemoteFailure(op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return errors.NewRemoteFailure(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return errors.NewRemoteFailure(op, fmt.Errorf("%s returned %d: %s", endpoint, resp.StatusCode, bytes.TrimSpace(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.NewRemoteFailure(op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// Offline is the analyzer used when no endpoint is configured. Every call
// fails, so stickers receive fallback enrichment.
type Offline struct{}

func (Offline) Analyze(ctx context.Context, image []byte, isSpecial bool, profile *Profile) (sticker.Enrichment, error) {
	return sticker.Enrichment{}, errors.NewRemoteFailure("analyze", fmt.Errorf("no analyzer configured"))
}
