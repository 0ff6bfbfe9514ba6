package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hpungsan/stickerjar/internal/errors"
	"github.com/hpungsan/stickerjar/internal/sticker"
)

// ReportClient calls a report endpoint speaking the callable-function
// envelope: {"data": [...names]} in, {"result": "markdown"} out.
type ReportClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewReportClient returns a client posting to endpoint.
func NewReportClient(endpoint string, timeout time.Duration) *ReportClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ReportClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type reportRequest struct {
	Data []string `json:"data"`
}

type reportResponse struct {
	Result string `json:"result"`
}

// Generate requests a weekly recap for stickers.
func (c *ReportClient) Generate(ctx context.Context, stickers []sticker.Sticker) (string, error) {
	names, err := FoodNames(stickers)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(reportRequest{Data: names})
	if err != nil {
		return "", errors.NewInternal(err)
	}

	var out reportResponse
	if err := postJSON(ctx, c.httpClient, c.endpoint, "report", body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Result) == "" {
		return "", errors.NewRemoteFailure("report", fmt.Errorf("empty report"))
	}
	return out.Result, nil
}

// FoodNames lists the display names of identified stickers. An empty
// result is rejected: there is nothing to report on.
func FoodNames(stickers []sticker.Sticker) ([]string, error) {
	names := make([]string, 0, len(stickers))
	for _, s := range stickers {
		if s.Name == nil {
			continue
		}
		name := strings.TrimSpace(*s.Name)
		if name == "" || name == sticker.FallbackName {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, errors.NewInvalidRequest("food name list cannot be empty")
	}
	return names, nil
}

// LocalReporter builds a markdown recap without any remote call.
type LocalReporter struct{}

// Generate summarises stickers as markdown.
func (LocalReporter) Generate(ctx context.Context, stickers []sticker.Sticker) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	counts := make(map[string]int)
	var unknown, special, food int
	for _, s := range stickers {
		if s.IsSpecial {
			special++
		}
		if s.IsFood {
			food++
		}
		if s.Name == nil || *s.Name == "" || *s.Name == sticker.FallbackName {
			unknown++
			continue
		}
		counts[*s.Name]++
	}

	names := make([]string, 0, len(counts))
	for n := range counts {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})

	var b strings.Builder
	b.WriteString("Here's your weekly food recap!\n\n")
	fmt.Fprintf(&b, "**This week's jar:** %d stickers, %d of them food.\n\n", len(stickers), food)
	if len(names) > 0 {
		b.WriteString("**What went in:**\n\n")
		for _, n := range names {
			if counts[n] > 1 {
				fmt.Fprintf(&b, "- %s ×%d\n", n, counts[n])
			} else {
				fmt.Fprintf(&b, "- %s\n", n)
			}
		}
		b.WriteString("\n")
	}
	if unknown > 0 {
		fmt.Fprintf(&b, "**Mystery items:** %d\n\n", unknown)
	}
	if special > 0 {
		fmt.Fprintf(&b, "**Specials:** %d\n\n", special)
	}
	b.WriteString("**A Positive Tip for Next Week:** try adding one new colour to your plate.\n")
	return b.String(), nil
}
