package verification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/QuestPassApp/QuestPass/internal/pkg/env"
)

// ReachabilityProber answers whether a URL is publicly reachable. Probe
// returns the HTTP status code; an error means the probe never got an HTTP
// answer at all (timeout, DNS failure, connection refused).
type ReachabilityProber interface {
	Probe(ctx context.Context, rawURL string) (int, error)
}

// ContentFetcher retrieves a page as a parsed document for content matching.
type ContentFetcher interface {
	FetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error)
}

// HTTPProber probes share URLs with a HEAD request and fetches page content
// for the optional content-matching layer. It implements both
// ReachabilityProber and ContentFetcher.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates a prober with the timeout from VERIFY_PROBE_TIMEOUT
// (default 10s).
func NewHTTPProber() *HTTPProber {
	return &HTTPProber{
		client: &http.Client{
			Timeout: env.GetEnvDuration("VERIFY_PROBE_TIMEOUT", 10*time.Second),
		},
	}
}

// Probe issues a HEAD request against the URL. Some platforms answer HEAD
// with 405, so those fall back to a GET.
func (p *HTTPProber) Probe(ctx context.Context, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe failed: %w", err)
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusMethodNotAllowed {
		return p.probeGet(ctx, rawURL)
	}
	return resp.StatusCode, nil
}

func (p *HTTPProber) probeGet(ctx context.Context, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe failed: %w", err)
	}
	resp.Body.Close()

	return resp.StatusCode, nil
}

// FetchDocument downloads the page and parses it for content matching.
func (p *HTTPProber) FetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build fetch request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, nil
}
