package verification

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/QuestPassApp/QuestPass/app/models"
)

// DefaultSharePlatforms is the built-in allowlist of social platforms a share
// URL may point at.
var DefaultSharePlatforms = []string{
	"twitter.com",
	"x.com",
	"instagram.com",
	"facebook.com",
	"linkedin.com",
	"threads.net",
}

// SocialShareConfig carries the per-definition settings for the social-share
// adapter.
type SocialShareConfig struct {
	// Allowlist overrides DefaultSharePlatforms when non-empty.
	Allowlist []string
	// RequiredTag enables the optional content layer: the shared page must
	// mention this tag (e.g. a campaign hashtag) somewhere in its title,
	// meta tags or visible text.
	RequiredTag string
}

// SocialShareVerifier checks that a claimed share URL points at an allowlisted
// platform and is publicly reachable. Reachability is the base-tier
// guarantee; content matching runs only when a required tag is configured and
// never auto-rejects, since a fetch that cannot see the tag may just be
// looking at a login wall.
type SocialShareVerifier struct {
	prober      ReachabilityProber
	fetcher     ContentFetcher
	allowlist   map[string]struct{}
	requiredTag string
}

// NewSocialShareVerifier creates the social-share adapter. The prober is
// required; the fetcher is required only when cfg.RequiredTag is set.
func NewSocialShareVerifier(prober ReachabilityProber, fetcher ContentFetcher, cfg SocialShareConfig) *SocialShareVerifier {
	if prober == nil {
		panic("verification: SocialShareVerifier requires a ReachabilityProber")
	}
	if cfg.RequiredTag != "" && fetcher == nil {
		panic("verification: SocialShareVerifier requires a ContentFetcher when a tag is configured")
	}

	platforms := cfg.Allowlist
	if len(platforms) == 0 {
		platforms = DefaultSharePlatforms
	}
	allowlist := make(map[string]struct{}, len(platforms))
	for _, platform := range platforms {
		allowlist[normalizeHost(platform)] = struct{}{}
	}

	return &SocialShareVerifier{
		prober:      prober,
		fetcher:     fetcher,
		allowlist:   allowlist,
		requiredTag: cfg.RequiredTag,
	}
}

func (v *SocialShareVerifier) IncentiveType() models.IncentiveType {
	return models.IncentiveTypeSocialShare
}

// Verify runs the validation pipeline, short-circuiting at the first failure:
// URL syntax, platform allowlist, reachability probe, then the optional
// content match.
func (v *SocialShareVerifier) Verify(ctx context.Context, purchaseID string, ev Evidence) Result {
	if ev.SocialShare == nil || strings.TrimSpace(ev.SocialShare.URL) == "" {
		return Rejected("missing share URL")
	}

	rawURL := strings.TrimSpace(ev.SocialShare.URL)
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Rejected(fmt.Sprintf("share URL %q is not a valid http(s) URL", rawURL))
	}

	platform := normalizeHost(parsed.Hostname())
	if _, ok := v.allowlist[platform]; !ok {
		return Rejected(fmt.Sprintf("platform %q is not on the allowlist", platform))
	}

	status, err := v.prober.Probe(ctx, rawURL)
	if err != nil {
		// No HTTP answer at all; the cause may be transient, so this
		// must not permanently disqualify the claim.
		return PendingManual(fmt.Sprintf("could not reach %s: %v", rawURL, err))
	}
	if status < 200 || status >= 300 {
		return Rejected(fmt.Sprintf("share URL unreachable / private / deleted (status %d)", status))
	}

	metadata := map[string]interface{}{
		"platform": platform,
		"url":      rawURL,
	}

	if v.requiredTag != "" {
		matched, detail := v.matchContent(ctx, rawURL)
		if !matched {
			return PendingManual(fmt.Sprintf("post is reachable but tag %q was not confirmed: %s", v.requiredTag, detail))
		}
		metadata["tag_matched"] = v.requiredTag
	}

	return Verified(fmt.Sprintf("share on %s verified", platform), metadata)
}

// matchContent looks for the required tag in the page title, meta tags and
// visible text.
func (v *SocialShareVerifier) matchContent(ctx context.Context, rawURL string) (bool, string) {
	doc, err := v.fetcher.FetchDocument(ctx, rawURL)
	if err != nil {
		return false, err.Error()
	}

	needle := strings.ToLower(v.requiredTag)
	if strings.Contains(strings.ToLower(doc.Find("title").Text()), needle) {
		return true, "title"
	}

	found := false
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if content, ok := s.Attr("content"); ok && strings.Contains(strings.ToLower(content), needle) {
			found = true
			return false
		}
		return true
	})
	if found {
		return true, "meta"
	}

	if strings.Contains(strings.ToLower(doc.Find("body").Text()), needle) {
		return true, "body"
	}
	return false, "tag not present in fetched page"
}

// normalizeHost lowercases a hostname and strips a leading "www.".
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}
