// Package enrich derives the fields attached to a click before it reaches
// the Workspace Counter and the queue: a deterministic click-id, an IP
// hash, a device class, and a bot flag. Every function here is pure —
// grounded on the teacher's internal/analytics/publisher.go split of small,
// independently testable derivation functions — so the Redirect Handler
// can call them without touching Postgres, Redis, or the clock twice.
package enrich

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// ClickID returns the deterministic identifier for a click: hex-encoded
// SHA-256 of link_id|ts_millis|unique_part. Identical input always
// produces the same id, so duplicate queue deliveries collapse on insert.
func ClickID(linkID string, tsMillis int64, uniquePart string) string {
	input := fmt.Sprintf("%s|%d|%s", linkID, tsMillis, uniquePart)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// UniquePart returns the unique_part input to ClickID. When the edge
// platform supplies a per-request identifier (e.g. a load balancer
// request id), that is used verbatim; otherwise it falls back to the
// first 16 hex characters of SHA-256(user-agent), so repeated requests
// from the same client spaced far enough apart still get distinct ids.
func UniquePart(edgeRequestID, userAgent string) string {
	if edgeRequestID != "" {
		return edgeRequestID
	}
	sum := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(sum[:])[:16]
}

// IPHash returns the hex-encoded SHA-256 of the client IP. The raw IP is
// never persisted, logged, or forwarded past this call.
func IPHash(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}

// tabletTokens, mobileTokens, and desktopTokens are matched in this order —
// tablet tokens first, since "iPad" and similar contain no mobile token,
// but some Android tablet strings also carry "Mobile".
var (
	tabletTokens  = []string{"ipad", "tablet", "kindle", "playbook", "nexus 7", "nexus 9", "nexus 10"}
	mobileTokens  = []string{"mobile", "iphone", "android", "blackberry", "windows phone", "opera mini"}
	desktopTokens = []string{"windows nt", "macintosh", "x11", "linux x86_64", "cros"}
)

// DeviceClass classifies a user-agent into a coarse device bucket.
// Case-insensitive substring match, checked in the order tablet → mobile →
// desktop → unknown.
func DeviceClass(userAgent string) string {
	ua := strings.ToLower(userAgent)
	if containsAny(ua, tabletTokens) {
		return "tablet"
	}
	if containsAny(ua, mobileTokens) {
		return "mobile"
	}
	if containsAny(ua, desktopTokens) {
		return "desktop"
	}
	return "unknown"
}

// botTokens is a fixed, case-insensitive crawler/scraper substring list.
// Bot-flagged requests are excluded from counter increments and queue
// enqueue entirely — they may neither consume Free cap nor appear in
// usage billing.
var botTokens = []string{
	"bot", "crawler", "spider", "scraper", "slurp", "facebookexternalhit",
	"googlebot", "bingbot", "duckduckbot", "baiduspider", "yandexbot",
	"ahrefsbot", "semrushbot", "mj12bot", "curl", "wget", "python-requests",
	"headlesschrome", "phantomjs",
}

// IsBot reports whether the user-agent matches the fixed crawler list.
func IsBot(userAgent string) bool {
	return containsAny(strings.ToLower(userAgent), botTokens)
}

// NormalizeReferrer classifies a raw Referer header into the host used for
// the referrer rollup. An empty or missing referrer becomes "(direct)";
// otherwise the hostname has a leading "www." stripped; a malformed URL
// falls back to the first 100 characters of the raw value. Normalization
// happens at aggregation time, not enrichment — the raw Referer header is
// carried on the queue message unchanged.
func NormalizeReferrer(raw string) string {
	if raw == "" {
		return "(direct)"
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		if len(raw) > 100 {
			return raw[:100]
		}
		return raw
	}

	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

func containsAny(haystack string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(haystack, t) {
			return true
		}
	}
	return false
}
