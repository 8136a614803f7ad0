// Package headers implements the header-analyzer phase: one HTTP
// HEAD (falling back to a bounded GET) against a URL target, inspecting the
// response for weak or missing security headers and dangerous CORS
// configuration. It produces findings in the same shape the pattern engine
// and deduplication engine use, so the orchestrator can merge a headers-phase
// report into the rest of a scan without a special case.
package headers

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/quietridge/secscan/pkg/dedup"
	"github.com/quietridge/secscan/pkg/pattern"
	"github.com/quietridge/secscan/pkg/ratelimit"
)

// userAgent is the fixed identifier string every outbound header-phase
// request carries, per spec §6.
const userAgent = "secscan/1.0 (+security-scanner)"

const maxRedirects = 5

// maxGETBody bounds the fallback GET's body read; the analyzer never needs
// more than enough to confirm the response landed.
const maxGETBody = 1024

// Config tunes one Analyze call.
type Config struct {
	Timeout time.Duration
}

// DefaultConfig matches spec §5's 15-60s outbound-call budget; headers get
// the shorter end since they're a single round trip, not a clone.
var DefaultConfig = Config{Timeout: 15 * time.Second}

// NewClient builds the retryable HTTP client the header analyzer (and
// nothing else) uses: fixed User-Agent, redirect cap, no built-in retry
// delay policy of its own since the caller's ratelimit.Bucket already
// governs backoff for this target.
func NewClient(cfg Config) *http.Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 0
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.HTTPClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return http.ErrUseLastResponse
		}
		return nil
	}
	client := rc.StandardClient()
	return client
}

// Analyze fetches targetURL (HEAD, falling back to a bounded GET) and
// inspects the response headers, returning one Finding per issue detected.
// If bucket is non-nil, the caller's rate limit is consulted before each
// request and the outcome fed back afterward.
func Analyze(client *http.Client, bucket *ratelimit.Bucket, targetURL string) ([]dedup.Finding, error) {
	req, err := http.NewRequest(http.MethodHead, targetURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := doRequest(client, bucket, req)
	if err != nil || resp.StatusCode >= 400 {
		if resp != nil {
			resp.Body.Close()
		}
		getReq, gerr := http.NewRequest(http.MethodGet, targetURL, nil)
		if gerr != nil {
			return nil, gerr
		}
		getReq.Header.Set("User-Agent", userAgent)
		resp, err = doRequest(client, bucket, getReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.CopyN(io.Discard, resp.Body, maxGETBody)
	} else {
		defer resp.Body.Close()
	}

	isHTTPS := strings.HasPrefix(strings.ToLower(targetURL), "https://")
	return inspect(resp.Header, targetURL, isHTTPS), nil
}

func doRequest(client *http.Client, bucket *ratelimit.Bucket, req *http.Request) (*http.Response, error) {
	now := time.Now()
	if bucket != nil {
		decision := bucket.Check(now)
		if !decision.Allowed {
			time.Sleep(decision.Delay)
		}
	}
	resp, err := client.Do(req)
	if bucket != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		bucket.RecordOutcome(time.Now(), status, err)
	}
	return resp, err
}

// finding builds a header-analysis Finding. Headers findings have no file
// location in the ordinary sense; File carries the target URL instead, and
// Line/Column are zero.
func finding(id string, severity pattern.Severity, confidence float64, targetURL string) dedup.Finding {
	loc := dedup.Location{File: targetURL}
	return dedup.Finding{
		Fingerprint:         dedup.ComputeFingerprint(id, targetURL, targetURL),
		PatternID:           id,
		Value:               targetURL,
		Severity:            int(severity),
		Confidence:          confidence,
		PrimaryLocation:     loc,
		PrimaryFile:         targetURL,
		AggregatedLocations: []dedup.Location{loc},
		OccurrenceCount:     1,
	}
}

func inspect(h http.Header, targetURL string, isHTTPS bool) []dedup.Finding {
	var findings []dedup.Finding

	findings = append(findings, inspectCSP(h, targetURL)...)
	if isHTTPS {
		findings = append(findings, inspectHSTS(h, targetURL)...)
	}
	findings = append(findings, inspectXSSProtection(h, targetURL)...)
	findings = append(findings, inspectReferrerPolicy(h, targetURL)...)
	findings = append(findings, inspectFrameOptions(h, targetURL)...)
	findings = append(findings, inspectCORS(h, targetURL)...)

	return findings
}

func inspectCSP(h http.Header, url string) []dedup.Finding {
	csp := h.Get("Content-Security-Policy")
	if csp == "" {
		return []dedup.Finding{finding("missing-csp", pattern.SeverityMedium, 0.85, url)}
	}
	lower := strings.ToLower(csp)
	var findings []dedup.Finding
	if strings.Contains(lower, "unsafe-eval") {
		findings = append(findings, finding("csp-unsafe-eval", pattern.SeverityHigh, 0.80, url))
	}
	if strings.Contains(lower, "script-src") && strings.Contains(lower, "*") {
		findings = append(findings, finding("csp-script-src-wildcard", pattern.SeverityHigh, 0.75, url))
	}
	if !strings.Contains(lower, "object-src") {
		findings = append(findings, finding("csp-missing-object-src", pattern.SeverityLow, 0.60, url))
	}
	return findings
}

func inspectHSTS(h http.Header, url string) []dedup.Finding {
	hsts := h.Get("Strict-Transport-Security")
	if hsts == "" {
		return []dedup.Finding{finding("missing-hsts", pattern.SeverityMedium, 0.90, url)}
	}
	var findings []dedup.Finding
	lower := strings.ToLower(hsts)
	maxAge, hasMaxAge := parseMaxAge(lower)
	const sixMonths = 6 * 30 * 24 * 60 * 60
	switch {
	case !hasMaxAge:
		findings = append(findings, finding("hsts-missing-max-age", pattern.SeverityMedium, 0.80, url))
	case maxAge < sixMonths:
		findings = append(findings, finding("hsts-short-max-age", pattern.SeverityLow, 0.70, url))
	}
	if !strings.Contains(lower, "includesubdomains") {
		findings = append(findings, finding("hsts-missing-include-subdomains", pattern.SeverityLow, 0.55, url))
	}
	return findings
}

func parseMaxAge(lowerHeader string) (int, bool) {
	idx := strings.Index(lowerHeader, "max-age=")
	if idx == -1 {
		return 0, false
	}
	rest := lowerHeader[idx+len("max-age="):]
	end := strings.IndexAny(rest, "; ")
	if end != -1 {
		rest = rest[:end]
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0, false
	}
	return n, true
}

func inspectXSSProtection(h http.Header, url string) []dedup.Finding {
	v := strings.ToLower(strings.TrimSpace(h.Get("X-XSS-Protection")))
	switch {
	case v == "":
		return []dedup.Finding{finding("missing-xss-protection", pattern.SeverityLow, 0.60, url)}
	case strings.HasPrefix(v, "0"):
		return []dedup.Finding{finding("disabled-xss-protection", pattern.SeverityMedium, 0.65, url)}
	case v != "1; mode=block" && !strings.Contains(v, "mode=block"):
		return []dedup.Finding{finding("weak-xss-protection", pattern.SeverityLow, 0.50, url)}
	}
	return nil
}

func inspectReferrerPolicy(h http.Header, url string) []dedup.Finding {
	v := strings.ToLower(strings.TrimSpace(h.Get("Referrer-Policy")))
	if v == "" {
		return []dedup.Finding{finding("missing-referrer-policy", pattern.SeverityLow, 0.55, url)}
	}
	switch v {
	case "unsafe-url", "no-referrer-when-downgrade":
		return []dedup.Finding{finding("permissive-referrer-policy", pattern.SeverityLow, 0.55, url)}
	}
	return nil
}

func inspectFrameOptions(h http.Header, url string) []dedup.Finding {
	v := strings.ToUpper(strings.TrimSpace(h.Get("X-Frame-Options")))
	switch {
	case v == "":
		return []dedup.Finding{finding("missing-xfo", pattern.SeverityMedium, 0.70, url)}
	case v == "DENY" || strings.HasPrefix(v, "SAMEORIGIN"):
		return nil
	case strings.HasPrefix(v, "ALLOW-FROM"):
		return []dedup.Finding{finding("permissive-xfo", pattern.SeverityLow, 0.55, url)}
	default:
		return []dedup.Finding{finding("invalid-xfo", pattern.SeverityMedium, 0.60, url)}
	}
}

var dangerousCORSMethods = []string{"PUT", "DELETE", "PATCH", "CONNECT", "TRACE"}

func inspectCORS(h http.Header, url string) []dedup.Finding {
	origin := strings.TrimSpace(h.Get("Access-Control-Allow-Origin"))
	if origin == "" {
		return nil
	}
	var findings []dedup.Finding
	credentials := strings.EqualFold(strings.TrimSpace(h.Get("Access-Control-Allow-Credentials")), "true")

	switch {
	case origin == "*" && credentials:
		findings = append(findings, finding("cors-wildcard-with-credentials", pattern.SeverityCritical, 0.90, url))
	case strings.EqualFold(origin, "null"):
		findings = append(findings, finding("cors-null-origin", pattern.SeverityHigh, 0.75, url))
	case strings.Contains(origin, ","):
		findings = append(findings, finding("cors-multiple-origins", pattern.SeverityMedium, 0.65, url))
	}

	methods := strings.ToUpper(h.Get("Access-Control-Allow-Methods"))
	if strings.Contains(methods, "*") {
		findings = append(findings, finding("cors-wildcard-methods", pattern.SeverityMedium, 0.60, url))
	}
	for _, m := range dangerousCORSMethods {
		if strings.Contains(methods, m) {
			findings = append(findings, finding("cors-dangerous-methods", pattern.SeverityMedium, 0.55, url))
			break
		}
	}

	if strings.Contains(h.Get("Access-Control-Allow-Headers"), "*") {
		findings = append(findings, finding("cors-wildcard-headers", pattern.SeverityLow, 0.50, url))
	}

	return findings
}
