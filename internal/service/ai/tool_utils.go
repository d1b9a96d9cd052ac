package ai

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	// LegalSearchQuota is the number of lookups one backend may serve per
	// LegalSearchQuotaWindow.
	LegalSearchQuota       = 20
	LegalSearchQuotaWindow = time.Minute
	LegalFetchTimeout      = 10 * time.Second

	legalFetchMaxBytes = 256 << 10
	legalPageMaxRunes  = 12000
	legalFetchAgent    = "Arbejdsret-Lovopslag/1.0"
)

var (
	ErrSearchQuotaExceeded = errors.New("legal search quota exceeded")
	ErrUnsupportedURL      = errors.New("only http and https links can be opened")
	ErrUnreadablePage      = errors.New("page is not a readable text document")
)

// FetchStatusError is returned when a legal source answers with anything but 200.
type FetchStatusError struct {
	Host string
	Code int
}

func (e *FetchStatusError) Error() string {
	return fmt.Sprintf("%s answered %d %s", e.Host, e.Code, http.StatusText(e.Code))
}

// searchQuota is a sliding window limiter keyed by search backend.
type searchQuota struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

func newSearchQuota(limit int, window time.Duration) *searchQuota {
	return &searchQuota{limit: limit, window: window, now: time.Now, hits: make(map[string][]time.Time)}
}

// Take spends one lookup on backend. When the window is full it reports how
// long until the oldest lookup expires.
func (q *searchQuota) Take(backend string) (time.Duration, error) {
	now := q.now()
	q.mu.Lock()
	defer q.mu.Unlock()
	cutoff := now.Add(-q.window)
	recent := q.hits[backend]
	for len(recent) > 0 && !recent[0].After(cutoff) {
		recent = recent[1:]
	}
	if len(recent) >= q.limit {
		q.hits[backend] = recent
		wait := q.window
		if len(recent) > 0 {
			wait = recent[0].Sub(cutoff)
		}
		return wait, fmt.Errorf("%w for %s", ErrSearchQuotaExceeded, backend)
	}
	q.hits[backend] = append(recent, now)
	return 0, nil
}

var (
	dropBlocks  = regexp.MustCompile(`(?is)<(script|style|noscript|head)\b.*?</(script|style|noscript|head)>`)
	breakTags   = regexp.MustCompile(`(?i)<(br|/p|/div|/li|/h[1-6]|/tr)\b[^>]*>`)
	anyTag      = regexp.MustCompile(`(?s)<[^>]*>`)
	blankSpaces = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLines  = regexp.MustCompile(`\n\s*\n+`)
)

// pageText reduces an HTML page to its readable text, keeping paragraph breaks
// so statute sections stay apart.
func pageText(raw string) string {
	s := dropBlocks.ReplaceAllString(raw, " ")
	s = breakTags.ReplaceAllString(s, "\n")
	s = anyTag.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = blankSpaces.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "\n[...]"
}

// fetchLegalPage opens a link the user pasted, typically a retsinformation.dk
// statute or a ruling, and returns its text trimmed for the model context.
func (w *webSearchTool) fetchLegalPage(ctx context.Context, target string) (string, error) {
	if w.httpClient == nil {
		w.httpClient = &http.Client{Timeout: LegalFetchTimeout}
	}
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil || u.Host == "" {
		return "", ErrUnsupportedURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrUnsupportedURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", legalFetchAgent)
	req.Header.Set("Accept", "text/html, text/plain;q=0.9, application/json;q=0.5")
	req.Header.Set("Accept-Language", "da, en;q=0.5")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", u.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &FetchStatusError{Host: u.Host, Code: resp.StatusCode}
	}

	mediaType := "text/plain"
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			mediaType = mt
		}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, legalFetchMaxBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", u.Host, err)
	}

	var text string
	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		text = pageText(string(body))
	case strings.HasPrefix(mediaType, "text/"), mediaType == "application/json":
		text = strings.TrimSpace(string(body))
	default:
		return "", fmt.Errorf("%w: %s", ErrUnreadablePage, mediaType)
	}
	if text == "" {
		return "", ErrUnreadablePage
	}
	return truncateRunes(text, legalPageMaxRunes), nil
}

func looksLikeURL(input string) bool {
	lower := strings.ToLower(input)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
