package modules

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/graniet/kheish/internal/rag"
)

// HTTPModule performs outbound GET/POST requests with a per-domain
// cookie jar. The jar lives for the module instance and is shared by
// every task using it; concurrent tasks must not assume session
// isolation.
type HTTPModule struct {
	mu      sync.RWMutex
	cookies map[string]string
	client  *http.Client
}

// NewHTTPModule creates the module with an empty cookie jar.
func NewHTTPModule() *HTTPModule {
	return &HTTPModule{
		cookies: make(map[string]string),
		client:  http.DefaultClient,
	}
}

func (m *HTTPModule) Name() string { return "http" }

// storeCookies merges Set-Cookie values into the jar for a domain.
func (m *HTTPModule) storeCookies(domain string, setCookies []string) {
	if len(setCookies) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := []string{}
	for _, part := range strings.Split(m.cookies[domain], ";") {
		if p := strings.TrimSpace(part); p != "" {
			merged = append(merged, p)
		}
	}
	for _, header := range setCookies {
		for _, part := range strings.Split(header, ";") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			known := false
			for _, existing := range merged {
				if existing == p {
					known = true
					break
				}
			}
			if !known {
				merged = append(merged, p)
			}
		}
	}
	if combined := strings.Join(merged, "; "); combined != "" {
		m.cookies[domain] = combined
	}
}

func (m *HTTPModule) cookieHeader(domain string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cookies[domain]
}

func extractDomain(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Host == "" {
		return "", errors.New("no domain found in URL")
	}
	return parsed.Hostname(), nil
}

// detectContentType sniffs JSON bodies; everything else is plain text.
func detectContentType(data string) string {
	trimmed := strings.TrimSpace(data)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		return "application/json"
	}
	return "text/plain"
}

// applyHeaders parses "Name: Value" params into request headers.
func applyHeaders(req *http.Request, headers []string) error {
	for _, h := range headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			continue
		}
		name, value = strings.TrimSpace(name), strings.TrimSpace(value)
		if name == "" || value == "" {
			continue
		}
		req.Header.Set(name, value)
	}
	return nil
}

func (m *HTTPModule) performRequest(ctx context.Context, method, rawURL, data string, extraHeaders []string) (string, error) {
	domain, err := extractDomain(rawURL)
	if err != nil {
		return "", err
	}

	var body io.Reader
	if data != "" {
		body = strings.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return "", err
	}
	if data != "" {
		req.Header.Set("Content-Type", detectContentType(data))
	}
	if cookie := m.cookieHeader(domain); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	if err := applyHeaders(req, extraHeaders); err != nil {
		return "", err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	m.storeCookies(domain, resp.Header.Values("Set-Cookie"))

	return fmt.Sprintf("STATUS: %s\n\n%s", resp.Status, respBody), nil
}

func (m *HTTPModule) HandleAction(ctx context.Context, _ rag.VectorStore, action string, params []string) (string, error) {
	switch action {
	case "get":
		if len(params) == 0 {
			return "", errors.New("usage: http get <url> [Header:Value ...]")
		}
		return m.performRequest(ctx, http.MethodGet, params[0], "", params[1:])

	case "post":
		if len(params) < 2 {
			return "", errors.New("usage: http post <url> <data> [Header:Value ...]")
		}
		return m.performRequest(ctx, http.MethodPost, params[0], params[1], params[2:])

	default:
		return "", fmt.Errorf("unknown action %q for http module", action)
	}
}

func (m *HTTPModule) Actions() []Action {
	return []Action{
		{Name: "get", ArgCount: 1, Description: "Perform a GET request. Usage: http get <url> [Header:Value ...]"},
		{Name: "post", ArgCount: 2, Description: "Perform a POST request with data. Usage: http post <url> <data> [Header:Value ...]"},
	}
}
