package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	requestTimeout = 30 * time.Second
	defaultPerPage = 100

	// Upstream error bodies are quoted in errors up to this many runes.
	errBodyLimit = 200
)

// Client issues authenticated GET requests against one Canvas instance
// on behalf of one caller. It holds the bearer token for the lifetime
// of a single inbound request and is discarded afterwards; nothing is
// cached between calls.
type Client struct {
	apiRoot    string
	token      string
	requestID  string
	httpClient *http.Client
}

// New builds a client for the given base URL and token. The base URL
// may be a bare host, end in /api, or end in /api/v1; all three resolve
// to the same API root. requestID only tags log lines; pass "" when
// there is nothing to correlate.
func New(baseURL, token, requestID string) *Client {
	if requestID == "" {
		requestID = "-"
	}
	return &Client{
		apiRoot:    NormalizeBaseURL(baseURL),
		token:      token,
		requestID:  requestID,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// NormalizeBaseURL resolves the three accepted base URL shapes to the
// /api/v1 API root. Trailing slashes are stripped first.
func NormalizeBaseURL(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	lowered := strings.ToLower(base)
	switch {
	case strings.HasSuffix(lowered, "/api/v1"):
		return base
	case strings.HasSuffix(lowered, "/api"):
		return base + "/v1"
	default:
		return base + "/api/v1"
	}
}

// Courses lists the caller's active enrollments. Entries the API
// returns without an id or a name are skipped.
func (c *Client) Courses(ctx context.Context) ([]Course, error) {
	params := url.Values{}
	params.Set("enrollment_state", "active")

	var out []Course
	err := c.forEachPage(ctx, "/courses", params, func(body []byte) error {
		var page []Course
		if err := json.Unmarshal(body, &page); err != nil {
			return err
		}
		for _, course := range page {
			if course.ID == 0 || course.Name == "" {
				continue
			}
			out = append(out, course)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Assignments fetches every assignment of one course, including the
// caller's own submission so consumers can skip finished work.
func (c *Client) Assignments(ctx context.Context, courseID int64) ([]Assignment, error) {
	params := url.Values{}
	params.Add("include[]", "submission")

	var out []Assignment
	path := fmt.Sprintf("/courses/%d/assignments", courseID)
	err := c.forEachPage(ctx, path, params, func(body []byte) error {
		var page []Assignment
		if err := json.Unmarshal(body, &page); err != nil {
			return err
		}
		out = append(out, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Announcements queries the aggregate announcements endpoint for the
// given courses. The endpoint returns newest first; perPage bounds the
// result and only the first page is fetched. An empty course list
// yields no announcements without an upstream call.
func (c *Client) Announcements(ctx context.Context, courseIDs []int64, perPage int) ([]Announcement, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("per_page", strconv.Itoa(perPage))
	for _, id := range courseIDs {
		params.Add("context_codes[]", fmt.Sprintf("course_%d", id))
	}

	body, _, err := c.get(ctx, c.apiRoot+"/announcements?"+params.Encode())
	if err != nil {
		return nil, err
	}
	var out []Announcement
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &APIError{Method: http.MethodGet, Path: "/announcements", Err: fmt.Errorf("%w: %v", ErrParse, err)}
	}
	return out, nil
}

// forEachPage walks a paginated listing, following the Link header's
// rel="next" target until exhausted. decode is called once per page
// with the raw response body.
func (c *Client) forEachPage(ctx context.Context, path string, params url.Values, decode func([]byte) error) error {
	if params == nil {
		params = url.Values{}
	}
	if params.Get("per_page") == "" {
		params.Set("per_page", strconv.Itoa(defaultPerPage))
	}

	pageURL := c.apiRoot + path + "?" + params.Encode()
	for pageURL != "" {
		body, next, err := c.get(ctx, pageURL)
		if err != nil {
			return err
		}
		if err := decode(body); err != nil {
			return &APIError{Method: http.MethodGet, Path: urlPath(pageURL), Err: fmt.Errorf("%w: %v", ErrParse, err)}
		}
		pageURL = next
	}
	return nil
}

// get performs one authenticated GET and returns the body plus the
// rel="next" pagination target, if any.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", &APIError{Method: http.MethodGet, Path: urlPath(rawURL), Err: fmt.Errorf("%w: %v", ErrTransport, c.redact(err.Error()))}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		kind := ErrTransport
		if isTimeout(err) {
			kind = ErrTimeout
		}
		log.Printf("[canvas] GET %s failed elapsedMs=%d req_id=%s: %v", req.URL.Path, elapsed, c.requestID, c.redact(err.Error()))
		return nil, "", &APIError{Method: http.MethodGet, Path: req.URL.Path, Err: fmt.Errorf("%w: %v", kind, c.redact(err.Error()))}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &APIError{Status: resp.StatusCode, Method: http.MethodGet, Path: req.URL.Path, Err: fmt.Errorf("%w: %v", ErrTransport, c.redact(err.Error()))}
	}
	log.Printf("[canvas] GET %s status=%d elapsedMs=%d req_id=%s", req.URL.Path, resp.StatusCode, elapsed, c.requestID)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", c.statusError(req.URL.Path, resp.StatusCode, body)
	}
	return body, nextPageURL(resp.Header.Get("Link")), nil
}

func (c *Client) statusError(path string, status int, body []byte) *APIError {
	var kind error
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = ErrAuthentication
	case http.StatusNotFound:
		kind = ErrNotFound
	default:
		kind = ErrTransport
	}

	detail := truncateRunes(c.redact(strings.TrimSpace(string(body))), errBodyLimit)
	if detail == "" {
		return &APIError{Status: status, Method: http.MethodGet, Path: path, Err: kind}
	}
	return &APIError{Status: status, Method: http.MethodGet, Path: path, Err: fmt.Errorf("%w: %s", kind, detail)}
}

// redact strips the bearer token from text that may be echoed back by
// the upstream, so it can never reach an error message or log line.
func (c *Client) redact(s string) string {
	if c.token == "" {
		return s
	}
	return strings.ReplaceAll(s, c.token, "***")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// nextPageURL extracts the rel="next" target from an RFC 5988 Link
// header, or "" when there is no next page.
func nextPageURL(header string) string {
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		target := strings.TrimSpace(segs[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range segs[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return strings.Trim(target, "<>")
			}
		}
	}
	return ""
}

func urlPath(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		return u.Path
	}
	return raw
}
