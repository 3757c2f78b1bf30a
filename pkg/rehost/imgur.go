// Package rehost re-uploads platform attachments to a public image host so
// the links survive platform CDN expiry when embedded in game chat.
package rehost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Uploader re-hosts one attachment URL. Callers fall back to the original
// URL on error.
type Uploader interface {
	Upload(ctx context.Context, sourceURL string) (string, error)
}

const imgurUploadURL = "https://api.imgur.com/3/upload"

// ErrRateLimited is returned when the client's upload quota is spent; no
// request is made until the tracked window resets.
var ErrRateLimited = errors.New("imgur rate limit exhausted")

// ImgurClient uploads by URL through the anonymous imgur API. It tracks the
// credit headers of every response and refuses to fire requests while a
// quota is exhausted, so a burst of attachments degrades to original URLs
// instead of a ban.
type ImgurClient struct {
	clientID  string
	uploadURL string
	http      *http.Client

	mu            sync.Mutex
	userRemaining int
	userReset     time.Time
	postRemaining int
	postReset     time.Time
}

func NewImgurClient(clientID string) *ImgurClient {
	return &ImgurClient{
		clientID:  clientID,
		uploadURL: imgurUploadURL,
		http:      &http.Client{Timeout: 15 * time.Second},
		// Remaining counts are unknown until the first response.
		userRemaining: -1,
		postRemaining: -1,
	}
}

func (c *ImgurClient) Upload(ctx context.Context, sourceURL string) (string, error) {
	if !c.allow(time.Now()) {
		return "", ErrRateLimited
	}

	form := url.Values{}
	form.Set("image", sourceURL)
	form.Set("type", "url")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Client-ID "+c.clientID)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("imgur upload: %w", err)
	}
	defer resp.Body.Close()

	c.trackLimits(resp.Header, time.Now())

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Link  string `json:"link"`
			Error any    `json:"error"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("imgur upload: decode response: %w", err)
	}
	if !body.Success || body.Data.Link == "" {
		return "", fmt.Errorf("imgur upload: rejected (status %d, error %v)", resp.StatusCode, body.Data.Error)
	}
	return body.Data.Link, nil
}

// allow reports whether a request may be fired at now. An exhausted quota
// blocks until its reset passes; unknown quotas (-1) never block.
func (c *ImgurClient) allow(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userRemaining == 0 && now.Before(c.userReset) {
		return false
	}
	if c.postRemaining == 0 && now.Before(c.postReset) {
		return false
	}
	return true
}

// trackLimits records the credit state from a response. The user reset is
// an epoch timestamp; the post reset is seconds from now.
func (c *ImgurClient) trackLimits(h http.Header, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := headerInt(h, "X-RateLimit-UserRemaining"); ok {
		c.userRemaining = n
	}
	if n, ok := headerInt(h, "X-RateLimit-UserReset"); ok {
		c.userReset = time.Unix(int64(n), 0)
	}
	if n, ok := headerInt(h, "X-Post-Rate-Limit-Remaining"); ok {
		c.postRemaining = n
	}
	if n, ok := headerInt(h, "X-Post-Rate-Limit-Reset"); ok {
		c.postReset = now.Add(time.Duration(n) * time.Second)
	}
}

func headerInt(h http.Header, key string) (int, bool) {
	v := h.Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Noop passes URLs through unchanged; used when no client id is configured.
type Noop struct{}

func (Noop) Upload(_ context.Context, sourceURL string) (string, error) {
	return sourceURL, nil
}
