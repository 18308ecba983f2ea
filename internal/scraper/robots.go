// internal/scraper/robots.go
package scraper

import (
	"context"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/valpere/extractstudio/internal/errors"
	"github.com/valpere/extractstudio/internal/utils"
)

// RobotsChecker caches robots.txt per host.
type RobotsChecker struct {
	client *HTTPClient
	logger utils.Logger

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsChecker creates a checker that fetches robots.txt with client.
func NewRobotsChecker(client *HTTPClient, logger utils.Logger) *RobotsChecker {
	return &RobotsChecker{
		client: client,
		logger: utils.OrNop(logger),
		cache:  make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether userAgent may fetch rawURL. Hosts whose robots.txt
// cannot be retrieved are treated as allowing everything.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL, userAgent string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}

	data := r.robotsFor(ctx, u)
	if data == nil {
		return true
	}
	return data.TestAgent(u.RequestURI(), userAgent)
}

func (r *RobotsChecker) robotsFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host

	r.mu.Lock()
	data, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return data
	}

	robotsURL := key + "/robots.txt"
	resp, err := r.client.Get(ctx, robotsURL, "")
	switch {
	case err == nil:
		data, err = robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
		if err != nil {
			r.logger.Debugf("unparsable robots.txt at %s: %v", robotsURL, err)
			data = nil
		}
	default:
		var fetchErr *errors.Error
		if errors.As(err, &fetchErr) && fetchErr.StatusCode != 0 {
			// 4xx allows everything, 5xx disallows everything.
			data, _ = robotstxt.FromStatusAndBytes(fetchErr.StatusCode, nil)
		} else {
			r.logger.Debugf("robots.txt unavailable at %s: %v", robotsURL, err)
		}
	}

	if ctx.Err() != nil {
		return data
	}
	r.mu.Lock()
	r.cache[key] = data
	r.mu.Unlock()
	return data
}
