// Package browser manages headless browser sessions behind a bounded pool.
package browser

import (
	"context"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Cookie is one browser cookie captured from the current page.
type Cookie struct {
	Name  string
	Value string
}

// Session is one live browser with a single page attached. All page
// operations stamp the session's activity time so the reaper can tell
// working sessions from abandoned ones.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	lastActivity time.Time

	page      *rod.Page
	closeFn   func() error
	closeOnce sync.Once
}

// Touch stamps the session as active now.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// LastActivity returns the time of the most recent page operation.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Close shuts the browser down. Safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.closeFn != nil {
			err = s.closeFn()
		}
	})
	return err
}

// Navigate loads the given URL and waits for the page load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.Touch()
	page := s.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

// FillField waits for the element matching the selector and types the value
// into it.
func (s *Session) FillField(ctx context.Context, selector, value string) error {
	s.Touch()
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	return el.Input(value)
}

// ClickElement waits for the element matching the selector and clicks it.
func (s *Session) ClickElement(ctx context.Context, selector string) error {
	s.Touch()
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// CurrentURL returns the page's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	s.Touch()
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Cookies returns the cookies visible to the current page.
func (s *Session) Cookies(ctx context.Context) ([]Cookie, error) {
	s.Touch()
	raw, err := s.page.Context(ctx).Cookies(nil)
	if err != nil {
		return nil, err
	}

	cookies := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies, nil
}

// UserAgent returns the browser's user agent string.
func (s *Session) UserAgent(ctx context.Context) (string, error) {
	s.Touch()
	obj, err := s.page.Context(ctx).Eval(`() => navigator.userAgent`)
	if err != nil {
		return "", err
	}
	return obj.Value.Str(), nil
}
