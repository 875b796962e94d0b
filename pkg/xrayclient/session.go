package xrayclient

import (
	"context"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	apperrors "xui-vpn-shop/internal/errors"
)

const sessionCacheKey = "session"

// Session is the cookie set obtained from the panel login
type Session struct {
	Cookies    []*http.Cookie
	SecretBase string
	PanelBase  string
	CreatedAt  time.Time
}

// Authenticate returns the cached session or logs in to the panel
func (c *Client) Authenticate(ctx context.Context) (*Session, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	if cached, found := c.cookieCache.Get(sessionCacheKey); found {
		return cached.(*Session), nil
	}

	return c.login(ctx)
}

// Reauthenticate drops the current session and logs in again
func (c *Client) Reauthenticate(ctx context.Context) (*Session, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	c.cookieCache.Delete(sessionCacheKey)
	return c.login(ctx)
}

// login posts the form credentials; success means the panel set at least one cookie
func (c *Client) login(ctx context.Context) (*Session, error) {
	loginURL := c.secretBase + "/login"

	c.logger.Infof("Logging in to X-ray panel at %s", loginURL)
	c.logger.Debugf("Using username: %s", c.serverConfig.User)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username": c.serverConfig.User,
			"password": c.serverConfig.Password,
		}).
		Post(loginURL)

	if err != nil {
		return nil, &apperrors.AuthError{URL: loginURL, Message: err.Error()}
	}

	if resp.IsError() {
		c.logger.Errorf("Login failed - URL: %s, Status: %d, Response: %s",
			loginURL, resp.StatusCode(), truncate(string(resp.Body()), 512))
		return nil, &apperrors.AuthError{URL: loginURL, Status: resp.StatusCode(), Message: truncate(string(resp.Body()), 512)}
	}

	payload := Normalize(resp.Body())
	if ok, present := payload["success"].(bool); present && !ok {
		return nil, &apperrors.AuthError{URL: loginURL, Status: resp.StatusCode(), Message: stringField(payload, "msg")}
	}

	cookies := responseCookies(resp.RawResponse)
	if len(cookies) == 0 {
		return nil, &apperrors.AuthError{URL: loginURL, Status: resp.StatusCode(), Message: "no session cookie received from server"}
	}

	session := &Session{
		Cookies:    cookies,
		SecretBase: c.secretBase,
		PanelBase:  c.panelBase,
		CreatedAt:  time.Now(),
	}
	c.cookieCache.Set(sessionCacheKey, session, cache.DefaultExpiration)
	c.logger.Info("Successfully logged in to X-ray panel")

	return session, nil
}

// responseCookies collects cookies from the final response and every redirect before it
func responseCookies(resp *http.Response) []*http.Cookie {
	var cookies []*http.Cookie
	seen := make(map[string]bool)
	for r := resp; r != nil; {
		for _, cookie := range r.Cookies() {
			if seen[cookie.Name] || cookie.Value == "" {
				continue
			}
			seen[cookie.Name] = true
			cookies = append(cookies, cookie)
		}
		if r.Request == nil {
			break
		}
		r = r.Request.Response
	}
	return cookies
}
