package xrayclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"xui-vpn-shop/internal/config"
	"xui-vpn-shop/internal/constants"
	apperrors "xui-vpn-shop/internal/errors"
)

// Client talks to a 3x-ui panel (and its forks) over an authenticated session
type Client struct {
	httpClient   *resty.Client
	writeClient  *resty.Client // no transport retries
	serverConfig config.ServerConfig
	cookieCache  *cache.Cache
	locks        *inboundLocks
	authMu       sync.Mutex
	secretBase   string
	panelBase    string
	logger       *logrus.Logger
}

// NewClient creates a new panel API client
func NewClient(serverConfig config.ServerConfig, logger *logrus.Logger) *Client {
	secretBase, panelBase := splitBaseURL(serverConfig.APIURL)

	httpClient := newRestyClient(panelBase).
		SetRetryCount(constants.DefaultRetryCount).
		SetRetryWaitTime(constants.DefaultRetryWaitTime * time.Second).
		SetRetryMaxWaitTime(constants.DefaultRetryMaxWaitTime * time.Second)

	return &Client{
		httpClient:   httpClient,
		writeClient:  newRestyClient(panelBase),
		serverConfig: serverConfig,
		cookieCache:  cache.New(constants.CacheExpiration*time.Minute, constants.CacheCleanupInterval*time.Minute),
		locks:        newInboundLocks(),
		secretBase:   secretBase,
		panelBase:    panelBase,
		logger:       logger,
	}
}

func newRestyClient(panelBase string) *resty.Client {
	return resty.New().
		SetTimeout(constants.DefaultTimeout * time.Second).
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}).
		SetCookieJar(nil).
		SetHeaders(map[string]string{
			"Accept":           "application/json, text/plain, */*",
			"X-Requested-With": "XMLHttpRequest",
			"Referer":          panelBase + "/",
		})
}

// splitBaseURL accepts either ".../secret/panel" or ".../secret" and returns both forms
func splitBaseURL(apiURL string) (secretBase, panelBase string) {
	base := strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if strings.HasSuffix(base, "/panel") {
		return strings.TrimSuffix(base, "/panel"), base
	}
	return base, base + "/panel"
}

// buildURL resolves an API path relative to the secret base
func (c *Client) buildURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.secretBase + "/" + strings.TrimPrefix(path, "/")
}

// LinkHost returns the host written into connection URIs
func (c *Client) LinkHost() string {
	if c.serverConfig.LinkHost != "" {
		return c.serverConfig.LinkHost
	}
	if u, err := url.Parse(c.panelBase); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "localhost"
}

// do sends an authenticated read. A 401/403 triggers one re-login and one retry.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*resty.Response, error) {
	return c.request(ctx, c.httpClient, method, path, body)
}

// doWrite sends a request that changes panel state. Transport errors are not retried.
func (c *Client) doWrite(ctx context.Context, method, path string, body interface{}) (*resty.Response, error) {
	return c.request(ctx, c.writeClient, method, path, body)
}

func (c *Client) request(ctx context.Context, rc *resty.Client, method, path string, body interface{}) (*resty.Response, error) {
	session, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, rc, method, path, body, session.Cookies)
	if err != nil {
		return nil, fmt.Errorf("%s %s request failed: %w", method, path, err)
	}

	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		c.logger.Warnf("Panel rejected session on %s %s (status %d), logging in again", method, path, resp.StatusCode())
		session, err = c.Reauthenticate(ctx)
		if err != nil {
			return nil, err
		}
		resp, err = c.send(ctx, rc, method, path, body, session.Cookies)
		if err != nil {
			return nil, fmt.Errorf("%s %s request failed: %w", method, path, err)
		}
	}

	c.logger.Debugf("%s %s -> %d: %s", method, path, resp.StatusCode(), truncate(string(resp.Body()), 512))

	if resp.StatusCode() != http.StatusOK {
		return resp, &apperrors.XrayAPIError{
			Operation: method + " " + path,
			Status:    resp.StatusCode(),
			Message:   truncate(string(resp.Body()), 512),
		}
	}

	return resp, nil
}

func (c *Client) send(ctx context.Context, rc *resty.Client, method, path string, body interface{}, cookies []*http.Cookie) (*resty.Response, error) {
	req := rc.R().
		SetContext(ctx).
		SetCookies(cookies)

	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	return req.Execute(method, c.buildURL(path))
}

// isFatal reports errors that must stop variant fallbacks and polling
func isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var authErr *apperrors.AuthError
	return errors.As(err, &authErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
