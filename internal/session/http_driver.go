package session

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mhalvorsen/sockpool/internal/logging"
)

// bannerPattern extracts the msg attribute from the platform's banner element.
var bannerPattern = regexp.MustCompile(`<faceplate-banner[^>]*\bmsg="([^"]*)"`)

// HTTPDriver is a minimal Driver over a cookie-carrying HTTP client. It
// submits the login form and inspects the landing page; anything richer
// (JS-driven flows, DOM interaction) belongs in an external driver.
type HTTPDriver struct {
	mu       sync.Mutex
	client   *http.Client
	loginURL string
	logger   logging.Logger

	lastURL  string
	lastBody string
}

// NewHTTPDriver creates a driver that logs in via an HTML form POST.
func NewHTTPDriver(loginURL string, timeout time.Duration) (*HTTPDriver, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	d := &HTTPDriver{
		client:   &http.Client{Jar: jar, Timeout: timeout},
		loginURL: loginURL,
		logger:   logging.Get().Named("http_driver"),
		lastURL:  loginURL,
	}
	return d, nil
}

// SubmitCredentials posts the login form and records the landing page.
func (d *HTTPDriver) SubmitCredentials(accountID, credential string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.logger.Debug("Submitting credentials", "account_id", accountID, "credential", logging.Redact(credential))

	form := url.Values{}
	form.Set("username", accountID)
	form.Set("password", credential)

	resp, err := d.client.PostForm(d.loginURL, form)
	if err != nil {
		return fmt.Errorf("failed to submit login form: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read login response: %w", err)
	}

	d.lastURL = resp.Request.URL.String()
	d.lastBody = string(body)
	return nil
}

// OnLoginSurface reports whether the last response still points at the login surface.
func (d *HTTPDriver) OnLoginSurface() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.Contains(d.lastURL, "login")
}

// BanSignal returns the banner message from the last landing page, if any.
func (d *HTTPDriver) BanSignal() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m := bannerPattern.FindStringSubmatch(d.lastBody)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ClearCookies drops all session cookies and page state.
func (d *HTTPDriver) ClearCookies() {
	d.mu.Lock()
	defer d.mu.Unlock()

	jar, err := cookiejar.New(nil)
	if err != nil {
		d.logger.Warn("Failed to reset cookie jar", "error", err)
		return
	}
	d.client.Jar = jar
	d.lastURL = d.loginURL
	d.lastBody = ""
}

// Perform posts the action content to the target. Thin wrapper; the content
// is treated as an opaque string.
func (d *HTTPDriver) Perform(actionType, targetID, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	form := url.Values{}
	form.Set("action", actionType)
	form.Set("text", content)

	resp, err := d.client.PostForm(targetID, form)
	if err != nil {
		return fmt.Errorf("failed to perform %s on %s: %w", actionType, targetID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s on %s rejected with status %d", actionType, targetID, resp.StatusCode)
	}
	return nil
}
