// Package archive talks to the remote patient archive: session login,
// patient listing and creation, and per-file uploads with retry.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"dentarch/internal/config"
	"dentarch/internal/logging"
	"dentarch/internal/services"
)

const defaultRequestTimeout = 30 * time.Second

// Client wraps the archive's session-authenticated HTTP API.
type Client struct {
	baseURL        string
	username       string
	password       string
	projectSlug    string
	uploadTimeout  time.Duration
	requestTimeout time.Duration
	retryAttempts  int

	httpClient *http.Client
	csrfToken  string
	logger     *slog.Logger
}

// Option customizes the archive client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured base URL (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// NewClient constructs an archive client from configuration. The session
// cookie jar is created here; Login must be called before any other
// operation.
func NewClient(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "new", "create cookie jar", err)
	}

	requestTimeout := time.Duration(cfg.Archive.RequestTimeout) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	// Timeouts are enforced per request through contexts; a client-level
	// timeout would cap long file uploads at the short request budget.
	client := &Client{
		baseURL:        strings.TrimRight(strings.TrimSpace(cfg.Archive.BaseURL), "/"),
		username:       cfg.Archive.Username,
		password:       cfg.Archive.Password,
		projectSlug:    cfg.Archive.ProjectSlug,
		uploadTimeout:  time.Duration(cfg.Archive.UploadTimeout) * time.Second,
		requestTimeout: requestTimeout,
		retryAttempts:  cfg.Archive.RetryAttempts,
		httpClient:     &http.Client{Jar: jar},
		logger:         logging.NewComponentLogger(logger, "archive"),
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "new", "archive.base_url not configured", nil)
	}
	return client, nil
}

// Login establishes the session: fetch the login page for the CSRF cookie,
// then post the credentials with the token echoed in the header.
func (c *Client) Login(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	loginURL, err := url.JoinPath(c.baseURL, "/login/")
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "archive", "login", "build url", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return services.Wrap(services.ErrTransient, "archive", "login", "build request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "archive", "login", "fetch login page", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	c.csrfToken = c.cookieValue(loginURL, "csrftoken")
	if c.csrfToken == "" {
		return services.Wrap(services.ErrExternalTool, "archive", "login", "no csrf cookie issued", nil)
	}

	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return services.Wrap(services.ErrTransient, "archive", "login", "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-CSRFToken", c.csrfToken)
	req.Header.Set("Referer", loginURL)

	resp, err = c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "archive", "login", "post credentials", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return services.Wrap(services.ErrValidation, "archive", "login", "credentials rejected", nil)
	}
	if resp.StatusCode >= 400 {
		return services.Wrap(services.ErrTransient, "archive", "login", fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}
	// Django-style backends rotate the token on login.
	if rotated := c.cookieValue(loginURL, "csrftoken"); rotated != "" {
		c.csrfToken = rotated
	}
	c.logger.Info("archive session established", logging.Args(logging.String("base_url", c.baseURL))...)
	return nil
}

func (c *Client) cookieValue(rawURL, name string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || c.httpClient.Jar == nil {
		return ""
	}
	for _, cookie := range c.httpClient.Jar.Cookies(parsed) {
		if cookie.Name == name {
			return cookie.Value
		}
	}
	return ""
}

// RemotePatient is one patient record as the archive reports it.
type RemotePatient struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ListPatients returns the project's patients.
func (c *Client) ListPatients(ctx context.Context) ([]RemotePatient, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	endpoint, err := url.JoinPath(c.baseURL, "/api/projects/", c.projectSlug, "/patients/")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "list-patients", "build url", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "archive", "list-patients", "build request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "archive", "list-patients", "request failed", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "list-patients"); err != nil {
		return nil, err
	}

	var patients []RemotePatient
	if err := json.NewDecoder(resp.Body).Decode(&patients); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "archive", "list-patients", "decode response", err)
	}
	return patients, nil
}

// FindPatient returns the remote record matching a display name, or nil.
func (c *Client) FindPatient(ctx context.Context, displayName string) (*RemotePatient, error) {
	patients, err := c.ListPatients(ctx)
	if err != nil {
		return nil, err
	}
	for i := range patients {
		if strings.EqualFold(patients[i].Name, displayName) {
			return &patients[i], nil
		}
	}
	return nil, nil
}

// CreatePatient registers a new patient under the project.
func (c *Client) CreatePatient(ctx context.Context, displayName string) (*RemotePatient, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	endpoint, err := url.JoinPath(c.baseURL, "/api/projects/", c.projectSlug, "/patients/")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "archive", "create-patient", "build url", err)
	}
	payload, err := json.Marshal(map[string]string{"name": displayName})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "archive", "create-patient", "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "archive", "create-patient", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRFToken", c.csrfToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "archive", "create-patient", "request failed", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, "create-patient"); err != nil {
		return nil, err
	}

	created := &RemotePatient{}
	if err := json.NewDecoder(resp.Body).Decode(created); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "archive", "create-patient", "decode response", err)
	}
	c.logger.Info("remote patient created",
		logging.Args(logging.String("name", displayName), logging.Int("id", created.ID))...)
	return created, nil
}

func checkStatus(resp *http.Response, operation string) error {
	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrValidation, "archive", operation, "session rejected, login again", nil)
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "archive", operation, "resource not found", nil)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return services.Wrap(services.ErrTransient, "archive", operation,
			fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
}
