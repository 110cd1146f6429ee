package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/parcelops/popsync/pkg/log"
	"github.com/parcelops/popsync/pkg/metrics"
	"github.com/parcelops/popsync/pkg/storage"
	"github.com/parcelops/popsync/pkg/types"
)

// Client performs authenticated HTTP calls against the logistics backend.
// The bearer token is read from durable storage per request, so a login in
// one component is immediately visible to every other holder of the client.
type Client struct {
	baseURL    string
	healthPath string
	http       *http.Client
	store      storage.Store

	// onSessionExpired is invoked after a 401 clears the stored session,
	// letting the UI layer redirect to login.
	onSessionExpired func()
}

// NewClient creates a client for the given backend base URL.
func NewClient(baseURL string, store storage.Store, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		healthPath: "/healthz",
		store:      store,
		http:       &http.Client{Timeout: timeout},
	}
}

// SetHealthPath overrides the health endpoint path probed by Health.
func (c *Client) SetHealthPath(path string) {
	if path != "" {
		c.healthPath = path
	}
}

// OnSessionExpired registers a callback invoked when a 401 invalidates the
// stored session.
func (c *Client) OnSessionExpired(fn func()) {
	c.onSessionExpired = fn
}

// Login authenticates the driver and stores the issued tokens.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}

	var session types.Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &session); err != nil {
		return err
	}
	if err := c.store.SaveSession(session); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Logout discards the stored session.
func (c *Client) Logout() error {
	return c.store.ClearSession()
}

// ListJobs fetches the driver's jobs, optionally filtered by status.
func (c *Client) ListJobs(ctx context.Context, status types.JobStatus) ([]types.Job, error) {
	path := "/api/jobs"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}

	var jobs []types.Job
	if err := c.do(ctx, http.MethodGet, path, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetJob fetches a single job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*types.Job, error) {
	var job types.Job
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJobStatus patches a job's status.
func (c *Client) UpdateJobStatus(ctx context.Context, jobID string, update types.StatusUpdate) (*types.Job, error) {
	var job types.Job
	path := "/api/jobs/" + url.PathEscape(jobID)
	if err := c.do(ctx, http.MethodPatch, path, update, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// SubmitPOD posts proof of delivery for a job.
func (c *Client) SubmitPOD(ctx context.Context, jobID string, pod types.PODSubmit) (*types.POD, error) {
	var created types.POD
	path := "/api/jobs/" + url.PathEscape(jobID) + "/pod"
	if err := c.do(ctx, http.MethodPost, path, pod, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Health probes the backend health endpoint. The request carries no
// credentials and skips the 401 session handling, so a misconfigured
// endpoint cannot log the driver out. Any response up to 399 counts as
// healthy.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.healthPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "transport_error").Inc()
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 200 && resp.StatusCode <= 399 {
		return nil
	}
	return normalizeError(resp)
}

// do performs one HTTP call with bearer injection and uniform error
// normalization. out may be nil when the caller discards the body.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if session, err := c.store.LoadSession(); err == nil {
		req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	} else if !errors.Is(err, storage.ErrNoSession) {
		return fmt.Errorf("failed to read session: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(method, "transport_error").Inc()
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	metrics.APIRequestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusUnauthorized {
		return c.invalidateSession(resp)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return normalizeError(resp)
	}

	if resp.StatusCode == http.StatusNoContent || out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// invalidateSession handles a 401: clear stored credentials, notify the UI
// layer once, and return the distinguished unauthorized error.
func (c *Client) invalidateSession(resp *http.Response) error {
	if err := c.store.ClearSession(); err != nil {
		logger := log.WithComponent("apiclient")
		logger.Error().Err(err).Msg("Failed to clear session after 401")
	}
	if c.onSessionExpired != nil {
		c.onSessionExpired()
	}
	msg := extractMessage(resp)
	if msg == "" {
		msg = "session expired"
	}
	return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
}

func normalizeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var envelope errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
		switch {
		case envelope.Error != nil:
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		case envelope.Detail != "":
			apiErr.Message = envelope.Detail
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func extractMessage(resp *http.Response) string {
	var envelope errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return ""
	}
	if envelope.Error != nil {
		return envelope.Error.Message
	}
	return envelope.Detail
}
