package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// maxRetries bounds the retry loop for backend calls; with the 1s
// starting interval and doubling this gives up after roughly 15s.
const maxRetries = 4

// Client is the live HTTP implementation of Services, talking to the
// flathub backend and to flat-manager.
type Client struct {
	backendURL     string
	flatManagerURL string
	token          string
	jobID          int64
	buildID        int64
	httpClient     *http.Client
	retryInterval  time.Duration
	log            zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithLogger sets the client's logger.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient builds a live backend client. backendURL and flatManagerURL
// are base URLs without trailing slash; token is the flat-manager bearer
// token shared with the backend.
func NewClient(backendURL, flatManagerURL, token string, jobID, buildID int64, opts ...ClientOption) *Client {
	c := &Client{
		backendURL:     backendURL,
		flatManagerURL: flatManagerURL,
		token:          token,
		jobID:          jobID,
		buildID:        buildID,
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		retryInterval:  time.Second,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) StorefrontInfo(ctx context.Context, appID string) (*StorefrontInfo, error) {
	endpoint := fmt.Sprintf("%s/purchases/storefront-info?%s",
		c.backendURL, url.Values{"app_id": {appID}}.Encode())

	var info StorefrontInfo
	err := c.retry(ctx, func() error {
		resp, err := c.get(ctx, endpoint, false)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			// New apps have no storefront record yet.
			c.log.Info().Str("app", appID).Msg("no storefront info, using defaults")
			info = StorefrontInfo{}
			return nil
		}
		return decodeResponse(resp, &info)
	})
	if err != nil {
		return nil, fmt.Errorf("fetching storefront info for %s: %w", appID, err)
	}
	return &info, nil
}

func (c *Client) IsFreeSoftware(ctx context.Context, appID, license string) (bool, error) {
	query := url.Values{"app_id": {appID}}
	if license != "" {
		query.Set("license", license)
	}
	endpoint := fmt.Sprintf("%s/purchases/storefront-info/is-free-software?%s",
		c.backendURL, query.Encode())

	var foss bool
	err := c.retry(ctx, func() error {
		resp, err := c.get(ctx, endpoint, false)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return decodeResponse(resp, &foss)
	})
	if err != nil {
		return false, fmt.Errorf("fetching is-free-software for %s: %w", appID, err)
	}
	return foss, nil
}

func (c *Client) Build(ctx context.Context) (*BuildExtended, error) {
	endpoint := fmt.Sprintf("%s/api/v1/build/%d/extended", c.flatManagerURL, c.buildID)

	var build BuildExtended
	err := c.retry(ctx, func() error {
		resp, err := c.get(ctx, endpoint, true)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return decodeResponse(resp, &build)
	})
	if err != nil {
		return nil, fmt.Errorf("fetching build %d: %w", c.buildID, err)
	}
	return &build, nil
}

func (c *Client) SetCheckStatus(ctx context.Context, status CheckStatus, resultsJSON string) error {
	endpoint := fmt.Sprintf("%s/api/v1/job/%d/check/review", c.flatManagerURL, c.jobID)
	// flat-manager's check endpoint uses kebab-case field names.
	payload := map[string]any{
		"new-status":  status,
		"new-results": resultsJSON,
	}
	err := c.retry(ctx, func() error {
		resp, err := c.post(ctx, endpoint, payload)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return checkResponse(resp)
	})
	if err != nil {
		return fmt.Errorf("setting check status for job %d: %w", c.jobID, err)
	}
	return nil
}

func (c *Client) SubmitReviewRequest(ctx context.Context, req *ReviewRequest) (*ReviewRequestResponse, error) {
	endpoint := c.backendURL + "/moderation/submit_review_request"

	var response ReviewRequestResponse
	err := c.retry(ctx, func() error {
		resp, err := c.post(ctx, endpoint, req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return decodeResponse(resp, &response)
	})
	if err != nil {
		return nil, fmt.Errorf("submitting review request: %w", err)
	}
	return &response, nil
}

func (c *Client) PostBuildNotification(ctx context.Context, req *BuildNotificationRequest) error {
	endpoint := c.backendURL + "/emails/build-notification"

	err := c.retry(ctx, func() error {
		resp, err := c.post(ctx, endpoint, req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return checkResponse(resp)
	})
	if err != nil {
		return fmt.Errorf("posting build notification: %w", err)
	}
	return nil
}

// retry runs op with exponential backoff: 1s initial interval, doubling
// per attempt, bounded by maxRetries. Transport errors and non-2xx
// responses are both retried; the last error is surfaced when the
// budget is exhausted.
func (c *Client) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0

	attempt := 0
	return backoff.Retry(func() error {
		err := op()
		if err != nil {
			attempt++
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("backend call failed")
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx))
}

func (c *Client) get(ctx context.Context, endpoint string, authed bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: unexpected status %d: %s",
			resp.Request.Method, resp.Request.URL, resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

func decodeResponse(resp *http.Response, out any) error {
	if err := checkResponse(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", resp.Request.URL, err)
	}
	return nil
}
