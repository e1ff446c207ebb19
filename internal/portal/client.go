package portal

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dsgvo-downloader/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL public portal host
	DefaultBaseURL = "https://www.dsgvo-portal.de"

	listPath      = "/sicherheitsvorfall-datenbank/"
	listReferer   = "/sicherheitsvorfall-datenbank/"
	detailPath    = "/sicherheitsvorfall-datenbank/incidentDetails.php"
	detailReferer = "/sicherheitsvorfaelle/"

	maxBodyInError = 512
)

// Options client tuning
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the incident database of the portal. It keeps no state between calls
// and never retries; pacing and retry policy belong to the caller.
type Client struct {
	httpClient *resty.Client
	baseURL    string
	logger     *zap.Logger
}

// NewClient creates a portal client.
func NewClient(opts Options, logger *zap.Logger) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}

	return &Client{
		httpClient: client,
		baseURL:    baseURL,
		logger:     logger,
	}
}

// FetchIncidentList runs the list query. The trimmed raw body is returned whenever one was
// received, including alongside a models.ErrParse, so it can be archived verbatim.
func (c *Client) FetchIncidentList(ctx context.Context) ([]models.IncidentSummary, []byte, error) {
	c.logger.Info("Fetching incidents from portal")

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Referer", c.baseURL+listReferer).
		SetQueryParam("cmd", "getIncidents").
		Get(listPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to fetch incidents: %v", models.ErrTransport, err)
	}

	c.logger.Debug("Got list response",
		zap.Int("status_code", resp.StatusCode()),
		zap.Int("body_bytes", len(resp.Body())),
	)

	if !resp.IsSuccess() {
		return nil, nil, statusError(resp, "incident list")
	}

	raw := bytes.TrimSpace(resp.Body())
	if raw == nil {
		raw = []byte{}
	}
	summaries, err := ParseIncidentList(raw)
	if err != nil {
		return nil, raw, err
	}

	c.logger.Debug("Parsed incident list", zap.Int("incident_count", len(summaries)))
	return summaries, raw, nil
}

// FetchIncidentDetail runs the detail query for one incident.
// A 404/410 status or an empty/null body is reported as models.ErrNotFound.
func (c *Client) FetchIncidentDetail(ctx context.Context, incidentID int32) (*models.IncidentDetail, error) {
	c.logger.Debug("Fetching incident detail from portal", zap.Int32("incident_id", incidentID))

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Referer", c.baseURL+detailReferer).
		SetQueryParam("incident", strconv.FormatInt(int64(incidentID), 10)).
		Get(detailPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch details for incident %d: %v", models.ErrTransport, incidentID, err)
	}

	c.logger.Debug("Got detail response",
		zap.Int32("incident_id", incidentID),
		zap.Int("status_code", resp.StatusCode()),
	)

	switch resp.StatusCode() {
	case http.StatusNotFound, http.StatusGone:
		return nil, fmt.Errorf("%w: incident %d (HTTP %d)", models.ErrNotFound, incidentID, resp.StatusCode())
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp, fmt.Sprintf("incident %d", incidentID))
	}

	body := bytes.TrimSpace(resp.Body())
	if isEmptyPayload(body) {
		return nil, fmt.Errorf("%w: incident %d (empty detail payload)", models.ErrNotFound, incidentID)
	}

	detail, err := ParseIncidentDetail(body)
	if err != nil {
		return nil, fmt.Errorf("incident %d: %w", incidentID, err)
	}
	return detail, nil
}

func statusError(resp *resty.Response, what string) error {
	body := string(resp.Body())
	if len(body) > maxBodyInError {
		body = body[:maxBodyInError]
	}
	return fmt.Errorf("%w: unexpected status code %d for %s: %s", models.ErrTransport, resp.StatusCode(), what, body)
}

func isEmptyPayload(body []byte) bool {
	switch string(body) {
	case "", "null", "false":
		return true
	}
	return false
}
