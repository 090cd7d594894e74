package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"consensusbot/src/model"

	"github.com/go-resty/resty/v2"
)

const (
	defaultRetryAttempts   = 3
	defaultRetryBaseDelay  = 250 * time.Millisecond
	defaultRetryMaxBackoff = 2 * time.Second
)

// voteResponse is the body returned by GET {base}/votes?source=..&symbol=..
type voteResponse struct {
	Vote       string  `json:"vote"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
	Error      string  `json:"error,omitempty"`
}

// HTTPSource asks a remote vote service for each source's opinion.
type HTTPSource struct {
	http *resty.Client
}

func NewHTTPSource(baseURL string, timeout time.Duration) (*HTTPSource, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("signal service base url is empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(defaultRetryAttempts - 1).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &HTTPSource{http: httpClient}, nil
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if r == nil {
		return false
	}

	code := r.StatusCode()
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func (s *HTTPSource) Poll(ctx context.Context, sourceID, symbol string) (model.Vote, error) {
	resp, err := s.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParam("source", sourceID).
		SetQueryParam("symbol", symbol).
		Get("/votes")
	if err != nil {
		return model.Vote{}, fmt.Errorf("poll %s for %s: %w", sourceID, symbol, err)
	}

	raw := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		return model.Vote{}, fmt.Errorf("poll %s for %s: HTTP %d: %s", sourceID, symbol, resp.StatusCode(), string(raw))
	}

	var body voteResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return model.Vote{}, fmt.Errorf("json unmarshal failed: %w. raw=%s", err, string(raw))
	}
	if body.Error != "" {
		return model.Vote{}, fmt.Errorf("signal service error for %s: %s", sourceID, body.Error)
	}

	return model.Vote{
		Source:     sourceID,
		Action:     model.Action(strings.ToLower(strings.TrimSpace(body.Vote))),
		Confidence: body.Confidence,
		Rationale:  body.Rationale,
	}, nil
}
