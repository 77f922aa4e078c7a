package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"ridemetrics/internal/instrument"
)

const BaseURL = "https://www.strava.com/api/v3"

// MaxPageSize is the largest page Strava serves
const MaxPageSize = 100

// streamKeys are the streams requested for each ride
const streamKeys = "time,watts,heartrate,velocity_smooth,distance"

// Client is a Strava API client
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimiter *RateLimiter
}

// NewClient creates a new Strava API client
func NewClient(tokenSource oauth2.TokenSource) *Client {
	return NewClientWithHTTP(oauth2.NewClient(context.Background(), tokenSource), BaseURL)
}

// NewClientWithHTTP creates a client that sends requests through hc to baseURL
func NewClientWithHTTP(hc *http.Client, baseURL string) *Client {
	return &Client{
		httpClient:  hc,
		baseURL:     baseURL,
		rateLimiter: NewRateLimiter(),
	}
}

// GetActivities fetches one page of activities started after 'after'
func (c *Client) GetActivities(ctx context.Context, after time.Time, page, perPage int) ([]Activity, error) {
	params := url.Values{}
	if !after.IsZero() {
		params.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))

	var activities []Activity
	if err := c.getJSON(ctx, "activities", "/athlete/activities", params, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// GetAllActivities fetches all activities after a given time
// It handles pagination automatically and respects rate limits
func (c *Client) GetAllActivities(ctx context.Context, after time.Time, onProgress func(fetched int)) ([]Activity, error) {
	var all []Activity

	for page := 1; ; page++ {
		activities, err := c.GetActivities(ctx, after, page, MaxPageSize)
		if err != nil {
			return all, fmt.Errorf("fetching page %d: %w", page, err)
		}
		if len(activities) == 0 {
			break
		}

		all = append(all, activities...)
		if onProgress != nil {
			onProgress(len(all))
		}

		if len(activities) < MaxPageSize {
			break
		}
	}

	return all, nil
}

// GetPowerStreams fetches the time, power, heart rate, speed and distance
// streams of an activity
func (c *Client) GetPowerStreams(ctx context.Context, activityID int64) (*Streams, error) {
	params := url.Values{}
	params.Set("keys", streamKeys)
	params.Set("key_by_type", "true")

	var streams Streams
	path := fmt.Sprintf("/activities/%d/streams", activityID)
	if err := c.getJSON(ctx, "streams", path, params, &streams); err != nil {
		return nil, err
	}
	return &streams, nil
}

// RateLimitStatus returns the current rate limit status
func (c *Client) RateLimitStatus() (shortRemaining, dailyRemaining int) {
	return c.rateLimiter.Status()
}

// getJSON waits for the rate limiter, performs a GET and decodes the body
// into dst. endpoint labels the request metric.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, params url.Values, dst any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		instrument.StravaRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return err
	}
	defer resp.Body.Close()

	instrument.StravaRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	c.rateLimiter.UpdateFromHeaders(resp.Header)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding %s: %w", endpoint, err)
	}
	return nil
}
