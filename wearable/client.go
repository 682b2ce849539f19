// Package wearable fetches daily activity and sleep snapshots from a
// Fitbit-compatible device API. OAuth2 tokens are refreshed transparently
// and written back through a CredentialStore so a long-lived process keeps
// working across token rotations.
package wearable

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/oauth2"

	"github.com/m-mizutani/vitalog"
)

const DefaultBaseURL = "https://api.fitbit.com"

// ErrCredentialExpired reports that the stored OAuth2 credential can no
// longer be used or refreshed. It is distinct from a no-data day, which
// returns (nil, nil).
var ErrCredentialExpired = goerr.New("device credential expired, re-authorization required")

// Client talks to a Fitbit-compatible API. It implements the DeviceClient
// interface of the root package.
type Client struct {
	config      *oauth2.Config
	credentials CredentialStore
	baseURL     string
	httpClient  *http.Client
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Useful for tests and proxies.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets the HTTP client used for API requests. The OAuth2
// transport is layered on top of it.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithClock overrides the time source used to resolve "today".
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a Client over the given OAuth2 app config and credential
// store. The store must hold a previously authorized token.
func New(config *oauth2.Config, credentials CredentialStore, options ...Option) *Client {
	client := &Client{
		config:      config,
		credentials: credentials,
		baseURL:     DefaultBaseURL,
		httpClient:  http.DefaultClient,
		now:         time.Now,
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// DailyActivity returns the activity summary for the date (YYYY-MM-DD or
// "today"). A day without data returns (nil, nil).
func (c *Client) DailyActivity(ctx context.Context, date string) (*vitalog.Activity, error) {
	date = c.resolveDate(date)

	var payload activityResponse
	ok, err := c.get(ctx, fmt.Sprintf("/1/user/-/activities/date/%s.json", date), &payload)
	if err != nil {
		return nil, err
	}
	if !ok || payload.Summary == nil {
		return nil, nil
	}

	activity := &vitalog.Activity{
		Date:             date,
		Steps:            payload.Summary.Steps,
		Calories:         payload.Summary.CaloriesOut,
		ActiveMinutes:    payload.Summary.FairlyActiveMinutes + payload.Summary.VeryActiveMinutes,
		RestingHeartRate: payload.Summary.RestingHeartRate,
	}
	for _, d := range payload.Summary.Distances {
		if d.Activity == "total" {
			activity.DistanceKM = d.Distance
		}
	}
	for _, z := range payload.Summary.HeartRateZones {
		activity.HeartRateZones = append(activity.HeartRateZones, vitalog.HeartRateZone{
			Name:    z.Name,
			Minutes: z.Minutes,
			Min:     z.Min,
			Max:     z.Max,
		})
	}

	return activity, nil
}

// Sleep returns the sleep summary for the date (YYYY-MM-DD or "today"). A
// night without data returns (nil, nil).
func (c *Client) Sleep(ctx context.Context, date string) (*vitalog.Sleep, error) {
	date = c.resolveDate(date)

	var payload sleepResponse
	ok, err := c.get(ctx, fmt.Sprintf("/1.2/user/-/sleep/date/%s.json", date), &payload)
	if err != nil {
		return nil, err
	}
	if !ok || payload.Summary == nil || payload.Summary.TotalTimeInBed == 0 {
		return nil, nil
	}

	sleep := &vitalog.Sleep{
		Date:          date,
		DurationMin:   payload.Summary.TotalTimeInBed,
		MinutesAsleep: payload.Summary.TotalMinutesAsleep,
		Stages: vitalog.SleepStages{
			Deep:  payload.Summary.Stages.Deep,
			Light: payload.Summary.Stages.Light,
			REM:   payload.Summary.Stages.REM,
			Wake:  payload.Summary.Stages.Wake,
		},
	}
	for _, log := range payload.Sleep {
		if log.IsMainSleep {
			sleep.Efficiency = log.Efficiency
		}
	}

	return sleep, nil
}

func (c *Client) resolveDate(date string) string {
	if date == "" || date == "today" {
		return c.now().Format("2006-01-02")
	}
	return date
}

// get performs an authorized GET. It returns (false, nil) when the API
// reports no data for the requested resource.
func (c *Client) get(ctx context.Context, path string, out any) (bool, error) {
	token, err := c.credentials.Load(ctx)
	if err != nil {
		return false, goerr.Wrap(err, "failed to load device credential")
	}

	source := c.config.TokenSource(ctx, token)
	fresh, err := source.Token()
	if err != nil {
		return false, goerr.Wrap(ErrCredentialExpired, "token refresh failed",
			goerr.V("cause", err.Error()))
	}
	if fresh.AccessToken != token.AccessToken {
		if err := c.credentials.Save(ctx, fresh); err != nil {
			return false, goerr.Wrap(err, "failed to save refreshed credential")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, goerr.Wrap(err, "failed to build device API request")
	}
	fresh.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, goerr.Wrap(err, "device API request failed", goerr.V("path", path))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusNotFound:
		return false, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, goerr.Wrap(ErrCredentialExpired, "device API rejected credential",
			goerr.V("status", resp.StatusCode))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, goerr.New("device API returned unexpected status",
			goerr.V("status", resp.StatusCode),
			goerr.V("path", path),
			goerr.V("body", string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, goerr.Wrap(err, "failed to decode device API response",
			goerr.V("path", path))
	}
	return true, nil
}

type activityResponse struct {
	Summary *struct {
		Steps               int `json:"steps"`
		CaloriesOut         int `json:"caloriesOut"`
		FairlyActiveMinutes int `json:"fairlyActiveMinutes"`
		VeryActiveMinutes   int `json:"veryActiveMinutes"`
		RestingHeartRate    int `json:"restingHeartRate"`
		Distances           []struct {
			Activity string  `json:"activity"`
			Distance float64 `json:"distance"`
		} `json:"distances"`
		HeartRateZones []struct {
			Name    string `json:"name"`
			Minutes int    `json:"minutes"`
			Min     int    `json:"min"`
			Max     int    `json:"max"`
		} `json:"heartRateZones"`
	} `json:"summary"`
}

type sleepResponse struct {
	Summary *struct {
		TotalMinutesAsleep int `json:"totalMinutesAsleep"`
		TotalTimeInBed     int `json:"totalTimeInBed"`
		Stages             struct {
			Deep  int `json:"deep"`
			Light int `json:"light"`
			REM   int `json:"rem"`
			Wake  int `json:"wake"`
		} `json:"stages"`
	} `json:"summary"`
	Sleep []struct {
		Efficiency  int  `json:"efficiency"`
		IsMainSleep bool `json:"isMainSleep"`
	} `json:"sleep"`
}
