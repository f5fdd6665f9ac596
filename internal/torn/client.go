// Package torn provides access to the Torn API and public pages: the
// requester's attack history, target profiles, and bazaar listings.
package torn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/homiewrecker/hawkeye/internal/models"
)

// ErrMissingKey is returned when an API call requires a key and none is
// configured. Fatal for history refresh; surfaced to the user.
var ErrMissingKey = errors.New("torn: missing API key")

// Client provides access to the Torn API and public pages.
type Client struct {
	apiURL         string
	pageURL        string
	apiKey         string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// ClientConfig holds optional client tuning parameters.
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
}

// NewClient creates a new Torn client.
func NewClient(apiURL, pageURL, apiKey string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	return &Client{
		apiURL:         apiURL,
		pageURL:        pageURL,
		apiKey:         apiKey,
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

// HasKey reports whether an API key is configured.
func (c *Client) HasKey() bool {
	return c.apiKey != ""
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

type attackPayload struct {
	TimestampStarted int64  `json:"timestamp_started"`
	TimestampEnded   int64  `json:"timestamp_ended"`
	DefenderID       int64  `json:"defender_id"`
	Result           string `json:"result"`
	Money            int64  `json:"money"`
}

type attacksResponse struct {
	Attacks map[string]attackPayload `json:"attacks"`
	Error   *apiError                `json:"error"`
}

// FetchAttacks retrieves the requester's attack log for the window [from, to]
// and maps it to attack records, keeping only successful mugs that yielded
// money. Ordering is unspecified; callers sort.
func (c *Client) FetchAttacks(ctx context.Context, from, to time.Time) ([]models.AttackRecord, error) {
	if !c.HasKey() {
		return nil, ErrMissingKey
	}

	u, err := url.Parse(c.apiURL + "/user/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("selections", "attacks")
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	resp, err := c.doRequest(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attacks: %w", err)
	}
	defer resp.Body.Close()

	var parsed attacksResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode attacks: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("torn API error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}

	records := make([]models.AttackRecord, 0, len(parsed.Attacks))
	for _, a := range parsed.Attacks {
		if a.Result != "Mugged" || a.Money <= 0 || a.DefenderID == 0 {
			continue
		}
		ts := a.TimestampEnded
		if ts == 0 {
			ts = a.TimestampStarted
		}
		records = append(records, models.AttackRecord{
			Timestamp: time.Unix(ts, 0).UTC(),
			TargetID:  strconv.FormatInt(a.DefenderID, 10),
			Money:     a.Money,
		})
	}
	return records, nil
}

type profileResponse struct {
	Level      int `json:"level"`
	Donator    int `json:"donator"`
	LastAction struct {
		Status   string `json:"status"`
		Relative string `json:"relative"`
	} `json:"last_action"`
	Status struct {
		State       string `json:"state"`
		Description string `json:"description"`
	} `json:"status"`
	Error *apiError `json:"error"`
}

// FetchProfile retrieves a target's public profile signals.
func (c *Client) FetchProfile(ctx context.Context, targetID string) (models.ProfileStatus, error) {
	if !c.HasKey() {
		return models.NeutralProfile(), ErrMissingKey
	}

	u, err := url.Parse(c.apiURL + "/user/" + url.PathEscape(targetID))
	if err != nil {
		return models.NeutralProfile(), fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("selections", "profile")
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	resp, err := c.doRequest(ctx, u.String())
	if err != nil {
		return models.NeutralProfile(), fmt.Errorf("failed to fetch profile: %w", err)
	}
	defer resp.Body.Close()

	var parsed profileResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return models.NeutralProfile(), fmt.Errorf("failed to decode profile: %w", err)
	}
	if parsed.Error != nil {
		return models.NeutralProfile(), fmt.Errorf("torn API error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}

	state := strings.ToLower(parsed.Status.State)
	lastAction := strings.ToLower(parsed.LastAction.Relative)
	return models.ProfileStatus{
		LastActionMinutes: ParseLastAction(parsed.LastAction.Relative),
		Online:            strings.EqualFold(parsed.LastAction.Status, "Online") || strings.Contains(lastAction, "just now"),
		Hospitalized:      strings.Contains(state, "hospital"),
		Traveling:         strings.Contains(state, "travel") || strings.Contains(state, "abroad"),
		Level:             parsed.Level,
		Donator:           parsed.Donator != 0,
	}, nil
}

var (
	lastActionRe = regexp.MustCompile(`(\d+)\s*(minute|hour|day)`)
	priceRe      = regexp.MustCompile(`\$\s*([\d,]+)`)
	noBazaarRe   = regexp.MustCompile(`(?i)doesn[’']?t have a bazaar|no bazaar`)
)

// lastActionCap is the recency ceiling in minutes: six hours of inactivity
// and "unknown" carry the same (lack of) signal.
const lastActionCap = 360

// ParseLastAction converts a relative last-action string ("just now",
// "17 minutes ago", "3 hours ago", "2 days ago") to minutes, capped at 360.
// Unparseable input degrades to the cap rather than erroring.
func ParseLastAction(text string) int {
	s := strings.ToLower(text)
	if strings.Contains(s, "just now") {
		return 0
	}
	m := lastActionRe.FindStringSubmatch(s)
	if m == nil {
		return lastActionCap
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return lastActionCap
	}
	switch m[2] {
	case "minute":
		return min(n, lastActionCap)
	case "hour":
		return min(n*60, lastActionCap)
	default: // day
		return lastActionCap
	}
}

// FetchBazaar scrapes a target's public bazaar page and returns the raw
// listing prices plus whether the target has a bazaar at all.
func (c *Client) FetchBazaar(ctx context.Context, targetID string) ([]int64, bool, error) {
	u, err := url.Parse(c.pageURL + "/bazaar.php")
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse URL: %w", err)
	}
	q := u.Query()
	q.Set("userID", targetID)
	u.RawQuery = q.Encode()

	resp, err := c.doRequest(ctx, u.String())
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch bazaar: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read bazaar page: %w", err)
	}

	html := string(body)
	if noBazaarRe.MatchString(html) {
		return nil, false, nil
	}

	var prices []int64
	for _, m := range priceRe.FindAllStringSubmatch(html, -1) {
		p, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
		if err != nil {
			continue
		}
		prices = append(prices, p)
	}
	return prices, true, nil
}

// doRequest performs an HTTP GET with linear-backoff retry on transport
// errors and 5xx responses.
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json, text/html")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		} else {
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
