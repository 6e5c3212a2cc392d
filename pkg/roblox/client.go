// Package roblox looks up avatar headshots through the public Roblox APIs.
package roblox

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

	"github.com/korjavin/warbot/pkg/logger"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned when the user or its headshot does not exist
var ErrNotFound = errors.New("roblox user not found")

const (
	defaultUsersBase  = "https://users.roblox.com"
	defaultThumbsBase = "https://thumbnails.roblox.com"
	maxImageBytes     = 5 << 20
)

// Client is a small Roblox REST client
type Client struct {
	http       *http.Client
	usersBase  string
	thumbsBase string
	limiter    *rate.Limiter
	logger     *logger.Logger
}

// New creates a client that makes at most ratePerSec requests per second
func New(ratePerSec int) *Client {
	if ratePerSec <= 0 {
		ratePerSec = 2
	}
	return &Client{
		http:       &http.Client{Timeout: 10 * time.Second},
		usersBase:  defaultUsersBase,
		thumbsBase: defaultThumbsBase,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		logger:     logger.New("roblox"),
	}
}

// WithBaseURLs points the client at other hosts, e.g. a test server
func (c *Client) WithBaseURLs(usersBase, thumbsBase string) *Client {
	c.usersBase = usersBase
	c.thumbsBase = thumbsBase
	return c
}

type usernamesRequest struct {
	Usernames          []string `json:"usernames"`
	ExcludeBannedUsers bool     `json:"excludeBannedUsers"`
}

type usernamesResponse struct {
	Data []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
}

type thumbnailsResponse struct {
	Data []struct {
		TargetID int64  `json:"targetId"`
		State    string `json:"state"`
		ImageURL string `json:"imageUrl"`
	} `json:"data"`
}

// Headshot returns the PNG headshot of a Roblox user
func (c *Client) Headshot(ctx context.Context, username string) ([]byte, error) {
	userID, err := c.userID(ctx, username)
	if err != nil {
		return nil, err
	}
	imageURL, err := c.headshotURL(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read headshot: %w", err)
	}
	c.logger.Debug("Fetched headshot of %s (%d bytes)", username, len(data))
	return data, nil
}

func (c *Client) userID(ctx context.Context, username string) (int64, error) {
	body, err := json.Marshal(usernamesRequest{Usernames: []string{username}, ExcludeBannedUsers: true})
	if err != nil {
		return 0, err
	}
	resp, err := c.do(ctx, http.MethodPost, c.usersBase+"/v1/usernames/users", body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var out usernamesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to decode users response: %w", err)
	}
	if len(out.Data) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	return out.Data[0].ID, nil
}

func (c *Client) headshotURL(ctx context.Context, userID int64) (string, error) {
	q := url.Values{}
	q.Set("userIds", strconv.FormatInt(userID, 10))
	q.Set("size", "420x420")
	q.Set("format", "Png")
	q.Set("isCircular", "false")

	resp, err := c.do(ctx, http.MethodGet, c.thumbsBase+"/v1/users/avatar-headshot?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out thumbnailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode thumbnails response: %w", err)
	}
	if len(out.Data) == 0 || out.Data[0].ImageURL == "" {
		return "", fmt.Errorf("%w: no headshot for %d", ErrNotFound, userID)
	}
	return out.Data[0].ImageURL, nil
}

func (c *Client) do(ctx context.Context, method, target string, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("roblox request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("roblox %s %s: status %d", method, req.URL.Path, resp.StatusCode)
	}
	return resp, nil
}
