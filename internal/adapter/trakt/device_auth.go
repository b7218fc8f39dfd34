package trakt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"trakt-toggl-sync/internal/domain"
)

// Device-code bootstrap for the very first token. Trakt's device endpoints
// take JSON request bodies, so this does not go through oauth2.Config.
// Runs only under the explicit -login flag, never from a sync.

// DeviceCode is the server's challenge: show VerificationURL and UserCode to
// the operator, then poll at Interval until they approve.
type DeviceCode struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// StartDeviceAuth requests a device code for this client id.
func (c *Client) StartDeviceAuth(ctx context.Context) (*DeviceCode, error) {
	var dc DeviceCode
	status, err := c.postJSON(ctx, "/oauth/device/code", map[string]string{
		"client_id": c.clientID,
	}, &dc)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &domain.UpstreamError{Service: "trakt", Status: status, Err: fmt.Errorf("device code request rejected")}
	}
	return &dc, nil
}

// PollDeviceToken polls the token endpoint until the operator approves,
// the code expires, or the context ends.
func (c *Client) PollDeviceToken(ctx context.Context, dc *DeviceCode) (*oauth2.Token, error) {
	interval := time.Duration(dc.Interval) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	deadline := time.Now().Add(time.Duration(dc.ExpiresIn) * time.Second)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
		if time.Now().After(deadline) {
			return nil, &domain.AuthError{Reason: "device code expired before approval"}
		}

		var tr tokenResponse
		status, err := c.postJSON(ctx, "/oauth/device/token", map[string]string{
			"client_id":     c.clientID,
			"client_secret": c.clientSecret,
			"code":          dc.DeviceCode,
		}, &tr)
		if err != nil {
			return nil, err
		}
		switch status {
		case http.StatusOK:
			return &oauth2.Token{
				AccessToken:  tr.AccessToken,
				RefreshToken: tr.RefreshToken,
				Expiry:       time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
			}, nil
		case http.StatusBadRequest:
			c.log.Info("waiting for approval", slog.String("url", dc.VerificationURL), slog.String("code", dc.UserCode))
		case http.StatusTooManyRequests:
			interval += time.Second
		case http.StatusNotFound, http.StatusConflict:
			return nil, &domain.AuthError{Reason: fmt.Sprintf("device code rejected (status %d)", status)}
		case http.StatusGone, http.StatusTeapot:
			return nil, &domain.AuthError{Reason: "authorization was denied or expired"}
		default:
			return nil, &domain.UpstreamError{Service: "trakt", Status: status, Err: fmt.Errorf("unexpected device token response")}
		}
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, &domain.UpstreamError{Service: "trakt", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, &domain.UpstreamError{Service: "trakt", Err: err}
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &domain.UpstreamError{Service: "trakt", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, &domain.UpstreamError{Service: "trakt", Err: fmt.Errorf("decoding response: %w", err)}
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}
