package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "campuscal/internal/log"
)

// ErrLoginFailed is returned when the auth service rejects the credentials
// or answers with something other than a token.
var ErrLoginFailed = errors.New("login failed")

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Login exchanges username/password for a bearer token at
// POST {baseURL}/auth/token (form encoded).
func Login(ctx context.Context, client *http.Client, baseURL, username, password string) (string, error) {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	endpoint := strings.TrimRight(baseURL, "/") + "/auth/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	appLog.Info("login start", "endpoint", endpoint, "username", username)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrLoginFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er errorResponse
		if json.Unmarshal(body, &er) == nil && er.Detail != "" {
			return "", fmt.Errorf("%w: %s", ErrLoginFailed, er.Detail)
		}
		return "", fmt.Errorf("%w: %s", ErrLoginFailed, resp.Status)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrLoginFailed, err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: response carried no access_token", ErrLoginFailed)
	}

	appLog.Info("login success", "username", username)
	return tr.AccessToken, nil
}
