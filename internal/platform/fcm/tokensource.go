package fcm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// AssertionTokenSource exchanges service-account assertions for OAuth access
// tokens at the account's token_uri. It mints a new token on every call; wrap
// it with oauth2.ReuseTokenSource (see NewTokenSource) for reuse.
type AssertionTokenSource struct {
	creds      *ServiceAccountCredentials
	httpClient *http.Client
	timeout    time.Duration
}

func NewAssertionTokenSource(creds *ServiceAccountCredentials, httpClient *http.Client) *AssertionTokenSource {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &AssertionTokenSource{creds: creds, httpClient: httpClient, timeout: 10 * time.Second}
}

// NewTokenSource returns a token source that only contacts the token
// endpoint when the previous access token is about to expire.
func NewTokenSource(creds *ServiceAccountCredentials, httpClient *http.Client) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, NewAssertionTokenSource(creds, httpClient))
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (s *AssertionTokenSource) Token() (*oauth2.Token, error) {
	assertion, err := s.creds.CreateAssertion()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	form := url.Values{
		"grant_type": {jwtBearerGrantType},
		"assertion":  {assertion},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.creds.account.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access_token")
	}

	token := &oauth2.Token{AccessToken: tr.AccessToken, TokenType: tr.TokenType}
	if tr.ExpiresIn > 0 {
		token.Expiry = s.creds.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return token, nil
}
