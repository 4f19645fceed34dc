package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"social-auth-service/internal/logger"
)

// Outbound provider calls get a hard deadline; WeChat gives no SLA and
// an authorization code is single-use, so waiting longer buys nothing.
const defaultHTTPTimeout = 10 * time.Second

// ProviderError is an application-level error returned by the WeChat
// API (non-zero errcode in an HTTP 200 body). Transport failures are
// returned as ordinary wrapped errors instead.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wechat: provider error %d: %s", e.Code, e.Message)
}

// Token is the parsed token-exchange response. ExpiresAt is computed at
// the moment the response is received; the raw expires_in is not kept
// beyond that point.
type Token struct {
	AccessToken  string
	RefreshToken string
	OpenID       string
	UnionID      string
	Scope        string
	ExpiresIn    int
	ExpiresAt    time.Time
}

// Profile is the raw userinfo response.
type Profile struct {
	OpenID     string `json:"openid"`
	UnionID    string `json:"unionid"`
	Nickname   string `json:"nickname"`
	HeadImgURL string `json:"headimgurl"`
}

type apiError struct {
	Errcode int    `json:"errcode"`
	Errmsg  string `json:"errmsg"`
}

type tokenResponse struct {
	apiError
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	OpenID       string `json:"openid"`
	UnionID      string `json:"unionid"`
	Scope        string `json:"scope"`
}

type profileResponse struct {
	apiError
	Profile
}

// Client performs the three outbound provider operations: authorize-URL
// construction (no network), code-for-token exchange, and profile
// fetch. One attempt per call, no retries: a second exchange of the
// same code would be rejected by the provider anyway.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:        cfg.withDefaults(),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// AuthorizeURL builds the QR-login authorization URL. The provider's
// redirect marker is appended after query serialization so it renders
// literally after all parameters.
func (c *Client) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("appid", c.cfg.AppID)
	q.Set("redirect_uri", c.cfg.BaseURL+"/oauth2/callback/wechat")
	q.Set("response_type", "code")
	q.Set("scope", scopeLogin)
	q.Set("state", state)
	q.Set("lang", c.cfg.Lang)

	return c.cfg.AuthorizeURL + "?" + q.Encode() + redirectMarker
}

// ExchangeCode trades a single-use authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	q := url.Values{}
	q.Set("appid", c.cfg.AppID)
	q.Set("secret", c.cfg.AppSecret)
	q.Set("code", code)
	q.Set("grant_type", "authorization_code")

	var resp tokenResponse
	if err := c.get(ctx, c.cfg.APIBase+"/sns/oauth2/access_token?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("wechat: token exchange: %w", err)
	}

	if resp.Errcode != 0 {
		if c.cfg.Debug {
			logger.Error("wechat.token_error", map[string]any{
				"errcode": resp.Errcode,
				"errmsg":  resp.Errmsg,
			})
		}
		return nil, &ProviderError{Code: resp.Errcode, Message: resp.Errmsg}
	}

	token := &Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		OpenID:       resp.OpenID,
		UnionID:      resp.UnionID,
		Scope:        resp.Scope,
		ExpiresIn:    resp.ExpiresIn,
	}
	if resp.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	if c.cfg.Debug {
		logger.Debug("wechat.token_exchanged", map[string]any{
			"access_token":  mask(token.AccessToken),
			"refresh_token": mask(token.RefreshToken),
			"has_openid":    token.OpenID != "",
			"has_unionid":   token.UnionID != "",
			"scope":         token.Scope,
			"expires_in":    token.ExpiresIn,
		})
	}

	return token, nil
}

// FetchProfile retrieves the user's profile with the access token from
// the exchange step.
func (c *Client) FetchProfile(ctx context.Context, accessToken, openID string) (*Profile, error) {
	lang := "zh_CN"
	if c.cfg.Lang == "en" {
		lang = "en"
	}

	q := url.Values{}
	q.Set("access_token", accessToken)
	q.Set("openid", openID)
	q.Set("lang", lang)

	var resp profileResponse
	if err := c.get(ctx, c.cfg.APIBase+"/sns/userinfo?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("wechat: userinfo: %w", err)
	}

	if resp.Errcode != 0 {
		if c.cfg.Debug {
			logger.Error("wechat.userinfo_error", map[string]any{
				"errcode": resp.Errcode,
				"errmsg":  resp.Errmsg,
			})
		}
		return nil, &ProviderError{Code: resp.Errcode, Message: resp.Errmsg}
	}

	if c.cfg.Debug {
		logger.Debug("wechat.userinfo_fetched", map[string]any{
			"has_openid":   resp.OpenID != "",
			"has_unionid":  resp.UnionID != "",
			"nickname_len": len(resp.Nickname),
		})
	}

	profile := resp.Profile
	return &profile, nil
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failure, as opposed to an errcode payload.
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	return nil
}
