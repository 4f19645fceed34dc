// Package wechat implements WeChat QR-code login (open platform web
// flow): the sign-in initiator, the OAuth2 callback orchestrator, and
// the outbound provider client. WeChat does not supply user emails, so
// accounts are keyed by a synthetic address derived from the provider
// identity.
package wechat

import "fmt"

// WeChat open-platform endpoints.
const (
	defaultAuthorizeURL = "https://open.weixin.qq.com/connect/qrconnect"
	defaultAPIBase      = "https://api.weixin.qq.com"

	// The provider requires this fragment after all query parameters;
	// it is not a query parameter itself.
	redirectMarker = "#wechat_redirect"

	providerID = "wechat"
	scopeLogin = "snsapi_login"
)

// Config carries everything the WeChat flow needs. It is injected at
// construction time; nothing here is read from the environment ad hoc.
type Config struct {
	AppID     string
	AppSecret string

	// BaseURL of this auth service, used for the fixed callback
	// endpoint and as the redirect destination of last resort.
	BaseURL string

	// Lang is "cn" or "en" and controls the authorize page and the
	// language of profile fields.
	Lang string

	// SyntheticEmailDomain is the suffix of derived account emails,
	// e.g. "wechat.local".
	SyntheticEmailDomain string

	Debug bool

	// AuthorizeURL and APIBase override the provider endpoints,
	// for tests only.
	AuthorizeURL string
	APIBase      string
}

func (c Config) withDefaults() Config {
	if c.Lang == "" {
		c.Lang = "cn"
	}
	if c.SyntheticEmailDomain == "" {
		c.SyntheticEmailDomain = "wechat.local"
	}
	if c.AuthorizeURL == "" {
		c.AuthorizeURL = defaultAuthorizeURL
	}
	if c.APIBase == "" {
		c.APIBase = defaultAPIBase
	}
	return c
}

func (c Config) validate() error {
	if c.AppID == "" {
		return fmt.Errorf("wechat: app id must not be empty")
	}
	if c.AppSecret == "" {
		return fmt.Errorf("wechat: app secret must not be empty")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("wechat: base url must not be empty")
	}
	return nil
}

// mask renders a secret for debug logs: first 6 + last 4 characters.
// Raw tokens must never be logged or placed in redirect URLs.
func mask(s string) string {
	if s == "" {
		return "none"
	}
	if len(s) <= 10 {
		return "***"
	}
	return s[:6] + "..." + s[len(s)-4:]
}
