package wechat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(apiBase string) Config {
	return Config{
		AppID:     "wx-test-appid",
		AppSecret: "wx-test-secret",
		BaseURL:   "https://auth.example.com",
		APIBase:   apiBase,
	}
}

func TestAuthorizeURL(t *testing.T) {
	client := NewClient(testConfig(""))

	raw := client.AuthorizeURL("the-state")

	require.True(t, strings.HasSuffix(raw, "#wechat_redirect"),
		"redirect marker must come after all query parameters")

	parsed, err := url.Parse(strings.TrimSuffix(raw, "#wechat_redirect"))
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, "wx-test-appid", q.Get("appid"))
	assert.Equal(t, "https://auth.example.com/oauth2/callback/wechat", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "snsapi_login", q.Get("scope"))
	assert.Equal(t, "the-state", q.Get("state"))
	assert.Equal(t, "cn", q.Get("lang"))
}

func TestExchangeCode(t *testing.T) {
	var gotQuery url.Values
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sns/oauth2/access_token", r.URL.Path)
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "ACCESS_TOKEN_VALUE",
			"refresh_token": "REFRESH_TOKEN_VALUE",
			"openid":        "OPENID",
			"scope":         "snsapi_login",
			"expires_in":    7200,
		})
	}))
	defer ts.Close()

	client := NewClient(testConfig(ts.URL))

	before := time.Now()
	token, err := client.ExchangeCode(context.Background(), "abc123")
	require.NoError(t, err)

	assert.Equal(t, "wx-test-appid", gotQuery.Get("appid"))
	assert.Equal(t, "wx-test-secret", gotQuery.Get("secret"))
	assert.Equal(t, "abc123", gotQuery.Get("code"))
	assert.Equal(t, "authorization_code", gotQuery.Get("grant_type"))

	assert.Equal(t, "ACCESS_TOKEN_VALUE", token.AccessToken)
	assert.Equal(t, "REFRESH_TOKEN_VALUE", token.RefreshToken)
	assert.Equal(t, "OPENID", token.OpenID)
	assert.Equal(t, 7200, token.ExpiresIn)

	// Expiry is absolute from the moment of capture.
	assert.False(t, token.ExpiresAt.Before(before.Add(7200*time.Second)))
	assert.False(t, token.ExpiresAt.After(time.Now().Add(7200*time.Second)))
}

func TestExchangeCodeProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"errcode": 40029,
			"errmsg":  "invalid code",
		})
	}))
	defer ts.Close()

	client := NewClient(testConfig(ts.URL))

	_, err := client.ExchangeCode(context.Background(), "bad")
	require.Error(t, err)

	pe, ok := err.(*ProviderError)
	require.True(t, ok, "errcode payload must surface as *ProviderError, got %T", err)
	assert.Equal(t, 40029, pe.Code)
	assert.Equal(t, "invalid code", pe.Message)
}

func TestExchangeCodeTransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // connection refused

	client := NewClient(testConfig(ts.URL))

	_, err := client.ExchangeCode(context.Background(), "abc")
	require.Error(t, err)

	_, ok := err.(*ProviderError)
	assert.False(t, ok, "transport failures must not look like provider errors")
}

func TestFetchProfile(t *testing.T) {
	var gotQuery url.Values
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sns/userinfo", r.URL.Path)
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]any{
			"openid":     "OPENID",
			"unionid":    "UNIONID",
			"nickname":   "Li",
			"headimgurl": "https://img.example.com/a.png",
		})
	}))
	defer ts.Close()

	client := NewClient(testConfig(ts.URL))

	profile, err := client.FetchProfile(context.Background(), "tok", "OPENID")
	require.NoError(t, err)

	assert.Equal(t, "tok", gotQuery.Get("access_token"))
	assert.Equal(t, "OPENID", gotQuery.Get("openid"))
	assert.Equal(t, "zh_CN", gotQuery.Get("lang"))

	assert.Equal(t, "OPENID", profile.OpenID)
	assert.Equal(t, "UNIONID", profile.UnionID)
	assert.Equal(t, "Li", profile.Nickname)
	assert.Equal(t, "https://img.example.com/a.png", profile.HeadImgURL)
}

func TestFetchProfileLangEN(t *testing.T) {
	var gotLang string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLang = r.URL.Query().Get("lang")
		json.NewEncoder(w).Encode(map[string]any{"openid": "o"})
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.Lang = "en"
	client := NewClient(cfg)

	_, err := client.FetchProfile(context.Background(), "tok", "o")
	require.NoError(t, err)
	assert.Equal(t, "en", gotLang)
}

func TestFetchProfileProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"errcode": 40003,
			"errmsg":  "invalid openid",
		})
	}))
	defer ts.Close()

	client := NewClient(testConfig(ts.URL))

	_, err := client.FetchProfile(context.Background(), "tok", "bad")
	pe, ok := err.(*ProviderError)
	require.True(t, ok)
	assert.Equal(t, 40003, pe.Code)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "none", mask(""))
	assert.Equal(t, "***", mask("short"))
	assert.Equal(t, "ACCESS...LUE2", mask("ACCESS_TOKEN_VALUE2"))
}
