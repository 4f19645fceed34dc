package wechat

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"social-auth-service/internal/auth/state"
	"social-auth-service/internal/logger"
	"social-auth-service/internal/session"
	"social-auth-service/internal/store"
)

const sessionTTL = 7 * 24 * time.Hour

// Terminal error codes surfaced via redirect query parameter. Provider
// errmsg strings pass through (URL-encoded) instead when available.
const (
	errCodeMissing        = "wechat_code_missing"
	errTokenError         = "wechat_token_error"
	errTokenMissingFields = "wechat_token_missing_fields"
	errUserinfoError      = "wechat_userinfo_error"
	errInvalidState       = "invalid_state"
	errUnableCreateUser   = "unable_to_create_user"
	errUnableLinkAccount  = "unable_to_link_account"
	errUserNotFound       = "user_not_found"
	errUnableSession      = "unable_to_create_session"
)

// StateCodec issues and redeems the single-use state token carrying
// redirect destinations across the provider round-trip.
type StateCodec interface {
	Generate(ctx context.Context, p state.Payload) (string, error)
	Consume(ctx context.Context, raw string) (*state.Payload, error)
}

// Handler mounts the WeChat login surface: sign-in initiation, the QR
// rendering of the authorize URL, and the OAuth2 callback.
type Handler struct {
	cfg        Config
	client     *Client
	states     StateCodec
	reconciler *Reconciler
	sessions   session.Store
}

func NewHandler(
	cfg Config,
	states StateCodec,
	accountStore store.Store,
	sessions session.Store,
) (*Handler, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	return &Handler{
		cfg:        cfg,
		client:     NewClient(cfg),
		states:     states,
		reconciler: NewReconciler(accountStore, cfg.Debug),
		sessions:   sessions,
	}, nil
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/sign-in/wechat", h.signIn)
	r.GET("/sign-in/wechat/qr", h.signInQR)
	r.GET("/oauth2/callback/wechat", h.callback)
}

type signInRequest struct {
	CallbackURL        string `json:"callbackURL"`
	ErrorCallbackURL   string `json:"errorCallbackURL"`
	NewUserCallbackURL string `json:"newUserCallbackURL"`
	DisableRedirect    bool   `json:"disableRedirect"`
}

// signIn creates a state token and returns the provider authorization
// URL. No side effects beyond state creation.
func (h *Handler) signIn(c *gin.Context) {
	var req signInRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	authURL, err := h.authorizeURL(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable_to_create_state"})
		return
	}

	if h.cfg.Debug {
		logger.Debug("wechat.sign_in", map[string]any{
			"base_url":     h.cfg.BaseURL,
			"has_callback": req.CallbackURL != "",
			"auth_url":     authURL,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"url":      authURL,
		"redirect": !req.DisableRedirect,
	})
}

func (h *Handler) authorizeURL(ctx context.Context, req signInRequest) (string, error) {
	stateToken, err := h.states.Generate(ctx, state.Payload{
		CallbackURL:        req.CallbackURL,
		ErrorCallbackURL:   req.ErrorCallbackURL,
		NewUserCallbackURL: req.NewUserCallbackURL,
	})
	if err != nil {
		return "", err
	}
	return h.client.AuthorizeURL(stateToken), nil
}

// callback is the single point where the orchestration result becomes
// an HTTP redirect. Every path through runCallback ends in a navigable
// destination; no raw error body ever reaches the browser.
func (h *Handler) callback(c *gin.Context) {
	c.Redirect(http.StatusFound, h.runCallback(c))
}

func (h *Handler) runCallback(c *gin.Context) string {
	ctx := c.Request.Context()

	// Step 1: inbound query. With no state consulted yet there is no
	// trusted redirect target beyond our own base URL.
	if errParam := c.Query("error"); errParam != "" {
		return h.baseErrorURL(errParam)
	}
	code := c.Query("code")
	if code == "" {
		return h.baseErrorURL(errCodeMissing)
	}

	// Step 2: decode state. Fail closed on anything unparseable.
	payload, err := h.states.Consume(ctx, c.Query("state"))
	if err != nil {
		logger.Warn("wechat.callback.bad_state", map[string]any{
			"error": err.Error(),
		})
		return h.baseErrorURL(errInvalidState)
	}

	dest := redirects{
		callbackURL: payload.CallbackURL,
		errorURL:    payload.ErrorCallbackURL,
		newUserURL:  payload.NewUserCallbackURL,
		baseURL:     h.cfg.BaseURL,
	}

	if h.cfg.Debug {
		logger.Debug("wechat.callback.query", map[string]any{
			"code_len":     len(code),
			"callback_url": payload.CallbackURL,
			"error_url":    payload.ErrorCallbackURL,
			"new_user_url": payload.NewUserCallbackURL,
		})
	}

	// Step 3: exchange code for token.
	token, err := h.client.ExchangeCode(ctx, code)
	if err != nil {
		return dest.errorRedirect(providerMessage(err, errTokenError))
	}

	// Step 4: required token fields.
	if token.AccessToken == "" || token.OpenID == "" {
		if h.cfg.Debug {
			logger.Error("wechat.callback.missing_fields", map[string]any{
				"has_access_token": token.AccessToken != "",
				"has_openid":       token.OpenID != "",
			})
		}
		return dest.errorRedirect(errTokenMissingFields)
	}

	// Step 5: fetch profile.
	profile, err := h.client.FetchProfile(ctx, token.AccessToken, token.OpenID)
	if err != nil {
		return dest.errorRedirect(providerMessage(err, errUserinfoError))
	}

	// Step 6: normalize. Pure mapping, cannot fail.
	identity := NormalizeProfile(profile, token.OpenID, h.cfg.SyntheticEmailDomain)

	if h.cfg.Debug {
		logger.Debug("wechat.callback.profile", map[string]any{
			"external_id": mask(identity.ExternalID),
			"has_unionid": profile.UnionID != "",
			"has_openid":  profile.OpenID != "",
		})
	}

	// Step 7: reconcile account.
	user, isRegister, err := h.reconciler.Reconcile(ctx, identity, token)
	switch {
	case errors.Is(err, ErrLinkAccount):
		return dest.errorRedirect(errUnableLinkAccount)
	case err != nil:
		return dest.errorRedirect(errUnableCreateUser)
	}

	// Step 8: a user must exist by now.
	if user == nil {
		return dest.errorRedirect(errUserNotFound)
	}

	// Step 9: create session.
	sessionID, err := session.GenerateID()
	if err != nil {
		return dest.errorRedirect(errUnableSession)
	}

	now := time.Now()
	sess := session.Session{
		SessionID: sessionID,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(sessionTTL),
	}
	if err := h.sessions.Create(ctx, sess); err != nil {
		logger.Error("wechat.callback.session_failed", map[string]any{
			"error": err.Error(),
		})
		return dest.errorRedirect(errUnableSession)
	}

	// Step 10: set cookie, then terminal success.
	session.SetCookie(c.Writer, sessionID, sess.ExpiresAt, session.CookieOptions{
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	redirectTo := dest.successRedirect(isRegister)

	if h.cfg.Debug {
		logger.Debug("wechat.callback.success", map[string]any{
			"user_id":     mask(user.ID),
			"is_register": isRegister,
			"redirect_to": redirectTo,
		})
	}

	logger.Info("wechat login", map[string]any{
		"is_register": isRegister,
	})

	return redirectTo
}

func (h *Handler) baseErrorURL(code string) string {
	return h.cfg.BaseURL + "/error?error=" + url.QueryEscape(code)
}

// redirects resolves terminal destinations: errors prefer the caller's
// error URL, then its callback URL, then our own base URL.
type redirects struct {
	callbackURL string
	errorURL    string
	newUserURL  string
	baseURL     string
}

func (r redirects) errorRedirect(code string) string {
	base := r.errorURL
	if base == "" {
		base = r.callbackURL
	}
	if base == "" {
		base = r.baseURL
	}
	return base + "/error?error=" + url.QueryEscape(code)
}

func (r redirects) successRedirect(isRegister bool) string {
	if isRegister && r.newUserURL != "" {
		return r.newUserURL
	}
	if r.callbackURL != "" {
		return r.callbackURL
	}
	return r.baseURL
}

// providerMessage extracts the provider errmsg for the redirect, or
// falls back to the given code for transport-level failures.
func providerMessage(err error, fallback string) string {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return fallback
}
