package app

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"social-auth-service/internal/auth/handler"
	"social-auth-service/internal/auth/provider"
	"social-auth-service/internal/auth/provider/google"
	"social-auth-service/internal/auth/resolver"
	"social-auth-service/internal/auth/state"
	"social-auth-service/internal/config"
	"social-auth-service/internal/middleware"
	"social-auth-service/internal/session"
	"social-auth-service/internal/store"
	"social-auth-service/internal/wechat"
)

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	sessionStore := session.NewRedisStore(infra.Redis.Client)
	identityResolver := resolver.NewDBResolver(infra.DB)
	accountStore := store.NewPostgresStore(infra.DB)

	stateCodec := state.NewCodec(
		cfg.AuthStateSecret,
		state.NewRedisNonceStore(infra.Redis.Client),
	)

	wechatHandler, err := wechat.NewHandler(
		wechat.Config{
			AppID:                cfg.WeChatAppID,
			AppSecret:            cfg.WeChatAppSecret,
			BaseURL:              cfg.BaseURL,
			Lang:                 cfg.WeChatLang,
			SyntheticEmailDomain: cfg.WeChatEmailDomain,
			Debug:                cfg.WeChatDebug,
		},
		stateCodec,
		accountStore,
		sessionStore,
	)
	if err != nil {
		return nil, nil, err
	}

	var providers []provider.OAuthProvider
	if cfg.GoogleClientID != "" {
		googleProvider, err := google.New(
			ctx,
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.GoogleRedirectURL,
		)
		if err != nil {
			return nil, nil, err
		}
		providers = append(providers, googleProvider)
	}

	registry := provider.NewRegistry(providers...)

	authHandler := handler.NewHandler(
		registry,
		sessionStore,
		identityResolver,
	)

	authMiddleware := middleware.NewAuthMiddleware(sessionStore)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg)))

	// ----------------------------
	// Public Routes
	// ----------------------------

	authHandler.RegisterRoutes(router)
	wechatHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ----------------------------
	// Protected API Routes
	// ----------------------------

	api := router.Group("/api")
	api.Use(middleware.GinRequireAuth(authMiddleware))

	api.GET("/me", func(c *gin.Context) {
		userID, _ := middleware.UserIDFromContext(c.Request.Context())
		c.JSON(200, gin.H{
			"user_id": userID,
		})
	})

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, func() error {
		return infra.DB.Close()
	}, nil
}

func corsConfig(cfg config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowCredentials = true

	if cfg.AllowedOrigin == "*" {
		// Reflect the request origin; wildcard plus credentials is not
		// allowed by the CORS spec.
		corsCfg.AllowOriginFunc = func(origin string) bool { return true }
	} else {
		corsCfg.AllowOrigins = []string{cfg.AllowedOrigin}
	}

	return corsCfg
}
