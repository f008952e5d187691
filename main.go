package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vdklabs/license-server/account"
	apirest "github.com/vdklabs/license-server/api/rest"
	"github.com/vdklabs/license-server/audit"
	"github.com/vdklabs/license-server/cache"
	"github.com/vdklabs/license-server/config"
	dbadapter "github.com/vdklabs/license-server/db"
	"github.com/vdklabs/license-server/license"
	mw "github.com/vdklabs/license-server/middleware"
	"github.com/vdklabs/license-server/model"
	"github.com/vdklabs/license-server/scheduler"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	if cfg.Security.JWTSecret == "" {
		log.Fatal("security.jwt_secret must be set")
	}

	// ---- Database ----
	// Schema bootstrap happens here, once, before any service is built.
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(nil)

	// ---- Cache ----
	c, err := cache.New(cache.Config{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
	})
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Services ----
	accountSvc := account.NewService(db, cfg.License, logger)
	licenseSvc := license.NewService(db, c, accountSvc, cfg.License, logger)

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	sched.AddTicker("expiry_sweep", time.Hour, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := licenseSvc.CountExpired(ctx, time.Now())
		if err != nil {
			logger.Warn("expiry sweep failed", zap.Error(err))
			return
		}
		logger.Info("expiry sweep", zap.Int64("expired_subscriptions", n))
	})

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	authH := apirest.NewAuthHandler(accountSvc, c, cfg.Security, auditSvc)
	licenseH := apirest.NewLicenseHandler(licenseSvc, auditSvc)
	launcherH := apirest.NewLauncherHandler(licenseSvc, auditSvc)
	adminH := apirest.NewAdminHandler(db, accountSvc, licenseSvc, auditSvc, logger)

	api := r.Group("/api")
	{
		api.POST("/register", authH.Register)
		api.POST("/login", authH.Login)
		api.POST("/logout", authH.Logout)
		api.GET("/check-auth", mw.Auth(cfg.Security, c), authH.CheckAuth)
		api.POST("/activate-key", mw.Auth(cfg.Security, c), licenseH.Activate)

		launcherG := api.Group("/launcher")
		launcherG.POST("/check-subscription", launcherH.CheckSubscription)
		launcherG.GET("/check-uid/:uid", launcherH.CheckUID)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs), apirest.AdminAuth(cfg.Server.AdminKey))
		adminG.GET("/users", adminH.ListUsers)
		adminG.POST("/delete-user", adminH.DeleteUser)
		adminG.POST("/generate-key", adminH.GenerateKey)
		adminG.GET("/keys", adminH.ListKeys)
		adminG.POST("/reset-hwid", adminH.ResetHWID)
		adminG.GET("/metrics", adminH.Metrics)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
