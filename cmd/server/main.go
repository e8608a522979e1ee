package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ivanmru/store-inventory-reservation/internal/auth"
	"github.com/ivanmru/store-inventory-reservation/internal/authz"
	"github.com/ivanmru/store-inventory-reservation/internal/config"
	"github.com/ivanmru/store-inventory-reservation/internal/database"
	"github.com/ivanmru/store-inventory-reservation/internal/handler"
	"github.com/ivanmru/store-inventory-reservation/internal/middleware"
	"github.com/ivanmru/store-inventory-reservation/internal/queue"
	"github.com/ivanmru/store-inventory-reservation/internal/repository"
	"github.com/ivanmru/store-inventory-reservation/internal/router"
	"github.com/ivanmru/store-inventory-reservation/internal/service"
)

func main() {
	cfg := config.Load()
	if cfg.IsProd() {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	db, err := database.Open(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("database unavailable")
	}
	defer db.Close()

	users := repository.NewUserRepo(db)
	sessions := repository.NewSessionRepo(db)
	roles := repository.NewRoleRepo(db)
	products := repository.NewProductRepo(db)
	reservations := repository.NewReservationRepo(db)
	audits := repository.NewAuditRepo(db)

	if err := auth.SetBurnCost(cfg.BcryptCost); err != nil {
		logrus.WithError(err).Fatal("password burn hash")
	}

	issuer, err := auth.NewIssuer(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		logrus.WithError(err).Fatal("token issuer")
	}
	google, err := auth.NewGoogleVerifier(cfg.GoogleClientID, cfg.GoogleJWKSURL)
	if err != nil {
		logrus.WithError(err).Fatal("google jwks")
	}
	defer google.Close()

	resolver := authz.NewResolver(roles, time.Minute)
	publisher := service.NewAuditPublisher(cfg.AMQPURL)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	deps := router.Deps{
		Auth:      handler.NewAuthHandler(cfg, users, sessions, issuer, google, publisher),
		Catalog:   handler.NewCatalogHandler(products),
		Products:  handler.NewAdminProductHandler(products, publisher),
		Reserve:   handler.NewReservationHandler(reservations, resolver, publisher, cfg.ReservationTTL),
		RBAC:      handler.NewRBACAdminHandler(roles, users, audits, resolver, publisher),
		TokenAuth: middleware.TokenAuth(issuer),
		Policy:    resolver,
	}

	// Redis is optional. Without it the service runs with no rate limiting
	// and no response cache.
	if rdb := config.NewRedisClient(); rdb != nil {
		defer rdb.Close()
		if rl := config.LoadRateLimitConfig(); rl.Enabled {
			deps.RateLimit = middleware.NewTokenBucket(rl, rdb)
		}
		if cc := config.LoadCacheConfig(); cc.Enabled {
			deps.Cache = middleware.NewCatalogCache(cc, rdb)
		}
	}
	router.Register(e, deps)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := queue.StartAuditConsumer(cfg.AMQPURL, audits); err != nil {
			logrus.WithError(err).Error("audit consumer stopped")
		}
	}()
	go service.StartExpirySweeper(ctx, reservations, sessions, time.Minute)

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutCtx); err != nil {
			logrus.WithError(err).Warn("shutdown")
		}
	}()

	addr := ":" + cfg.Port
	logrus.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
	if err := e.Start(addr); err != nil {
		logrus.WithError(err).Info("server stopped")
	}
}
