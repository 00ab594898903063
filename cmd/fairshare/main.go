package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/fairshare/internal/database"
	"github.com/dukerupert/fairshare/internal/logging"
	"github.com/dukerupert/fairshare/internal/photo"
	"github.com/dukerupert/fairshare/internal/push"
	"github.com/dukerupert/fairshare/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("FAIRSHARE_LOG_LEVEL"))

	port := os.Getenv("FAIRSHARE_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("FAIRSHARE_DB_PATH")
	if dbPath == "" {
		dbPath = "fairshare.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	photoCfg := photo.Config{
		Endpoint:  os.Getenv("FAIRSHARE_S3_ENDPOINT"),
		Bucket:    os.Getenv("FAIRSHARE_S3_BUCKET"),
		Region:    os.Getenv("FAIRSHARE_S3_REGION"),
		AccessKey: os.Getenv("FAIRSHARE_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("FAIRSHARE_S3_SECRET_KEY"),
	}

	pushCfg := push.Config{
		VAPIDPublicKey:  os.Getenv("FAIRSHARE_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("FAIRSHARE_VAPID_PRIVATE_KEY"),
		Subscriber:      os.Getenv("FAIRSHARE_PUSH_SUBSCRIBER"),
	}
	if pushCfg.VAPIDPublicKey == "" || pushCfg.VAPIDPrivateKey == "" {
		logger.Info("push notifications disabled; set FAIRSHARE_VAPID_PUBLIC_KEY and FAIRSHARE_VAPID_PRIVATE_KEY to enable")
	}

	srv := server.New(db, photoCfg, pushCfg, logger)

	// Periodic cleanup of expired sessions and stale rate-limit entries.
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := srv.SessionStore().DeleteExpired(context.Background()); err != nil {
					logger.Error("delete expired sessions", "error", err)
				}
				srv.RateLimiter().Cleanup()
			case <-cleanupDone:
				return
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Fairshare running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	close(cleanupDone)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
