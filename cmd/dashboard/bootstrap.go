package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"prostocks-dashboard/internal/broker/prostocks"
	"prostocks-dashboard/internal/broker/prostocksobs"
	"prostocks-dashboard/internal/interfaces"
	"prostocks-dashboard/internal/logger"
	"prostocks-dashboard/internal/store"
	"prostocks-dashboard/internal/trace"
	"prostocks-dashboard/internal/tradelog"
	"prostocks-dashboard/internal/types"

	"github.com/joho/godotenv"
)

// initializeSystem initializes environment, logger and tracer
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

// loadCredentials reads the broker credentials from the environment. The
// credential source is the process environment (or .env) by design; the
// API never accepts credentials over HTTP.
func loadCredentials() (types.Credentials, error) {
	creds := types.Credentials{
		UserID:     os.Getenv("PROSTOCKS_USER_ID"),
		Password:   os.Getenv("PROSTOCKS_PASSWORD"),
		Factor2:    os.Getenv("PROSTOCKS_FACTOR2"),
		VendorCode: os.Getenv("PROSTOCKS_VENDOR_CODE"),
		APIKey:     os.Getenv("PROSTOCKS_API_KEY"),
		IMEI:       getEnvOrDefault("PROSTOCKS_MAC", "MAC123456"),
		BaseURL:    getEnvOrDefault("PROSTOCKS_BASE_URL", "https://starapi.prostocks.com/NorenWClientTP"),
		APKVersion: getEnvOrDefault("PROSTOCKS_APK_VERSION", "1.0.0"),
	}

	if creds.UserID == "" || creds.Password == "" || creds.Factor2 == "" || creds.APIKey == "" {
		return types.Credentials{}, errors.New("missing credentials: PROSTOCKS_USER_ID, PROSTOCKS_PASSWORD, PROSTOCKS_FACTOR2 and PROSTOCKS_API_KEY are required")
	}
	if creds.VendorCode == "" {
		creds.VendorCode = creds.UserID
	}
	return creds, nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// initializeBroker builds the session manager plus the gateway and market
// data clients wrapped with observability middleware.
func initializeBroker(ctx context.Context, cfg *store.Config, creds types.Credentials) (*prostocks.SessionManager, interfaces.OrderGateway, interfaces.MarketData) {
	sess := prostocks.NewSessionManager(creds)
	gw := prostocksobs.WrapGateway(prostocks.NewGateway(sess))
	md := prostocksobs.WrapMarketData(prostocks.NewMarketData(sess))

	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - engine orders will be simulated")
	}
	return sess, gw, md
}

// compressOldLogs compresses old tradelog files if retention is configured
func compressOldLogs(ctx context.Context) {
	if v := os.Getenv("DASHBOARD_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(n); err != nil {
			logger.Warn(ctx, "Failed to compress old logs", "error", err)
		}
	}
}
