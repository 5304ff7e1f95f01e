package main

import (
	"context" // Request context
	"fmt"     // Usage output
	"os"      // Command-line arguments
	"time"    // Command timeout

	"storefront_ledger/internal/config"    // Custom import path (Config)
	"storefront_ledger/internal/domain"    // Account key and record
	"storefront_ledger/internal/reconcile" // Client state reconciler

	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

const usage = `usage: syncclient <command>

commands:
  read                merge the relational, document and local copies of the user
  set-name <name>     write a display name through the reconciler
  set-avatar <url>    write an avatar URL through the reconciler
  signout             flush pending writes and drop the local copy`

// Main entry point for the sync client
func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	cfg := config.LoadConfig() // Load configuration
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	if cfg.SyncToken == "" || cfg.SyncAccountID <= 0 {
		logrus.Fatal("SYNC_TOKEN and SYNC_ACCOUNT_ID are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Setup Redis client for the document tier
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})
	defer redisClient.Close()

	key := domain.AccountKey{AccountID: uint(cfg.SyncAccountID), ExternalUID: cfg.SyncUID}
	rec := reconcile.New(
		reconcile.NewLocalStore(),                                        // Device tier
		reconcile.NewAPIClient(cfg.SyncAPIURL, cfg.SyncToken),            // Relational tier
		reconcile.NewRedisDocumentStore(redisClient, cfg.DocumentPrefix), // Document tier
	)
	unsubscribe := rec.Subscribe(func(r domain.CachedUserRecord) {
		logRecord(r) // Print every merged view
	})
	defer unsubscribe()

	if err := run(ctx, rec, key, os.Args[1:]); err != nil {
		logrus.WithError(err).Error("Sync command failed")
		os.Exit(1)
	}
}

// run executes one command against the reconciler
func run(ctx context.Context, rec *reconcile.Reconciler, key domain.AccountKey, args []string) error {
	switch args[0] {
	case "read":
		_, err := rec.Read(ctx, key)
		return err
	case "set-name", "set-avatar":
		if len(args) < 2 {
			return fmt.Errorf("%s needs a value", args[0])
		}
		value := args[1]
		patch := domain.CachedUserRecord{DisplayName: &value}
		if args[0] == "set-avatar" {
			patch = domain.CachedUserRecord{AvatarURL: &value}
		}
		// Start from the merged view so the login counter continues
		if _, err := rec.Read(ctx, key); err != nil {
			logrus.WithError(err).Warn("No stored record, writing a fresh one")
		}
		res := rec.Write(ctx, key, patch)
		if res.Queued {
			logrus.WithField("pending", rec.PendingSync()).Warn("Write kept locally, remote sync pending")
		}
		return nil
	case "signout":
		return rec.SignOut(ctx, key)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

// logRecord prints the fields a record carries
func logRecord(r domain.CachedUserRecord) {
	fields := logrus.Fields{"account_id": r.AccountID} // Always present
	if r.ExternalUID != "" {
		fields["external_uid"] = r.ExternalUID
	}
	if r.Email != nil {
		fields["email"] = *r.Email
	}
	if r.DisplayName != nil {
		fields["display_name"] = *r.DisplayName
	}
	if r.AvatarURL != nil {
		fields["avatar_url"] = *r.AvatarURL
	}
	if r.Balance != nil {
		fields["balance"] = r.Balance.StringFixed(2)
	}
	if r.LoginCount != nil {
		fields["login_count"] = *r.LoginCount
	}
	logrus.WithFields(fields).Info("User record")
}
