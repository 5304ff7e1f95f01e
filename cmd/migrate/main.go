package main

import (
	"storefront_ledger/internal/config" // Custom import path (Config)
	"storefront_ledger/internal/db"     // Custom import path (Database)
)

// Main entry point for migration
func main() {
	cfg := config.LoadConfig() // Load configuration
	db.Migrate(cfg.DSN())      // Create or update every table
}
