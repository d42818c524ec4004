package main

import (
	"context"
	"flag"
	"log"
	"os"

	"venture-idea-analyzer/internal/config"
	pg "venture-idea-analyzer/internal/infra/db/postgres"
	red "venture-idea-analyzer/internal/infra/redis"
)

// This script sets up a clean, predictable database state for manual
// end-to-end testing: schema applied, all rows wiped, Redis flushed.
func main() {
	ctx := context.Background()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	schemaPath := flag.String("schema", "deploy/postgres/init.sql", "path to schema file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	pool, err := pg.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisClient.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	log.Println("[1/3] Applying schema...")
	schema, err := os.ReadFile(*schemaPath)
	if err != nil {
		log.Fatalf("read schema from %s: %v", *schemaPath, err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	log.Println("[2/3] Wiping all existing rows...")
	_, err = pool.Exec(ctx, `
		TRUNCATE ideas, analysis_jobs, job_stage_payloads, stage_results
		RESTART IDENTITY CASCADE;
	`)
	if err != nil {
		log.Fatalf("truncate tables: %v", err)
	}

	log.Println("[3/3] Wiping Redis (stage leases, rate-limit windows, idea cache)...")
	if err := redisClient.FlushDB(ctx); err != nil {
		log.Fatalf("flush redis: %v", err)
	}

	log.Println("--- E2E Environment Setup Complete ---")
}
