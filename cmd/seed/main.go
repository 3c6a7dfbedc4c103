package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"course-access-bot/internal/config"
	"course-access-bot/internal/domain/ports/repository"
	pg "course-access-bot/internal/infra/db/postgres"
	"course-access-bot/internal/infra/logging"
	"course-access-bot/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	schema := flag.String("schema", "deploy/postgres/init.sql", "schema file to apply")
	course := flag.String("course", "", "course key to issue a test code for (empty: schema only)")
	userID := flag.Int64("user", 0, "Telegram id recorded on the test code")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	ddl, err := os.ReadFile(*schema)
	if err != nil {
		log.Fatalf("read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(ddl)); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	fmt.Printf("schema applied from %s\n", *schema)

	if *course == "" {
		return
	}
	catalogue, err := cfg.Catalogue()
	if err != nil {
		log.Fatalf("catalogue: %v", err)
	}
	c, ok := catalogue.Lookup(*course)
	if !ok {
		log.Fatalf("unknown course %q", *course)
	}

	issuance := usecase.NewIssuanceUseCase(pg.NewRedeemableCodeRepo(pool, cfg.Store.Timeout), logger)
	code, err := issuance.Issue(ctx, repository.NoTX, *userID, "seed", c.Name)
	if err != nil {
		log.Fatalf("issue code: %v", err)
	}
	fmt.Printf("✅ test code for %q: %s (expires %s)\n", c.Name, code.Code, code.ExpiresAt.Format(usecase.DateLayout))
}
