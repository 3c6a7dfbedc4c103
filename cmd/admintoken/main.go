// Command admintoken prints a short-lived bearer token for the /promo endpoints.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"course-access-bot/internal/config"
	"course-access-bot/internal/infra/api"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	subject := flag.String("sub", "ops", "token subject, recorded in API logs")
	ttl := flag.Duration("ttl", 0, "token lifetime (default api.admin_token_ttl)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	lifetime := cfg.API.AdminTokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	auth := api.NewAuthManager(cfg.API.AdminSecret, lifetime)
	if auth == nil {
		fmt.Fprintln(os.Stderr, "api.admin_secret (or ADMIN_SECRET) is not set")
		os.Exit(1)
	}
	tok, exp, err := auth.Mint(*subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
	fmt.Fprintf(os.Stderr, "expires %s\n", exp.Format(time.RFC3339))
}
