package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"pdf-rag-platform/internal/auth"
)

// issuetoken signs a tenant access token with ACCESS_SECRET, for operators
// and local testing.
func main() {
	tenantID := flag.String("tenant", "", "tenant id to embed in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *tenantID == "" {
		fmt.Println("Usage: go run ./cmd/issuetoken -tenant <id> [-ttl 24h]")
		os.Exit(1)
	}

	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Fatalf("Error loading .env file: %v", err)
		}
	}

	tokens, err := auth.NewTokenManager(os.Getenv("ACCESS_SECRET"), nil)
	if err != nil {
		log.Fatalf("Failed to initialize token manager: %v", err)
	}

	token, exp, err := tokens.IssueAccessToken(*tenantID, *ttl)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "tenant=%s expires=%s\n", *tenantID, exp.Format(time.RFC3339))
}
