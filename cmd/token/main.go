// Command token mints a bearer token for an owner id, for local testing of the API.
package main

import (
	"flag"
	"fmt"
	"log"

	"medtrack/internal/auth"
	"medtrack/internal/config"
)

func main() {
	owner := flag.String("owner", "", "owner id to put in the token subject")
	expiry := flag.Duration("expiry", 0, "token lifetime (defaults to JWT_EXPIRY)")
	flag.Parse()

	if *owner == "" {
		log.Fatal("-owner is required")
	}

	cfg, err := config.LoadAuth()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *expiry <= 0 {
		*expiry = cfg.JWTExpiry
	}

	token, err := auth.GenerateToken(cfg.JWTSecret, *owner, *expiry)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}
	fmt.Println(token)
}
