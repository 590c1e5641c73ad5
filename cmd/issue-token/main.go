// Command issue-token mints a signed candidate or reviewer token for local
// development, standing in for the identity provider.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/stemsi/bandexam-backend/internal/config"
	"github.com/stemsi/bandexam-backend/internal/logger"
	"github.com/stemsi/bandexam-backend/internal/service"
)

func main() {
	var (
		userID    int
		tokenType string
	)
	flag.IntVar(&userID, "user", 0, "User id carried by the token")
	flag.StringVar(&tokenType, "type", string(service.TokenTypeCandidate), "Token type: candidate or reviewer")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup("bandexam-issue-token", cfg.LogLevel, cfg.LogFormat)

	if userID <= 0 {
		log.Fatal().Int("user", userID).Msg("-user must be a positive id")
	}

	tt := service.TokenType(tokenType)
	if tt != service.TokenTypeCandidate && tt != service.TokenTypeReviewer {
		log.Fatal().Str("type", tokenType).Msg("Unknown token type")
	}

	// Signing does not touch Redis.
	authService := service.NewAuthService(cfg, nil)
	token, err := authService.GenerateToken(userID, tt)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	log.Info().
		Int("user_id", userID).
		Str("token_type", tokenType).
		Dur("expires_in", cfg.JWTExpiry).
		Msg("Token issued")
	fmt.Fprintln(os.Stdout, token)
}
