package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assess/internal/config"
	"github.com/stemsi/exstem-assess/internal/logger"
	"github.com/stemsi/exstem-assess/internal/model"
	"github.com/stemsi/exstem-assess/internal/service"
	"golang.org/x/term"
)

// issue-token signs a bearer token with the API secret, for local testing
// and operator scripts that act on behalf of a user.
func main() {
	var (
		role         string
		userID       string
		ttl          time.Duration
		promptSecret bool
	)
	flag.StringVar(&role, "role", "", "Role: student, instructor or admin")
	flag.StringVar(&userID, "user", "", "User ID (default: random)")
	flag.DurationVar(&ttl, "ttl", 0, "Token lifetime (default: JWT_EXPIRY_HOURS)")
	flag.BoolVar(&promptSecret, "prompt-secret", false, "Read the signing secret from the terminal instead of JWT_SECRET")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	if role == "" {
		fmt.Fprint(os.Stderr, "Enter Role (student/instructor/admin): ")
		role, _ = reader.ReadString('\n')
		role = strings.TrimSpace(role)
	}
	actorRole := model.Role(role)
	if !actorRole.Valid() {
		fmt.Fprintf(os.Stderr, "Error: unknown role %q\n", role)
		os.Exit(2)
	}

	id := uuid.New()
	if userID != "" {
		parsed, err := uuid.Parse(userID)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error: user must be a UUID")
			os.Exit(2)
		}
		id = parsed
	}

	secret := cfg.JWTSecret
	if promptSecret {
		fmt.Fprint(os.Stderr, "Enter Signing Secret: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read secret")
		}
		secret = strings.TrimSpace(string(raw))
	}
	if len(secret) < 16 {
		fmt.Fprintln(os.Stderr, "Error: signing secret must be at least 16 characters")
		os.Exit(2)
	}

	expiry := cfg.JWTExpiry
	if ttl > 0 {
		expiry = ttl
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	authService := service.NewAuthService(secret, expiry, nil)
	token, err := authService.Issue(model.Actor{UserID: id, Role: actorRole}, time.Now().UTC())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	fmt.Fprintf(os.Stderr, "Issued %s token for user %s, valid for %s\n", actorRole, id, expiry)
	fmt.Println(token)
}
