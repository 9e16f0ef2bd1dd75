package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/stemsi/speaking-test/internal/config"
	"github.com/stemsi/speaking-test/internal/service"
)

// issue-token signs a candidate token. Login lives outside this service, so
// operators and local development use this to obtain one.
func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	app := kingpin.New("issue-token", "Sign a speaking test candidate token.")
	candidateID := app.Arg("candidate-id", "Candidate identifier, used as the token subject.").Required().String()
	name := app.Flag("name", "Candidate display name.").String()
	expiry := app.Flag("expiry", "Token lifetime. Defaults to JWT_EXPIRY_HOURS.").Duration()

	if _, err := app.Parse(args); err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	cfg := config.Load()
	if *expiry > 0 {
		cfg.JWTExpiry = *expiry
	}

	token, err := service.NewAuthService(cfg).GenerateCandidateToken(*candidateID, *name)
	if err != nil {
		return fmt.Errorf("could not issue token: %w", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires: %s\n", time.Now().Add(cfg.JWTExpiry).Format(time.RFC3339))
	return nil
}
