package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/removin/removin/internal/auth"
	"github.com/removin/removin/internal/config"
	"github.com/removin/removin/internal/logging"
	"github.com/removin/removin/internal/replicate"
	"github.com/removin/removin/internal/server"
	"github.com/removin/removin/internal/store"
)

// inferenceLimit caps inference-triggering requests per user per minute.
const inferenceLimit = 5

var (
	portFlag string
	devFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "removin-server",
	Short: "Removin inference gateway",
	Long: `Removin Server is the authenticated gateway between the Removin clients
and the inference provider. It stores each user's provider token, proxies
background-removal and image-generation requests with that token attached,
and rate-limits submissions per user.

Examples:
  removin-server
  removin-server --port 8080
  removin-server --dev`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVar(&portFlag, "port", "", "Port to listen on (overrides PORT)")
	rootCmd.Flags().BoolVar(&devFlag, "dev", false, "Run with in-memory storage and a fixed dev identity")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	start := time.Now()
	logging.Init()

	cfg := config.Load()
	if portFlag != "" {
		cfg.Port = portFlag
	}

	verifier, creds := buildCollaborators(cfg)
	srv := server.New(verifier, creds, replicate.NewClient(), inferenceLimit)
	httpSrv := srv.HTTPServer(cfg.Port)

	logging.NewStartupLogger("removin-server").
		Config("port", cfg.Port).
		DynamoTable("credentials", cfg.CredentialTable).
		Feature("devMode", devFlag).
		Feature("identityProvider", cfg.IdentityLookupURL != "").
		InitDuration(time.Since(start)).
		Log()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpSrv.Shutdown(ctx)
	}()

	log.Info().Str("port", cfg.Port).Msg("Starting gateway")
	fmt.Printf("\n  Removin gateway: http://localhost:%s\n\n", cfg.Port)

	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// buildCollaborators wires the identity verifier and credential store.
// Dev mode (or a missing identity provider) uses in-process fakes so the
// gateway runs without cloud access.
func buildCollaborators(cfg *config.Config) (auth.Verifier, store.CredentialStore) {
	var verifier auth.Verifier
	if !devFlag && cfg.IdentityLookupURL != "" {
		verifier = auth.NewHTTPVerifier(cfg.IdentityLookupURL, cfg.IdentityAPIKey)
	} else {
		uid := cfg.DevUserID
		if uid == "" {
			uid = "dev-user"
		}
		log.Warn().Str("uid", uid).Msg("Using static dev identity")
		verifier = &auth.StaticVerifier{UID: uid}
	}

	if devFlag {
		log.Warn().Msg("Using in-memory credential store")
		return verifier, store.NewMemoryStore()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	return verifier, store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.CredentialTable)
}
