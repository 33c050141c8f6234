package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/removin/removin/internal/apiclient"
	"github.com/removin/removin/internal/config"
	"github.com/removin/removin/internal/logging"
	"github.com/removin/removin/internal/objectstore"
	"github.com/removin/removin/internal/watch"
)

var (
	inputFlag   string
	outputFlag  string
	whiteBgFlag bool
	modelFlag   string
	uidFlag     string
	pollFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "removin-watch",
	Short: "Watch a folder and remove backgrounds automatically",
	Long: `Removin Watch monitors an input folder and pushes every newly added
image through background removal, writing results to an output folder.
Images already in the folder when watching starts are left alone.

Directories not given as flags are chosen via folder picker dialogs.

Examples:
  removin-watch --input ~/Drop --output ~/Done
  removin-watch --white-bg
  removin-watch --poll`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&inputFlag, "input", "i", "", "Folder to watch")
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Folder for processed images")
	rootCmd.Flags().BoolVar(&whiteBgFlag, "white-bg", false, "Flatten results onto a white background (JPEG output)")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Removal model version (default: gateway default)")
	rootCmd.Flags().StringVar(&uidFlag, "uid", "", "User id for storage keys (default: REMOVIN_DEV_UID)")
	rootCmd.Flags().BoolVar(&pollFlag, "poll", false, "Force polling instead of filesystem notifications")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	logging.Init()
	cfg := config.Load()

	input, err := resolveDir(inputFlag, "Select folder to watch")
	if err != nil {
		log.Fatal().Err(err).Msg("Input folder selection failed")
	}
	output, err := resolveDir(outputFlag, "Select output folder")
	if err != nil {
		log.Fatal().Err(err).Msg("Output folder selection failed")
	}

	uid := uidFlag
	if uid == "" {
		uid = cfg.DevUserID
	}
	if uid == "" {
		uid = "dev-user"
	}

	ctx := context.Background()
	client := apiclient.New(cfg.GatewayURL, idTokenSource())

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	storage := objectstore.NewS3Storage(s3.NewFromConfig(awsCfg), cfg.S3Bucket)

	session := watch.NewSession(watch.Config{
		UID:             uid,
		InputDir:        input,
		OutputDir:       output,
		WhiteBackground: func() bool { return whiteBgFlag },
		ModelVersion:    func() string { return modelFlag },
	}, client, storage, pickWatcher())

	if err := session.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start watching")
	}

	fmt.Printf("\n  Watching %s -> %s (Ctrl-C to stop)\n\n", input, output)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	counters := session.Stop()
	fmt.Printf("\n%d processed, %d failed\n", counters.Processed, counters.Failed)
}

// pickWatcher prefers filesystem notifications, falling back to polling
// where they are unavailable (some network mounts).
func pickWatcher() watch.Watcher {
	if pollFlag {
		return &watch.PollingWatcher{}
	}
	notifying := &watch.NotifyingWatcher{}
	if !notifying.Available() {
		log.Warn().Msg("Filesystem notifications unavailable, using polling")
		return &watch.PollingWatcher{}
	}
	return notifying
}

func resolveDir(flag, title string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	dir, err := zenity.SelectFile(zenity.Directory(), zenity.Title(title))
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", fmt.Errorf("no folder selected")
		}
		return "", err
	}
	return dir, nil
}

func idTokenSource() apiclient.TokenSource {
	return func() string {
		if t := os.Getenv("REMOVIN_ID_TOKEN"); t != "" {
			return t
		}
		return "dev"
	}
}
