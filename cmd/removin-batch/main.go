package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/removin/removin/internal/apiclient"
	"github.com/removin/removin/internal/batch"
	"github.com/removin/removin/internal/config"
	"github.com/removin/removin/internal/logging"
	"github.com/removin/removin/internal/objectstore"
)

var (
	modelFlag string
	zipFlag   string
	uidFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "removin-batch [files...]",
	Short: "Remove backgrounds from a batch of images",
	Long: `Removin Batch uploads the given images, removes their backgrounds via
the Removin gateway, and prints the processed image URLs. Without file
arguments a file picker dialog opens.

Examples:
  removin-batch photo1.jpg photo2.png
  removin-batch --zip results.zip *.jpg
  removin-batch --model e56ae2bc`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Removal model version (default: gateway default)")
	rootCmd.Flags().StringVar(&zipFlag, "zip", "", "Bundle processed images into a ZIP at this path")
	rootCmd.Flags().StringVar(&uidFlag, "uid", "", "User id for storage keys (default: REMOVIN_DEV_UID)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	logging.Init()
	cfg := config.Load()

	paths := args
	if len(paths) == 0 {
		var err error
		paths, err = pickFiles()
		if err != nil {
			log.Fatal().Err(err).Msg("File selection failed")
		}
	}
	if len(paths) == 0 {
		log.Fatal().Msg("No files selected")
	}

	images := make([]*batch.LocalImage, 0, len(paths))
	for _, p := range paths {
		img, err := batch.NewLocalImage(p)
		if err != nil {
			log.Fatal().Err(err).Str("path", p).Msg("Cannot read file")
		}
		images = append(images, img)
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

	has, err := client.HasToken(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to reach the gateway")
	}
	if !has {
		log.Fatal().Msg("No inference token configured; save one via the gateway first")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	storage := objectstore.NewS3Storage(s3.NewFromConfig(awsCfg), cfg.S3Bucket)

	processor := batch.NewProcessor(storage, client)
	result, err := processor.Process(ctx, uid, images, batch.Options{
		ModelVersion: modelFlag,
		OnProgress: func(completed, total int) {
			fmt.Printf("  %d/%d processed\n", completed, total)
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Batch failed")
	}

	for _, item := range result.Items {
		if item.Err != nil {
			fmt.Printf("  FAILED  %s: %v\n", item.Image.Name, item.Err)
			continue
		}
		fmt.Printf("  OK      %s -> %s\n", item.Image.Name, item.OutputURL)
	}

	succeeded := result.Succeeded()
	fmt.Printf("\n%d of %d images processed\n", len(succeeded), len(result.Items))

	if zipFlag != "" && len(succeeded) > 0 {
		if err := writeBundle(ctx, result, zipFlag); err != nil {
			log.Fatal().Err(err).Msg("Failed to write bundle")
		}
		fmt.Printf("Bundle written to %s\n", zipFlag)
	}

	if len(succeeded) < len(result.Items) {
		os.Exit(1)
	}
}

func pickFiles() ([]string, error) {
	selected, err := zenity.SelectFileMultiple(
		zenity.Title("Select images"),
		zenity.FileFilters{
			{Name: "Images", Patterns: []string{"*.jpg", "*.jpeg", "*.png", "*.webp"}, CaseFold: true},
		})
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return nil, nil
		}
		return nil, err
	}
	return selected, nil
}

func writeBundle(ctx context.Context, result *batch.Result, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bundleCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	return batch.NewBundler().Write(bundleCtx, result.Items, f)
}

// idTokenSource reads the identity token per request so a token refreshed
// mid-run is picked up.
func idTokenSource() apiclient.TokenSource {
	return func() string {
		if t := os.Getenv("REMOVIN_ID_TOKEN"); t != "" {
			return t
		}
		return "dev"
	}
}
