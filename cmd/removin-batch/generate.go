package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/removin/removin/internal/apiclient"
	"github.com/removin/removin/internal/config"
	"github.com/removin/removin/internal/logging"
)

var (
	negativeFlag string
	widthFlag    int
	heightFlag   int
	stepsFlag    int
	guidanceFlag float64
	seedFlag     int64
)

var generateCmd = &cobra.Command{
	Use:   "generate <prompt...>",
	Short: "Generate an image from a text prompt",
	Long: `Generate submits a text-to-image request to the Removin gateway and
prints the resulting image URL.

Examples:
  removin-batch generate a red fox in snow
  removin-batch generate --steps 40 --seed 7 "studio product shot"`,
	Args: cobra.MinimumNArgs(1),
	Run:  runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&negativeFlag, "negative", "", "Negative prompt (default: gateway default)")
	generateCmd.Flags().IntVar(&widthFlag, "width", 0, "Output width in pixels (default: gateway default)")
	generateCmd.Flags().IntVar(&heightFlag, "height", 0, "Output height in pixels (default: gateway default)")
	generateCmd.Flags().IntVar(&stepsFlag, "steps", 0, "Inference steps (default: gateway default)")
	generateCmd.Flags().Float64Var(&guidanceFlag, "guidance", 0, "Guidance scale (default: gateway default)")
	generateCmd.Flags().Int64Var(&seedFlag, "seed", -1, "Random seed; -1 picks one server-side")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) {
	logging.Init()
	cfg := config.Load()

	prompt := strings.Join(args, " ")

	ctx := context.Background()
	client := apiclient.New(cfg.GatewayURL, idTokenSource())

	has, err := client.HasToken(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to reach the gateway")
	}
	if !has {
		log.Fatal().Msg("No inference token configured; save one via the gateway first")
	}

	opts := apiclient.GenerateOptions{
		NegativePrompt: negativeFlag,
		Width:          widthFlag,
		Height:         heightFlag,
		Steps:          stepsFlag,
		Guidance:       guidanceFlag,
	}
	if seedFlag >= 0 {
		seed := seedFlag
		opts.Seed = &seed
	}

	url, err := client.GenerateImage(ctx, prompt, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Generation failed")
	}
	fmt.Println(url)
}
