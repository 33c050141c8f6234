package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/removin/removin/internal/filehandler"
	"github.com/removin/removin/internal/imaging"
	"github.com/removin/removin/internal/logging"
)

// maxCompressFiles matches the batch cap applied to removal jobs.
const maxCompressFiles = 20

var (
	qualityFlag int
	outDirFlag  string
)

var compressCmd = &cobra.Command{
	Use:   "compress [files...]",
	Short: "Re-encode images as JPEG at a chosen quality",
	Long: `Compress re-encodes images locally as JPEG without calling the gateway.
Each output is written next to its source (or into --out-dir) as
compressed_<name>.jpg. Without file arguments a file picker dialog opens.

Examples:
  removin-batch compress photo1.png photo2.jpg
  removin-batch compress --quality 60 --out-dir ./small *.png`,
	Run: runCompress,
}

func init() {
	compressCmd.Flags().IntVarP(&qualityFlag, "quality", "q", imaging.DefaultCompressQuality, "JPEG quality (1-100)")
	compressCmd.Flags().StringVar(&outDirFlag, "out-dir", "", "Directory for compressed files (default: next to each source)")
	rootCmd.AddCommand(compressCmd)
}

func runCompress(cmd *cobra.Command, args []string) {
	logging.Init()

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
	if len(paths) > maxCompressFiles {
		log.Fatal().Int("count", len(paths)).Msgf("Too many files; limit is %d", maxCompressFiles)
	}

	if outDirFlag != "" {
		if err := os.MkdirAll(outDirFlag, 0o755); err != nil {
			log.Fatal().Err(err).Msg("Cannot create output directory")
		}
	}

	failed := 0
	for _, p := range paths {
		outPath, saved, err := compressFile(p, qualityFlag)
		if err != nil {
			fmt.Printf("  FAILED  %s: %v\n", filepath.Base(p), err)
			failed++
			continue
		}
		fmt.Printf("  OK      %s -> %s (%s)\n", filepath.Base(p), outPath, saved)
	}

	fmt.Printf("\n%d of %d images compressed\n", len(paths)-failed, len(paths))
	if failed > 0 {
		os.Exit(1)
	}
}

// compressFile re-encodes one image and reports the output path plus a
// human-readable size delta.
func compressFile(path string, quality int) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}

	out, err := imaging.CompressJPEG(data, quality)
	if err != nil {
		return "", "", err
	}

	base := filehandler.ReplaceExt(filepath.Base(path), ".jpg")
	name := "compressed_" + filehandler.SanitizeName(base)
	dir := outDirFlag
	if dir == "" {
		dir = filepath.Dir(path)
	}
	outPath := filepath.Join(dir, name)
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return "", "", err
	}

	return outPath, sizeDelta(len(data), len(out)), nil
}

func sizeDelta(before, after int) string {
	if before == 0 {
		return fmt.Sprintf("%d bytes", after)
	}
	pct := float64(after-before) / float64(before) * 100
	sign := ""
	if pct > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%d -> %d bytes, %s%.0f%%", before, after, sign, pct)
}
