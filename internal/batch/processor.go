// Package batch processes a user-selected set of images through the
// background-removal pipeline: each image is validated, uploaded to object
// storage, submitted to the gateway, and its outcome collected. Images are
// processed in small concurrent chunks so a large selection neither floods
// the gateway nor serializes completely.
package batch

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/removin/removin/internal/filehandler"
	"github.com/removin/removin/internal/objectstore"
	"github.com/removin/removin/internal/procerr"
)

// chunkSize is how many images are in flight at once.
const chunkSize = 3

// maxBatchSize caps one batch run.
const maxBatchSize = 20

// Remover submits a background-removal request and returns the processed
// image URL. *apiclient.Client implements it.
type Remover interface {
	RemoveBackground(ctx context.Context, imageURL, modelVersion string) (string, error)
}

// ProgressFunc receives (completed, total) after every finished chunk.
// completed reaches total exactly once.
type ProgressFunc func(completed, total int)

// ItemResult is the outcome for one image.
type ItemResult struct {
	Image     *LocalImage
	OutputURL string
	Err       error
}

// Succeeded reports whether the item produced an output image.
func (r ItemResult) Succeeded() bool {
	return r.Err == nil && r.OutputURL != ""
}

// Result is the outcome of one batch run.
type Result struct {
	BatchID string
	Items   []ItemResult
}

// Succeeded returns the items that produced an output, in input order.
func (r *Result) Succeeded() []ItemResult {
	var ok []ItemResult
	for _, item := range r.Items {
		if item.Succeeded() {
			ok = append(ok, item)
		}
	}
	return ok
}

// Options configures a batch run.
type Options struct {
	// ModelVersion selects the removal model; empty uses the gateway default.
	ModelVersion string
	// OnProgress, when set, is called after each completed chunk.
	OnProgress ProgressFunc
}

// Processor runs batches against object storage and the gateway.
type Processor struct {
	storage objectstore.Storage
	remover Remover
}

// NewProcessor creates a batch processor.
func NewProcessor(storage objectstore.Storage, remover Remover) *Processor {
	return &Processor{storage: storage, remover: remover}
}

// Process runs the batch for uid. Per-item failures are isolated into the
// item's result; Process itself only fails on bad arguments. Items appear
// in the result in input order.
func (p *Processor) Process(ctx context.Context, uid string, images []*LocalImage, opts Options) (*Result, error) {
	if uid == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no images to process")
	}
	if len(images) > maxBatchSize {
		return nil, fmt.Errorf("too many images: %d (max %d per batch)", len(images), maxBatchSize)
	}

	result := &Result{
		BatchID: uuid.NewString(),
		Items:   make([]ItemResult, len(images)),
	}

	log.Info().
		Str("batchId", result.BatchID).
		Int("count", len(images)).
		Msg("Starting batch")

	total := len(images)
	completed := 0
	for start := 0; start < total; start += chunkSize {
		end := start + chunkSize
		if end > total {
			end = total
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				result.Items[i] = p.processOne(ctx, uid, result.BatchID, images[i], opts.ModelVersion)
			}(i)
		}
		wg.Wait()

		completed = end
		if opts.OnProgress != nil {
			opts.OnProgress(completed, total)
		}
	}

	log.Info().
		Str("batchId", result.BatchID).
		Int("succeeded", len(result.Succeeded())).
		Int("total", total).
		Msg("Batch finished")
	return result, nil
}

// processOne runs the pipeline for a single image: validate, upload,
// resolve a fetchable URL, submit for processing.
func (p *Processor) processOne(ctx context.Context, uid, batchID string, img *LocalImage, modelVersion string) ItemResult {
	res := ItemResult{Image: img}

	if err := filehandler.ValidateImage(img.Name, img.Size); err != nil {
		res.Err = procerr.Wrap(procerr.KindValidation, err, "invalid image")
		return res
	}

	// Upload from a snapshot copy so an original still being written (a
	// camera import, an editor save) goes up in a consistent state.
	snap, err := img.Preview()
	if err != nil {
		res.Err = procerr.Wrap(procerr.KindValidation, err, "failed to snapshot image")
		return res
	}
	defer img.Release()

	data, err := os.ReadFile(snap)
	if err != nil {
		res.Err = procerr.Wrap(procerr.KindValidation, err, "failed to read image")
		return res
	}

	key := path.Join(uid, batchID, img.ID+strings.ToLower(filepath.Ext(img.Name)))
	if err := p.storage.Upload(ctx, key, data, img.MIME); err != nil {
		res.Err = procerr.Wrap(procerr.KindUploadFailed, err, "failed to upload image")
		return res
	}

	url, err := p.storage.PublicURL(ctx, key)
	if err != nil {
		res.Err = procerr.Wrap(procerr.KindUploadFailed, err, "failed to resolve image URL")
		return res
	}

	out, err := p.remover.RemoveBackground(ctx, url, modelVersion)
	if err != nil {
		res.Err = err
		log.Warn().Err(err).Str("file", img.Name).Msg("Image failed in batch")
		return res
	}

	res.OutputURL = out
	return res
}
