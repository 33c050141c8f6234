// Package watch implements automatic folder processing: a watched input
// directory is monitored for new images, which are queued and pushed through
// the background-removal pipeline one at a time, with processed results
// written to an output directory. Files already present when the session
// starts are left alone.
package watch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/removin/removin/internal/filehandler"
	"github.com/removin/removin/internal/imaging"
	"github.com/removin/removin/internal/objectstore"
	"github.com/removin/removin/internal/procerr"
)

const (
	// itemDelay spaces out gateway submissions (6 per minute).
	itemDelay = 10 * time.Second

	// rateLimitCooldown is the extra pause after an upstream rate limit.
	rateLimitCooldown = 5 * time.Second

	// idleTick is how often the consumer checks an empty queue.
	idleTick = time.Second
)

// Gateway is the API surface the session needs. *apiclient.Client
// implements it.
type Gateway interface {
	HasToken(ctx context.Context) (bool, error)
	RemoveBackground(ctx context.Context, imageURL, modelVersion string) (string, error)
}

// Config describes one watch session. WhiteBackground and ModelVersion are
// read per item, so option changes apply to files not yet processed.
type Config struct {
	UID       string
	InputDir  string
	OutputDir string

	WhiteBackground func() bool
	ModelVersion    func() string
}

// Counters summarizes a session's work.
type Counters struct {
	Processed int64
	Failed    int64
}

// Session monitors one input directory and processes arrivals serially.
type Session struct {
	cfg     Config
	gateway Gateway
	storage objectstore.Storage
	watcher Watcher
	queue   *queue

	delay    time.Duration
	cooldown time.Duration
	tick     time.Duration
	now      func() time.Time
	wait     func(ctx context.Context, d time.Duration) bool
	fetch    func(ctx context.Context, url string) ([]byte, error)

	active    atomic.Bool
	processed atomic.Int64
	failed    atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates a session over the given collaborators.
func NewSession(cfg Config, gateway Gateway, storage objectstore.Storage, watcher Watcher) *Session {
	if cfg.WhiteBackground == nil {
		cfg.WhiteBackground = func() bool { return false }
	}
	if cfg.ModelVersion == nil {
		cfg.ModelVersion = func() string { return "" }
	}
	return &Session{
		cfg:      cfg,
		gateway:  gateway,
		storage:  storage,
		watcher:  watcher,
		queue:    newQueue(),
		delay:    itemDelay,
		cooldown: rateLimitCooldown,
		tick:     idleTick,
		now:      time.Now,
		wait:     sleepCtx,
		fetch:    fetchURL,
	}
}

// Start validates the configuration, snapshots the baseline, and begins
// watching and processing. It returns once monitoring is running.
func (s *Session) Start(ctx context.Context) error {
	if s.active.Load() {
		return fmt.Errorf("session already running")
	}

	if s.cfg.InputDir == "" || s.cfg.OutputDir == "" {
		return procerr.New(procerr.KindValidation, "input and output folders are required")
	}
	if filepath.Clean(s.cfg.InputDir) == filepath.Clean(s.cfg.OutputDir) {
		return procerr.New(procerr.KindValidation, "input and output folders must differ")
	}
	for _, dir := range []string{s.cfg.InputDir, s.cfg.OutputDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return procerr.New(procerr.KindValidation, "not a directory: %s", dir)
		}
	}

	has, err := s.gateway.HasToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to check credential: %w", err)
	}
	if !has {
		return procerr.New(procerr.KindCredentialMissing,
			"no inference token configured; add one before watching")
	}

	// Files already present are the baseline and are never processed.
	baseline, err := snapshot(s.cfg.InputDir)
	if err != nil {
		return err
	}
	for _, name := range baseline {
		s.queue.MarkKnown(name)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.active.Store(true)

	go func() {
		if err := s.watcher.Watch(runCtx, s.cfg.InputDir, s.enqueue); err != nil && runCtx.Err() == nil {
			log.Error().Err(err).Msg("Folder watcher stopped unexpectedly")
		}
	}()
	go s.consume(runCtx)

	log.Info().
		Str("input", s.cfg.InputDir).
		Str("output", s.cfg.OutputDir).
		Int("baseline", len(baseline)).
		Msg("Folder watch started")
	return nil
}

// Stop halts monitoring, drops everything still queued, and returns the
// session's counters. Files dropped here stay skipped if the session is
// restarted, since the queue remembers them.
func (s *Session) Stop() Counters {
	if !s.active.Swap(false) {
		return s.Counters()
	}
	s.cancel()
	s.queue.Clear()
	<-s.done

	c := s.Counters()
	log.Info().
		Int64("processed", c.Processed).
		Int64("failed", c.Failed).
		Msg("Folder watch stopped")
	return c
}

// Counters returns the running totals.
func (s *Session) Counters() Counters {
	return Counters{Processed: s.processed.Load(), Failed: s.failed.Load()}
}

// Pending reports the queue depth.
func (s *Session) Pending() int {
	return s.queue.Len()
}

func (s *Session) enqueue(name string) {
	if !s.active.Load() {
		return
	}
	if s.queue.Offer(name) {
		log.Info().Str("file", name).Msg("Queued new file")
	}
}

// consume drains the queue one item at a time. A fixed delay between items
// keeps the submission rate under the gateway's limit, and a rate-limit
// response adds a cooldown on top.
func (s *Session) consume(ctx context.Context) {
	defer close(s.done)

	for {
		if ctx.Err() != nil {
			return
		}

		name, ok := s.queue.Pop()
		if !ok {
			if !s.wait(ctx, s.tick) {
				return
			}
			continue
		}
		// Stop may have cleared the queue between Pop attempts.
		if !s.active.Load() {
			return
		}

		// Stop cancels ctx to halt the watcher and cut sleeps short, but an
		// item already being processed runs to completion: the item context
		// survives the cancel so its network calls are not aborted mid-flight.
		if err := s.processItem(context.WithoutCancel(ctx), name); err != nil {
			s.failed.Add(1)
			log.Warn().Err(err).Str("file", name).Msg("File failed")
			if procerr.KindOf(err) == procerr.KindRateLimited {
				if !s.wait(ctx, s.cooldown) {
					return
				}
			}
		} else {
			s.processed.Add(1)
			log.Info().Str("file", name).Msg("File processed")
		}

		if !s.wait(ctx, s.delay) {
			return
		}
	}
}

// processItem pushes one file through the pipeline: validate, upload,
// remove background, optionally flatten onto white, write the result.
func (s *Session) processItem(ctx context.Context, name string) error {
	src := filepath.Join(s.cfg.InputDir, name)

	info, err := os.Stat(src)
	if err != nil {
		return procerr.Wrap(procerr.KindValidation, err, "file disappeared before processing")
	}
	if err := filehandler.ValidateImage(name, info.Size()); err != nil {
		return procerr.Wrap(procerr.KindValidation, err, "invalid image")
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return procerr.Wrap(procerr.KindValidation, err, "failed to read image")
	}

	mime, _ := filehandler.MIMEType(filepath.Ext(name))
	key := path.Join(s.cfg.UID, "auto",
		fmt.Sprintf("%d_%s", s.now().Unix(), filehandler.SanitizeName(name)))
	if err := s.storage.Upload(ctx, key, data, mime); err != nil {
		return procerr.Wrap(procerr.KindUploadFailed, err, "failed to upload image")
	}

	url, err := s.storage.PublicURL(ctx, key)
	if err != nil {
		return procerr.Wrap(procerr.KindUploadFailed, err, "failed to resolve image URL")
	}

	outURL, err := s.gateway.RemoveBackground(ctx, url, s.cfg.ModelVersion())
	if err != nil {
		return err
	}

	out, err := s.fetch(ctx, outURL)
	if err != nil {
		return procerr.Wrap(procerr.KindNetworkError, err, "failed to download result")
	}

	ext := ".png"
	if s.cfg.WhiteBackground() {
		flattened, err := imaging.FlattenWhite(out)
		if err != nil {
			return fmt.Errorf("failed to flatten background: %w", err)
		}
		out = flattened
		ext = ".jpg"
	}

	outName := filehandler.ReplaceExt(filehandler.SanitizeName(name), ext)
	if err := os.WriteFile(filepath.Join(s.cfg.OutputDir, outName), out, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	// The uploaded source is only needed for the duration of the inference.
	if err := s.storage.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to delete uploaded source")
	}

	if meta, err := filehandler.ExtractImageMetadata(src); err == nil && meta != nil {
		log.Debug().
			Str("file", name).
			Str("camera", meta.CameraMake+" "+meta.CameraModel).
			Msg("Source metadata")
	}
	return nil
}

// sleepCtx waits d unless ctx is done first; false means the wait was cut
// short by cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// maxResultBytes caps a downloaded inference result. Outputs larger than
// twice the upload limit are rejected rather than written truncated.
const maxResultBytes = filehandler.MaxImageBytes * 2

func fetchURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}
	return readAllLimited(resp.Body, maxResultBytes)
}

// readAllLimited reads r fully, failing when it holds more than limit bytes.
func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("result exceeds %d bytes", limit)
	}
	return data, nil
}
