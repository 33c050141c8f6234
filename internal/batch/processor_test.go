package batch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/removin/removin/internal/filehandler"
	"github.com/removin/removin/internal/objectstore"
	"github.com/removin/removin/internal/procerr"
)

// fakeRemover returns a deterministic output URL, or an error for URLs
// containing a marker.
type fakeRemover struct {
	mu       sync.Mutex
	calls    []string
	failWhen string
	err      error
}

func (f *fakeRemover) RemoveBackground(_ context.Context, imageURL, _ string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, imageURL)
	f.mu.Unlock()
	if f.failWhen != "" && strings.Contains(imageURL, f.failWhen) {
		return "", f.err
	}
	return imageURL + "?processed", nil
}

func writeTestImage(t *testing.T, dir, name string) *LocalImage {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("imagedata"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	img, err := NewLocalImage(p)
	if err != nil {
		t.Fatalf("NewLocalImage: %v", err)
	}
	return img
}

func TestProcessChunksAndProgress(t *testing.T) {
	dir := t.TempDir()
	images := []*LocalImage{
		writeTestImage(t, dir, "a.png"),
		writeTestImage(t, dir, "b.jpg"),
		writeTestImage(t, dir, "c.webp"),
		writeTestImage(t, dir, "d.jpeg"),
	}

	storage := objectstore.NewMemoryStorage()
	remover := &fakeRemover{}
	p := NewProcessor(storage, remover)

	var progress [][2]int
	result, err := p.Process(context.Background(), "user-1", images, Options{
		OnProgress: func(completed, total int) {
			progress = append(progress, [2]int{completed, total})
		},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(result.Items) != 4 {
		t.Fatalf("got %d items, want 4", len(result.Items))
	}
	for i, item := range result.Items {
		if item.Err != nil {
			t.Errorf("item %d failed: %v", i, item.Err)
		}
		if item.Image != images[i] {
			t.Errorf("item %d out of order", i)
		}
		if !strings.HasSuffix(item.OutputURL, "?processed") {
			t.Errorf("item %d outputUrl = %q", i, item.OutputURL)
		}
	}

	// 4 images in chunks of 3 report progress twice.
	want := [][2]int{{3, 4}, {4, 4}}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("progress[%d] = %v, want %v", i, progress[i], want[i])
		}
	}

	if storage.Len() != 4 {
		t.Errorf("storage holds %d objects, want 4", storage.Len())
	}
	for _, img := range images {
		key := "user-1/" + result.BatchID + "/" + img.ID + strings.ToLower(filepath.Ext(img.Name))
		if !storage.Has(key) {
			t.Errorf("missing storage object %s", key)
		}
	}
}

func TestProcessIsolatesInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	good := writeTestImage(t, dir, "good.png")
	badExt := writeTestImage(t, dir, "notes.txt")
	tooBig := writeTestImage(t, dir, "huge.png")
	tooBig.Size = filehandler.MaxImageBytes + 1

	storage := objectstore.NewMemoryStorage()
	remover := &fakeRemover{}
	p := NewProcessor(storage, remover)

	result, err := p.Process(context.Background(), "user-1", []*LocalImage{good, badExt, tooBig}, Options{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if result.Items[0].Err != nil {
		t.Errorf("valid image failed: %v", result.Items[0].Err)
	}
	for _, i := range []int{1, 2} {
		if result.Items[i].Err == nil {
			t.Errorf("item %d should have failed validation", i)
		}
		if kind := procerr.KindOf(result.Items[i].Err); kind != procerr.KindValidation {
			t.Errorf("item %d error kind = %v, want validation", i, kind)
		}
	}

	// Invalid files never reach storage or the gateway.
	if storage.Len() != 1 {
		t.Errorf("storage holds %d objects, want 1", storage.Len())
	}
	if len(remover.calls) != 1 {
		t.Errorf("remover called %d times, want 1", len(remover.calls))
	}
	if got := result.Succeeded(); len(got) != 1 || got[0].Image != good {
		t.Errorf("Succeeded() = %d items", len(got))
	}
}

func TestProcessIsolatesInferenceFailure(t *testing.T) {
	dir := t.TempDir()
	images := []*LocalImage{
		writeTestImage(t, dir, "first.png"),
		writeTestImage(t, dir, "flaky.png"),
		writeTestImage(t, dir, "last.png"),
	}

	storage := objectstore.NewMemoryStorage()
	remover := &fakeRemover{
		failWhen: images[1].ID,
		err:      procerr.New(procerr.KindInferenceFailed, "model crashed"),
	}
	p := NewProcessor(storage, remover)

	result, err := p.Process(context.Background(), "user-1", images, Options{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if result.Items[0].Err != nil || result.Items[2].Err != nil {
		t.Error("unrelated items failed alongside the flaky one")
	}
	if result.Items[1].Err == nil {
		t.Error("flaky item reported success")
	}
	if len(result.Succeeded()) != 2 {
		t.Errorf("Succeeded() = %d items, want 2", len(result.Succeeded()))
	}
}

func TestProcessPreconditions(t *testing.T) {
	p := NewProcessor(objectstore.NewMemoryStorage(), &fakeRemover{})

	if _, err := p.Process(context.Background(), "", []*LocalImage{{}}, Options{}); err == nil {
		t.Error("empty uid accepted")
	}
	if _, err := p.Process(context.Background(), "user-1", nil, Options{}); err == nil {
		t.Error("empty image list accepted")
	}

	oversized := make([]*LocalImage, maxBatchSize+1)
	for i := range oversized {
		oversized[i] = &LocalImage{}
	}
	if _, err := p.Process(context.Background(), "user-1", oversized, Options{}); err == nil {
		t.Error("oversized batch accepted")
	}
}

func TestProcessUploadsSnapshot(t *testing.T) {
	dir := t.TempDir()
	img := writeTestImage(t, dir, "a.png")

	// Snapshot before the original changes; Process must upload these bytes.
	snap, err := img.Preview()
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if err := os.WriteFile(img.Path, []byte("overwritten"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	storage := objectstore.NewMemoryStorage()
	p := NewProcessor(storage, &fakeRemover{})
	result, err := p.Process(context.Background(), "user-1", []*LocalImage{img}, Options{})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Items[0].Err != nil {
		t.Fatalf("item failed: %v", result.Items[0].Err)
	}

	key := "user-1/" + result.BatchID + "/" + img.ID + ".png"
	if got := string(storage.Get(key)); got != "imagedata" {
		t.Errorf("uploaded bytes = %q, want the snapshot content", got)
	}

	// Process releases the snapshot copy when done with the item.
	if _, err := os.Stat(snap); !os.IsNotExist(err) {
		t.Errorf("snapshot still exists after Process: %v", err)
	}
}

func TestPreviewLifecycle(t *testing.T) {
	dir := t.TempDir()
	img := writeTestImage(t, dir, "a.png")

	p1, err := img.Preview()
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	p2, err := img.Preview()
	if err != nil {
		t.Fatalf("second Preview: %v", err)
	}
	if p1 != p2 {
		t.Errorf("Preview not stable: %q != %q", p1, p2)
	}

	data, err := os.ReadFile(p1)
	if err != nil {
		t.Fatalf("reading preview: %v", err)
	}
	if string(data) != "imagedata" {
		t.Errorf("preview content = %q", data)
	}

	img.Release()
	img.Release() // idempotent
	if _, err := os.Stat(p1); !os.IsNotExist(err) {
		t.Errorf("preview still exists after Release: %v", err)
	}
}
