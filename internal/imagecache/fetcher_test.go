package imagecache

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rik-org/riklet/internal/config"
	"github.com/rik-org/riklet/internal/model"
	"github.com/rik-org/riklet/internal/rikerr"
)

func newFetcher(t *testing.T, cacheRoot string) *Fetcher {
	t.Helper()
	logger := config.NewLogger(io.Discard, -1)
	return New(cacheRoot, 5*time.Second, logger)
}

func funcWorkload(name, url string) *model.WorkloadDefinition {
	return &model.WorkloadDefinition{
		APIVersion: model.APIVersion,
		Kind:       model.KindFunction,
		Name:       name,
		Spec: model.WorkloadSpecBody{
			Function: &model.FunctionSpec{RootfsURL: url},
		},
	}
}

func TestEnsureRootfsDownloadsAndCaches(t *testing.T) {
	body := []byte("fake rootfs contents")
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))
	defer ts.Close()

	cacheRoot := t.TempDir()
	f := newFetcher(t, cacheRoot)
	w := funcWorkload("hello", ts.URL)

	path, err := f.EnsureRootfs(context.Background(), w)
	if err != nil {
		t.Fatalf("EnsureRootfs: %v", err)
	}
	want := filepath.Join(cacheRoot, "hello", RootfsFilename)
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cached file: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("cached contents = %q, want %q", got, body)
	}

	// Cache hit: a second call returns the same path without a new request.
	path2, err := f.EnsureRootfs(context.Background(), w)
	if err != nil {
		t.Fatalf("second EnsureRootfs: %v", err)
	}
	if path2 != path {
		t.Errorf("second path = %q, want %q", path2, path)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("registry hits = %d, want 1 (cache hit should not re-fetch)", hits)
	}
}

func TestEnsureRootfsHTTPErrorCleansUpDownloadDir(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	cacheRoot := t.TempDir()
	f := newFetcher(t, cacheRoot)
	w := funcWorkload("hello", ts.URL)

	_, err := f.EnsureRootfs(context.Background(), w)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var rerr *rikerr.Error
	if !rikerr.As(err, &rerr) || rerr.Class != rikerr.Http || rerr.Code != http.StatusInternalServerError {
		t.Fatalf("err = %v, want Http(500)", err)
	}

	if _, statErr := os.Stat(filepath.Join(cacheRoot, "hello")); !os.IsNotExist(statErr) {
		t.Errorf("download directory should not exist after failed fetch, stat err = %v", statErr)
	}
}

func TestEnsureRootfsConcurrentSameURLFetchesOnce(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("shared rootfs"))
	}))
	defer ts.Close()

	cacheRoot := t.TempDir()
	f := newFetcher(t, cacheRoot)

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := funcWorkload("shared", ts.URL)
			_, errs[i] = f.EnsureRootfs(context.Background(), w)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: %v", i, err)
		}
	}
	if h := atomic.LoadInt32(&hits); h < 1 || h > 2 {
		t.Errorf("registry hits = %d, want 1 or 2 (serialized per URL, at most a benign redundant fetch)", h)
	}
}

func TestEnsureRootfsMissingURLIsParsingError(t *testing.T) {
	f := newFetcher(t, t.TempDir())
	w := &model.WorkloadDefinition{APIVersion: model.APIVersion, Kind: model.KindFunction, Name: "no-url"}

	_, err := f.EnsureRootfs(context.Background(), w)
	if rikerr.ClassOf(err) != rikerr.Parsing {
		t.Errorf("ClassOf(err) = %v, want Parsing", rikerr.ClassOf(err))
	}
}
