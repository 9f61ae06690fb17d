package service_test

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yeisme/tagstore/pkg/configs"
	ctxPkg "github.com/yeisme/tagstore/pkg/context"
	"github.com/yeisme/tagstore/pkg/internal/service"
	kvc "github.com/yeisme/tagstore/pkg/internal/storage/kv"
	"github.com/yeisme/tagstore/pkg/internal/storage/storagetest"
	"github.com/yeisme/tagstore/pkg/internal/types"
)

func ptr(s string) *string { return &s }

func collect(t *testing.T, s *service.ArchiveService, e *env, items []types.ArchiveItem) ([][]byte, []byte) {
	t.Helper()

	var (
		chunks [][]byte
		all    []byte
	)

	for chunk, err := range s.Stream(e.ctx, items) {
		if err != nil {
			t.Fatalf("stream: %v", err)
		}

		chunks = append(chunks, chunk)
		all = append(all, chunk...)
	}

	return chunks, all
}

func TestArchiveEmpty(t *testing.T) {
	e := newEnv(t)
	s := service.NewArchiveService(e.ctx)

	chunks, all := collect(t, s, e, nil)
	if len(chunks) != 1 || len(all) != service.EOCDSize {
		t.Fatalf("chunks = %d, bytes = %d; want one chunk of %d", len(chunks), len(all), service.EOCDSize)
	}

	size, err := s.EstimateSize(e.ctx, nil)
	if err != nil || size != service.EOCDSize {
		t.Errorf("estimate = %d, %v", size, err)
	}
}

func TestArchiveLocalBlobsMatchEstimate(t *testing.T) {
	e := newEnv(t)
	s := service.NewArchiveService(e.ctx)

	contents := map[string]string{
		"docs/a.txt": "first file",
		"b.bin":      strings.Repeat("x", 5000),
	}

	var items []types.ArchiveItem

	for _, name := range []string{"docs/a.txt", "b.bin"} {
		up, err := e.blobs.Upload(e.ctx, strings.NewReader(contents[name]), name, "", "")
		if err != nil {
			t.Fatalf("upload: %v", err)
		}

		d := e.create(t, up.URI)
		items = append(items, types.ArchiveItem{ID: d.ID, Path: ptr(name)})
	}

	skipped := e.create(t, "http://example.org/never-fetched")
	items = append(items,
		types.ArchiveItem{ID: skipped.ID, Path: nil},
		types.ArchiveItem{ID: 999, Path: ptr("ghost")},
	)

	size, err := s.EstimateSize(e.ctx, items)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}

	want := int64(service.EOCDSize)
	for name, body := range contents {
		want += int64(service.EntryOverhead + 2*len(name) + len(body))
	}

	if size != want {
		t.Errorf("estimate = %d, want %d", size, want)
	}

	_, all := collect(t, s, e, items)
	if int64(len(all)) != size {
		t.Errorf("streamed %d bytes, estimate %d", len(all), size)
	}

	zr, err := zip.NewReader(bytes.NewReader(all), int64(len(all)))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}

	if len(zr.File) != 2 {
		t.Fatalf("entries = %d, want 2", len(zr.File))
	}

	for _, f := range zr.File {
		if f.Method != zip.Store {
			t.Errorf("%s method = %d", f.Name, f.Method)
		}

		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}

		body, _ := io.ReadAll(rc)
		_ = rc.Close()

		if string(body) != contents[f.Name] {
			t.Errorf("%s = %q", f.Name, body)
		}
	}
}

func TestArchiveSkipsFailedRemoteFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := "remote body"

		if r.URL.Path == "/broken" && r.Method == http.MethodGet {
			http.Error(w, "gone", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Length", "11")

		if r.Method == http.MethodGet {
			_, _ = io.WriteString(w, body)
		}
	}))
	defer srv.Close()

	e := newEnv(t)
	s := service.NewArchiveService(e.ctx)

	ok := e.create(t, srv.URL+"/ok")
	broken := e.create(t, srv.URL+"/broken")

	items := []types.ArchiveItem{
		{ID: ok.ID, Path: ptr("ok.txt")},
		{ID: broken.ID, Path: ptr("broken.txt")},
	}

	size, err := s.EstimateSize(e.ctx, items)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}

	_, all := collect(t, s, e, items)
	if int64(len(all)) > size {
		t.Fatalf("streamed %d bytes over bound %d", len(all), size)
	}

	zr, err := zip.NewReader(bytes.NewReader(all), int64(len(all)))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}

	if len(zr.File) != 1 || zr.File[0].Name != "ok.txt" {
		t.Errorf("entries = %+v", zr.File)
	}
}

func TestArchiveEarlyBreakCleansScratch(t *testing.T) {
	e := newEnv(t)
	s := service.NewArchiveService(e.ctx)

	up, err := e.blobs.Upload(e.ctx, strings.NewReader(strings.Repeat("y", 64<<10)), "big", "", "")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	d := e.create(t, up.URI)

	for _, err := range s.Stream(e.ctx, []types.ArchiveItem{{ID: d.ID, Path: ptr("big")}}) {
		if err != nil {
			t.Fatalf("stream: %v", err)
		}

		break
	}

	left, err := os.ReadDir(e.cfg.Archive.ScratchDir)
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}

	if len(left) != 0 {
		t.Errorf("scratch files left behind: %v", left)
	}
}

func TestArchiveHeadCacheExpires(t *testing.T) {
	var heads atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads.Add(1)
		}

		w.Header().Set("Content-Length", "4")
	}))
	defer srv.Close()

	cfg := storagetest.Config(t)
	cfg.KV.Type = configs.KVTypeMemory
	cfg.Archive.HeadCacheTTL = 150 * time.Millisecond

	mgr := storagetest.New(t, cfg)

	kv, err := kvc.NewKVClient(context.Background(), &cfg.KV)
	if err != nil {
		t.Fatalf("kv: %v", err)
	}

	mgr.KV = kv

	ctx := ctxPkg.WithStorageManager(context.Background(), mgr)
	data := service.NewDataService(ctx)
	s := service.NewArchiveService(ctx)

	d, err := data.Create(ctx, &types.CreateDatumRequest{URI: srv.URL + "/r"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	items := []types.ArchiveItem{{ID: d.ID, Path: ptr("r.txt")}}
	want := int64(service.EOCDSize + service.EntryOverhead + 2*len("r.txt") + 4)

	for i, wait := range []time.Duration{0, 0, 250 * time.Millisecond} {
		time.Sleep(wait)

		size, err := s.EstimateSize(ctx, items)
		if err != nil || size != want {
			t.Fatalf("estimate %d = %d, %v; want %d", i, size, err, want)
		}
	}

	if got := heads.Load(); got != 2 {
		t.Errorf("HEAD requests = %d, want 2 (cached once, refetched after expiry)", got)
	}
}
