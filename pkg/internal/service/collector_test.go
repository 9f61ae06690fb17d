package service_test

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/yeisme/tagstore/pkg/internal/service"
	"github.com/yeisme/tagstore/pkg/internal/storage/blob"
)

func (e *env) upload(t *testing.T, body string) string {
	t.Helper()

	up, err := e.blobs.Upload(e.ctx, strings.NewReader(body), "f.txt", "", "")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	label, _ := blob.LabelFromURI(up.URI)

	return label
}

func TestCollectHonoursGraceAndReferences(t *testing.T) {
	e := newEnv(t)
	past := time.Now().Add(-61 * time.Second)

	stale := e.upload(t, "stale")
	referenced := e.upload(t, "referenced")
	fresh := e.upload(t, "fresh")

	for _, label := range []string{stale, referenced} {
		if err := e.mgr.Blob.Touch(e.ctx, label, past); err != nil {
			t.Fatalf("touch: %v", err)
		}
	}

	e.create(t, "https://store.example.org"+blob.OFSPath+referenced)

	res, err := service.NewCollector(e.ctx).Collect(e.ctx, time.Minute)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	if !slices.Equal(res.Deleted, []string{stale}) {
		t.Errorf("deleted = %v, want [%s]", res.Deleted, stale)
	}

	if res.Referenced != 1 || res.Retained != 1 {
		t.Errorf("result = %+v", res)
	}

	for label, want := range map[string]bool{stale: false, referenced: true, fresh: true} {
		if ok, _ := e.mgr.Blob.Exists(e.ctx, label); ok != want {
			t.Errorf("%s exists = %v, want %v", label, ok, want)
		}
	}
}

func TestCollectKeepsUnparseableMetadata(t *testing.T) {
	e := newEnv(t)
	label := e.upload(t, "odd")

	marker := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := e.mgr.Blob.Touch(e.ctx, label, marker); err != nil {
		t.Fatalf("touch: %v", err)
	}

	path := filepath.Join(e.cfg.Blob.Root, e.cfg.Blob.Bucket+".index.json")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read index: %v", err)
	}

	data = bytes.Replace(data, []byte(marker.Format(blob.TimeLayout)), []byte("last tuesday"), 1)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}

	res, err := service.NewCollector(e.ctx).Collect(e.ctx, 0)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	if len(res.Deleted) != 0 || res.Retained != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestCollectEmptyStore(t *testing.T) {
	e := newEnv(t)

	res, err := service.NewCollector(e.ctx).Collect(e.ctx, time.Hour)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	if res.Deleted == nil || len(res.Deleted) != 0 {
		t.Errorf("deleted = %#v, want empty slice", res.Deleted)
	}
}
