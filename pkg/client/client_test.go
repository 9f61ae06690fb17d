package client_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/tagstore/pkg/api"
	"github.com/yeisme/tagstore/pkg/client"
	"github.com/yeisme/tagstore/pkg/internal/storage"
	"github.com/yeisme/tagstore/pkg/internal/storage/blob"
	"github.com/yeisme/tagstore/pkg/internal/storage/storagetest"
)

func newClient(t *testing.T, opts ...client.Option) (*client.Client, *storage.Manager, *httptest.Server) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	cfg := storagetest.Config(t)
	mgr := storagetest.New(t, cfg)

	srv := httptest.NewServer(api.NewEngine(&cfg, mgr, nil))
	t.Cleanup(srv.Close)

	opts = append([]client.Option{client.WithHTTPClient(srv.Client())}, opts...)

	return client.New(srv.URL+api.BasePath, opts...), mgr, srv
}

func tagNames(d *client.Datum) []string {
	out := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		out = append(out, t.Tag)
	}

	return out
}

func TestCreateConflictReturnsExisting(t *testing.T) {
	c, _, _ := newClient(t)
	ctx := context.Background()

	first, err := c.Create(ctx, "urn:a", "", []string{"b", "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if got := tagNames(first); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("tags = %v", got)
	}

	again, err := c.Create(ctx, "urn:a", "", []string{"c"})
	if !errors.Is(err, client.ErrAlreadyPresent) {
		t.Fatalf("err = %v, want ErrAlreadyPresent", err)
	}

	if again == nil || again.ID != first.ID {
		t.Fatalf("existing = %+v, want id %d", again, first.ID)
	}
}

func TestEditReplacesTags(t *testing.T) {
	c, _, _ := newClient(t)
	ctx := context.Background()

	d, err := c.Create(ctx, "urn:a", "a.txt", []string{"old"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	edited, err := c.Edit(ctx, d.ID, "urn:b", []string{"new", "extra"})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}

	if edited.URI != "urn:b" || !slices.Equal(tagNames(edited), []string{"extra", "new"}) {
		t.Fatalf("edited = %+v", edited)
	}

	if edited.FName == nil || *edited.FName != "a.txt" {
		t.Fatalf("fname changed: %v", edited.FName)
	}

	if _, err := c.Create(ctx, "urn:c", "", nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := c.Edit(ctx, d.ID, "urn:c", nil); !errors.Is(err, client.ErrAlreadyPresent) {
		t.Fatalf("edit to taken uri: %v", err)
	}

	if _, err := c.Edit(ctx, 999, "urn:z", nil); !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("edit unknown: %v", err)
	}
}

func TestQueryPagesLazily(t *testing.T) {
	var pages []string

	c, _, srv := newClient(t)
	ctx := context.Background()

	// 统计实际发出的翻页请求
	counting := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == api.BasePath+"/data" && r.Method == http.MethodGet {
			pages = append(pages, r.URL.Query().Get("page"))
		}

		return http.DefaultTransport.RoundTrip(r)
	})}

	for i := range 25 {
		tags := []string{"all"}
		if i%5 == 0 {
			tags = append(tags, "fifth")
		}

		if _, err := c.Create(ctx, fmt.Sprintf("urn:%02d", i), "", tags); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	lazy := client.New(srv.URL+api.BasePath, client.WithHTTPClient(counting))

	res, err := lazy.Query(ctx, client.TagFilter("all"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if res.Len() != 25 || len(pages) != 1 {
		t.Fatalf("len = %d, requests = %v", res.Len(), pages)
	}

	n := 0

	for _, err := range res.All() {
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}

		if n++; n == 12 {
			break
		}
	}

	if len(pages) != 2 {
		t.Fatalf("requests after 12 items = %v", pages)
	}

	var uris []string

	for d, err := range res.All() {
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}

		uris = append(uris, d.URI)
	}

	if len(uris) != 25 || !slices.IsSorted(uris) {
		t.Fatalf("uris = %v", uris)
	}

	fifth, err := c.Query(ctx, client.TagFilter("fifth"), client.NewFilter("uri", "like", "urn:1%"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if fifth.Len() != 2 {
		t.Fatalf("fifth len = %d", fifth.Len())
	}
}

func TestUploadAndDeleteRemovesBlob(t *testing.T) {
	c, mgr, _ := newClient(t)
	ctx := context.Background()

	d, err := c.Upload(ctx, strings.NewReader("payload"), "p.txt", []string{"upload"})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	label, ok := blob.LabelFromURI(d.URI)
	if !ok {
		t.Fatalf("uri %q is not a blob uri", d.URI)
	}

	resp, err := http.Get(d.URI)
	if err != nil {
		t.Fatalf("get blob: %v", err)
	}

	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if string(body) != "payload" {
		t.Fatalf("blob body = %q", body)
	}

	if err := c.Delete(ctx, d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if ok, _ := mgr.Blob.Exists(ctx, label); ok {
		t.Fatalf("blob %s still exists", label)
	}

	if _, err := c.Get(ctx, d.ID); !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("get deleted: %v", err)
	}

	if err := c.Delete(ctx, d.ID); !errors.Is(err, client.ErrNotFound) {
		t.Fatalf("delete twice: %v", err)
	}
}

type memOFS struct {
	puts    []string
	deletes []string
}

func (m *memOFS) Put(_ context.Context, r io.Reader, fname string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	uri := fmt.Sprintf("mem:%s:%d", fname, len(b))
	m.puts = append(m.puts, uri)

	return uri, nil
}

func (m *memOFS) Delete(_ context.Context, uri string) error {
	m.deletes = append(m.deletes, uri)
	return nil
}

func TestCustomOFS(t *testing.T) {
	ofs := &memOFS{}
	c, _, _ := newClient(t, client.WithOFS(ofs))
	ctx := context.Background()

	d, err := c.Upload(ctx, strings.NewReader("abc"), "x.bin", nil)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	if d.URI != "mem:x.bin:3" || len(ofs.puts) != 1 {
		t.Fatalf("datum = %+v, puts = %v", d, ofs.puts)
	}

	if err := c.Delete(ctx, d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if !slices.Equal(ofs.deletes, []string{"mem:x.bin:3"}) {
		t.Fatalf("deletes = %v", ofs.deletes)
	}
}

func TestArchiveReportsMaxSize(t *testing.T) {
	c, _, _ := newClient(t)
	ctx := context.Background()

	d, err := c.Upload(ctx, strings.NewReader("zip me"), "a.txt", nil)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	name := "dir/a.txt"

	ar, err := c.Archive(ctx, []client.ArchiveItem{{ID: d.ID, Path: &name}})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	defer ar.Body.Close()

	body, err := io.ReadAll(ar.Body)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}

	if ar.MaxSize < int64(len(body)) || ar.MaxSize <= 0 {
		t.Fatalf("max size = %d, body = %d", ar.MaxSize, len(body))
	}

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}

	if len(zr.File) != 1 || zr.File[0].Name != name {
		t.Fatalf("entries = %+v", zr.File)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
