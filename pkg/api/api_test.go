package api_test

import (
	"archive/zip"
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strconv"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/tagstore/pkg/api"
	"github.com/yeisme/tagstore/pkg/internal/handle"
	"github.com/yeisme/tagstore/pkg/internal/storage/storagetest"
	"github.com/yeisme/tagstore/pkg/internal/types"
)

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)

	cfg := storagetest.Config(t)
	mgr := storagetest.New(t, cfg)

	return api.NewEngine(&cfg, mgr, nil)
}

func do(t *testing.T, e *gin.Engine, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader

	if body != nil {
		b, err := sonic.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		r = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, api.BasePath+target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := sonic.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}

	return v
}

func upload(t *testing.T, e *gin.Engine, fname, content string) types.UploadResponse {
	t.Helper()

	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile(handle.FormBlob, fname)
	if err != nil {
		t.Fatal(err)
	}

	_, _ = part.Write([]byte(content))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, api.BasePath+"/ofs", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", w.Code, w.Body.String())
	}

	return decode[types.UploadResponse](t, w)
}

func TestDataLifecycle(t *testing.T) {
	e := newEngine(t)

	req := types.CreateDatumRequest{URI: "urn:a", Tags: []types.TagRef{types.ByString("x")}}

	w := do(t, e, http.MethodPost, "/data", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}

	d := decode[types.Datum](t, w)
	if len(d.Tags) != 1 || d.Tags[0].Tag != "x" {
		t.Fatalf("tags = %+v", d.Tags)
	}

	w = do(t, e, http.MethodPost, "/data", req)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d", w.Code)
	}

	if got := decode[map[string]string](t, w)["description"]; got != handle.DescAlreadyPresent {
		t.Fatalf("description = %q", got)
	}

	id := "/data/" + strconv.FormatUint(uint64(d.ID), 10)

	if w = do(t, e, http.MethodGet, id, nil); w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	if w = do(t, e, http.MethodPatch, id, map[string]any{"fname": "a.txt"}); w.Code != http.StatusOK {
		t.Fatalf("edit status = %d, body %s", w.Code, w.Body.String())
	}

	if got := decode[types.Datum](t, w); got.FName == nil || *got.FName != "a.txt" || got.URI != "urn:a" {
		t.Fatalf("edited = %+v", got)
	}

	if w = do(t, e, http.MethodDelete, id, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}

	if w = do(t, e, http.MethodGet, id, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", w.Code)
	}
}

func TestDataQueryAndValidation(t *testing.T) {
	e := newEngine(t)

	for _, uri := range []string{"urn:1", "urn:2", "urn:3"} {
		tag := "odd"
		if uri == "urn:2" {
			tag = "even"
		}

		req := types.CreateDatumRequest{URI: uri, Tags: []types.TagRef{types.ByString(tag)}}
		if w := do(t, e, http.MethodPost, "/data", req); w.Code != http.StatusCreated {
			t.Fatalf("create %s: %d", uri, w.Code)
		}
	}

	q, _ := sonic.MarshalString(types.Query{Filters: []types.Filter{types.TagFilter("odd")}})

	w := do(t, e, http.MethodGet, "/data?results_per_page=1&q="+url.QueryEscape(q), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("query status = %d, body %s", w.Code, w.Body.String())
	}

	page := decode[types.Page[types.Datum]](t, w)
	if page.NumResults != 2 || page.TotalPages != 2 || len(page.Objects) != 1 {
		t.Fatalf("page = %+v", page)
	}

	bad := url.QueryEscape(`{"filters":[{"name":"nope","op":"eq","val":1}]}`)
	if w = do(t, e, http.MethodGet, "/data?q="+bad, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", w.Code)
	}

	if w = do(t, e, http.MethodPost, "/data", map[string]any{"tags": []any{}}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing uri status = %d", w.Code)
	}

	if w = do(t, e, http.MethodGet, "/data/abc", nil); w.Code != http.StatusNotFound {
		t.Fatalf("bad id status = %d", w.Code)
	}
}

func TestDeleteReferencedTag(t *testing.T) {
	e := newEngine(t)

	req := types.CreateDatumRequest{URI: "urn:a", Tags: []types.TagRef{types.ByString("keep")}}
	d := decode[types.Datum](t, do(t, e, http.MethodPost, "/data", req))

	tagPath := "/tags/" + strconv.FormatUint(uint64(d.Tags[0].ID), 10)

	w := do(t, e, http.MethodDelete, tagPath, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("delete referenced status = %d", w.Code)
	}

	if got := decode[map[string]string](t, w)["description"]; got != handle.DescTagReferenced {
		t.Fatalf("description = %q", got)
	}

	w = do(t, e, http.MethodPost, "/tags/swap", types.SwapTagsRequest{Old: "keep", New: "moved"})
	if w.Code != http.StatusOK {
		t.Fatalf("swap status = %d, body %s", w.Code, w.Body.String())
	}

	if w = do(t, e, http.MethodDelete, tagPath, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete after swap status = %d", w.Code)
	}
}

func TestBlobHeaders(t *testing.T) {
	e := newEngine(t)

	res := upload(t, e, "note.txt", "hello")
	if !strings.Contains(res.URI, "/api/v1/ofs/") || res.FName != "note.txt" {
		t.Fatalf("upload = %+v", res)
	}

	target := "/ofs/" + path.Base(res.URI)

	w := do(t, e, http.MethodHead, target, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("head status = %d", w.Code)
	}

	disp, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	if err != nil || disp != "inline" || params["filename"] != "note.txt" {
		t.Fatalf("disposition = %q (%v)", w.Header().Get("Content-Disposition"), err)
	}

	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}

	if cl := w.Header().Get("Content-Length"); cl != "5" {
		t.Fatalf("content length = %q", cl)
	}

	w = do(t, e, http.MethodGet, target, nil, handle.HeaderAsAttachment, "yes")
	if w.Code != http.StatusOK || w.Body.String() != "hello" {
		t.Fatalf("get = %d %q", w.Code, w.Body.String())
	}

	if disp, _, _ := mime.ParseMediaType(w.Header().Get("Content-Disposition")); disp != "attachment" {
		t.Fatalf("disposition = %q", disp)
	}

	if w = do(t, e, http.MethodGet, "/ofs/0b8c4b1e-5f53-4c7e-9a0e-2f1d3c4b5a69", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown label status = %d", w.Code)
	}

	if w = do(t, e, http.MethodGet, "/ofs/not-a-label", nil); w.Code != http.StatusNotFound {
		t.Fatalf("invalid label status = %d", w.Code)
	}

	for range 2 {
		if w = do(t, e, http.MethodDelete, target, nil); w.Code != http.StatusNoContent {
			t.Fatalf("delete status = %d", w.Code)
		}
	}

	if w = do(t, e, http.MethodHead, target, nil); w.Code != http.StatusNotFound {
		t.Fatalf("head after delete status = %d", w.Code)
	}
}

func TestGzipOnlyOnJSONRoutes(t *testing.T) {
	e := newEngine(t)

	res := upload(t, e, "a.txt", strings.Repeat("a", 4096))

	w := do(t, e, http.MethodGet, "/data", nil, "Accept-Encoding", "gzip")
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("json route not compressed: %v", w.Header())
	}

	w = do(t, e, http.MethodGet, "/ofs/"+path.Base(res.URI), nil, "Accept-Encoding", "gzip")
	if w.Header().Get("Content-Encoding") != "" {
		t.Fatalf("blob route compressed: %v", w.Header())
	}

	if w.Body.Len() != 4096 {
		t.Fatalf("blob body length = %d", w.Body.Len())
	}
}

func TestArchive(t *testing.T) {
	e := newEngine(t)

	res := upload(t, e, "a.txt", "archived")
	d := decode[types.Datum](t, do(t, e, http.MethodPost, "/data", types.CreateDatumRequest{URI: res.URI}))

	name := "docs/a.txt"
	req := types.ArchiveRequest{Items: []types.ArchiveItem{{ID: d.ID, Path: &name}, {ID: d.ID}}}

	w := do(t, e, http.MethodPost, "/archive", req)
	if w.Code != http.StatusOK {
		t.Fatalf("archive status = %d, body %s", w.Code, w.Body.String())
	}

	if w.Header().Get("Content-Length") != "" {
		t.Fatalf("content length declared: %q", w.Header().Get("Content-Length"))
	}

	if got := w.Header().Get(handle.HeaderArchiveMaxSize); got != strconv.Itoa(w.Body.Len()) {
		t.Fatalf("max size = %s, body = %d", got, w.Body.Len())
	}

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}

	if len(zr.File) != 1 || zr.File[0].Name != name {
		t.Fatalf("entries = %v", zr.File)
	}

	if w = do(t, e, http.MethodPost, "/archive", map[string]any{"items": []any{map[string]any{"path": "x"}}}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing id status = %d", w.Code)
	}
}

func TestCollectAndScheduler(t *testing.T) {
	e := newEngine(t)

	upload(t, e, "fresh.txt", "fresh")

	w := do(t, e, http.MethodPost, "/ofs/gc", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("gc status = %d", w.Code)
	}

	// 刚上传的 blob 仍在宽限期内
	if res := decode[types.CollectResponse](t, w); len(res.Deleted) != 0 || res.Retained != 1 {
		t.Fatalf("collect = %+v", res)
	}

	if w = do(t, e, http.MethodGet, "/scheduler/jobs", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("scheduler status = %d", w.Code)
	}

	if w = do(t, e, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("health status = %d, body %s", w.Code, w.Body.String())
	}
}
