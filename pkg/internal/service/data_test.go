package service_test

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/yeisme/tagstore/pkg/internal/service"
	"github.com/yeisme/tagstore/pkg/internal/storage/blob"
	"github.com/yeisme/tagstore/pkg/internal/types"
)

func TestCreateConflict(t *testing.T) {
	e := newEnv(t)
	e.create(t, "http://example.org/dup")

	_, err := e.data.Create(e.ctx, &types.CreateDatumRequest{URI: "http://example.org/dup", Tags: []types.TagRef{types.ByString("fresh")}})
	wantErr(t, err, service.ErrConflict)

	page, err := e.tags.List(e.ctx, types.PageRequest{})
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}

	if page.NumResults != 0 {
		t.Errorf("conflicting create leaked tags: %+v", page.Objects)
	}
}

func TestTagsSortedInResponse(t *testing.T) {
	e := newEnv(t)
	d := e.create(t, "http://example.org/1", "zeta", "alpha", "mu")

	if got := tagNames(d); !slices.Equal(got, []string{"alpha", "mu", "zeta"}) {
		t.Errorf("tags = %v", got)
	}
}

func TestEdit(t *testing.T) {
	e := newEnv(t)
	fname := "a.txt"

	d, err := e.data.Create(e.ctx, &types.CreateDatumRequest{URI: "http://example.org/1", FName: &fname, Tags: []types.TagRef{types.ByString("t")}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	other := e.create(t, "http://example.org/2")

	clash := other.URI
	_, err = e.data.Edit(e.ctx, d.ID, &types.EditDatumRequest{URI: &clash})
	wantErr(t, err, service.ErrConflict)

	_, err = e.data.Edit(e.ctx, 999, &types.EditDatumRequest{})
	wantErr(t, err, service.ErrNotFound)

	moved := "http://example.org/moved"

	got, err := e.data.Edit(e.ctx, d.ID, &types.EditDatumRequest{URI: &moved, FName: types.Null[string]()})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}

	if got.URI != moved || got.FName != nil {
		t.Errorf("edit = %+v", got)
	}

	if names := tagNames(got); !slices.Equal(names, []string{"t"}) {
		t.Errorf("tags changed without being given: %v", names)
	}

	same := got.URI
	if _, err := e.data.Edit(e.ctx, d.ID, &types.EditDatumRequest{URI: &same}); err != nil {
		t.Errorf("keeping own uri is not a conflict: %v", err)
	}
}

func TestDeleteRemovesLocalBlob(t *testing.T) {
	e := newEnv(t)

	up, err := e.blobs.Upload(e.ctx, strings.NewReader("payload"), "p.txt", "text/plain", "")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}

	d := e.create(t, up.URI, "kept")
	label, _ := blob.LabelFromURI(up.URI)

	if err := e.data.Delete(e.ctx, d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if ok, _ := e.mgr.Blob.Exists(e.ctx, label); ok {
		t.Error("blob survived datum delete")
	}

	_, err = e.data.Get(e.ctx, d.ID)
	wantErr(t, err, service.ErrNotFound)

	page, _ := e.tags.List(e.ctx, types.PageRequest{})
	if page.NumResults != 1 {
		t.Errorf("tags were pruned: %+v", page.Objects)
	}

	wantErr(t, e.data.Delete(e.ctx, d.ID), service.ErrNotFound)
}

func TestDeleteSwallowsBlobFailure(t *testing.T) {
	e := newEnv(t)
	d := e.create(t, blob.URI("", blob.NewLabel()))

	if err := e.data.Delete(e.ctx, d.ID); err != nil {
		t.Fatalf("delete with missing blob: %v", err)
	}
}

func TestQuery(t *testing.T) {
	e := newEnv(t)
	for i, tags := range [][]string{{"red"}, {"red", "big"}, {"blue"}, {}} {
		e.create(t, "http://example.org/"+string(rune('a'+i)), tags...)
	}

	cases := []struct {
		name string
		q    string
		want int64
	}{
		{"all", "", 4},
		{"tag", `{"filters":[{"name":"tags","op":"any","val":{"name":"tag","op":"eq","val":"red"}}]}`, 2},
		{"untagged", `{"filters":[{"name":"tags","op":"not_any"}]}`, 1},
		{"or", `{"filters":[{"or":[{"name":"uri","op":"eq","val":"http://example.org/a"},{"name":"uri","op":"eq","val":"http://example.org/c"}]}]}`, 2},
		{"disjunction", `{"filters":[{"name":"uri","op":"eq","val":"http://example.org/a"},{"name":"uri","op":"eq","val":"http://example.org/d"}],"disjunction":true}`, 2},
		{"in", `{"filters":[{"name":"uri","op":"in","val":["http://example.org/b","nope"]}]}`, 1},
		{"empty in", `{"filters":[{"name":"uri","op":"in","val":[]}]}`, 0},
		{"null fname", `{"filters":[{"name":"fname","op":"eq","val":null}]}`, 4},
		{"ilike", `{"filters":[{"name":"uri","op":"ilike","val":"HTTP://EXAMPLE.ORG/A"}]}`, 1},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			page, err := e.data.Query(e.ctx, types.PageRequest{Q: c.q})
			if err != nil {
				t.Fatalf("query: %v", err)
			}

			if page.NumResults != c.want {
				t.Errorf("num_results = %d, want %d", page.NumResults, c.want)
			}
		})
	}
}

func TestQueryPagination(t *testing.T) {
	e := newEnv(t)
	for i := range 5 {
		e.create(t, "http://example.org/"+string(rune('a'+i)))
	}

	q := `{"order_by":[{"field":"uri","direction":"desc"}]}`

	page, err := e.data.Query(e.ctx, types.PageRequest{Q: q, Page: 2, ResultsPerPage: 2})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if page.NumResults != 5 || page.TotalPages != 3 || page.Page != 2 {
		t.Fatalf("page = %+v", page)
	}

	if len(page.Objects) != 2 || page.Objects[0].URI != "http://example.org/c" {
		t.Errorf("objects = %+v", page.Objects)
	}
}

func TestQueryRejectsUnknownNames(t *testing.T) {
	e := newEnv(t)

	for _, q := range []string{
		`{"filters":[{"name":"password","op":"eq","val":"x"}]}`,
		`{"filters":[{"name":"uri","op":"regexp","val":"x"}]}`,
		`{"order_by":[{"field":"secret"}]}`,
		`{"filters":[{"name":"uri","op":"eq","val":{"a":1}}]}`,
		`not json`,
	} {
		_, err := e.data.Query(e.ctx, types.PageRequest{Q: q})
		if !errors.Is(err, service.ErrInvalid) {
			t.Errorf("q=%s: err = %v, want ErrInvalid", q, err)
		}
	}
}

func TestFNameEditFilterAndOrder(t *testing.T) {
	e := newEnv(t)
	a := e.create(t, "http://example.org/a")
	b := e.create(t, "http://example.org/b")

	for id, name := range map[uint]string{a.ID: "z.txt", b.ID: "m.txt"} {
		got, err := e.data.Edit(e.ctx, id, &types.EditDatumRequest{FName: types.NullableOf(name)})
		if err != nil {
			t.Fatalf("edit fname: %v", err)
		}

		if got.FName == nil || *got.FName != name {
			t.Fatalf("fname = %v, want %q", got.FName, name)
		}
	}

	e.create(t, "http://example.org/c")

	page, err := e.data.Query(e.ctx, types.PageRequest{Q: `{"filters":[{"name":"fname","op":"is_not_null"}],"order_by":[{"field":"fname","direction":"asc"}]}`})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if page.NumResults != 2 || page.Objects[0].ID != b.ID || page.Objects[1].ID != a.ID {
		t.Errorf("objects = %+v", page.Objects)
	}
}

func TestConcurrentCreateSameURI(t *testing.T) {
	e := newEnv(t)

	const n = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, clash int
	)

	for range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := e.data.Create(e.ctx, &types.CreateDatumRequest{URI: "x", Tags: []types.TagRef{types.ByString("t")}})

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				ok++
			case errors.Is(err, service.ErrConflict):
				clash++
			default:
				t.Errorf("create: %v", err)
			}
		}()
	}

	wg.Wait()

	if ok != 1 || clash != n-1 {
		t.Fatalf("successes = %d, conflicts = %d", ok, clash)
	}
}

func TestConcurrentCreatesShareNewTag(t *testing.T) {
	e := newEnv(t)

	const n = 8

	var wg sync.WaitGroup

	for i := range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			uri := fmt.Sprintf("http://example.org/%d", i)
			if _, err := e.data.Create(e.ctx, &types.CreateDatumRequest{URI: uri, Tags: []types.TagRef{types.ByString("shared")}}); err != nil {
				t.Errorf("create %s: %v", uri, err)
			}
		}()
	}

	wg.Wait()

	page, err := e.tags.List(e.ctx, types.PageRequest{})
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}

	if page.NumResults != 1 || page.Objects[0].Tag != "shared" {
		t.Fatalf("tags = %+v", page.Objects)
	}

	tagged, err := e.data.Query(e.ctx, types.PageRequest{Q: `{"filters":[{"name":"tags","op":"any","val":{"name":"tag","op":"eq","val":"shared"}}]}`})
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if tagged.NumResults != n {
		t.Errorf("tagged = %d, want %d", tagged.NumResults, n)
	}
}
