package service_test

import (
	"slices"
	"testing"

	"github.com/yeisme/tagstore/pkg/internal/service"
	"github.com/yeisme/tagstore/pkg/internal/types"
)

func TestResolveOrMarkDoesNotMutate(t *testing.T) {
	e := newEnv(t)
	d := e.create(t, "http://example.org/1", "alpha")
	alpha := d.Tags[0].ID

	in := []types.TagRef{types.ByString("alpha"), types.ByString("beta"), {}, types.ByID(99)}
	orig := slices.Clone(in)

	out, err := e.tags.ResolveOrMark(e.ctx, in)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if !slices.Equal(in, orig) {
		t.Fatalf("input mutated: %+v", in)
	}

	want := []types.TagRef{types.ByID(alpha), types.ByString("beta"), {}, types.ByID(99)}
	if !slices.Equal(out, want) {
		t.Fatalf("out = %+v, want %+v", out, want)
	}

	if out, err := e.tags.ResolveOrMark(e.ctx, nil); err != nil || len(out) != 0 {
		t.Fatalf("nil refs: %v %v", out, err)
	}
}

func TestCreateDeduplicatesTags(t *testing.T) {
	e := newEnv(t)

	d1, err := e.data.Create(e.ctx, &types.CreateDatumRequest{
		URI:  "http://example.org/1",
		Tags: []types.TagRef{types.ByString("a"), types.ByString("a"), types.ByString(" a ")},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if len(d1.Tags) != 1 {
		t.Fatalf("tags = %+v, want one", d1.Tags)
	}

	d2 := e.create(t, "http://example.org/2", "a")
	if d2.Tags[0].ID != d1.Tags[0].ID {
		t.Errorf("same string got two tags: %d vs %d", d1.Tags[0].ID, d2.Tags[0].ID)
	}

	page, err := e.tags.List(e.ctx, types.PageRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if page.NumResults != 1 {
		t.Errorf("num tags = %d, want 1", page.NumResults)
	}
}

func TestCreateRejectsBadTags(t *testing.T) {
	e := newEnv(t)

	_, err := e.data.Create(e.ctx, &types.CreateDatumRequest{
		URI:  "http://example.org/1",
		Tags: []types.TagRef{types.ByString("   ")},
	})
	wantErr(t, err, service.ErrInvalid)

	_, err = e.data.Create(e.ctx, &types.CreateDatumRequest{
		URI:  "http://example.org/1",
		Tags: []types.TagRef{types.ByID(42)},
	})
	wantErr(t, err, service.ErrInvalid)

	if _, err := e.data.Create(e.ctx, &types.CreateDatumRequest{URI: "http://example.org/1"}); err != nil {
		t.Fatalf("failed create left state behind: %v", err)
	}
}

func TestRenameOrMerge(t *testing.T) {
	e := newEnv(t)
	d1 := e.create(t, "http://example.org/1", "x")
	d2 := e.create(t, "http://example.org/2", "x", "y")
	x := d1.Tags[0]

	var y types.Tag
	for _, tag := range d2.Tags {
		if tag.Tag == "y" {
			y = tag
		}
	}

	merged, err := e.tags.RenameOrMerge(e.ctx, x.ID, "y")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	if merged.ID != y.ID {
		t.Fatalf("merge returned %+v, want %+v", merged, y)
	}

	if got := tagNames(e.get(t, d1.ID)); !slices.Equal(got, []string{"y"}) {
		t.Errorf("d1 tags = %v", got)
	}

	if got := tagNames(e.get(t, d2.ID)); !slices.Equal(got, []string{"y"}) {
		t.Errorf("d2 tags = %v", got)
	}

	_, err = e.tags.Get(e.ctx, x.ID)
	wantErr(t, err, service.ErrNotFound)

	renamed, err := e.tags.RenameOrMerge(e.ctx, y.ID, "z")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}

	if renamed.ID != y.ID || renamed.Tag != "z" {
		t.Errorf("rename = %+v", renamed)
	}

	_, err = e.tags.RenameOrMerge(e.ctx, 999, "w")
	wantErr(t, err, service.ErrNotFound)
}

func TestEditRenamesWhileAssigning(t *testing.T) {
	e := newEnv(t)
	d := e.create(t, "http://example.org/1", "draft")
	other := e.create(t, "http://example.org/2")

	tags := []types.TagRef{{ID: d.Tags[0].ID, Tag: "final"}}

	got, err := e.data.Edit(e.ctx, other.ID, &types.EditDatumRequest{Tags: &tags})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}

	if names := tagNames(got); !slices.Equal(names, []string{"final"}) {
		t.Errorf("edited tags = %v", names)
	}

	if names := tagNames(e.get(t, d.ID)); !slices.Equal(names, []string{"final"}) {
		t.Errorf("rename did not reach the other datum: %v", names)
	}
}

func TestDeleteTag(t *testing.T) {
	e := newEnv(t)
	d := e.create(t, "http://example.org/1", "busy")
	id := d.Tags[0].ID

	wantErr(t, e.tags.DeleteTag(e.ctx, id), service.ErrReferenced)

	empty := []types.TagRef{}
	if _, err := e.data.Edit(e.ctx, d.ID, &types.EditDatumRequest{Tags: &empty}); err != nil {
		t.Fatalf("clear tags: %v", err)
	}

	if err := e.tags.DeleteTag(e.ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}

	wantErr(t, e.tags.DeleteTag(e.ctx, id), service.ErrNotFound)
}

func TestSwapCreatesNewTagInTwoPhases(t *testing.T) {
	e := newEnv(t)
	d1 := e.create(t, "http://example.org/1", "old")
	d2 := e.create(t, "http://example.org/2", "old", "keep")
	d3 := e.create(t, "http://example.org/3", "keep")

	res, err := e.tags.Swap(e.ctx, "old", "new", nil)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}

	if !res.TwoPhase || res.Added != 2 || res.Removed != 2 {
		t.Errorf("swap result = %+v", res)
	}

	cases := map[uint][]string{
		d1.ID: {"new"},
		d2.ID: {"keep", "new"},
		d3.ID: {"keep"},
	}
	for id, want := range cases {
		if got := tagNames(e.get(t, id)); !slices.Equal(got, want) {
			t.Errorf("datum %d tags = %v, want %v", id, got, want)
		}
	}
}

func TestSwapIntoExistingTag(t *testing.T) {
	e := newEnv(t)
	d1 := e.create(t, "http://example.org/1", "old")
	d2 := e.create(t, "http://example.org/2", "old", "new")

	res, err := e.tags.Swap(e.ctx, "old", "new", nil)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}

	if res.TwoPhase || res.Added != 1 || res.Removed != 2 {
		t.Errorf("swap result = %+v", res)
	}

	for _, id := range []uint{d1.ID, d2.ID} {
		if got := tagNames(e.get(t, id)); !slices.Equal(got, []string{"new"}) {
			t.Errorf("datum %d tags = %v", id, got)
		}
	}
}

func TestSwapHonoursPredicate(t *testing.T) {
	e := newEnv(t)
	a := e.create(t, "http://a.example.org/1", "old")
	b := e.create(t, "http://b.example.org/1", "old")

	q := &types.Query{Filters: []types.Filter{{Name: "uri", Op: types.OpLike, Val: "http://a.%"}}}

	if _, err := e.tags.Swap(e.ctx, "old", "new", q); err != nil {
		t.Fatalf("swap: %v", err)
	}

	if got := tagNames(e.get(t, a.ID)); !slices.Equal(got, []string{"new"}) {
		t.Errorf("matched datum tags = %v", got)
	}

	if got := tagNames(e.get(t, b.ID)); !slices.Equal(got, []string{"old"}) {
		t.Errorf("unmatched datum tags = %v", got)
	}
}

func TestSwapMissingOldIsNoop(t *testing.T) {
	e := newEnv(t)
	e.create(t, "http://example.org/1", "keep")

	res, err := e.tags.Swap(e.ctx, "absent", "new", nil)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}

	if res.Added != 0 || res.Removed != 0 {
		t.Errorf("swap result = %+v", res)
	}

	page, _ := e.tags.List(e.ctx, types.PageRequest{})
	if page.NumResults != 1 {
		t.Errorf("swap created tags: %+v", page.Objects)
	}
}
