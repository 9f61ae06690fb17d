package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/yeisme/tagstore/pkg/configs"
	ctxPkg "github.com/yeisme/tagstore/pkg/context"
	"github.com/yeisme/tagstore/pkg/internal/service"
	"github.com/yeisme/tagstore/pkg/internal/storage"
	"github.com/yeisme/tagstore/pkg/internal/storage/storagetest"
	"github.com/yeisme/tagstore/pkg/internal/types"
)

type env struct {
	ctx   context.Context
	cfg   configs.AppConfig
	mgr   *storage.Manager
	data  *service.DataService
	tags  *service.TagService
	blobs *service.BlobService
}

// newEnv 内存 sqlite + 临时目录中的 blob 存储，不发布事件.
func newEnv(t *testing.T) *env {
	t.Helper()

	cfg := storagetest.Config(t)
	mgr := storagetest.New(t, cfg)

	ctx := ctxPkg.WithStorageManager(context.Background(), mgr)

	return &env{
		ctx:   ctx,
		cfg:   cfg,
		mgr:   mgr,
		data:  service.NewDataService(ctx),
		tags:  service.NewTagService(ctx),
		blobs: service.NewBlobService(ctx),
	}
}

func (e *env) create(t *testing.T, uri string, tags ...string) *types.Datum {
	t.Helper()

	refs := make([]types.TagRef, 0, len(tags))
	for _, tag := range tags {
		refs = append(refs, types.ByString(tag))
	}

	d, err := e.data.Create(e.ctx, &types.CreateDatumRequest{URI: uri, Tags: refs})
	if err != nil {
		t.Fatalf("create %s: %v", uri, err)
	}

	return d
}

func (e *env) get(t *testing.T, id uint) *types.Datum {
	t.Helper()

	d, err := e.data.Get(e.ctx, id)
	if err != nil {
		t.Fatalf("get %d: %v", id, err)
	}

	return d
}

func tagNames(d *types.Datum) []string {
	out := make([]string, 0, len(d.Tags))
	for _, t := range d.Tags {
		out = append(out, t.Tag)
	}

	return out
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()

	if !errors.Is(err, target) {
		t.Fatalf("err = %v, want %v", err, target)
	}
}
