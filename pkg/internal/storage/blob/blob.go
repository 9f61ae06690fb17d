// Package blob 实现单 bucket 的 Blob 存储门面.
//
// 字节内容交给可插拔的 Backend（本地 pairtree 目录或 S3），
// 元数据集中保存在 root 下的索引文件中. 所有对索引文件的 revert/sync
// 都在跨进程的可重入锁内执行，Open/Close 另有一把构造锁.
//
// Example:
//
//	st, err := blob.Open(ctx, &cfg.Blob)
//	if err != nil {
//	    // 处理错误
//	}
//	defer st.Close(ctx)
//
//	label := blob.NewLabel()
//	meta, err := st.Put(ctx, label, file, blob.Metadata{blob.KeyFName: "a.txt"})
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yeisme/tagstore/pkg/configs"
)

var (
	// ErrNotFound label 不存在.
	ErrNotFound = errors.New("blob not found")
	// ErrBytesMissing 索引中有记录但字节内容缺失，调用方按 ErrNotFound 处理即可.
	ErrBytesMissing = fmt.Errorf("%w: backing bytes missing", ErrNotFound)
	// ErrInvalidLabel label 格式不合法.
	ErrInvalidLabel = errors.New("invalid blob label")
	// ErrLockTimeout 在超时时间内未能获得锁.
	ErrLockTimeout = errors.New("blob lock timeout")
)

// 元数据键. 下划线开头的键由门面维护.
const (
	KeyFName         = "fname"
	KeyContentLength = "_content_length"
	KeyLastModified  = "_last_modified"
	KeyCreationDate  = "_creation_date"
	KeyFormat        = "_format"
	KeyChecksum      = "_checksum"
)

// TimeLayout 元数据中时间戳的格式，始终为 UTC.
const TimeLayout = "2006-01-02T15:04:05"

// Metadata 单个 blob 的元数据，值为 string 或整数.
type Metadata map[string]any

// FName 返回文件名.
func (m Metadata) FName() string {
	s, _ := m[KeyFName].(string)
	return s
}

// Format 返回内容类型.
func (m Metadata) Format() string {
	s, _ := m[KeyFormat].(string)
	return s
}

// Checksum 返回 sha256 校验和（十六进制）.
func (m Metadata) Checksum() string {
	s, _ := m[KeyChecksum].(string)
	return s
}

// ContentLength 返回内容长度，未记录时 ok 为 false.
func (m Metadata) ContentLength() (int64, bool) {
	switch v := m[KeyContentLength].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// LastModified 解析最后修改时间.
func (m Metadata) LastModified() (time.Time, error) {
	s, ok := m[KeyLastModified].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("metadata has no %s", KeyLastModified)
	}

	return time.ParseInLocation(TimeLayout, s, time.UTC)
}

// Clone 返回浅拷贝.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}

	return maps.Clone(m)
}

// Backend 字节存储后端. key 即 label.
// Get/Delete 在字节不存在时返回 ErrBytesMissing.
type Backend interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// BackendFactory 根据配置创建后端.
type BackendFactory func(ctx context.Context, cfg *configs.BlobConfig) (Backend, error)

var (
	backendMu        sync.RWMutex
	backendFactories = map[configs.BlobBackendType]BackendFactory{
		configs.BlobBackendLocal: NewLocalBackend,
	}
)

// RegisterBackend 注册后端工厂，s3 包在 init 中调用.
func RegisterBackend(t configs.BlobBackendType, factory BackendFactory) {
	backendMu.Lock()
	defer backendMu.Unlock()

	backendFactories[t] = factory
}

// GetRegisteredBackends 返回已编译进来的后端类型.
func GetRegisteredBackends() []configs.BlobBackendType {
	backendMu.RLock()
	defer backendMu.RUnlock()

	out := make([]configs.BlobBackendType, 0, len(backendFactories))
	for t := range backendFactories {
		out = append(out, t)
	}

	slices.Sort(out)

	return out
}

func newBackend(ctx context.Context, cfg *configs.BlobConfig) (Backend, error) {
	backendMu.RLock()
	factory, ok := backendFactories[cfg.Backend]
	backendMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported blob backend: %s", cfg.Backend)
	}

	return factory(ctx, cfg)
}

// NewLabel 分配新的随机 label（128 位 UUIDv4）.
func NewLabel() string {
	return uuid.NewString()
}

// ValidLabel 判断 label 是否为合法的 UUID.
func ValidLabel(label string) bool {
	_, err := uuid.Parse(label)
	return err == nil && !strings.ContainsAny(label, "{}:")
}

// OFSPath 是 blob 的公开路由前缀.
const OFSPath = "/api/v1/ofs/"

var ofsURIPattern = regexp.MustCompile(`/api/[^/]+/ofs/([^/?#]+)/?(?:[?#].*)?$`)

// URI 返回 label 的公开 URI，base 为空时返回相对路径.
func URI(base, label string) string {
	return strings.TrimRight(base, "/") + OFSPath + label
}

// LabelFromURI 从 .../api/<ver>/ofs/<label> 形式的 URI 中提取 label.
func LabelFromURI(uri string) (string, bool) {
	m := ofsURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return "", false
	}

	return m[1], true
}
