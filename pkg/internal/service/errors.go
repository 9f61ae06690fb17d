package service

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yeisme/tagstore/pkg/internal/storage/blob"
)

var (
	// ErrConflict uri 已被其他记录使用.
	ErrConflict = errors.New("already present")
	// ErrReferenced 标签仍被记录引用，不能删除.
	ErrReferenced = errors.New("tag is referenced")
	// ErrNotFound 记录、标签或 blob 不存在.
	ErrNotFound = errors.New("not found")
	// ErrInvalid 请求参数不合法，例如未知的查询字段.
	ErrInvalid = errors.New("invalid request")
)

// notFound 把 gorm / blob 的不存在错误统一为 ErrNotFound.
func notFound(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, blob.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	return err
}

// invalidf 构造 ErrInvalid.
func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// isDuplicateKey 唯一索引冲突. TranslateError 覆盖主流方言，字符串匹配兜底.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := err.Error()

	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

// outcome 供 metrics 使用的结果标签.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalid):
		return "invalid"
	default:
		return "error"
	}
}
