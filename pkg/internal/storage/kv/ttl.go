package kv

import (
	"bytes"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
)

// ttlMagic 标记带过期时间的值，供不支持原生 TTL 的实现（memory、groupcache、NATS KV）共用.
var ttlMagic = []byte("TSTTL1:")

// envelope 值与过期时刻（unix 毫秒）.
type envelope struct {
	Value    []byte `json:"v"`
	Deadline int64  `json:"e,omitempty"`
}

func (e envelope) expiredAt(now time.Time) bool {
	return e.Deadline > 0 && now.UnixMilli() >= e.Deadline
}

// encodeWithTTL 在 ttl>0 时封装 value，第二个返回值表示是否封装.
func encodeWithTTL(value []byte, ttl time.Duration) ([]byte, bool, error) {
	if ttl <= 0 {
		return value, false, nil
	}

	body, err := sonic.Marshal(envelope{Value: value, Deadline: time.Now().Add(ttl).UnixMilli()})
	if err != nil {
		return nil, false, fmt.Errorf("kv: encode ttl envelope: %w", err)
	}

	out := make([]byte, 0, len(ttlMagic)+len(body))
	out = append(out, ttlMagic...)

	return append(out, body...), true, nil
}

// decodeWithTTL 拆开封装. 返回 (value, expired, wrapped, error)；未封装的值原样返回.
func decodeWithTTL(b []byte, now time.Time) ([]byte, bool, bool, error) {
	body, wrapped := bytes.CutPrefix(b, ttlMagic)
	if !wrapped {
		return b, false, false, nil
	}

	var env envelope
	if err := sonic.Unmarshal(body, &env); err != nil {
		return nil, false, true, fmt.Errorf("kv: decode ttl envelope: %w", err)
	}

	if env.expiredAt(now) {
		return nil, true, true, nil
	}

	return env.Value, false, true, nil
}
