package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is a string-valued key/value cache. Non-string values are JSON
// encoded on Set and decoded into dest on Get. A zero expiration means the
// backend keeps the key until it is evicted or deleted.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Key joins parts with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

func encode(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func decode(raw string, dest interface{}) error {
	switch d := dest.(type) {
	case *string:
		*d = raw
		return nil
	case *[]byte:
		*d = []byte(raw)
		return nil
	default:
		return json.Unmarshal([]byte(raw), dest)
	}
}
