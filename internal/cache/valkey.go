package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// DefaultValkeyKeyPrefix namespaces every key written to Valkey.
const DefaultValkeyKeyPrefix = "inboxsorter:"

// ValkeyConfig holds the Valkey connection settings.
type ValkeyConfig struct {
	// URL is the server address, e.g. "valkey.namespace.svc:6379".
	URL string

	Password   string
	TLSEnabled bool

	// KeyPrefix defaults to DefaultValkeyKeyPrefix.
	KeyPrefix string

	DB int
}

// Valkey is a Cache backed by a Valkey server.
type Valkey struct {
	client valkey.Client
	prefix string
}

// NewValkey connects to the server described by cfg.
func NewValkey(cfg ValkeyConfig) (*Valkey, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("valkey URL is required for the valkey cache backend")
	}

	opt := valkey.ClientOption{
		InitAddress: []string{cfg.URL},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}
	if cfg.TLSEnabled {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", cfg.URL, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultValkeyKeyPrefix
	}
	return &Valkey{client: client, prefix: prefix}, nil
}

func (v *Valkey) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := v.client.Do(ctx, v.client.B().Get().Key(v.prefix+key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("valkey get: %w", err)
	}
	return b, nil
}

func (v *Valkey) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	set := v.client.B().Set().Key(v.prefix + key).Value(valkey.BinaryString(value))

	var err error
	if ms := expiryMillis(ttl); ms > 0 {
		err = v.client.Do(ctx, set.PxMilliseconds(ms).Build()).Error()
	} else {
		err = v.client.Do(ctx, set.Build()).Error()
	}
	if err != nil {
		return fmt.Errorf("valkey set: %w", err)
	}
	return nil
}

// expiryMillis converts ttl to whole milliseconds, rounding up so that a
// positive ttl never becomes "no expiry".
func expiryMillis(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return int64((ttl + time.Millisecond - 1) / time.Millisecond)
}

func (v *Valkey) Clear(ctx context.Context, key string) error {
	if err := v.client.Do(ctx, v.client.B().Del().Key(v.prefix+key).Build()).Error(); err != nil {
		return fmt.Errorf("valkey del: %w", err)
	}
	return nil
}

func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}
