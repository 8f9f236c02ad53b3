// Package valkey keeps the response cache in Valkey, letting key expiry do
// the housekeeping the SQL backend does with a periodic delete.
package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/encore/internal/encore/domain"
	"github.com/aussiebroadwan/encore/internal/encore/store"
	valkeygo "github.com/valkey-io/valkey-go"
)

const (
	DefaultKeyPrefix = "encore:cache:"

	// DefaultTTL matches the read-through freshness window.
	DefaultTTL = 24 * time.Hour

	connectionVerifyTimeout = 5 * time.Second
)

// Config holds configuration for the Valkey cache backend.
type Config struct {
	// Address is the server address, e.g. "localhost:6379" (required).
	Address  string
	Password string
	DB       int

	// KeyPrefix defaults to "encore:cache:".
	KeyPrefix string

	// TTL is the key expiry applied on every write.
	TTL time.Duration

	Logger *slog.Logger
}

// Cache is a Valkey-backed store.ResponseCache.
type Cache struct {
	client valkeygo.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

var _ store.ResponseCache = (*Cache)(nil)

type entryJSON struct {
	Payload   json.RawMessage `json:"payload"`
	ItemCount int             `json:"item_count"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// New connects and verifies the connection with a PING.
func New(cfg Config) (*Cache, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	client, err := valkeygo.NewClient(valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	cfg.Logger.Info("connected to valkey", "address", cfg.Address, "db", cfg.DB)

	return &Cache{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		logger: cfg.Logger,
	}, nil
}

func (c *Cache) key(k domain.CacheKey) string {
	return c.prefix + k.String()
}

func (c *Cache) GetResponse(ctx context.Context, k domain.CacheKey) (domain.CacheEntry, error) {
	data, err := c.client.Do(ctx, c.client.B().Get().Key(c.key(k)).Build()).ToString()
	if err != nil {
		if valkeygo.IsValkeyNil(err) {
			return domain.CacheEntry{}, store.ErrNotFound
		}
		return domain.CacheEntry{}, fmt.Errorf("failed to get cache entry: %w", err)
	}

	var j entryJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return domain.CacheEntry{}, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	return domain.CacheEntry{
		Key:       k,
		Payload:   []byte(j.Payload),
		ItemCount: j.ItemCount,
		UpdatedAt: j.UpdatedAt,
	}, nil
}

func (c *Cache) PutResponse(ctx context.Context, e domain.CacheEntry) error {
	payload := json.RawMessage(e.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	data, err := json.Marshal(entryJSON{
		Payload:   payload,
		ItemCount: e.ItemCount,
		UpdatedAt: e.UpdatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	err = c.client.Do(ctx,
		c.client.B().Set().Key(c.key(e.Key)).Value(string(data)).Ex(c.ttl).Build(),
	).Error()
	if err != nil {
		return fmt.Errorf("failed to save cache entry: %w", err)
	}

	c.logger.Debug("saved cache entry", "key", e.Key.String(), "items", e.ItemCount)
	return nil
}

// DeleteResponsesBefore is a no-op; keys expire on their own.
func (c *Cache) DeleteResponsesBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

func (c *Cache) Close() {
	c.client.Close()
}
