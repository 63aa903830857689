package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ProviderAnnouncement is what RedisProviderDirectory publishes per provider
// heartbeat: enough to reconstruct a remote Provider entry without shipping
// the live Instance handle (which cannot cross a process boundary).
type ProviderAnnouncement struct {
	Name         string            `json:"name"`
	ServiceType  string            `json:"service_type"`
	Handler      string            `json:"handler,omitempty"`
	Priority     Priority          `json:"priority"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Address      string            `json:"address"`
	LastSeen     time.Time         `json:"last_seen"`
}

// RedisProviderDirectory mirrors local ServiceRegistry registrations into
// Redis so a second agent process (or an external observability tool) can
// see which providers are live. It is not consulted by GetService directly
// -- the in-process ServiceRegistry remains authoritative for dispatch --
// it exists for cross-process discovery and for the dashboards that watch
// `wait_ready` convergence across a fleet of agents.
type RedisProviderDirectory struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	logger    Logger
}

// NewRedisProviderDirectory connects to Redis with the same pooling and
// retry posture as the rest of the core package's Redis-backed stores.
func NewRedisProviderDirectory(redisURL, namespace string, logger Logger) (*RedisProviderDirectory, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, NewError("registry.NewRedisProviderDirectory", "configuration", ErrInvalidConfiguration)
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 5 * time.Second
	opt.WriteTimeout = 5 * time.Second

	client := redis.NewClient(opt)

	var pingErr error
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr = client.Ping(ctx).Err()
		cancel()
		if pingErr == nil {
			break
		}
		time.Sleep(time.Duration(i+1) * 200 * time.Millisecond)
	}
	if pingErr != nil {
		return nil, NewError("registry.NewRedisProviderDirectory", "registry", fmt.Errorf("connect to redis: %w", pingErr))
	}

	if namespace == "" {
		namespace = "ciris"
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &RedisProviderDirectory{client: client, namespace: namespace, ttl: 30 * time.Second, logger: logger}, nil
}

func (d *RedisProviderDirectory) key(name string) string {
	return fmt.Sprintf("%s:providers:%s", d.namespace, name)
}

// Announce publishes (or refreshes) a provider's heartbeat with the
// registry's TTL, so a crashed process's providers expire automatically.
func (d *RedisProviderDirectory) Announce(ctx context.Context, a ProviderAnnouncement) error {
	a.LastSeen = time.Now()
	data, err := json.Marshal(a)
	if err != nil {
		return NewError("registry.Announce", "registry", err)
	}

	pipe := d.client.TxPipeline()
	pipe.Set(ctx, d.key(a.Name), data, d.ttl)
	typeKey := fmt.Sprintf("%s:types:%s", d.namespace, a.ServiceType)
	pipe.SAdd(ctx, typeKey, a.Name)
	pipe.Expire(ctx, typeKey, d.ttl*2)

	if _, err := pipe.Exec(ctx); err != nil {
		d.logger.Error("failed to announce provider", map[string]interface{}{"provider": a.Name, "error": err.Error()})
		return NewError("registry.Announce", "registry", fmt.Errorf("%w", ErrPersistenceFailure))
	}
	return nil
}

// Withdraw removes a provider's announcement immediately, used on graceful
// unregistration instead of waiting for TTL expiry.
func (d *RedisProviderDirectory) Withdraw(ctx context.Context, name string) error {
	return d.client.Del(ctx, d.key(name)).Err()
}

// ListByType returns the currently-live announcements for a service type.
func (d *RedisProviderDirectory) ListByType(ctx context.Context, serviceType string) ([]ProviderAnnouncement, error) {
	typeKey := fmt.Sprintf("%s:types:%s", d.namespace, serviceType)
	names, err := d.client.SMembers(ctx, typeKey).Result()
	if err != nil {
		return nil, NewError("registry.ListByType", "registry", err)
	}

	out := make([]ProviderAnnouncement, 0, len(names))
	for _, name := range names {
		data, err := d.client.Get(ctx, d.key(name)).Result()
		if err == redis.Nil {
			continue // expired between SMEMBERS and GET
		}
		if err != nil {
			continue
		}
		var a ProviderAnnouncement
		if json.Unmarshal([]byte(data), &a) == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

// Close releases the underlying Redis connection pool.
func (d *RedisProviderDirectory) Close() error {
	return d.client.Close()
}
