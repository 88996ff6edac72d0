package treedb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	leafPrefix  = "tree:"
	childPrefix = "kids:"
)

// Redis stores leaf values as plain keys and keeps a set per branch listing
// its immediate children, so child enumeration never needs a keyspace scan.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to the URL and verifies the connection.
func NewRedis(redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) register(ctx context.Context, path string) error {
	pipe := r.client.Pipeline()
	for _, pair := range ancestors(path) {
		pipe.SAdd(ctx, childPrefix+pair[0], pair[1])
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *Redis) Get(ctx context.Context, path string, out any) error {
	raw, err := r.client.Get(ctx, leafPrefix+path).Bytes()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return json.Unmarshal(raw, out)
}

func (r *Redis) Set(ctx context.Context, path string, value any) error {
	raw, err := marshalValue(value)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, leafPrefix+path, []byte(raw), 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return r.register(ctx, path)
}

func (r *Redis) Update(ctx context.Context, path string, fields map[string]any) error {
	merged := make(map[string]any)
	raw, err := r.client.Get(ctx, leafPrefix+path).Bytes()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	if err == nil {
		if err := json.Unmarshal(raw, &merged); err != nil {
			return fmt.Errorf("update %s: existing value is not an object: %w", path, err)
		}
	}
	for k, v := range fields {
		merged[k] = v
	}
	return r.Set(ctx, path, merged)
}

func (r *Redis) Remove(ctx context.Context, path string) error {
	if err := r.removeSubtree(ctx, path); err != nil {
		return err
	}
	parent, name := splitParent(path)
	return r.client.SRem(ctx, childPrefix+parent, name).Err()
}

func (r *Redis) removeSubtree(ctx context.Context, path string) error {
	names, err := r.client.SMembers(ctx, childPrefix+path).Result()
	if err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	for _, name := range names {
		if err := r.removeSubtree(ctx, path+"/"+name); err != nil {
			return err
		}
	}
	return r.client.Del(ctx, leafPrefix+path, childPrefix+path).Err()
}

func (r *Redis) Push(ctx context.Context, path string, value any) (string, error) {
	key := NewKey()
	if err := r.Set(ctx, path+"/"+key, value); err != nil {
		return "", err
	}
	return key, nil
}

func (r *Redis) Children(ctx context.Context, path string) (map[string]json.RawMessage, error) {
	names, err := r.client.SMembers(ctx, childPrefix+path).Result()
	if err != nil {
		return nil, fmt.Errorf("children %s: %w", path, err)
	}
	out := make(map[string]json.RawMessage, len(names))
	if len(names) == 0 {
		return out, nil
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = leafPrefix + path + "/" + name
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("children %s: %w", path, err)
	}
	for i, name := range names {
		if s, ok := values[i].(string); ok {
			out[name] = json.RawMessage(s)
		} else {
			out[name] = nil
		}
	}
	return out, nil
}

func (r *Redis) ChildKeys(ctx context.Context, path string) ([]string, error) {
	names, err := r.client.SMembers(ctx, childPrefix+path).Result()
	if err != nil {
		return nil, fmt.Errorf("child keys %s: %w", path, err)
	}
	sort.Strings(names)
	return names, nil
}

func (r *Redis) Exists(ctx context.Context, path string) (bool, error) {
	n, err := r.client.Exists(ctx, leafPrefix+path).Result()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	count, err := r.client.SCard(ctx, childPrefix+path).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Redis) Touch(ctx context.Context, path string) error {
	return r.register(ctx, path)
}

func (r *Redis) Incr(ctx context.Context, path string) (int64, error) {
	next, err := r.client.Incr(ctx, leafPrefix+path).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", path, err)
	}
	if err := r.register(ctx, path); err != nil {
		return 0, err
	}
	return next, nil
}

func (r *Redis) Seed(ctx context.Context, path string, value int64) error {
	raw, err := r.client.Get(ctx, leafPrefix+path).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	current, _ := strconv.ParseInt(raw, 10, 64)
	if current >= value {
		return nil
	}
	if err := r.client.Set(ctx, leafPrefix+path, strconv.FormatInt(value, 10), 0).Err(); err != nil {
		return err
	}
	return r.register(ctx, path)
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
