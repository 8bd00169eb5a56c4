package feed

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// ZSet is a thin wrapper around a redis sorted set.
type ZSet struct {
	client *redis.Client
	key    string
}

func NewZSet(cache *redis.Client, key string) ZSet {
	return ZSet{
		key:    key,
		client: cache,
	}
}

func (zz *ZSet) Key() string {
	return zz.key
}

func (zz *ZSet) AddValuesWithScore(ctx context.Context, score float64, keys ...string) error {
	zArgs := make([]*redis.Z, 0, len(keys))
	for _, k := range keys {
		zArgs = append(zArgs, &redis.Z{Member: k, Score: score})
	}
	return zz.client.ZAddNX(ctx, zz.key, zArgs...).Err()
}

// Newest returns up to n members, highest score first.
func (zz *ZSet) Newest(ctx context.Context, n int64) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	data := zz.client.ZRevRange(ctx, zz.key, 0, n-1)
	if data.Err() != nil {
		return nil, data.Err()
	}
	return data.Val(), nil
}

// Oldest returns every member except the newest `keep`, lowest score first.
func (zz *ZSet) Oldest(ctx context.Context, keep int64) ([]string, error) {
	data := zz.client.ZRange(ctx, zz.key, 0, -(keep + 1))
	if data.Err() != nil {
		return nil, data.Err()
	}
	return data.Val(), nil
}

func (zz *ZSet) Count(ctx context.Context) (int64, error) {
	cmd := zz.client.ZCount(ctx, zz.key, "-inf", "+inf")
	return cmd.Val(), cmd.Err()
}

func (zz *ZSet) RemoveValues(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	members := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		members = append(members, k)
	}
	cmd := zz.client.ZRem(ctx, zz.key, members...)
	return cmd.Val(), cmd.Err()
}

func (zz *ZSet) Clear(ctx context.Context) error {
	return zz.client.Del(ctx, zz.key).Err()
}
