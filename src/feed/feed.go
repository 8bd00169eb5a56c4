// Package feed publishes committed transactions to redis so that readers of
// the recent-transactions feed do not need the ledger lock.
package feed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/onemorebsmith/casha-node/src/metrics"
	"github.com/onemorebsmith/casha-node/src/model"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultKeep = 1000

// Entry is a transaction as it looked when it was committed.
type Entry struct {
	ID         string          `json:"id"`
	Seq        uint64          `json:"seq"`
	Kind       string          `json:"kind"`
	FromUser   string          `json:"from_user"`
	ToUser     string          `json:"to_user"`
	Amount     decimal.Decimal `json:"amount"`
	Fee        decimal.Decimal `json:"fee"`
	Note       string          `json:"note"`
	References []string        `json:"references"`
	Timestamp  time.Time       `json:"timestamp"`
}

func EntryFromView(v *model.TransactionView) Entry {
	return Entry{
		ID:         v.ID,
		Seq:        v.Seq,
		Kind:       string(v.Kind),
		FromUser:   v.FromUser,
		ToUser:     v.ToUser,
		Amount:     v.Amount,
		Fee:        v.Fee,
		Note:       v.Note,
		References: v.References,
		Timestamp:  v.Timestamp,
	}
}

// RecentFeed keeps the newest transactions in a sorted set scored by commit
// time, with each entry's JSON under its own key.
type RecentFeed struct {
	client *redis.Client
	ids    ZSet
	prefix string
	keep   int64
	logger *zap.Logger
}

func NewRecentFeed(client *redis.Client, prefix string, keep int64, logger *zap.Logger) *RecentFeed {
	if keep <= 0 {
		keep = DefaultKeep
	}
	return &RecentFeed{
		client: client,
		ids:    NewZSet(client, prefix+":recent"),
		prefix: prefix,
		keep:   keep,
		logger: logger.Named("feed"),
	}
}

func (f *RecentFeed) entryKey(id string) string {
	return f.prefix + ":tx:" + id
}

// OnCommit publishes a committed transaction. Failures are logged and
// counted; the ledger is the source of truth and never waits on the feed.
func (f *RecentFeed) OnCommit(ctx context.Context, v *model.TransactionView) {
	if err := f.Publish(ctx, EntryFromView(v)); err != nil {
		metrics.RecordFeedError()
		f.logger.Warn("failed publishing transaction", zap.String("id", v.ID), zap.Error(err))
	}
}

func (f *RecentFeed) Publish(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "failed marshalling feed entry")
	}
	_, err = f.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, f.entryKey(e.ID), raw, 0)
		pipe.ZAddNX(ctx, f.ids.Key(), &redis.Z{Member: e.ID, Score: float64(e.Timestamp.UnixMicro())})
		return nil
	})
	return errors.Wrapf(err, "failed writing %s to redis", e.ID)
}

// Recent returns up to n entries, newest first. Ids whose entry has gone
// missing are skipped.
func (f *RecentFeed) Recent(ctx context.Context, n int) ([]Entry, error) {
	ids, err := f.ids.Newest(ctx, int64(n))
	if err != nil {
		return nil, errors.Wrap(err, "failed reading recent ids")
	}
	if len(ids) == 0 {
		return []Entry{}, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, f.entryKey(id))
	}
	raw, err := f.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed reading feed entries")
	}
	ret := make([]Entry, 0, len(raw))
	for i, r := range raw {
		s, ok := r.(string)
		if !ok {
			continue
		}
		e := Entry{}
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			f.logger.Warn("dropping malformed feed entry", zap.String("id", ids[i]), zap.Error(err))
			continue
		}
		ret = append(ret, e)
	}
	return ret, nil
}

// Trim drops everything but the newest `keep` entries.
func (f *RecentFeed) Trim(ctx context.Context) (int, error) {
	stale, err := f.ids.Oldest(ctx, f.keep)
	if err != nil {
		return 0, errors.Wrap(err, "failed listing stale feed entries")
	}
	if len(stale) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(stale))
	for _, id := range stale {
		keys = append(keys, f.entryKey(id))
	}
	if err := f.client.Del(ctx, keys...).Err(); err != nil {
		return 0, errors.Wrap(err, "failed deleting stale feed entries")
	}
	if _, err := f.ids.RemoveValues(ctx, stale...); err != nil {
		return 0, errors.Wrap(err, "failed trimming recent ids")
	}
	return len(stale), nil
}

func (f *RecentFeed) StartTrimmer(ctx context.Context, delay time.Duration) error {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	logger := f.logger.Named("trimmer")
	for {
		select {
		case <-ticker.C:
			n, err := f.Trim(ctx)
			if err != nil {
				logger.Error(err.Error())
				continue
			}
			if n > 0 {
				logger.Debug("trimmed feed", zap.Int("removed", n))
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
