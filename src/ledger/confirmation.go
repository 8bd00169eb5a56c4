package ledger

import (
	"time"

	"github.com/gammazero/deque"
	"go.uber.org/zap"
)

type walkItem struct {
	v     *vertex
	depth int
}

// confirmationEngine counts, for every transaction, the distinct later
// transactions that reach it through reference edges.
type confirmationEngine struct {
	threshold int
	maxDepth  int
	logger    *zap.Logger
}

func newConfirmationEngine(threshold, maxDepth int, logger *zap.Logger) *confirmationEngine {
	return &confirmationEngine{
		threshold: threshold,
		maxDepth:  maxDepth,
		logger:    logger.Named("confirmation"),
	}
}

// propagate credits the newly admitted vertex to each of its ancestors once
// and returns the ancestors that crossed the threshold, marked confirmed at
// `at`.
//
// An ancestor already confirmed before this walk is neither credited nor
// descended into: everything behind it has at least as many descendants and
// is confirmed as well. Counts therefore saturate at the threshold.
func (ce *confirmationEngine) propagate(s *store, added *vertex, at time.Time) (confirmed []*vertex, truncated bool) {
	visited := map[string]struct{}{added.tx.ID: {}}
	var q deque.Deque[walkItem]
	push := func(ids []string, depth int) {
		for _, id := range ids {
			if _, seen := visited[id]; seen {
				continue
			}
			visited[id] = struct{}{}
			v, ok := s.get(id)
			if !ok {
				ce.logger.Error("reference to unknown transaction during walk",
					zap.String("tx", added.tx.ID), zap.String("ref", id))
				continue
			}
			q.PushBack(walkItem{v: v, depth: depth})
		}
	}
	push(added.tx.References, 1)

	for q.Len() > 0 {
		item := q.PopFront()
		v := item.v
		if v.confirmed {
			continue
		}
		v.refCount++
		if v.refCount >= ce.threshold {
			v.confirmed = true
			v.confirmedAt = at
			confirmed = append(confirmed, v)
		}
		if item.depth >= ce.maxDepth {
			if len(v.tx.References) > 0 {
				truncated = true
			}
			continue
		}
		push(v.tx.References, item.depth+1)
	}

	if truncated {
		ce.logger.Warn("confirmation walk hit the depth bound, deeper ancestors keep their state",
			zap.String("tx", added.tx.ID), zap.Int("max_depth", ce.maxDepth))
	}
	return confirmed, truncated
}
