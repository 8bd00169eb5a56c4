package ledger

import "sort"

type tipEntry struct {
	id        string
	seq       uint64
	approvals int
}

// TipSet tracks transactions that new admissions may reference: unconfirmed
// and approved directly by fewer than maxFanIn transactions. Mutation happens
// only on the ledger's writer path with the state lock held.
type TipSet struct {
	maxFanIn int
	tips     map[string]*tipEntry
}

func NewTipSet(maxFanIn int) *TipSet {
	if maxFanIn <= 0 {
		maxFanIn = DefaultMaxFanIn
	}
	return &TipSet{
		maxFanIn: maxFanIn,
		tips:     map[string]*tipEntry{},
	}
}

func (ts *TipSet) Add(id string, seq uint64) {
	if _, exists := ts.tips[id]; exists {
		return
	}
	ts.tips[id] = &tipEntry{id: id, seq: seq}
}

func (ts *TipSet) Remove(id string) {
	delete(ts.tips, id)
}

// Approve records a direct reference to id and evicts it once the fan-in
// limit is reached. Returns true on eviction.
func (ts *TipSet) Approve(id string) bool {
	tip, ok := ts.tips[id]
	if !ok {
		return false
	}
	tip.approvals++
	if tip.approvals >= ts.maxFanIn {
		delete(ts.tips, id)
		return true
	}
	return false
}

func (ts *TipSet) Contains(id string) bool {
	_, ok := ts.tips[id]
	return ok
}

func (ts *TipSet) Len() int {
	return len(ts.tips)
}

func (ts *TipSet) sorted() []*tipEntry {
	ret := make([]*tipEntry, 0, len(ts.tips))
	for _, v := range ts.tips {
		ret = append(ret, v)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].seq < ret[j].seq })
	return ret
}

// Select returns up to k tips: the k-1 oldest, so the longest waiting
// transactions make progress, plus the newest, which chains every admission
// behind the previous one and keeps transitive counts moving.
func (ts *TipSet) Select(k int) []string {
	sorted := ts.sorted()
	if k <= 0 || len(sorted) == 0 {
		return nil
	}
	if k >= len(sorted) {
		return entryIDs(sorted)
	}
	picked := append(sorted[:k-1:k-1], sorted[len(sorted)-1])
	return entryIDs(picked)
}

func entryIDs(entries []*tipEntry) []string {
	ret := make([]string, 0, len(entries))
	for _, t := range entries {
		ret = append(ret, t.id)
	}
	return ret
}

// IDs returns every tip, oldest first.
func (ts *TipSet) IDs() []string {
	return entryIDs(ts.sorted())
}
