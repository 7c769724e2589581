package receipt

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Aggregator collects records and failures for one batch. It is safe for
// concurrent use; Result orders everything by document discovery order.
type Aggregator struct {
	mu sync.Mutex

	id        string
	startedAt time.Time
	order     map[string]int
	seen      map[Provenance]bool

	records      []Record
	failures     []Failure
	pageFailures []Failure
	attempts     []Attempt
}

// NewAggregator creates an aggregator for docs, in discovery order
func NewAggregator(batchID string, startedAt time.Time, docs []SourceDocument) *Aggregator {
	order := make(map[string]int, len(docs))
	for i, d := range docs {
		order[d.ID] = i
	}
	return &Aggregator{
		id:        batchID,
		startedAt: startedAt,
		order:     order,
		seen:      map[Provenance]bool{},
	}
}

// Record attaches provenance to rec and appends it. A provenance that was
// already recorded is a broken invariant and returns ErrDuplicateProvenance.
func (a *Aggregator) Record(rec Record, documentID string, page, receipt int) error {
	p := Provenance{DocumentID: documentID, Page: page, Receipt: receipt}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.seen[p] {
		return fmt.Errorf("%s: %w", p, ErrDuplicateProvenance)
	}
	a.seen[p] = true
	rec.Provenance = p
	a.records = append(a.records, rec)
	return nil
}

// Fail records a document that produced no records
func (a *Aggregator) Fail(documentID string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, failureFrom(documentID, -1, err))
}

// PageFailed records a failed page of a document that still produced records
func (a *Aggregator) PageFailed(documentID string, page int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pageFailures = append(a.pageFailures, failureFrom(documentID, page, err))
}

// Attempt appends to the attempt log
func (a *Aggregator) Attempt(attempts ...Attempt) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.attempts = append(a.attempts, attempts...)
}

// Result returns the ordered batch result
func (a *Aggregator) Result(finishedAt time.Time) *BatchResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	rank := func(documentID string) int {
		if i, ok := a.order[documentID]; ok {
			return i
		}
		return len(a.order)
	}

	records := append([]Record{}, a.records...)
	sort.SliceStable(records, func(i, j int) bool {
		pi, pj := records[i].Provenance, records[j].Provenance
		if ri, rj := rank(pi.DocumentID), rank(pj.DocumentID); ri != rj {
			return ri < rj
		}
		if pi.Page != pj.Page {
			return pi.Page < pj.Page
		}
		return pi.Receipt < pj.Receipt
	})

	sortFailures := func(fs []Failure) []Failure {
		out := append([]Failure{}, fs...)
		sort.SliceStable(out, func(i, j int) bool {
			if ri, rj := rank(out[i].DocumentID), rank(out[j].DocumentID); ri != rj {
				return ri < rj
			}
			return out[i].Page < out[j].Page
		})
		return out
	}

	attempts := append([]Attempt{}, a.attempts...)
	sort.SliceStable(attempts, func(i, j int) bool {
		return rank(attempts[i].DocumentID) < rank(attempts[j].DocumentID)
	})

	return &BatchResult{
		ID:           a.id,
		StartedAt:    a.startedAt,
		FinishedAt:   finishedAt,
		Documents:    len(a.order),
		Records:      records,
		Failures:     sortFailures(a.failures),
		PageFailures: sortFailures(a.pageFailures),
		Attempts:     attempts,
	}
}
