package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/quantdesk/fno-md-ingest/internal/instrument"
	"github.com/quantdesk/fno-md-ingest/internal/tick"
)

// ErrUnresolvedInstrument marks a tick whose wire security_id does not
// resolve against the instrument cache; the tick is dropped, a
// counter increments, and the pipeline continues uninterrupted (S6).
var ErrUnresolvedInstrument = errors.New("ingest: unresolved instrument")

// Enricher resolves a merged tick against the instrument cache and
// fills its derived fields. Resolution failures never propagate as
// fatal errors; they are counted and dropped.
type Enricher struct {
	cache           *instrument.Cache
	resolveFailures atomic.Int64
}

// NewEnricher builds an Enricher backed by cache.
func NewEnricher(cache *instrument.Cache) *Enricher {
	return &Enricher{cache: cache}
}

// Enrich resolves securityID and, on success, returns a tick with
// InstrumentToken and every derived field populated. On a miss it
// increments ResolveFailures and returns ErrUnresolvedInstrument.
func (e *Enricher) Enrich(t tick.NormalizedTick, securityID int32) (tick.NormalizedTick, error) {
	inst, ok := e.cache.ResolveSecurityID(strconv.Itoa(int(securityID)))
	if !ok {
		e.resolveFailures.Add(1)
		return tick.NormalizedTick{}, fmt.Errorf("%w: security_id=%d", ErrUnresolvedInstrument, securityID)
	}

	t.InstrumentToken = inst.InstrumentToken
	t.Enrich(inst.TradingSymbol, inst.Exchange, inst.Segment, string(inst.InstrumentType))
	return t, nil
}

// ResolveFailures returns the running count of ticks dropped for
// failing to resolve against the instrument cache.
func (e *Enricher) ResolveFailures() int64 {
	return e.resolveFailures.Load()
}
