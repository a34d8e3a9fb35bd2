package attest

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EventMeta is carried by every notification: a unique id and the logical
// time of the emitting operation.
type EventMeta struct {
	EventID   uuid.UUID `json:"event_id"`
	EmittedAt time.Time `json:"emitted_at"`
}

func (m *EventMeta) setMeta(meta EventMeta) { *m = meta }

// Meta returns the stamped metadata.
func (m *EventMeta) Meta() EventMeta { return *m }

// Event is a registry notification. Concrete types below map one-to-one to
// the registry's observable state changes.
type Event interface {
	Name() string
}

type AssertionAdded struct {
	EventMeta
	Assertion     Assertion
	Creator       common.Address
	AttachedValue *apd.Decimal
}

type NewController struct {
	EventMeta
	AssertionID common.Hash
	Old, New    common.Address
}

type NewGateway struct {
	EventMeta
	AssertionID common.Hash
	Old, New    common.Address
}

type AssertionStopped struct {
	EventMeta
	AssertionID common.Hash
}

type AssertionUnStopped struct {
	EventMeta
	AssertionID common.Hash
}

type Attested struct {
	EventMeta
	AssertionID common.Hash
	Subject     common.Address
	SignedAt    int64
}

type Revoked struct {
	EventMeta
	AssertionID common.Hash
	Subject     common.Address
}

type Blocked struct {
	EventMeta
	Address common.Address
}

type UnBlocked struct {
	EventMeta
	Address common.Address
}

type NewTipAmount struct {
	EventMeta
	Old, New *apd.Decimal
}

type TipReceived struct {
	EventMeta
	Sender common.Address
	Value  *apd.Decimal
}

type TipOut struct {
	EventMeta
	Collector common.Address
	Amount    *apd.Decimal
}

type NewOverrider struct {
	EventMeta
	Old, New common.Address
}

type NewTipCollector struct {
	EventMeta
	Old, New common.Address
}

type OwnershipTransferred struct {
	EventMeta
	Old, New common.Address
}

func (AssertionAdded) Name() string       { return "AssertionAdded" }
func (NewController) Name() string        { return "NewController" }
func (NewGateway) Name() string           { return "NewGateway" }
func (AssertionStopped) Name() string     { return "AssertionStopped" }
func (AssertionUnStopped) Name() string   { return "AssertionUnStopped" }
func (Attested) Name() string             { return "Attested" }
func (Revoked) Name() string              { return "Revoked" }
func (Blocked) Name() string              { return "Blocked" }
func (UnBlocked) Name() string            { return "UnBlocked" }
func (NewTipAmount) Name() string         { return "NewTipAmount" }
func (TipReceived) Name() string          { return "TipReceived" }
func (TipOut) Name() string               { return "TipOut" }
func (NewOverrider) Name() string         { return "NewOverrider" }
func (NewTipCollector) Name() string      { return "NewTipCollector" }
func (OwnershipTransferred) Name() string { return "OwnershipTransferred" }

// Sink receives registry notifications. Sinks are observability only:
// a sink error never fails the operation that emitted the event.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// MemorySink buffers every published event. Useful in tests and for local
// inspection tooling.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemorySink creates an empty memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Publish(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (s *MemorySink) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Named returns published events with the given name, oldest first.
func (s *MemorySink) Named(name string) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Filter(s.events, func(ev Event, _ int) bool {
		return ev.Name() == name
	})
}

// ZapSink logs every event at info level.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink wraps a logger as an event sink.
func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log}
}

func (s *ZapSink) Publish(_ context.Context, ev Event) error {
	s.log.Info("registry event", zap.String("event", ev.Name()), zap.Any("payload", ev))
	return nil
}

// publish fans one event out to every sink in parallel. Sink failures are
// logged and swallowed; notifications must not affect operation outcome.
func (r *Registry) publish(ctx context.Context, ev Event) {
	if len(r.sinks) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sink := range r.sinks {
		sink := sink
		g.Go(func() error {
			return sink.Publish(gctx, ev)
		})
	}
	if err := g.Wait(); err != nil {
		r.log.Warn("event sink failed", zap.String("event", ev.Name()), zap.Error(err))
	}
}

// emit stamps metadata onto events and publishes them in order.
func (r *Registry) emit(ctx context.Context, at time.Time, events ...Event) {
	for _, ev := range events {
		stamp(ev, at)
		r.publish(ctx, ev)
	}
}

func stamp(ev Event, at time.Time) {
	if setter, ok := ev.(interface{ setMeta(EventMeta) }); ok {
		setter.setMeta(EventMeta{EventID: uuid.New(), EmittedAt: at})
	}
}
