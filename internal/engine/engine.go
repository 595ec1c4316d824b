package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/RareSkills/icp-for-evm-sub000/internal/commitlog"
	"github.com/RareSkills/icp-for-evm-sub000/internal/ir"
)

// Journal receives the durable execution trace. Implemented by
// *store.Store; a nil Journal disables journaling (pure in-memory runs).
type Journal interface {
	WriteCall(ctx context.Context, rec ir.CallRecord) error
	WriteSegment(ctx context.Context, rec ir.SegmentRecord) error
	WriteCheckpoint(ctx context.Context, rec ir.CheckpointRecord) error
	WriteCellWrites(ctx context.Context, recs []ir.WriteRecord) error
	WriteOutcome(ctx context.Context, rec ir.OutcomeRecord) error
}

// Default budgets. Generous for scenarios, tight enough to stop a
// runaway mutual-recursion between canisters.
const (
	DefaultMaxSteps = 1000
	DefaultMaxDepth = 16
)

// callState is the engine's in-flight view of one call.
type callState struct {
	id     string
	rec    ir.CallRecord
	parent string
	token  string

	canister string
	method   ir.MethodSpec
	caller   ir.Principal
	args     ir.Record

	plan   segmentPlan
	segPos int    // index into plan.Exec
	segID  string // active exec segment ID, "" when none open

	env   map[string]ir.Value
	reply ir.Record
	now   int64 // virtual ms
	depth int

	awaiting    string // pending sub-call ID while suspended
	awaitingVar string // result variable of the pending call op
	resolved    bool
}

// Engine is the single-writer execution loop over installed canisters.
//
// Thread-safety model:
//   - Submit, Token generation: safe from any goroutine
//   - Run / Drain: exactly one goroutine
//   - Outcome, State: safe after Drain returns (or between events)
//
// All state mutation happens in the loop goroutine; determinism follows
// from the total (dueAt, seq) event order.
type Engine struct {
	log      *commitlog.Log
	journal  Journal
	specs    map[string]ir.CanisterSpec
	clock    *Clock
	timeline *timeline
	tokens   TokenGenerator
	logger   *slog.Logger
	specHash string

	maxSteps int
	maxDepth int

	mu       sync.Mutex
	calls    map[string]*callState
	outcomes map[string]ir.OutcomeRecord
	steps    map[string]int // per call-tree token, cleared when the tree resolves
	inflight map[string]int // unresolved calls per token
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxSteps caps ops executed per call tree.
func WithMaxSteps(n int) Option {
	return func(e *Engine) { e.maxSteps = n }
}

// WithMaxDepth caps the sub-call chain length.
func WithMaxDepth(n int) Option {
	return func(e *Engine) { e.maxDepth = n }
}

// WithLogger sets the slog logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock sets a pre-positioned clock, for continuing a journal.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an Engine over the given compiled specs. journal may be
// nil. The spec slice is indexed by canister name; duplicate names keep
// the first occurrence.
func New(journal Journal, specs []ir.CanisterSpec, tokens TokenGenerator, opts ...Option) (*Engine, error) {
	specHash, err := ir.SpecHash(specs)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	byName := make(map[string]ir.CanisterSpec, len(specs))
	for _, spec := range specs {
		if _, dup := byName[spec.Name]; !dup {
			byName[spec.Name] = spec
		}
	}

	e := &Engine{
		log:      commitlog.New(),
		journal:  journal,
		specs:    byName,
		clock:    NewClock(),
		timeline: newTimeline(),
		tokens:   tokens,
		logger:   slog.Default(),
		specHash: specHash,
		maxSteps: DefaultMaxSteps,
		maxDepth: DefaultMaxDepth,
		calls:    make(map[string]*callState),
		outcomes: make(map[string]ir.OutcomeRecord),
		steps:    make(map[string]int),
		inflight: make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Install creates the named canister with its spec's initial cells.
func (e *Engine) Install(name string) error {
	spec, ok := e.specs[name]
	if !ok {
		return &ExecError{Code: CodeUnknownCanister, Message: fmt.Sprintf("no spec for canister %q", name), Canister: name}
	}
	return e.log.Install(name, spec.Cells)
}

// InstallAll installs every compiled canister.
func (e *Engine) InstallAll() error {
	for name := range e.specs {
		if err := e.Install(name); err != nil {
			return err
		}
	}
	return nil
}

// Upgrade preserves state while seeding cells new to the spec.
func (e *Engine) Upgrade(name string) error {
	spec, ok := e.specs[name]
	if !ok {
		return &ExecError{Code: CodeUnknownCanister, Message: fmt.Sprintf("no spec for canister %q", name), Canister: name}
	}
	return e.log.Upgrade(name, spec.Cells)
}

// Reinstall wipes state and reruns initialization.
func (e *Engine) Reinstall(name string) error {
	spec, ok := e.specs[name]
	if !ok {
		return &ExecError{Code: CodeUnknownCanister, Message: fmt.Sprintf("no spec for canister %q", name), Canister: name}
	}
	return e.log.Reinstall(name, spec.Cells)
}

// Uninstall removes the canister and its state.
func (e *Engine) Uninstall(name string) error {
	return e.log.Uninstall(name)
}

// SubmitRequest describes a top-level call.
type SubmitRequest struct {
	Method ir.MethodRef
	Caller ir.Principal
	Args   ir.Record
	// At is the virtual time (ms) the call arrives. Calls submitted with
	// a later At interleave with earlier calls' suspensions.
	At int64
	// Token fixes the correlation token; empty means generate one.
	Token string
}

// Submit schedules a top-level call and returns its call ID.
// Safe from any goroutine. The call executes when the loop reaches its
// due time.
func (e *Engine) Submit(req SubmitRequest) (string, error) {
	canisterName, methodName, err := req.Method.Split()
	if err != nil {
		return "", err
	}
	spec, ok := e.specs[canisterName]
	if !ok {
		return "", &ExecError{Code: CodeUnknownCanister, Message: fmt.Sprintf("canister %q is not known", canisterName), Canister: canisterName}
	}
	method, ok := spec.Method(methodName)
	if !ok {
		return "", &ExecError{Code: CodeUnknownMethod, Message: fmt.Sprintf("canister %q has no method %q", canisterName, methodName), Canister: canisterName, Method: methodName}
	}

	token := req.Token
	if token == "" {
		token = e.tokens.Generate()
	}
	args := req.Args
	if args == nil {
		args = ir.Record{}
	}
	caller := req.Caller
	if caller == "" {
		caller = ir.Anonymous
	}

	seq := e.clock.Next()
	id, err := ir.CallID(token, req.Method, args, seq)
	if err != nil {
		return "", err
	}

	c := &callState{
		id:       id,
		token:    token,
		canister: canisterName,
		method:   method,
		caller:   caller,
		args:     args,
		plan:     planSegments(method.Ops),
		now:      req.At,
		rec: ir.CallRecord{
			ID:            id,
			Token:         token,
			Method:        req.Method,
			Kind:          method.Kind,
			Caller:        caller,
			Args:          args,
			Seq:           seq,
			SubmitAt:      req.At,
			SpecHash:      e.specHash,
			EngineVersion: ir.EngineVersion,
			IRVersion:     ir.IRVersion,
		},
	}

	e.mu.Lock()
	e.calls[id] = c
	e.inflight[token]++
	e.mu.Unlock()

	if !e.timeline.Push(event{kind: eventCallStart, dueAt: req.At, seq: seq, callID: id}) {
		return "", fmt.Errorf("engine stopped")
	}
	return id, nil
}

// Outcome returns a call's resolution, if it has one.
func (e *Engine) Outcome(callID string) (ir.OutcomeRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out, ok := e.outcomes[callID]
	return out, ok
}

// State returns a copy of a canister's durable cells.
func (e *Engine) State(canister string) (map[string]ir.Value, error) {
	return e.log.Snapshot(canister)
}

// DurableRead returns one committed cell value.
func (e *Engine) DurableRead(canister, cell string) (ir.Value, error) {
	return e.log.DurableRead(canister, cell)
}

// Drain processes events until the timeline is empty or ctx is
// cancelled. Event failures are logged and processing continues; a retry
// would make replay non-deterministic.
func (e *Engine) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, ok := e.timeline.TryPop()
		if !ok {
			return nil
		}
		if err := e.processEvent(ctx, ev); err != nil {
			e.logger.Error("event processing failed",
				"kind", int(ev.kind), "call_id", ev.callID, "due_at", ev.dueAt, "error", err)
		}
	}
}

// Run blocks processing events as they arrive, until ctx is cancelled or
// Stop is called. Must be called from exactly one goroutine.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")
	for {
		ev, ok := e.timeline.TryPop()
		if ok {
			if err := e.processEvent(ctx, ev); err != nil {
				e.logger.Error("event processing failed",
					"kind", int(ev.kind), "call_id", ev.callID, "due_at", ev.dueAt, "error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.timeline.Close()
			return ctx.Err()
		case <-e.timeline.Wait():
			if e.timeline.Len() == 0 {
				e.logger.Info("engine stopping: timeline closed")
				return nil
			}
		}
	}
}

// Stop closes the timeline, causing Run to return.
func (e *Engine) Stop() {
	e.timeline.Close()
}

// processEvent routes one event. Called only from the loop goroutine.
func (e *Engine) processEvent(ctx context.Context, ev event) error {
	e.mu.Lock()
	c := e.calls[ev.callID]
	e.mu.Unlock()
	if c == nil {
		return fmt.Errorf("event for unknown call %s", ev.callID)
	}

	switch ev.kind {
	case eventCallStart:
		return e.startCall(ctx, c, ev.dueAt)
	case eventReply:
		return e.resumeCall(ctx, c, ev, *ev.outcome)
	case eventDeadline:
		return e.expireWait(ctx, c, ev)
	case eventSegmentEnd:
		return e.finishSegment(ctx, c)
	default:
		return fmt.Errorf("unknown event kind %d", ev.kind)
	}
}
