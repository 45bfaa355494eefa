package vault

import (
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"stablevault/core/events"
	"stablevault/crypto"
	nativecommon "stablevault/native/common"
)

const moduleName = "vault"

// ModuleName is the identifier consulted on the pause view.
const ModuleName = moduleName

// Engine executes mint, repay and liquidate operations against a Store and a
// TokenLedger. Every operation runs under a single engine-wide lock and
// either fully succeeds or leaves both collaborators untouched.
type Engine struct {
	mu sync.Mutex

	state    Store
	ledger   TokenLedger
	shared   bool
	oracles  OracleResolver
	access   AccessControl
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	nowFn    func() time.Time
	custody  crypto.Address
	assets   Assets
	defaults Params
}

// NewEngine constructs an engine that holds locked collateral in the custody
// account and operates on the provided asset symbols.
func NewEngine(custody crypto.Address, assets Assets) *Engine {
	return &Engine{
		custody:  custody,
		assets:   assets,
		emitter:  events.NoopEmitter{},
		nowFn:    time.Now,
		defaults: DefaultParams(),
	}
}

// SetState wires the engine to the vault persistence layer.
func (e *Engine) SetState(state Store) {
	e.state = state
	e.shared = false
}

// SetLedger wires the engine to the token ledger.
func (e *Engine) SetLedger(ledger TokenLedger) {
	e.ledger = ledger
	e.shared = false
}

// StateLedger is a backend that persists vaults and balances together.
type StateLedger interface {
	Store
	TokenLedger
}

// SetStateAndLedger wires one backend as both the vault store and the token
// ledger. A single Commit then flushes both.
func (e *Engine) SetStateAndLedger(backend StateLedger) {
	e.state = backend
	e.ledger = backend
	e.shared = true
}

// SetOracles configures the resolver used to look up the collateral price.
func (e *Engine) SetOracles(resolver OracleResolver) { e.oracles = resolver }

// SetAccessControl configures the governance gate and fee sink.
func (e *Engine) SetAccessControl(access AccessControl) { e.access = access }

// SetPauses configures the view consulted before mint, repay and liquidate.
// A nil view leaves the engine unpaused.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used for notifications.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the clock used for instalment tracking.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

// SetDefaultParams configures the parameters used until governance persists
// its own.
func (e *Engine) SetDefaultParams(params Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	e.defaults = params.Clone()
	return nil
}

// Custody returns the account holding locked collateral.
func (e *Engine) Custody() crypto.Address { return e.custody }

// Assets returns the ledger symbols used by the engine.
func (e *Engine) Assets() Assets { return e.assets }

// opContext carries the consistent view an operation runs against.
type opContext struct {
	params Params
	price  *uint256.Int
	now    uint64
	events []events.Event
}

func (c *opContext) emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.ledger == nil || e.access == nil {
		return ErrNotConfigured
	}
	return nil
}

// execute runs fn as one atomic unit. Store and ledger journals are
// snapshotted first; any error reverts both and drops buffered events.
func (e *Engine) execute(op string, guarded, needPrice bool, fn func(*opContext) error) error {
	if e == nil {
		return opError(op, ErrNotConfigured)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ready(); err != nil {
		return opError(op, err)
	}
	if guarded {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return opError(op, err)
		}
	}

	ctx, err := e.prepare(needPrice)
	if err != nil {
		return opError(op, err)
	}

	stateSnap := e.state.Snapshot()
	ledgerSnap := e.ledger.Snapshot()
	revert := func() {
		e.ledger.RevertToSnapshot(ledgerSnap)
		e.state.RevertToSnapshot(stateSnap)
	}

	if err := fn(ctx); err != nil {
		revert()
		return opError(op, err)
	}
	if err := e.commit(); err != nil {
		revert()
		return opError(op, fmt.Errorf("commit: %w", err))
	}
	for _, evt := range ctx.events {
		e.emitter.Emit(evt)
	}
	return nil
}

// view runs a read-only fn under the engine lock.
func (e *Engine) view(op string, needPrice bool, fn func(*opContext) error) error {
	if e == nil {
		return opError(op, ErrNotConfigured)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return opError(op, ErrNotConfigured)
	}
	ctx, err := e.prepare(needPrice)
	if err != nil {
		return opError(op, err)
	}
	return opError(op, fn(ctx))
}

func (e *Engine) prepare(needPrice bool) (*opContext, error) {
	params, err := e.loadParams()
	if err != nil {
		return nil, err
	}
	ctx := &opContext{params: params, now: e.now()}
	if needPrice {
		price, err := e.priceFor(params)
		if err != nil {
			return nil, err
		}
		ctx.price = price
	}
	return ctx, nil
}

func (e *Engine) commit() error {
	if c, ok := e.state.(Committer); ok {
		if err := c.Commit(); err != nil {
			return err
		}
	}
	if e.shared {
		return nil
	}
	if c, ok := e.ledger.(Committer); ok {
		return c.Commit()
	}
	return nil
}

func (e *Engine) loadParams() (Params, error) {
	params, ok, err := e.state.GetParams()
	if err != nil {
		return Params{}, err
	}
	if !ok {
		return e.defaults.Clone(), nil
	}
	if params.MinInstalmentAmount == nil {
		params.MinInstalmentAmount = new(uint256.Int)
	}
	return params, nil
}

func (e *Engine) priceFor(params Params) (*uint256.Int, error) {
	if e.oracles == nil {
		return nil, ErrOracleUnavailable
	}
	feed, err := e.oracles.Resolve(params.OracleRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if feed == nil {
		return nil, ErrOracleUnavailable
	}
	price, err := feed.Price()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if price == nil || price.IsZero() {
		return nil, ErrOracleUnavailable
	}
	return new(uint256.Int).Set(price), nil
}

func (e *Engine) now() uint64 {
	ts := e.nowFn().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) loadVault(addr crypto.Address) (*Vault, error) {
	v, err := e.state.GetVault(addr)
	if err != nil {
		return nil, err
	}
	return v.Clone(), nil
}
