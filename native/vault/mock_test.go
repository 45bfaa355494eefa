package vault

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"stablevault/core/events"
	"stablevault/crypto"
)

const (
	stableAsset     = "VUSD"
	collateralAsset = "VCOL"
)

var testAssets = Assets{Stable: stableAsset, Collateral: collateralAsset}

func makeAddress(b byte) crypto.Address {
	return crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{b}, crypto.AddressLength))
}

func units(s string) *uint256.Int { return MustParseUnits(s) }

type mockSnapshot struct {
	vaults   map[string]*Vault
	minters  []crypto.Address
	params   *Params
	balances map[string]*uint256.Int
}

// mockEngineState implements both Store and TokenLedger over plain maps and
// journals by copying everything on Snapshot.
type mockEngineState struct {
	vaults    map[string]*Vault
	minters   []crypto.Address
	params    *Params
	balances  map[string]*uint256.Int
	snapshots []mockSnapshot
	commits   int

	failTransfer bool
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		vaults:   make(map[string]*Vault),
		balances: make(map[string]*uint256.Int),
	}
}

func balanceKey(asset string, addr crypto.Address) string {
	return asset + "/" + addr.Key()
}

func (m *mockEngineState) Snapshot() int {
	snap := mockSnapshot{
		vaults:   make(map[string]*Vault, len(m.vaults)),
		minters:  append([]crypto.Address(nil), m.minters...),
		balances: make(map[string]*uint256.Int, len(m.balances)),
	}
	for k, v := range m.vaults {
		snap.vaults[k] = v.Clone()
	}
	for k, v := range m.balances {
		snap.balances[k] = new(uint256.Int).Set(v)
	}
	if m.params != nil {
		p := m.params.Clone()
		snap.params = &p
	}
	m.snapshots = append(m.snapshots, snap)
	return len(m.snapshots) - 1
}

func (m *mockEngineState) RevertToSnapshot(id int) {
	snap := m.snapshots[id]
	m.vaults = snap.vaults
	m.minters = snap.minters
	m.params = snap.params
	m.balances = snap.balances
	m.snapshots = m.snapshots[:id]
}

func (m *mockEngineState) Commit() error {
	m.commits++
	m.snapshots = nil
	return nil
}

func (m *mockEngineState) GetVault(addr crypto.Address) (*Vault, error) {
	if v, ok := m.vaults[addr.Key()]; ok {
		return v.Clone(), nil
	}
	return NewVault(), nil
}

func (m *mockEngineState) PutVault(addr crypto.Address, v *Vault) error {
	m.vaults[addr.Key()] = v.Clone()
	return nil
}

func (m *mockEngineState) RegisterMinter(addr crypto.Address) (bool, error) {
	for _, existing := range m.minters {
		if existing.Equal(addr) {
			return false, nil
		}
	}
	m.minters = append(m.minters, addr)
	return true, nil
}

func (m *mockEngineState) MinterAt(index uint64) (crypto.Address, error) {
	if index >= uint64(len(m.minters)) {
		return crypto.Address{}, fmt.Errorf("index %d out of range", index)
	}
	return m.minters[index], nil
}

func (m *mockEngineState) MinterCount() (uint64, error) {
	return uint64(len(m.minters)), nil
}

func (m *mockEngineState) GetParams() (Params, bool, error) {
	if m.params == nil {
		return Params{}, false, nil
	}
	return m.params.Clone(), true, nil
}

func (m *mockEngineState) PutParams(p Params) error {
	clone := p.Clone()
	m.params = &clone
	return nil
}

func (m *mockEngineState) BalanceOf(asset string, addr crypto.Address) (*uint256.Int, error) {
	if bal, ok := m.balances[balanceKey(asset, addr)]; ok {
		return new(uint256.Int).Set(bal), nil
	}
	return new(uint256.Int), nil
}

func (m *mockEngineState) setBalance(asset string, addr crypto.Address, amount *uint256.Int) {
	m.balances[balanceKey(asset, addr)] = new(uint256.Int).Set(amount)
}

func (m *mockEngineState) balance(asset string, addr crypto.Address) *uint256.Int {
	bal, _ := m.BalanceOf(asset, addr)
	return bal
}

func (m *mockEngineState) Mint(asset string, to crypto.Address, amount *uint256.Int) error {
	bal, _ := m.BalanceOf(asset, to)
	m.setBalance(asset, to, bal.Add(bal, amount))
	return nil
}

func (m *mockEngineState) Burn(asset string, from crypto.Address, amount *uint256.Int) error {
	bal, _ := m.BalanceOf(asset, from)
	if bal.Cmp(amount) < 0 {
		return errors.New("mock ledger: insufficient balance")
	}
	m.setBalance(asset, from, bal.Sub(bal, amount))
	return nil
}

func (m *mockEngineState) Transfer(asset string, from, to crypto.Address, amount *uint256.Int) error {
	if m.failTransfer {
		return errors.New("mock ledger: transfer rejected")
	}
	if err := m.Burn(asset, from, amount); err != nil {
		return err
	}
	return m.Mint(asset, to, amount)
}

type mockFeed struct {
	price *uint256.Int
	err   error
}

func (f *mockFeed) Price() (*uint256.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.price, nil
}

type mockOracles map[string]*mockFeed

func (m mockOracles) Resolve(ref string) (PriceOracle, error) {
	feed, ok := m[ref]
	if !ok {
		return nil, fmt.Errorf("unknown oracle %q", ref)
	}
	return feed, nil
}

type recordingEmitter struct {
	events []events.Event
}

func (r *recordingEmitter) Emit(evt events.Event) { r.events = append(r.events, evt) }

type stubPauseView struct {
	modules map[string]bool
}

func (s stubPauseView) IsPaused(module string) bool {
	return s.modules[module]
}

type testHarness struct {
	engine   *Engine
	state    *mockEngineState
	oracles  mockOracles
	emitter  *recordingEmitter
	custody  crypto.Address
	governor crypto.Address
	now      time.Time
}

func newTestHarness(price string) *testHarness {
	h := &testHarness{
		state:    newMockEngineState(),
		oracles:  mockOracles{"default": {price: units(price)}},
		emitter:  &recordingEmitter{},
		custody:  makeAddress(0xC0),
		governor: makeAddress(0x60),
		now:      time.Unix(1_700_000_000, 0),
	}
	h.engine = NewEngine(h.custody, testAssets)
	h.engine.SetStateAndLedger(h.state)
	h.engine.SetOracles(h.oracles)
	h.engine.SetAccessControl(NewStaticGovernor(h.governor))
	h.engine.SetEmitter(h.emitter)
	h.engine.SetNowFunc(func() time.Time { return h.now })
	return h
}

func (h *testHarness) setPrice(price string) {
	h.oracles["default"].price = units(price)
}

func (h *testHarness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *testHarness) fund(asset string, addr crypto.Address, amount string) {
	h.state.setBalance(asset, addr, units(amount))
}
