package vault

import (
	"errors"
	"testing"

	"stablevault/core/events"
)

func TestGovernanceSettersRequireGovernor(t *testing.T) {
	h := newTestHarness("500")
	intruder := makeAddress(0x09)

	calls := map[string]func() error{
		"burnFee":             func() error { return h.engine.SetBurnFee(intruder, 10) },
		"requiredRatio":       func() error { return h.engine.SetRequiredRatio(intruder, 150) },
		"maxInstalmentPeriod": func() error { return h.engine.SetMaxInstalmentPeriod(intruder, 60) },
		"minInstalmentAmount": func() error { return h.engine.SetMinInstalmentAmount(intruder, units("1")) },
		"oracle":              func() error { return h.engine.SetOracle(intruder, "default") },
	}
	for name, call := range calls {
		err := call()
		if !errors.Is(err, ErrUnauthorized) || KindOf(err) != KindUnauthorized {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
	if len(h.emitter.events) != 0 {
		t.Fatalf("rejected updates must not emit, got %d events", len(h.emitter.events))
	}

	params, err := h.engine.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	defaults := DefaultParams()
	if params.BurnFeeBps != defaults.BurnFeeBps || params.RequiredRatioPercent != defaults.RequiredRatioPercent {
		t.Fatalf("params changed by intruder: %+v", params)
	}
}

func TestGovernanceUpdatesParams(t *testing.T) {
	h := newTestHarness("500")
	h.oracles["backup"] = &mockFeed{price: units("420")}

	if err := h.engine.SetBurnFee(h.governor, 75); err != nil {
		t.Fatalf("set burn fee: %v", err)
	}
	if err := h.engine.SetRequiredRatio(h.governor, 135); err != nil {
		t.Fatalf("set required ratio: %v", err)
	}
	if err := h.engine.SetMaxInstalmentPeriod(h.governor, 3600); err != nil {
		t.Fatalf("set max instalment period: %v", err)
	}
	if err := h.engine.SetMinInstalmentAmount(h.governor, units("2.5")); err != nil {
		t.Fatalf("set min instalment amount: %v", err)
	}
	if err := h.engine.SetOracle(h.governor, " backup "); err != nil {
		t.Fatalf("set oracle: %v", err)
	}

	bps, err := h.engine.BurnFeeBps()
	if err != nil || bps != 75 {
		t.Fatalf("burn fee: got %d err %v", bps, err)
	}
	ratio, err := h.engine.RequiredRatio()
	if err != nil || ratio != 135 {
		t.Fatalf("required ratio: got %d err %v", ratio, err)
	}
	period, err := h.engine.MaxInstalmentPeriod()
	if err != nil || period != 3600 {
		t.Fatalf("max instalment period: got %d err %v", period, err)
	}
	minimum, err := h.engine.MinInstalmentAmount()
	if err != nil || !minimum.Eq(units("2.5")) {
		t.Fatalf("min instalment amount: got %v err %v", minimum, err)
	}
	price, err := h.engine.CollateralPrice()
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !price.Eq(units("420")) {
		t.Fatalf("oracle switch must take effect, price %s", FormatUnits(price))
	}

	if len(h.emitter.events) != 5 {
		t.Fatalf("expected five events, got %d", len(h.emitter.events))
	}
	last, ok := h.emitter.events[4].(events.ParamUpdated)
	if !ok || last.Param != ParamOracle || last.Value != "backup" || !last.Caller.Equal(h.governor) {
		t.Fatalf("unexpected oracle event: %+v", h.emitter.events[4])
	}
	fee, ok := h.emitter.events[0].(events.ParamUpdated)
	if !ok || fee.Param != ParamBurnFee || fee.Value != "75" {
		t.Fatalf("unexpected burn fee event: %+v", h.emitter.events[0])
	}
}

func TestGovernanceRejectsInvalidValues(t *testing.T) {
	h := newTestHarness("500")

	cases := map[string]error{
		"burn fee":       h.engine.SetBurnFee(h.governor, 10_001),
		"ratio":          h.engine.SetRequiredRatio(h.governor, 99),
		"empty oracle":   h.engine.SetOracle(h.governor, "  "),
		"unknown oracle": h.engine.SetOracle(h.governor, "missing"),
		"nil minimum":    h.engine.SetMinInstalmentAmount(h.governor, nil),
	}
	for name, err := range cases {
		if !errors.Is(err, ErrInvalidParameter) {
			t.Fatalf("%s: expected ErrInvalidParameter, got %v", name, err)
		}
	}
	if len(h.emitter.events) != 0 {
		t.Fatalf("rejected updates must not emit")
	}
	if h.state.params != nil {
		t.Fatalf("rejected updates must not persist")
	}
}

func TestGovernanceBypassesPause(t *testing.T) {
	h := newTestHarness("500")
	h.engine.SetPauses(stubPauseView{modules: map[string]bool{ModuleName: true}})

	if err := h.engine.SetBurnFee(h.governor, 0); err != nil {
		t.Fatalf("set burn fee while paused: %v", err)
	}
	bps, err := h.engine.BurnFeeBps()
	if err != nil || bps != 0 {
		t.Fatalf("burn fee: got %d err %v", bps, err)
	}
}

func TestViewsOnEmptyEngine(t *testing.T) {
	h := newTestHarness("500")
	nobody := makeAddress(0x0A)

	collateral, err := h.engine.CollateralOf(nobody)
	if err != nil || !collateral.IsZero() {
		t.Fatalf("collateral: got %v err %v", collateral, err)
	}
	ratio, err := h.engine.CollateralRatioOf(nobody)
	if err != nil || !ratio.IsZero() {
		t.Fatalf("ratio: got %v err %v", ratio, err)
	}
	last, err := h.engine.LastInstalmentOf(nobody)
	if err != nil || last != 0 {
		t.Fatalf("last instalment: got %d err %v", last, err)
	}
	count, err := h.engine.RegisteredMinterCount()
	if err != nil || count != 0 {
		t.Fatalf("minter count: got %d err %v", count, err)
	}
	positions, err := h.engine.Positions(0, 10)
	if err != nil || len(positions) != 0 {
		t.Fatalf("positions: got %d err %v", len(positions), err)
	}
}

func TestPositionsPaginates(t *testing.T) {
	h := newTestHarness("500")
	funder := makeAddress(0x0F)
	h.fund(collateralAsset, funder, "10")
	for i := byte(1); i <= 4; i++ {
		if _, err := h.engine.Mint(funder, makeAddress(i), units("1")); err != nil {
			t.Fatalf("mint %d: %v", i, err)
		}
	}

	page, err := h.engine.Positions(1, 2)
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected a page of two, got %d", len(page))
	}
	if !page[0].Account.Equal(makeAddress(2)) || !page[1].Account.Equal(makeAddress(3)) {
		t.Fatalf("unexpected page order: %s, %s", page[0].Account, page[1].Account)
	}
	if page[0].RatioPercent.Uint64() != 120 {
		t.Fatalf("expected ratio 120, got %s", page[0].RatioPercent.Dec())
	}

	all, err := h.engine.Positions(0, 0)
	if err != nil || len(all) != 4 {
		t.Fatalf("all positions: got %d err %v", len(all), err)
	}
}

func TestUnconfiguredEngine(t *testing.T) {
	engine := NewEngine(makeAddress(0xC0), testAssets)
	_, err := engine.Mint(makeAddress(1), makeAddress(1), units("1"))
	if !errors.Is(err, ErrNotConfigured) || KindOf(err) != KindInternal {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
