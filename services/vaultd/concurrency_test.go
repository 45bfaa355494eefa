package vaultd

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"stablevault/config"
	"stablevault/crypto"
	"stablevault/native/vault"
)

func TestNodeSerialisesConcurrentOperations(t *testing.T) {
	const (
		holders    = 6
		workers    = 30
		iterations = 5
	)
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage = config.Storage{Backend: "memory"}
	cfg.EventArchive = ":memory:"
	cfg.Params.MaxInstalmentPeriodSeconds = 10
	accounts := make([]crypto.Address, holders)
	cfg.Allocations = nil
	for i := range accounts {
		accounts[i] = config.DeriveAccount(fmt.Sprintf("holder-%d", i))
		cfg.Allocations = append(cfg.Allocations, config.Allocation{
			Account: accounts[i].String(),
			Asset:   "VCOL",
			Amount:  "5",
		})
	}
	require.NoError(t, cfg.Validate())

	node, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = node.Close() })

	// Every engine call advances the clock a second so vaults fall overdue
	// while the run is still in flight.
	var clock atomic.Int64
	clock.Store(1_700_000_000)
	node.Engine().SetNowFunc(func() time.Time { return time.Unix(clock.Add(1), 0) })

	governor, err := cfg.GovernorAddress()
	require.NoError(t, err)
	custody, err := cfg.CustodyAddress()
	require.NoError(t, err)

	engine := node.Engine()
	unexpected := make(chan error, workers*iterations*5)
	tolerate := func(op string, err error) {
		if err == nil {
			return
		}
		switch vault.KindOf(err) {
		case vault.KindInternal, vault.KindOverflow:
			unexpected <- fmt.Errorf("%s: %w", op, err)
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			self := accounts[w%holders]
			other := accounts[(w+1)%holders]
			for i := 0; i < iterations; i++ {
				_, err := engine.Mint(self, self, vault.MustParseUnits("0.1"))
				tolerate("mint", err)
				_, err = engine.CollateralRatioOf(self)
				tolerate("ratio", err)
				if w%5 == 0 {
					ratio := uint64(120)
					if i%2 == 0 {
						ratio = 150
					}
					tolerate("setRequiredRatio", engine.SetRequiredRatio(governor, ratio))
				}
				_, err = engine.Liquidate(self, other, vault.MustParseUnits("1000"))
				tolerate("liquidate", err)
				_, err = engine.Repay(self, self, vault.MustParseUnits("1000"))
				tolerate("repay", err)
			}
		}(w)
	}
	wg.Wait()
	close(unexpected)
	for err := range unexpected {
		t.Error(err)
	}

	count, err := engine.RegisteredMinterCount()
	require.NoError(t, err)
	require.LessOrEqual(t, count, uint64(holders))

	lockedCollateral := new(uint256.Int)
	totalDebt := new(uint256.Int)
	for i := uint64(0); i < count; i++ {
		minter, err := engine.RegisteredMinterAt(i)
		require.NoError(t, err)
		v, err := engine.Vault(minter)
		require.NoError(t, err)
		lockedCollateral.Add(lockedCollateral, v.Collateral)
		totalDebt.Add(totalDebt, v.Debt)
	}

	state := node.State()
	custodyBalance, err := state.BalanceOf("VCOL", custody)
	require.NoError(t, err)
	require.Equal(t, lockedCollateral, custodyBalance, "custody must hold exactly the locked collateral")

	stableSupply, err := state.TokenSupply("VUSD")
	require.NoError(t, err)
	require.Equal(t, totalDebt, stableSupply, "stable supply must equal outstanding debt")

	held := new(uint256.Int).Set(custodyBalance)
	for _, addr := range append(accounts, governor) {
		balance, err := state.BalanceOf("VCOL", addr)
		require.NoError(t, err)
		held.Add(held, balance)
	}
	collateralSupply, err := state.TokenSupply("VCOL")
	require.NoError(t, err)
	require.Equal(t, vault.MustParseUnits("30"), collateralSupply)
	require.Equal(t, collateralSupply, held, "collateral must be conserved across accounts")
}
