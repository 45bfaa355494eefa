package state

import (
	"errors"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"stablevault/crypto"
)

var (
	balancePrefix     = []byte("ledger/balance/")
	tokenSupplyPrefix = []byte("ledger/supply/")

	// ErrInsufficientBalance is returned when a burn or transfer exceeds the
	// available balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	// ErrSupplyOverflow is returned when a mint would overflow 256 bits.
	ErrSupplyOverflow = errors.New("ledger: supply overflow")
	errSymbolRequired = errors.New("ledger: asset symbol required")
	errInvalidAccount = errors.New("ledger: account required")
)

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func balanceKey(symbol string, addr crypto.Address) []byte {
	normalized := normaliseSymbol(symbol)
	buf := make([]byte, 0, len(balancePrefix)+len(normalized)+1+crypto.AddressLength)
	buf = append(buf, balancePrefix...)
	buf = append(buf, normalized...)
	buf = append(buf, ':')
	return append(buf, addr.Bytes()...)
}

func tokenSupplyKey(symbol string) []byte {
	return prefixedKey(tokenSupplyPrefix, []byte(normaliseSymbol(symbol)))
}

func (m *Manager) loadAmount(key []byte) (*uint256.Int, error) {
	stored := new(big.Int)
	ok, err := m.kvGet(key, stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	return fromBig(stored)
}

func (m *Manager) storeAmount(key []byte, amount *uint256.Int) error {
	if amount.IsZero() {
		m.deleteRaw(kvKey(key))
		return nil
	}
	return m.kvPut(key, amount.ToBig())
}

// BalanceOf returns the balance of asset held by addr.
func (m *Manager) BalanceOf(asset string, addr crypto.Address) (*uint256.Int, error) {
	if normaliseSymbol(asset) == "" {
		return nil, errSymbolRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadAmount(balanceKey(asset, addr))
}

// TokenSupply returns the total minted and not burned supply of asset.
func (m *Manager) TokenSupply(asset string) (*uint256.Int, error) {
	if normaliseSymbol(asset) == "" {
		return nil, errSymbolRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadAmount(tokenSupplyKey(asset))
}

// Mint credits amount of asset to addr and grows the supply.
func (m *Manager) Mint(asset string, to crypto.Address, amount *uint256.Int) error {
	if err := checkTransfer(asset, to); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credit(asset, to, amount, true)
}

// Burn debits amount of asset from addr and shrinks the supply.
func (m *Manager) Burn(asset string, from crypto.Address, amount *uint256.Int) error {
	if err := checkTransfer(asset, from); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debit(asset, from, amount, true)
}

// Transfer moves amount of asset between two accounts.
func (m *Manager) Transfer(asset string, from, to crypto.Address, amount *uint256.Int) error {
	if err := checkTransfer(asset, from); err != nil {
		return err
	}
	if to.IsZero() {
		return errInvalidAccount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.debit(asset, from, amount, false); err != nil {
		return err
	}
	return m.credit(asset, to, amount, false)
}

func checkTransfer(asset string, addr crypto.Address) error {
	if normaliseSymbol(asset) == "" {
		return errSymbolRequired
	}
	if addr.IsZero() {
		return errInvalidAccount
	}
	return nil
}

func (m *Manager) credit(asset string, to crypto.Address, amount *uint256.Int, supply bool) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	key := balanceKey(asset, to)
	balance, err := m.loadAmount(key)
	if err != nil {
		return err
	}
	updated, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return ErrSupplyOverflow
	}
	if supply {
		total, err := m.loadAmount(tokenSupplyKey(asset))
		if err != nil {
			return err
		}
		newTotal, overflow := new(uint256.Int).AddOverflow(total, amount)
		if overflow {
			return ErrSupplyOverflow
		}
		if err := m.storeAmount(tokenSupplyKey(asset), newTotal); err != nil {
			return err
		}
	}
	return m.storeAmount(key, updated)
}

func (m *Manager) debit(asset string, from crypto.Address, amount *uint256.Int, supply bool) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	key := balanceKey(asset, from)
	balance, err := m.loadAmount(key)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	if supply {
		total, err := m.loadAmount(tokenSupplyKey(asset))
		if err != nil {
			return err
		}
		if total.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}
		if err := m.storeAmount(tokenSupplyKey(asset), new(uint256.Int).Sub(total, amount)); err != nil {
			return err
		}
	}
	return m.storeAmount(key, new(uint256.Int).Sub(balance, amount))
}
