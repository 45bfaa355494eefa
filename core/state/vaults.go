package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"stablevault/crypto"
	"stablevault/native/vault"
)

var (
	vaultPrefix         = []byte("vault/position/")
	minterCountKey      = []byte("vault/minters/count")
	minterIndexPrefix   = []byte("vault/minters/index/")
	minterMemberPrefix  = []byte("vault/minters/member/")
	vaultParamsKey      = []byte("vault/params")
	errAmountOutOfRange = errors.New("state: stored amount exceeds 256 bits")
)

func prefixedKey(prefix []byte, suffix []byte) []byte {
	key := make([]byte, len(prefix)+len(suffix))
	copy(key, prefix)
	copy(key[len(prefix):], suffix)
	return key
}

func vaultKey(addr crypto.Address) []byte {
	return prefixedKey(vaultPrefix, addr.Bytes())
}

func minterIndexKey(index uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], index)
	return prefixedKey(minterIndexPrefix, buf[:])
}

func minterMemberKey(addr crypto.Address) []byte {
	return prefixedKey(minterMemberPrefix, addr.Bytes())
}

type storedVault struct {
	Collateral     *big.Int
	Debt           *big.Int
	LastInstalment uint64
}

type storedParams struct {
	BurnFeeBps           uint64
	RequiredRatioPercent uint64
	MaxInstalmentPeriod  uint64
	MinInstalmentAmount  *big.Int
	OracleRef            string
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

func fromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, errAmountOutOfRange
	}
	return out, nil
}

// GetVault returns the position stored for addr or the zero vault.
func (m *Manager) GetVault(addr crypto.Address) (*vault.Vault, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stored storedVault
	ok, err := m.kvGet(vaultKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return vault.NewVault(), nil
	}
	collateral, err := fromBig(stored.Collateral)
	if err != nil {
		return nil, err
	}
	debt, err := fromBig(stored.Debt)
	if err != nil {
		return nil, err
	}
	return &vault.Vault{Collateral: collateral, Debt: debt, LastInstalment: stored.LastInstalment}, nil
}

// PutVault persists the position for addr. A cleared vault is deleted.
func (m *Manager) PutVault(addr crypto.Address, v *vault.Vault) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.IsZero() {
		m.deleteRaw(kvKey(vaultKey(addr)))
		return nil
	}
	return m.kvPut(vaultKey(addr), storedVault{
		Collateral:     toBig(v.Collateral),
		Debt:           toBig(v.Debt),
		LastInstalment: v.LastInstalment,
	})
}

// RegisterMinter appends addr to the insertion-ordered minter registry the
// first time it is seen.
func (m *Manager) RegisterMinter(addr crypto.Address) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exists, err := m.kvGet(minterMemberKey(addr), nil)
	if err != nil || exists {
		return false, err
	}
	count, err := m.minterCount()
	if err != nil {
		return false, err
	}
	if err := m.kvPut(minterIndexKey(count), addr.Bytes()); err != nil {
		return false, err
	}
	if err := m.kvPut(minterMemberKey(addr), count); err != nil {
		return false, err
	}
	if err := m.kvPut(minterCountKey, count+1); err != nil {
		return false, err
	}
	return true, nil
}

// MinterAt returns the registry entry at index.
func (m *Manager) MinterAt(index uint64) (crypto.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var raw []byte
	ok, err := m.kvGet(minterIndexKey(index), &raw)
	if err != nil {
		return crypto.Address{}, err
	}
	if !ok {
		return crypto.Address{}, fmt.Errorf("state: minter index %d out of range", index)
	}
	if len(raw) != crypto.AddressLength {
		return crypto.Address{}, fmt.Errorf("state: corrupt minter entry %d", index)
	}
	return crypto.NewAddress(crypto.AccountPrefix, raw), nil
}

// MinterCount returns the number of registered minters.
func (m *Manager) MinterCount() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.minterCount()
}

func (m *Manager) minterCount() (uint64, error) {
	var count uint64
	if _, err := m.kvGet(minterCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetParams loads the persisted governance parameters.
func (m *Manager) GetParams() (vault.Params, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stored storedParams
	ok, err := m.kvGet(vaultParamsKey, &stored)
	if err != nil || !ok {
		return vault.Params{}, false, err
	}
	minimum, err := fromBig(stored.MinInstalmentAmount)
	if err != nil {
		return vault.Params{}, false, err
	}
	return vault.Params{
		BurnFeeBps:           stored.BurnFeeBps,
		RequiredRatioPercent: stored.RequiredRatioPercent,
		MaxInstalmentPeriod:  stored.MaxInstalmentPeriod,
		MinInstalmentAmount:  minimum,
		OracleRef:            stored.OracleRef,
	}, true, nil
}

// PutParams persists the governance parameters.
func (m *Manager) PutParams(params vault.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kvPut(vaultParamsKey, storedParams{
		BurnFeeBps:           params.BurnFeeBps,
		RequiredRatioPercent: params.RequiredRatioPercent,
		MaxInstalmentPeriod:  params.MaxInstalmentPeriod,
		MinInstalmentAmount:  toBig(params.MinInstalmentAmount),
		OracleRef:            params.OracleRef,
	})
}
