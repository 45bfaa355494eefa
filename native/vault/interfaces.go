package vault

import (
	"github.com/holiman/uint256"

	"stablevault/crypto"
)

// Journal is implemented by collaborators whose writes can be rolled back.
// Snapshot returns an identifier that RevertToSnapshot accepts; reverting
// discards every write made after the snapshot was taken.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(id int)
}

// Committer is implemented by collaborators that buffer writes until the
// surrounding operation succeeds.
type Committer interface {
	Commit() error
}

// Store persists vaults, the minter registry and the governance parameters.
type Store interface {
	Journal
	// GetVault returns the vault for addr, or the zero vault when none exists.
	GetVault(addr crypto.Address) (*Vault, error)
	PutVault(addr crypto.Address, v *Vault) error
	// RegisterMinter appends addr to the registry unless it is already
	// present. It reports whether addr was appended.
	RegisterMinter(addr crypto.Address) (bool, error)
	MinterAt(index uint64) (crypto.Address, error)
	MinterCount() (uint64, error)
	// GetParams returns the stored parameters. ok is false when nothing has
	// been persisted yet.
	GetParams() (params Params, ok bool, err error)
	PutParams(params Params) error
}

// TokenLedger moves balances of the stable and collateral assets.
type TokenLedger interface {
	Journal
	BalanceOf(asset string, addr crypto.Address) (*uint256.Int, error)
	Mint(asset string, to crypto.Address, amount *uint256.Int) error
	Burn(asset string, from crypto.Address, amount *uint256.Int) error
	Transfer(asset string, from, to crypto.Address, amount *uint256.Int) error
}

// PriceOracle quotes the collateral price as 18-decimal stable units per
// whole collateral unit.
type PriceOracle interface {
	Price() (*uint256.Int, error)
}

// OracleResolver maps an oracle reference to a price feed.
type OracleResolver interface {
	Resolve(ref string) (PriceOracle, error)
}
