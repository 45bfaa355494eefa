package vault

import "stablevault/crypto"

// AccessControl decides who may change governance parameters. Governor is
// also the sink that receives burn fees.
type AccessControl interface {
	IsGovernor(addr crypto.Address) bool
	Governor() crypto.Address
}

// StaticGovernor grants governance rights to a single fixed address.
type StaticGovernor struct {
	addr crypto.Address
}

// NewStaticGovernor returns an AccessControl bound to addr.
func NewStaticGovernor(addr crypto.Address) StaticGovernor {
	return StaticGovernor{addr: addr}
}

func (g StaticGovernor) IsGovernor(addr crypto.Address) bool {
	return !g.addr.IsZero() && g.addr.Equal(addr)
}

func (g StaticGovernor) Governor() crypto.Address { return g.addr }
