package events

import (
	"stablevault/core/types"
	"stablevault/crypto"
)

const (
	// TypeParamUpdated is emitted whenever the governance actor changes a
	// vault parameter.
	TypeParamUpdated = "vault.param.updated"
)

// ParamUpdated records a single governance parameter change.
type ParamUpdated struct {
	Caller crypto.Address
	Param  string
	Value  string
}

func (ParamUpdated) EventType() string { return TypeParamUpdated }

func (e ParamUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeParamUpdated,
		Attributes: map[string]string{
			"caller": e.Caller.String(),
			"param":  normalizeParam(e.Param),
			"value":  e.Value,
		},
	}
}
