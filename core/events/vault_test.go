package events

import (
	"bytes"
	"testing"

	"github.com/holiman/uint256"

	"stablevault/crypto"
)

type recordingEmitter struct {
	seen []string
}

func (r *recordingEmitter) Emit(evt Event) { r.seen = append(r.seen, evt.EventType()) }

func TestStableBurnedEvent(t *testing.T) {
	payer := crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{0x01}, 20))
	beneficiary := crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{0x02}, 20))
	evt := StableBurned{
		Payer:       payer,
		Beneficiary: beneficiary,
		Amount:      uint256.NewInt(100),
		Unlocked:    uint256.NewInt(40),
		Fee:         nil,
	}.Event()
	if evt.Type != TypeStableBurned {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["payer"] != payer.String() || evt.Attributes["beneficiary"] != beneficiary.String() {
		t.Fatalf("unexpected counterparties: %+v", evt.Attributes)
	}
	if evt.Attributes["amount"] != "100" || evt.Attributes["unlocked"] != "40" || evt.Attributes["fee"] != "0" {
		t.Fatalf("unexpected amounts: %+v", evt.Attributes)
	}
}

func TestParamUpdatedEvent(t *testing.T) {
	caller := crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{0x09}, 20))
	evt := Render(ParamUpdated{Caller: caller, Param: " burnFeeBps ", Value: "50"})
	if evt.Type != TypeParamUpdated {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["param"] != "burnFeeBps" || evt.Attributes["value"] != "50" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
}

func TestFanoutSkipsNil(t *testing.T) {
	first := &recordingEmitter{}
	second := &recordingEmitter{}
	Fanout{first, nil, second}.Emit(VaultLiquidated{})
	if len(first.seen) != 1 || len(second.seen) != 1 {
		t.Fatalf("expected both emitters to observe the event")
	}
	if first.seen[0] != TypeVaultLiquidated {
		t.Fatalf("unexpected event type %s", first.seen[0])
	}
}
