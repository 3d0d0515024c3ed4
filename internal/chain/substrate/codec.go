package substrate

import (
	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// proxyType mirrors the runtime ProxyType enum on the system parachains.
type proxyType uint8

// proxyNonTransfer is the only proxy type the watchdog ever uses: the
// delegation must not be able to move funds.
const proxyNonTransfer proxyType = 1

// optionProxyType is Option<ProxyType> for the force_proxy_type argument of
// Proxy.proxy.
type optionProxyType struct {
	hasValue bool
	value    proxyType
}

func someProxyType(v proxyType) optionProxyType {
	return optionProxyType{hasValue: true, value: v}
}

func (o optionProxyType) Encode(encoder scale.Encoder) error {
	if !o.hasValue {
		return encoder.PushByte(0)
	}
	if err := encoder.PushByte(1); err != nil {
		return err
	}
	return encoder.PushByte(byte(o.value))
}

func (o *optionProxyType) Decode(decoder scale.Decoder) error {
	b, err := decoder.ReadOneByte()
	if err != nil {
		return err
	}
	if b == 0 {
		o.hasValue = false
		return nil
	}
	o.hasValue = true
	v, err := decoder.ReadOneByte()
	if err != nil {
		return err
	}
	o.value = proxyType(v)
	return nil
}

// candidateEntry is one element of CollatorSelection.CandidateList.
type candidateEntry struct {
	Who     types.AccountID
	Deposit types.U128
}

// accountData follows the post-fungibles System.Account layout with a
// single frozen field.
type accountData struct {
	Free     types.U128
	Reserved types.U128
	Frozen   types.U128
	Flags    types.U128
}

type accountInfo struct {
	Nonce       types.U32
	Consumers   types.U32
	Providers   types.U32
	Sufficients types.U32
	Data        accountData
}
