package wallet

import (
	"github/chapool/embedded-wallet/internal/protocol"
)

// ToProtocol converts Account to the account shape exposed to hosts
func (a *Account) ToProtocol() protocol.Account {
	return protocol.Account{
		AccountType: protocol.AccountTypeThru,
		Address:     a.Address,
		Label:       a.Label,
	}
}

// AccountsToProtocol converts accounts preserving their order
func AccountsToProtocol(accounts []*Account) []protocol.Account {
	out := make([]protocol.Account, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, a.ToProtocol())
	}

	return out
}
