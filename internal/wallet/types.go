package wallet

import (
	"time"
)

// Account is a derived wallet account as kept by the frame application.
type Account struct {
	Index          uint32
	Label          string
	Address        string
	PublicKey      string
	DerivationPath string
	CreatedAt      time.Time
}

// Grant records the accounts a connected app may see.
type Grant struct {
	Origin    string
	AppName   string
	Addresses []string
	Selected  string
	GrantedAt time.Time
}
