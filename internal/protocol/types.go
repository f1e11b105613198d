package protocol

// AccountType identifies the chain an account belongs to.
type AccountType string

const (
	// AccountTypeThru is the only account type currently supported.
	AccountTypeThru AccountType = "thru"
)

// Account is an immutable account value. Identity is (AccountType, Address).
type Account struct {
	AccountType AccountType `json:"accountType"`
	Address     string      `json:"address"`
	Label       string      `json:"label"`
}

// SameIdentity reports whether a and b refer to the same account.
func (a Account) SameIdentity(b Account) bool {
	return a.AccountType == b.AccountType && a.Address == b.Address
}

// MergeAccount replaces the account with the same identity as acc or appends
// acc when none is present. The returned slice preserves insertion order.
func MergeAccount(accounts []Account, acc Account) []Account {
	for i := range accounts {
		if accounts[i].SameIdentity(acc) {
			merged := make([]Account, len(accounts))
			copy(merged, accounts)
			merged[i] = acc
			return merged
		}
	}

	merged := make([]Account, 0, len(accounts)+1)
	merged = append(merged, accounts...)
	return append(merged, acc)
}

// AppMetadata describes the dApp requesting a connection.
type AppMetadata struct {
	AppID    string `json:"appId,omitempty"`
	AppName  string `json:"appName,omitempty"`
	AppURL   string `json:"appUrl,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// ConnectPayload is the payload of a connect request.
type ConnectPayload struct {
	Metadata *AppMetadata `json:"metadata,omitempty"`
}

// ConnectResult is returned by a successful connect request.
type ConnectResult struct {
	WalletName string       `json:"walletName"`
	Accounts   []Account    `json:"accounts"`
	Metadata   *AppMetadata `json:"metadata,omitempty"`
}

// Clone returns a deep copy of r.
func (r *ConnectResult) Clone() *ConnectResult {
	if r == nil {
		return nil
	}

	c := *r
	c.Accounts = append([]Account(nil), r.Accounts...)
	if r.Metadata != nil {
		md := *r.Metadata
		c.Metadata = &md
	}

	return &c
}

// GetAccountsResult is returned by a getAccounts request.
type GetAccountsResult struct {
	Accounts []Account `json:"accounts"`
}

// SelectAccountPayload is the payload of a selectAccount request.
type SelectAccountPayload struct {
	Address string `json:"address"`
}

// SelectAccountResult is returned by a selectAccount request.
type SelectAccountResult struct {
	Account Account `json:"account"`
}

// SignTransactionPayload carries a base64 encoded serialized transaction.
type SignTransactionPayload struct {
	Transaction string `json:"transaction"`
}

// SignTransactionResult carries the base64 encoded signature-prefixed
// transaction.
type SignTransactionResult struct {
	SignedTransaction string `json:"signedTransaction"`
}

// AccountChangedData is broadcast with an account_changed event.
type AccountChangedData struct {
	Account Account `json:"account"`
}
