package seed

// Manager owns the decrypted seed. The buffer handed to Set becomes the
// manager's exclusive property and is scrubbed in place on Clear; there is
// no accessor returning a copy.
type Manager interface {
	// Initialize derives the seed from a BIP39 mnemonic and passphrase.
	Initialize(mnemonic string, password string) error

	// Set takes ownership of seed. A previously held seed is scrubbed.
	Set(seed []byte)

	// With calls fn with the owned seed while holding a read lock. fn must
	// not retain the slice. Fails with protocol.ErrWalletLocked when no seed
	// is held.
	With(fn func(seed []byte) error) error

	// IsInitialized checks if seed is initialized
	IsInitialized() bool

	// Clear overwrites the seed with zeros and drops it.
	Clear()
}
