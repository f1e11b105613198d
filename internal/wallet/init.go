package wallet

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tyler-smith/go-bip39"
	"github/chapool/embedded-wallet/internal/wallet/keystore"
	"github/chapool/embedded-wallet/internal/wallet/seed"
	"golang.org/x/term"
)

const (
	minPasswordLength = 8
	// 256 bits of entropy yield a 24 word mnemonic.
	mnemonicEntropyBits = 256
)

// PasswordFunc supplies a password for prompt. confirm asks for it twice.
type PasswordFunc func(prompt string, confirm bool) (string, error)

// InitResult describes the outcome of InitializeKeystore.
type InitResult struct {
	// Created is set when a new keystore was generated.
	Created bool
	// Mnemonic is only set for a newly created keystore and must be shown
	// to the user once for backup.
	Mnemonic string
	// Password is the password the keystore is protected with.
	Password string
}

// InitializeKeystore makes sure a keystore exists and that password opens
// it. This function handles:
// 1. Checking if keystore exists
// 2. If not, generating a new mnemonic and prompting for a password
// 3. If exists, prompting for the password and checking it decrypts the seed
// The decrypted seed never outlives this call; unlocking for signing
// happens in the custody module.
func InitializeKeystore(ctx context.Context, keystoreService keystore.Service, password PasswordFunc) (*InitResult, error) {
	log := log.With().Str("component", "wallet_init").Logger()

	if password == nil {
		password = PromptPassword
	}

	exists, err := keystoreService.Exists(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to check keystore existence")
	}

	if !exists {
		log.Info().Msg("Keystore not found. Generating new mnemonic...")

		entropy, err := bip39.NewEntropy(mnemonicEntropyBits)
		if err != nil {
			return nil, errors.Wrap(err, "failed to generate entropy")
		}
		defer seed.Wipe(entropy)

		mnemonic, err := bip39.NewMnemonic(entropy)
		if err != nil {
			return nil, errors.Wrap(err, "failed to generate mnemonic")
		}

		pw, err := password(fmt.Sprintf("Enter password for keystore (min %d characters): ", minPasswordLength), true)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read password")
		}
		if len(pw) < minPasswordLength {
			return nil, errors.Errorf("password must be at least %d characters", minPasswordLength)
		}

		// The keystore password is not used as BIP39 passphrase, so it can
		// be rotated without changing the accounts.
		seedBytes := bip39.NewSeed(mnemonic, "")
		defer seed.Wipe(seedBytes)

		if _, err := keystoreService.CreateKeystore(ctx, seedBytes, pw); err != nil {
			return nil, errors.Wrap(err, "failed to create keystore")
		}

		log.Info().Msg("Keystore created successfully")

		return &InitResult{Created: true, Mnemonic: mnemonic, Password: pw}, nil
	}

	log.Info().Msg("Keystore found. Please enter password to unlock...")

	pw, err := password("Enter keystore password: ", false)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read password")
	}

	//nolint:varnamelen // ks is a common abbreviation for keystore
	ks, err := keystoreService.GetKeystore(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get keystore")
	}

	seedBytes, err := keystoreService.DecryptSeed(ctx, ks, pw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt keystore")
	}
	seed.Wipe(seedBytes)

	log.Info().Msg("Password verification successful")

	return &InitResult{Password: pw}, nil
}

// StaticPassword returns a PasswordFunc answering every prompt with pw.
func StaticPassword(pw string) PasswordFunc {
	return func(string, bool) (string, error) {
		return pw, nil
	}
}

// PromptPassword prompts for password input on the terminal (hides input)
//
//nolint:forbidigo // Password input requires direct terminal I/O
func PromptPassword(prompt string, confirm bool) (string, error) {
	pw, err := readPassword(prompt)
	if err != nil {
		return "", err
	}

	if confirm {
		again, err := readPassword("Confirm password: ")
		if err != nil {
			return "", errors.Wrap(err, "failed to read password confirmation")
		}
		if pw != again {
			return "", errors.New("passwords do not match")
		}
	}

	return pw, nil
}

//nolint:forbidigo // Password input requires direct terminal I/O
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	// Read password from terminal (hides input)
	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", errors.Wrap(err, "failed to read password from terminal")
	}

	fmt.Fprintln(os.Stderr)

	return string(passwordBytes), nil
}
