package workflows

import (
	"context"
	"fmt"
	"os"

	"github.com/PolarWolf314/passgit/internal/audit"
	"github.com/PolarWolf314/passgit/internal/credentials"
	kerrors "github.com/PolarWolf314/passgit/internal/errors"
)

// KeyResult describes the stored SSH key.
type KeyResult struct {
	// PublicKey is the authorized_keys line to register with the remote.
	PublicKey string

	// Path is the private key location.
	Path string

	// Protected is set when the key needs a PIN before use.
	Protected bool
}

// GenerateKeyOptions configures key generation.
type GenerateKeyOptions struct {
	Type    credentials.KeyType
	PIN     []byte
	Comment string

	// Force replaces an existing key.
	Force bool
}

// GenerateKey creates a new SSH key pair in store.
//
// Returns ErrSSHKeyExists if a key is present and Force is not set.
func GenerateKey(ctx context.Context, store *credentials.KeyStore, cache *credentials.Cache, opts GenerateKeyOptions) (*KeyResult, error) {
	if err := store.Generate(opts.Type, opts.PIN, opts.Comment, opts.Force); err != nil {
		return nil, err
	}
	if cache != nil {
		cache.ClearKeySecret()
	}

	logKeyChange("key generate")
	return ShowKey(ctx, store)
}

// ImportKeyOptions configures key import.
type ImportKeyOptions struct {
	PrivateKeyPath string

	// PrivateKey is used instead of reading PrivateKeyPath when set.
	PrivateKey []byte

	// PublicKeyPath is only needed for passphrase protected keys. It
	// defaults to PrivateKeyPath + ".pub" when that file exists.
	PublicKeyPath string

	Force bool
}

// ImportKey copies an existing key pair into store.
//
// Returns ErrSSHKeyExists if a key is present and Force is not set.
// Returns ErrInvalidPrivateKey if the key cannot be parsed.
func ImportKey(ctx context.Context, store *credentials.KeyStore, cache *credentials.Cache, opts ImportKeyOptions) (*KeyResult, error) {
	private := opts.PrivateKey
	if private == nil {
		var err error
		if private, err = os.ReadFile(opts.PrivateKeyPath); err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
	}

	pubPath := opts.PublicKeyPath
	if pubPath == "" && opts.PrivateKeyPath != "" {
		pubPath = opts.PrivateKeyPath + ".pub"
	}
	var public []byte
	if pubPath != "" {
		data, err := os.ReadFile(pubPath)
		switch {
		case err == nil:
			public = data
		case opts.PublicKeyPath != "" || !os.IsNotExist(err):
			return nil, fmt.Errorf("reading public key: %w", err)
		}
	}

	if err := store.Import(private, public, opts.Force); err != nil {
		return nil, err
	}
	if cache != nil {
		cache.ClearKeySecret()
	}

	logKeyChange("key import")
	return ShowKey(ctx, store)
}

// ShowKey returns the stored key.
//
// Returns ErrSSHKeyMissing if no key has been generated or imported.
func ShowKey(ctx context.Context, store *credentials.KeyStore) (*KeyResult, error) {
	if !store.HasKey() {
		return nil, kerrors.ErrSSHKeyMissing
	}

	pub, err := store.PublicKey()
	if err != nil {
		return nil, err
	}
	protected, err := store.RequiresDeviceAuth()
	if err != nil {
		return nil, err
	}

	return &KeyResult{
		PublicKey: pub,
		Path:      store.PrivateKeyPath(),
		Protected: protected,
	}, nil
}

// DeleteKey removes the stored key and forgets its cached PIN.
func DeleteKey(ctx context.Context, store *credentials.KeyStore, cache *credentials.Cache) error {
	if err := store.Delete(); err != nil {
		return err
	}
	if cache != nil {
		cache.ClearKeySecret()
	}

	logKeyChange("key delete")
	return nil
}

func logKeyChange(op string) {
	entry := audit.LogWithUser(op)
	entry.Outcome = audit.OutcomeSuccess
	audit.Log(entry)
}
