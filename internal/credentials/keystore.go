package credentials

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kerrors "github.com/PolarWolf314/passgit/internal/errors"

	"golang.org/x/crypto/ssh"
)

// KeyType selects the algorithm of a generated key.
type KeyType string

const (
	KeyTypeEd25519 KeyType = "ed25519"
	KeyTypeECDSA   KeyType = "ecdsa"
	KeyTypeRSA     KeyType = "rsa"
)

const (
	privateKeyFile = "ssh_key"
	publicKeyFile  = "ssh_key.pub"
	rsaKeyBits     = 4096
)

// KeyStore manages one OpenSSH key pair in a directory.
type KeyStore struct {
	dir string
}

func NewKeyStore(dir string) *KeyStore {
	return &KeyStore{dir: dir}
}

func (k *KeyStore) PrivateKeyPath() string { return filepath.Join(k.dir, privateKeyFile) }

func (k *KeyStore) PublicKeyPath() string { return filepath.Join(k.dir, publicKeyFile) }

// HasKey reports whether a private key is present.
func (k *KeyStore) HasKey() bool {
	_, err := os.Stat(k.PrivateKeyPath())
	return err == nil
}

// RequiresDeviceAuth reports whether the key is passphrase protected and
// therefore needs a PIN challenge before use.
func (k *KeyStore) RequiresDeviceAuth() (bool, error) {
	data, err := k.readPrivateKey()
	if err != nil {
		return false, err
	}
	_, err = ssh.ParsePrivateKey(data)
	if err == nil {
		return false, nil
	}
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return true, nil
	}
	return false, fmt.Errorf("%w: %v", kerrors.ErrInvalidPrivateKey, err)
}

// Signer unlocks the key. secret is ignored for unprotected keys.
func (k *KeyStore) Signer(secret []byte) (ssh.Signer, error) {
	data, err := k.readPrivateKey()
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidPrivateKey, err)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: key is locked", kerrors.ErrDeviceAuthFailed)
	}

	signer, err = ssh.ParsePrivateKeyWithPassphrase(data, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrDeviceAuthFailed, err)
	}
	return signer, nil
}

// PublicKey returns the authorized_keys line for the stored key.
func (k *KeyStore) PublicKey() (string, error) {
	data, err := os.ReadFile(k.PublicKeyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", kerrors.ErrSSHKeyMissing
		}
		return "", fmt.Errorf("failed to read public key: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Generate creates a new key pair. A non-empty pin encrypts the private
// key, which makes it device gated.
func (k *KeyStore) Generate(kind KeyType, pin []byte, comment string, overwrite bool) error {
	if k.HasKey() && !overwrite {
		return kerrors.ErrSSHKeyExists
	}

	var private crypto.PrivateKey
	var public crypto.PublicKey
	switch kind {
	case KeyTypeEd25519, "":
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("failed to generate ed25519 key: %w", err)
		}
		private, public = priv, pub
	case KeyTypeECDSA:
		priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		if err != nil {
			return fmt.Errorf("failed to generate ecdsa key: %w", err)
		}
		private, public = priv, &priv.PublicKey
	case KeyTypeRSA:
		priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return fmt.Errorf("failed to generate rsa key: %w", err)
		}
		private, public = priv, &priv.PublicKey
	default:
		return fmt.Errorf("unsupported key type %q", kind)
	}

	var block *pem.Block
	var err error
	if len(pin) > 0 {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(private, comment, pin)
	} else {
		block, err = ssh.MarshalPrivateKey(private, comment)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(public)
	if err != nil {
		return fmt.Errorf("failed to marshal public key: %w", err)
	}

	return k.write(pem.EncodeToMemory(block), authorizedKey(sshPub, comment))
}

// Import stores an existing OpenSSH or PEM private key. Protected keys
// need publicKey since it cannot be derived without the passphrase. When
// publicKey is given it must match the private key; its comment is kept.
func (k *KeyStore) Import(privateKey, publicKey []byte, overwrite bool) error {
	if k.HasKey() && !overwrite {
		return kerrors.ErrSSHKeyExists
	}

	var supplied ssh.PublicKey
	var comment string
	if len(bytes.TrimSpace(publicKey)) > 0 {
		pub, c, _, _, err := ssh.ParseAuthorizedKey(publicKey)
		if err != nil {
			return fmt.Errorf("%w: public key: %v", kerrors.ErrInvalidPrivateKey, err)
		}
		supplied, comment = pub, c
	}

	var pub ssh.PublicKey
	signer, err := ssh.ParsePrivateKey(privateKey)
	switch {
	case err == nil:
		pub = signer.PublicKey()
		if supplied != nil && !bytes.Equal(supplied.Marshal(), pub.Marshal()) {
			return fmt.Errorf("%w: public key does not match the private key", kerrors.ErrInvalidPrivateKey)
		}
	case isPassphraseMissing(err):
		if supplied == nil {
			return fmt.Errorf("%w: a protected key needs its public key", kerrors.ErrInvalidPrivateKey)
		}
		pub = supplied
	default:
		return fmt.Errorf("%w: %v", kerrors.ErrInvalidPrivateKey, err)
	}

	return k.write(privateKey, authorizedKey(pub, comment))
}

// Delete removes both halves of the key pair.
func (k *KeyStore) Delete() error {
	for _, p := range []string{k.PrivateKeyPath(), k.PublicKeyPath()} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

func (k *KeyStore) readPrivateKey() ([]byte, error) {
	data, err := os.ReadFile(k.PrivateKeyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, kerrors.ErrSSHKeyMissing
		}
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	return data, nil
}

func (k *KeyStore) write(private, public []byte) error {
	if err := os.MkdirAll(k.dir, 0700); err != nil {
		return fmt.Errorf("failed to create key directory at %s: %w", k.dir, err)
	}
	if err := os.WriteFile(k.PrivateKeyPath(), private, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	// #nosec G306 -- public keys are meant to be shared
	if err := os.WriteFile(k.PublicKeyPath(), public, 0644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}
	return nil
}

func authorizedKey(pub ssh.PublicKey, comment string) []byte {
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub)))
	if comment != "" {
		line += " " + comment
	}
	return []byte(line + "\n")
}

func isPassphraseMissing(err error) bool {
	var missing *ssh.PassphraseMissingError
	return errors.As(err, &missing)
}
