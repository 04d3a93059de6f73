// Package credentials supplies passwords and SSH key material to the
// transport layer.
//
// # Components
//
//   - Finder resolves a password interactively and keeps it for the rest of
//     one operation. A retry discards the cached value and prompts again.
//   - Cache is the process-wide store shared by consecutive operations (for
//     example the pull and push halves of a split sync). It is backed by
//     go-cache with a TTL and zeroes values on eviction.
//   - KeyStore manages the single OpenSSH key pair used for public key
//     authentication. A passphrase-protected key is "device gated": it can
//     only be unlocked after a PIN challenge.
//   - Authenticator runs that PIN challenge. The result is delivered on a
//     one-shot channel so the waiting operation can also observe context
//     cancellation.
package credentials
