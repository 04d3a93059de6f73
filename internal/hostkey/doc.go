// Package hostkey pins the SSH host key of the configured remote.
//
// Verification is trust-on-first-use: the first host seen is accepted and
// its SHA-256 fingerprint written to a single file. Every later connection
// must present a key with the same fingerprint or the handshake fails with
// a *MismatchError. The pin is removed when the remote URL changes or when
// the user clears it explicitly.
package hostkey
