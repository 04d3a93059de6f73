// Package utils provides small helpers shared across passgit.
//
//   - system.go: current user and hostname, used for commit identity
//   - terminal.go: hidden passphrase prompts and line input via x/term
//   - io.go: reading piped key material from stdin
//   - strings.go: email validation and secret redaction
package utils
