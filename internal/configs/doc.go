// Package configs manages passgit's settings and on-disk locations.
//
// Settings are stored in TOML at <user config dir>/passgit/config.toml:
//
//   - [remote]: url, auth_mode, branch, use_multiplexing, timeout_seconds
//     and an optional [remote.proxy] table
//   - [author]: name and email recorded on sync commits
//   - [sync]: rebase_on_pull and the default commit_message
//
// Keys absent from the file keep their defaults (see DefaultSettings).
//
// # Remote Validation
//
// ParseRemoteURL understands https://, http://, ssh:// and scp-like
// user@host:path remotes. ValidateConnection checks an auth mode against a
// url:
//
//   - HTTPS remotes admit none and password
//   - SSH remotes admit password and ssh-key, and must name a user
//
// UpdateConnectionSettingsIfValid only mutates Settings when validation
// passes, and reports whether the url changed so callers can forget
// per-remote state.
//
// # Locations
//
// UserPassgitSettings is initialized at startup from the user's config and
// data directories (XDG_DATA_HOME is honoured). The store, SSH keys,
// pinned host key and audit log all live under the data directory. Tests
// replace it with NewUserSettings over a temporary directory.
package configs
