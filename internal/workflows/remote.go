package workflows

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/passgit/internal/audit"
	"github.com/PolarWolf314/passgit/internal/configs"
	"github.com/PolarWolf314/passgit/internal/credentials"
	"github.com/PolarWolf314/passgit/internal/hostkey"
	logger "github.com/PolarWolf314/passgit/internal/logging"
)

// Remote manages the connection settings of the password store remote.
type Remote struct {
	Settings *configs.Settings
	HostKeys *hostkey.Store
	Cache    *credentials.Cache
	Log      logger.Logger

	// SaveSettings defaults to configs.SaveSettings.
	SaveSettings func(*configs.Settings) error
}

// UpdateRemoteOptions configures the remote update workflow.
type UpdateRemoteOptions struct {
	URL      string
	AuthMode configs.AuthMode

	// Branch is left unchanged when empty.
	Branch string
}

// UpdateRemoteResult contains the outcome of a remote update.
type UpdateRemoteResult struct {
	// Validation is the result of checking AuthMode against URL. Nothing
	// was saved unless its Kind is configs.Valid.
	Validation configs.ValidationResult

	// URLChanged is set when the remote moved, in which case the pinned
	// host key and the cached password were dropped.
	URLChanged bool
}

// Update validates and applies new connection settings.
//
// An invalid combination is not an error: the result carries the
// validation outcome and the settings are left alone. A changed URL
// re-enables multiplexing, clears the cached password and the pinned host
// key, since the new remote may be a different host entirely.
func (r *Remote) Update(ctx context.Context, opts UpdateRemoteOptions) (*UpdateRemoteResult, error) {
	validation, changed := r.Settings.UpdateConnectionSettingsIfValid(opts.AuthMode, opts.URL)
	result := &UpdateRemoteResult{Validation: validation, URLChanged: changed}
	if validation.Kind != configs.Valid {
		r.Log.Debugf("Rejected remote %q with auth mode %s: %s", opts.URL, opts.AuthMode, validation.Kind)
		return result, nil
	}

	if opts.Branch != "" {
		r.Settings.Remote.Branch = opts.Branch
	}

	if changed {
		if r.Cache != nil {
			r.Cache.ClearPassword()
		}
		if r.HostKeys != nil {
			if err := r.HostKeys.Clear(); err != nil {
				return nil, err
			}
		}
		r.Log.Debugf("Remote changed, cleared pinned host key and cached password")
	}

	if err := r.save(); err != nil {
		return nil, err
	}

	entry := audit.LogWithUser("remote set")
	entry.Outcome = audit.OutcomeSuccess
	entry.Remote = r.Settings.Remote.URL
	entry.Branch = r.Settings.Remote.Branch
	entry.AuthMode = string(r.Settings.Remote.AuthMode)
	audit.Log(entry)

	return result, nil
}

// ProxyOptions configures the proxy workflow. An empty Host removes the
// proxy.
type ProxyOptions struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SetProxy stores or removes the upstream proxy.
func (r *Remote) SetProxy(ctx context.Context, opts ProxyOptions) error {
	if opts.Host == "" {
		r.Settings.Remote.Proxy = nil
	} else {
		if opts.Port < 0 || opts.Port > 65535 {
			return fmt.Errorf("invalid proxy port %d", opts.Port)
		}
		r.Settings.Remote.Proxy = &configs.Proxy{
			Host:     opts.Host,
			Port:     opts.Port,
			Username: opts.Username,
			Password: opts.Password,
		}
	}

	if err := r.save(); err != nil {
		return err
	}

	entry := audit.LogWithUser("remote proxy")
	entry.Outcome = audit.OutcomeSuccess
	entry.Remote = r.Settings.Remote.URL
	audit.Log(entry)
	return nil
}

// RemoteInfo describes the configured remote.
type RemoteInfo struct {
	URL           string
	AuthMode      configs.AuthMode
	Branch        string
	Multiplexing  bool
	Proxy         string
	PinnedHostKey string
}

// Show returns the configured remote and the pinned host key, if any.
func (r *Remote) Show(ctx context.Context) (*RemoteInfo, error) {
	info := &RemoteInfo{
		URL:          r.Settings.Remote.URL,
		AuthMode:     r.Settings.Remote.AuthMode,
		Branch:       r.Settings.Remote.Branch,
		Multiplexing: r.Settings.Remote.UseMultiplexing,
		Proxy:        r.Settings.Remote.ProxyAddress(),
	}

	if r.HostKeys != nil {
		pinned, ok, err := r.HostKeys.Pinned()
		if err != nil {
			return nil, err
		}
		if ok {
			info.PinnedHostKey = pinned
		}
	}
	return info, nil
}

// ClearHostKey forgets the pinned host key so the next connection is
// trusted on first use.
func (r *Remote) ClearHostKey(ctx context.Context) error {
	if err := r.HostKeys.Clear(); err != nil {
		return err
	}

	entry := audit.LogWithUser("remote clear-host-key")
	entry.Outcome = audit.OutcomeSuccess
	entry.Remote = r.Settings.Remote.URL
	audit.Log(entry)
	return nil
}

func (r *Remote) save() error {
	if r.SaveSettings != nil {
		return r.SaveSettings(r.Settings)
	}
	return configs.SaveSettings(r.Settings)
}
