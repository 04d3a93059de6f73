package credentials

import (
	"sync"

	kerrors "github.com/PolarWolf314/passgit/internal/errors"
	"github.com/PolarWolf314/passgit/internal/utils"
)

// PromptFunc asks the user for a password. isRetry is true when a previous
// answer was rejected. Returning kerrors.ErrCancelledByUser aborts the
// operation quietly.
type PromptFunc func(isRetry bool) ([]byte, error)

// Finder resolves the remote password for one operation.
type Finder struct {
	prompt PromptFunc
	cache  *Cache

	mu       sync.Mutex
	password []byte
	err      error
}

// NewFinder returns a Finder that consults cache (may be nil) before
// prompting.
func NewFinder(prompt PromptFunc, cache *Cache) *Finder {
	return &Finder{prompt: prompt, cache: cache}
}

// Password returns the cached password, or prompts for one. A retry always
// prompts.
func (f *Finder) Password(isRetry bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if isRetry {
		f.forget()
		if f.cache != nil {
			f.cache.ClearPassword()
		}
	}

	if f.password != nil {
		return string(f.password), nil
	}

	if !isRetry && f.cache != nil {
		if p, ok := f.cache.Password(); ok {
			f.password = p
			return string(p), nil
		}
	}

	if f.prompt == nil {
		f.err = kerrors.ErrNotInteractive
		return "", f.err
	}

	p, err := f.prompt(isRetry)
	if err != nil {
		f.err = err
		return "", err
	}
	if len(p) == 0 {
		f.err = kerrors.ErrCancelledByUser
		return "", f.err
	}

	f.err = nil
	f.password = p
	if f.cache != nil {
		f.cache.SetPassword(p)
	}
	return string(p), nil
}

// Err returns the error from the most recent prompt, if any.
func (f *Finder) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Forget zeroes the copy held for this operation. The process cache is
// left alone.
func (f *Finder) Forget() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forget()
}

// Reset zeroes the local copy and drops the process-wide cached password.
func (f *Finder) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forget()
	if f.cache != nil {
		f.cache.ClearPassword()
	}
}

func (f *Finder) forget() {
	utils.Zero(f.password)
	f.password = nil
}
