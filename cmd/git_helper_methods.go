package cmd

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/PolarWolf314/passgit/internal/configs"
	"github.com/PolarWolf314/passgit/internal/credentials"
	kerrors "github.com/PolarWolf314/passgit/internal/errors"
	"github.com/PolarWolf314/passgit/internal/gitops"
	"github.com/PolarWolf314/passgit/internal/hostkey"
	"github.com/PolarWolf314/passgit/internal/transport"
	"github.com/PolarWolf314/passgit/internal/ui"
	"github.com/PolarWolf314/passgit/internal/utils"
	"github.com/PolarWolf314/passgit/internal/vcs"
	"github.com/PolarWolf314/passgit/internal/workflows"

	"github.com/briandowns/spinner"
)

// credentialCache is shared by every git command run in this process.
var (
	credentialCacheOnce sync.Once
	credentialCache     *credentials.Cache
)

func sharedCredentialCache() *credentials.Cache {
	credentialCacheOnce.Do(func() {
		credentialCache = credentials.NewCache(credentials.DefaultCacheTTL)
	})
	return credentialCache
}

// spinnerPresenter reports operation progress on the command's spinner and
// collects what should be printed once the command ends.
type spinnerPresenter struct {
	spinner *spinner.Spinner

	mu       sync.Mutex
	notices  []string
	failed   *gitops.GitError
	keySetup bool
}

var _ workflows.Presenter = (*spinnerPresenter)(nil)

func (p *spinnerPresenter) Progress(message string) func() {
	p.spinner.Lock()
	previous := p.spinner.Suffix
	p.spinner.Suffix = " " + message
	p.spinner.Unlock()
	Logger.Debugf("%s", message)
	return func() {
		p.spinner.Lock()
		p.spinner.Suffix = previous
		p.spinner.Unlock()
	}
}

func (p *spinnerPresenter) Notice(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notices = append(p.notices, message)
}

func (p *spinnerPresenter) OfferKeySetup() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keySetup = true
}

func (p *spinnerPresenter) ShowError(err *gitops.GitError) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = err
}

// promptPassword asks for the remote password with the spinner paused.
func (p *spinnerPresenter) promptPassword(isRetry bool) ([]byte, error) {
	if !utils.IsTerminal() {
		return nil, kerrors.ErrNotInteractive
	}
	resume := pauseSpinner(p.spinner)
	defer resume()

	prompt := "Password for the remote: "
	if isRetry {
		prompt = "Authentication failed, password for the remote: "
	}
	return utils.ReadPassphrase(prompt)
}

// promptPIN reads the SSH key PIN with the spinner paused.
func (p *spinnerPresenter) promptPIN(prompt string) ([]byte, error) {
	if !utils.IsTerminal() {
		return nil, kerrors.ErrNotInteractive
	}
	resume := pauseSpinner(p.spinner)
	defer resume()
	return utils.ReadPassphrase(prompt)
}

// finalMessage renders the outcome of a git command.
func (p *spinnerPresenter) finalMessage(done string, err error) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lines []string
	switch {
	case p.keySetup:
		lines = append(lines, ui.Failure("No SSH key found, the operation was cancelled",
			"Run "+ui.Code.Sprint("passgit key generate")+" or "+ui.Code.Sprint("passgit key import <path>")))
	case err == nil:
		lines = append(lines, ui.Succeeded(done))
	case gitops.IsCancellation(err):
		lines = append(lines, ui.Warned("Cancelled"))
	case p.failed != nil:
		lines = append(lines, ui.Failure(p.failed.Error(), hintFor(p.failed)))
	default:
		lines = append(lines, ui.Failure(err.Error(), hintForError(err)))
	}

	for _, n := range p.notices {
		lines = append(lines, ui.Hint(n))
	}
	return strings.Join(lines, "\n")
}

func hintFor(ge *gitops.GitError) string {
	switch ge.Kind {
	case gitops.PushNonFastForward, gitops.PushRemoteRejected:
		return "Run " + ui.Code.Sprint("passgit git sync") + " to pull the remote changes first"
	case gitops.PullRebaseFailed, gitops.PullMergeFailed:
		return "Run " + ui.Code.Sprint("passgit git recover") + " to keep your changes on a separate branch, or " +
			ui.Code.Sprint("passgit git reset") + " to discard them"
	case gitops.HostKeyChanged:
		return "Verify the new key with the server owner, then run " + ui.Code.Sprint("passgit remote clear-host-key")
	case gitops.TooManyChannels:
		return "Run the command again"
	case gitops.IncompleteClone:
		return "Remove " + ui.Path.Sprint(configs.UserPassgitSettings.StorePath) + " and run " + ui.Code.Sprint("passgit git clone")
	default:
		return hintForError(ge)
	}
}

func hintForError(err error) string {
	switch {
	case errors.Is(err, kerrors.ErrRemoteNotConfigured):
		return "Run " + ui.Code.Sprint("passgit remote set <url>") + " first"
	case errors.Is(err, kerrors.ErrStoreNotCloned):
		return "Run " + ui.Code.Sprint("passgit git clone") + " first"
	case errors.Is(err, kerrors.ErrStoreExists):
		return "The store at " + ui.Path.Sprint(configs.UserPassgitSettings.StorePath) + " is already cloned"
	case errors.Is(err, kerrors.ErrNotInteractive):
		return "Run passgit from a terminal so it can prompt for credentials"
	default:
		return ""
	}
}

// newGit wires the orchestrator to the real engine, transport and
// terminal prompts.
func newGit(settings *configs.Settings, presenter *spinnerPresenter) *workflows.Git {
	paths := configs.UserPassgitSettings

	engine := vcs.NewGoGit(paths.StorePath, Logger)
	engine.SetIdentity(settings.Author.Name, settings.Author.Email)

	cache := sharedCredentialCache()
	return &workflows.Git{
		Settings:      settings,
		Engine:        engine,
		Sessions:      transport.NewFactory(hostkey.NewStore(paths.HostKeyPath), Logger),
		Keys:          credentials.NewKeyStore(paths.KeysPath),
		Passwords:     credentials.NewFinder(presenter.promptPassword, cache),
		Cache:         cache,
		Authenticator: credentials.PromptAuthenticator{Prompt: presenter.promptPIN},
		Presenter:     presenter,
		Log:           Logger,
	}
}

// runGit runs req with the spinner up and prints its outcome.
func runGit(ctx context.Context, req workflows.Request, opts workflows.RunOptions, running, done string) error {
	Logger.Infof("Starting git %s command", req)
	s, cleanup := startSpinner(running)
	defer cleanup()

	settings, err := configs.LoadSettings()
	if err != nil {
		return Logger.ErrorfAndReturn("Failed to load settings: %v", err)
	}

	presenter := &spinnerPresenter{spinner: s}
	err = newGit(settings, presenter).Run(ctx, req, opts)
	if err != nil {
		Logger.Debugf("git %s returned: %v", req, err)
	}

	s.FinalMSG = presenter.finalMessage(done, err)
	return nil
}
