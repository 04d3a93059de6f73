package credentials

import (
	"context"
	"errors"

	kerrors "github.com/PolarWolf314/passgit/internal/errors"
)

type ChallengeStatus int

const (
	ChallengeSucceeded ChallengeStatus = iota
	ChallengeCancelled
	ChallengeFailed
)

func (s ChallengeStatus) String() string {
	switch s {
	case ChallengeSucceeded:
		return "succeeded"
	case ChallengeCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// ChallengeResult is the single answer to a device challenge. Secret is
// set on success and unlocks the SSH key.
type ChallengeResult struct {
	Status ChallengeStatus
	Secret []byte
	Err    error
}

// Authenticator runs a PIN challenge. Implementations must send exactly
// one result and then close the channel.
type Authenticator interface {
	Challenge(reason string, result chan<- ChallengeResult)
}

// Await starts a challenge and blocks until it answers or ctx is done.
func Await(ctx context.Context, a Authenticator, reason string) ChallengeResult {
	result := make(chan ChallengeResult, 1)
	go a.Challenge(reason, result)

	select {
	case r, ok := <-result:
		if !ok {
			return ChallengeResult{Status: ChallengeFailed, Err: errors.New("authenticator closed without a result")}
		}
		return r
	case <-ctx.Done():
		return ChallengeResult{Status: ChallengeCancelled, Err: ctx.Err()}
	}
}

// PromptAuthenticator asks for the PIN through Prompt, typically a hidden
// terminal read. An empty answer cancels.
type PromptAuthenticator struct {
	Prompt func(prompt string) ([]byte, error)
}

func (a PromptAuthenticator) Challenge(reason string, result chan<- ChallengeResult) {
	defer close(result)

	secret, err := a.Prompt(reason + ": ")
	switch {
	case errors.Is(err, kerrors.ErrCancelledByUser):
		result <- ChallengeResult{Status: ChallengeCancelled, Err: err}
	case err != nil:
		result <- ChallengeResult{Status: ChallengeFailed, Err: err}
	case len(secret) == 0:
		result <- ChallengeResult{Status: ChallengeCancelled, Err: kerrors.ErrCancelledByUser}
	default:
		result <- ChallengeResult{Status: ChallengeSucceeded, Secret: secret}
	}
}
