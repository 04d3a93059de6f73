package transport

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/PolarWolf314/passgit/internal/credentials"

	"github.com/go-git/go-git/v5/plumbing/transport/client"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
)

// httpsAuth asks the Finder for the password the first time a request
// needs it. SetAuth cannot fail, so a prompt error leaves the request
// unauthenticated and is reported through Session.CredentialErr.
type httpsAuth struct {
	user   string
	finder *credentials.Finder
}

var _ githttp.AuthMethod = (*httpsAuth)(nil)

func (a *httpsAuth) Name() string { return "passgit-http-basic" }

func (a *httpsAuth) String() string {
	return fmt.Sprintf("%s - %s:%s", a.Name(), a.user, "*******")
}

func (a *httpsAuth) SetAuth(r *http.Request) {
	p, err := a.finder.Password(false)
	if err != nil {
		return
	}
	r.SetBasicAuth(a.user, p)
}

var (
	httpMu      sync.Mutex
	httpTimeout time.Duration
)

// installHTTPClient replaces go-git's http and https transports with one
// that enforces timeout on dial, TLS handshake and response headers.
// go-git clones the *http.Transport when a proxy is set, so these limits
// also hold behind a proxy.
func installHTTPClient(timeout time.Duration) {
	httpMu.Lock()
	defer httpMu.Unlock()

	if httpTimeout == timeout {
		return
	}
	httpTimeout = timeout

	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	c := githttp.NewClient(&http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
	})
	client.InstallProtocol("https", c)
	client.InstallProtocol("http", c)
}
