package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	kerrors "github.com/PolarWolf314/passgit/internal/errors"
	logger "github.com/PolarWolf314/passgit/internal/logging"

	"github.com/go-git/go-git/v5/plumbing/format/pktline"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp/capability"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp/sideband"
	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/client"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/go-git/go-git/v5/utils/ioutil"
	"golang.org/x/crypto/ssh"
	"golang.org/x/net/proxy"
)

// sshTransport serves ssh remotes for go-git. Commands authenticated by a
// session run as channels on that session's connection. Any other auth
// method is handed to go-git's own client.
type sshTransport struct {
	fallback gittransport.Transport
}

var installSSHOnce sync.Once

func installSSHTransport() {
	installSSHOnce.Do(func() {
		client.InstallProtocol("ssh", &sshTransport{fallback: gitssh.DefaultClient})
	})
}

func (t *sshTransport) NewUploadPackSession(ep *gittransport.Endpoint, auth gittransport.AuthMethod) (gittransport.UploadPackSession, error) {
	a, ok := auth.(*sshAuth)
	if !ok || a.conn == nil {
		return t.fallback.NewUploadPackSession(ep, auth)
	}
	s, err := a.conn.command(gittransport.UploadPackServiceName, ep)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (t *sshTransport) NewReceivePackSession(ep *gittransport.Endpoint, auth gittransport.AuthMethod) (gittransport.ReceivePackSession, error) {
	a, ok := auth.(*sshAuth)
	if !ok || a.conn == nil {
		return t.fallback.NewReceivePackSession(ep, auth)
	}
	s, err := a.conn.command(gittransport.ReceivePackServiceName, ep)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// sshConn is the connection shared by every command of one session. The
// first command dials it and Session.Close tears it down.
type sshConn struct {
	auth    *sshAuth
	proxy   gittransport.ProxyOptions
	timeout time.Duration
	log     logger.Logger

	mu       sync.Mutex
	client   *ssh.Client
	closed   bool
	channels int

	hsMu      sync.Mutex
	handshake net.Conn
}

func newSSHConn(auth *sshAuth, proxy gittransport.ProxyOptions, timeout time.Duration, log logger.Logger) *sshConn {
	c := &sshConn{auth: auth, proxy: proxy, timeout: timeout, log: log}
	auth.conn = c
	return c
}

// connect returns the shared client, dialling it on first use.
func (c *sshConn) connect(ep *gittransport.Endpoint) (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, kerrors.ErrSessionClosed
	}
	if c.client != nil {
		return c.client, nil
	}

	cfg, err := c.auth.ClientConfig()
	if err != nil {
		return nil, err
	}
	port := ep.Port
	if port <= 0 {
		port = gitssh.DefaultPort
	}
	addr := net.JoinHostPort(ep.Host, strconv.Itoa(port))

	conn, err := c.dial(addr)
	if err != nil {
		return nil, c.timedOut(err)
	}

	c.setHandshake(conn)
	sc, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	c.setHandshake(nil)
	if err != nil {
		_ = conn.Close()
		return nil, c.timedOut(err)
	}
	_ = conn.SetDeadline(time.Time{})

	c.client = ssh.NewClient(sc, chans, reqs)
	c.channels = 0
	c.log.Debugf("Connected to %s", addr)
	return c.client, nil
}

func (c *sshConn) dial(addr string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if c.proxy.URL == "" {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}

	u, err := c.proxy.FullURL()
	if err != nil {
		return nil, err
	}
	d, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, err
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("proxy %s cannot dial with a deadline", u.Redacted())
	}
	return cd.DialContext(ctx, "tcp", addr)
}

func (c *sshConn) timedOut(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", kerrors.ErrRemoteTimeout, err)
	}
	return err
}

// setHandshake arms the deadline of conn for the handshake, or forgets the
// handshake connection when conn is nil.
func (c *sshConn) setHandshake(conn net.Conn) {
	c.hsMu.Lock()
	defer c.hsMu.Unlock()
	c.handshake = conn
	if conn != nil {
		_ = conn.SetDeadline(time.Now().Add(c.timeout))
	}
}

// holdDeadline lifts the handshake deadline while the user is prompted. The
// returned func rearms it.
func (c *sshConn) holdDeadline() func() {
	if c == nil {
		return func() {}
	}
	c.hsMu.Lock()
	if c.handshake != nil {
		_ = c.handshake.SetDeadline(time.Time{})
	}
	c.hsMu.Unlock()

	return func() {
		c.hsMu.Lock()
		defer c.hsMu.Unlock()
		if c.handshake != nil {
			_ = c.handshake.SetDeadline(time.Now().Add(c.timeout))
		}
	}
}

// command opens a channel running service against the repository at
// ep.Path.
func (c *sshConn) command(service string, ep *gittransport.Endpoint) (*packSession, error) {
	cl, err := c.connect(ep)
	if err != nil {
		return nil, err
	}

	ch, err := cl.NewSession()
	if err != nil {
		var rejected *ssh.OpenChannelError
		c.mu.Lock()
		additional := c.channels > 0
		c.mu.Unlock()
		if additional && errors.As(err, &rejected) {
			return nil, fmt.Errorf("%s: cannot open additional channels: %w", ep.Host, err)
		}
		return nil, err
	}

	c.mu.Lock()
	c.channels++
	c.mu.Unlock()

	watch := newWatchdog(c.timeout, func() { c.drop(cl) })
	s, err := startPackSession(ch, service, ep.Path, watch)
	if err != nil {
		watch.stop()
		_ = ch.Close()
		return nil, err
	}
	c.log.Debugf("Running %s on %s", service, ep.Path)
	return s, nil
}

// drop closes cl after a command stalled. The next command dials again.
func (c *sshConn) drop(cl *ssh.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == cl {
		c.client = nil
	}
	_ = cl.Close()
	c.log.Debugf("Dropped a stalled connection after %s", c.timeout)
}

func (c *sshConn) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// watchdog fires when a command sees no traffic for timeout.
type watchdog struct {
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
}

func newWatchdog(timeout time.Duration, expire func()) *watchdog {
	w := &watchdog{timeout: timeout}
	w.timer = time.AfterFunc(timeout, func() {
		w.fired.Store(true)
		expire()
	})
	return w
}

func (w *watchdog) kick() {
	if !w.fired.Load() {
		w.timer.Reset(w.timeout)
	}
}

func (w *watchdog) stop() { w.timer.Stop() }

// check replaces err with ErrRemoteTimeout once the watchdog fired.
func (w *watchdog) check(err error) error {
	if err != nil && w.fired.Load() {
		return fmt.Errorf("%w after %s", kerrors.ErrRemoteTimeout, w.timeout)
	}
	return err
}

type watchedReader struct {
	w *watchdog
	r io.Reader
}

func (r *watchedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.w.kick()
	}
	return n, r.w.check(err)
}

type watchedWriter struct {
	w  *watchdog
	wc io.WriteCloser
}

func (w *watchedWriter) Write(p []byte) (int, error) {
	n, err := w.wc.Write(p)
	if n > 0 {
		w.w.kick()
	}
	return n, w.w.check(err)
}

func (w *watchedWriter) Close() error { return w.w.check(w.wc.Close()) }

// packSession speaks the git pack protocol over one SSH channel.
type packSession struct {
	ch      *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  <-chan string
	receive bool
	watch   *watchdog

	advRefs  *packp.AdvRefs
	packRun  bool
	finished bool

	closeOnce sync.Once
	closeErr  error
}

func startPackSession(ch *ssh.Session, service, path string, watch *watchdog) (*packSession, error) {
	stdin, err := ch.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := ch.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := ch.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := ch.Start(fmt.Sprintf("%s '%s'", service, path)); err != nil {
		return nil, err
	}

	return &packSession{
		ch:      ch,
		stdin:   &watchedWriter{w: watch, wc: stdin},
		stdout:  &watchedReader{w: watch, r: stdout},
		stderr:  firstErrorLine(stderr),
		receive: service == gittransport.ReceivePackServiceName,
		watch:   watch,
	}, nil
}

var stderrNoise = regexp.MustCompile("^remote:( =*){0,1}$")

// firstErrorLine yields the first meaningful stderr line, then drains the
// rest so the channel never blocks on it.
func firstErrorLine(r io.Reader) <-chan string {
	line := make(chan string, 1)
	go func() {
		defer close(line)
		s := bufio.NewScanner(r)
		for s.Scan() {
			if !stderrNoise.MatchString(s.Text()) {
				line <- s.Text()
				break
			}
		}
		_, _ = io.Copy(io.Discard, r)
	}()
	return line
}

func (s *packSession) reader(ctx context.Context) io.Reader {
	return ioutil.NewReaderOnError(ioutil.NewContextReader(ctx, s.stdout), s.onError)
}

func (s *packSession) writer(ctx context.Context) io.WriteCloser {
	return ioutil.NewWriteCloserOnError(ioutil.NewContextWriteCloser(ctx, s.stdin), s.onError)
}

func (s *packSession) onError(error) { _ = s.Close() }

func (s *packSession) AdvertisedReferences() (*packp.AdvRefs, error) {
	return s.AdvertisedReferencesContext(context.Background())
}

func (s *packSession) AdvertisedReferencesContext(ctx context.Context) (*packp.AdvRefs, error) {
	if s.advRefs != nil {
		return s.advRefs, nil
	}

	ar := packp.NewAdvRefs()
	if err := ar.Decode(s.reader(ctx)); err != nil {
		if err := s.advRefsError(err); err != nil {
			return nil, s.watch.check(err)
		}
	}
	if !s.receive && ar.IsEmpty() {
		return nil, gittransport.ErrEmptyRemoteRepository
	}

	gittransport.FilterUnsupportedCapabilities(ar.Capabilities)
	s.advRefs = ar
	return ar, nil
}

func (s *packSession) advRefsError(err error) error {
	var line *pktline.ErrorLine
	if errors.As(err, &line) {
		if repoNotFound(line.Text) {
			return gittransport.ErrRepositoryNotFound
		}
		return line
	}

	switch {
	case errors.Is(err, packp.ErrEmptyInput):
		// The remote wrote nothing to stdout, the reason is on stderr.
		s.finished = true
		return s.stderrError()
	case errors.Is(err, packp.ErrEmptyAdvRefs):
		// An empty repository is fine to push to.
		if s.receive {
			return nil
		}
		if err := s.finish(); err != nil {
			return err
		}
		return gittransport.ErrEmptyRemoteRepository
	}

	var unexpected *packp.ErrUnexpectedData
	if errors.As(err, &unexpected) && repoNotFound(string(unexpected.Data)) {
		return gittransport.ErrRepositoryNotFound
	}
	return err
}

func (s *packSession) stderrError() error {
	t := time.NewTimer(s.watch.timeout)
	defer t.Stop()

	select {
	case <-t.C:
		return kerrors.ErrRemoteTimeout
	case line, ok := <-s.stderr:
		if !ok || line == "" {
			return io.ErrUnexpectedEOF
		}
		if repoNotFound(line) {
			return gittransport.ErrRepositoryNotFound
		}
		return fmt.Errorf("remote: %s", line)
	}
}

func (s *packSession) UploadPack(ctx context.Context, req *packp.UploadPackRequest) (*packp.UploadPackResponse, error) {
	if req.IsEmpty() {
		if err := s.finish(); err != nil {
			return nil, err
		}
		return nil, gittransport.ErrEmptyUploadPackRequest
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.AdvertisedReferencesContext(ctx); err != nil {
		return nil, err
	}

	s.packRun = true
	w := s.writer(ctx)
	if err := req.UploadRequest.Encode(w); err != nil {
		return nil, s.watch.check(fmt.Errorf("sending wants: %w", err))
	}
	if err := req.UploadHaves.Encode(w, true); err != nil {
		return nil, s.watch.check(fmt.Errorf("sending haves: %w", err))
	}
	if err := pktline.NewEncoder(w).Encodef("done\n"); err != nil {
		return nil, s.watch.check(fmt.Errorf("sending done: %w", err))
	}
	if err := w.Close(); err != nil {
		return nil, s.watch.check(err)
	}

	r, err := ioutil.NonEmptyReader(s.reader(ctx))
	if errors.Is(err, ioutil.ErrEmptyReader) {
		_ = s.Close()
		return nil, gittransport.ErrEmptyUploadPackRequest
	}
	if err != nil {
		return nil, s.watch.check(err)
	}

	res := packp.NewUploadPackResponse(req)
	if err := res.Decode(ioutil.NewReadCloser(r, s)); err != nil {
		return nil, s.watch.check(fmt.Errorf("error decoding upload-pack response: %w", err))
	}
	return res, nil
}

func (s *packSession) ReceivePack(ctx context.Context, req *packp.ReferenceUpdateRequest) (*packp.ReportStatus, error) {
	if _, err := s.AdvertisedReferencesContext(ctx); err != nil {
		return nil, err
	}

	s.packRun = true
	w := s.writer(ctx)
	if err := req.Encode(w); err != nil {
		return nil, s.watch.check(err)
	}
	if err := w.Close(); err != nil {
		return nil, s.watch.check(err)
	}

	if !req.Capabilities.Supports(capability.ReportStatus) {
		// Only the exit status tells whether the push went through.
		err := s.ch.Wait()
		_ = s.Close()
		return nil, s.watch.check(err)
	}

	r := s.reader(ctx)
	var d *sideband.Demuxer
	switch {
	case req.Capabilities.Supports(capability.Sideband64k):
		d = sideband.NewDemuxer(sideband.Sideband64k, r)
	case req.Capabilities.Supports(capability.Sideband):
		d = sideband.NewDemuxer(sideband.Sideband, r)
	}
	if d != nil {
		d.Progress = req.Progress
		r = d
	}

	report := packp.NewReportStatus()
	if err := report.Decode(r); err != nil {
		return nil, s.watch.check(err)
	}
	if err := report.Error(); err != nil {
		_ = s.Close()
		return report, err
	}
	return report, s.Close()
}

// finish tells the remote no pack exchange follows. Without it an idle
// upload-pack waits for wants forever.
func (s *packSession) finish() error {
	if s.finished {
		return nil
	}
	s.finished = true
	if s.packRun {
		return nil
	}
	_, err := s.stdin.Write(pktline.FlushPkt)
	return err
}

// Close ends the channel. The connection stays open for the next command.
func (s *packSession) Close() error {
	s.closeOnce.Do(func() {
		err := s.finish()
		s.watch.stop()
		if cerr := s.ch.Close(); cerr != nil && !errors.Is(cerr, io.EOF) && err == nil {
			err = cerr
		}
		s.closeErr = err
	})
	return s.closeErr
}

var repoNotFoundSignatures = []string{
	"Repository not found.",
	"repository does not exist.",
	"does not appear to be a git repository",
	"no such repository",
	"access denied",
	"Repository does not exist or you do not have access",
	"The project you were looking for could not be found",
}

func repoNotFound(msg string) bool {
	for _, sig := range repoNotFoundSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
