package transport

import (
	"github.com/PolarWolf314/passgit/internal/configs"

	gittransport "github.com/go-git/go-git/v5/plumbing/transport"
)

// proxyOptions maps the configured proxy onto go-git. SSH traffic goes
// through SOCKS5, HTTPS through an HTTP CONNECT proxy.
func proxyOptions(p configs.Protocol, cfg configs.RemoteConfig) gittransport.ProxyOptions {
	addr := cfg.ProxyAddress()
	if addr == "" {
		return gittransport.ProxyOptions{}
	}

	scheme := "http"
	if p == configs.ProtocolSSH {
		scheme = "socks5"
	}

	return gittransport.ProxyOptions{
		URL:      scheme + "://" + addr,
		Username: cfg.Proxy.Username,
		Password: cfg.Proxy.Password,
	}
}
