package runner

import (
	"context"
	"net"
	"net/http"
	"net/url"

	"github.com/elazarl/goproxy"
	"github.com/pkg/errors"

	"j5.dev/x07/pkg/proxy/policy"
)

// StartNetworkPolicy spins up a plain (non-MITM) forward proxy enforcing
// policy on every request and CONNECT tunnel the run-os-sandboxed world's
// child process makes. Grounded on
// pkg/proxy/proxy.NewTransparentProxyServer/TransparentProxyService, trimmed
// to what a deterministic world actually needs: x07's sandboxed world
// blocks or allows a host, it does not inspect or rewrite TLS content, so
// there is no CA to mint and no MITM handling of CONNECT — goproxy simply
// tunnels an allowed CONNECT byte-for-byte and closes the connection on a
// denied one.
//
// The returned address is suitable for runner.Options.ProxyAddr; the
// returned cleanup shuts the listener down.
func StartNetworkPolicy(pl *policy.Policy) (addr string, cleanup func(), err error) {
	p := goproxy.NewProxyHttpServer()
	p.Verbose = false

	p.OnRequest().DoFunc(func(req *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
		return pl.Apply(req, ctx)
	})
	p.OnRequest().HandleConnectFunc(func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
		hostname, _, splitErr := net.SplitHostPort(host)
		if splitErr != nil {
			hostname = host
		}
		connectReq := &http.Request{URL: &url.URL{Scheme: "https", Host: hostname}}
		_, resp := pl.Apply(connectReq, ctx)
		if resp != nil {
			return goproxy.RejectConnect, host
		}
		return goproxy.OkConnect, host
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, errors.Wrap(err, "runner: starting network policy proxy")
	}
	server := &http.Server{Handler: p}
	go server.Serve(ln)

	cleanup = func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		server.Shutdown(ctx)
	}
	return ln.Addr().String(), cleanup, nil
}
