// Package rest is the base of HTTP clients for the platform services.
package rest

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/opst/gbdxkit/pkg/buildtime"
	xe "github.com/opst/gbdxkit/pkg/errors"
)

// Client sends requests to a service under a root URL.
type Client struct {
	httpclient *http.Client
	root       string
}

// New creates a client for the service at root.
//
// hc should authenticate requests (see auth.Session). nil means http.DefaultClient.
func New(root string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		httpclient: hc,
		root:       strings.TrimSuffix(root, "/"),
	}
}

// Root is the root URL of the service.
func (c *Client) Root() string {
	return c.root
}

// URL builds URL with path segments. Segments are escaped.
func (c *Client) URL(path ...string) string {
	segs := make([]string, 0, len(path)+1)
	segs = append(segs, c.root)
	for _, p := range path {
		for _, s := range strings.Split(strings.Trim(p, "/"), "/") {
			segs = append(segs, url.PathEscape(s))
		}
	}
	return strings.Join(segs, "/")
}

// Do sends a request. When body is not nil, it is sent as JSON.
//
// Failures to send the request are CUIError. Responses of any status are returned as is.
func (c *Client) Do(ctx context.Context, method string, u string, body any) (*http.Response, error) {
	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, xe.Wrap(err)
		}
		payload = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildtime.UserAgent())

	resp, err := c.httpclient.Do(req)
	if err != nil {
		return nil, NewCuiError(
			fmt.Sprintf("cannot send request: %s %s", method, u),
			WithCause(err),
		)
	}
	return resp, nil
}

// TrustCA returns a copy of hc which trusts base64 encoded PEM certificates in addition.
func TrustCA(hc *http.Client, cacerts ...string) (*http.Client, error) {
	if len(cacerts) == 0 {
		return hc, nil
	}

	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	tran, ok := base.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("failed to add ca cert: transport is not *http.Transport")
	}
	tran = tran.Clone()

	tcc := tran.TLSClientConfig.Clone()
	if tcc == nil {
		tcc = &tls.Config{}
	}
	rootcas := tcc.RootCAs
	if rootcas == nil {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		rootcas = pool
		tcc.RootCAs = rootcas
	}
	for _, ca := range cacerts {
		bin, err := base64.StdEncoding.DecodeString(ca)
		if err != nil {
			return nil, err
		}
		if !rootcas.AppendCertsFromPEM(bin) {
			return nil, fmt.Errorf("failed to add cert")
		}
	}
	tran.TLSClientConfig = tcc

	ret := *hc
	ret.Transport = tran
	return &ret, nil
}
