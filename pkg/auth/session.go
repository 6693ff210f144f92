// Package auth signs in to the platform, and keeps the access token.
//
// A Session is created once, and passed to each service client.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/opst/gbdxkit/pkg/api/rest"
	"github.com/opst/gbdxkit/pkg/buildtime"
	"github.com/opst/gbdxkit/pkg/config/profiles"
	"golang.org/x/oauth2"
)

var ErrUnauthorized = errors.New("cannot sign in")

// Session is a signed-in connection to the platform.
type Session struct {
	profile profiles.Profile
	source  oauth2.TokenSource
	client  *http.Client
}

type option struct {
	base  *http.Client
	token *oauth2.Token
}

type Option func(*option) *option

// WithHTTPClient sets the client used for the token endpoint and as the base of
// authenticated requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *option) *option {
		o.base = hc
		return o
	}
}

// WithToken starts a session with an existing token, without signing in.
func WithToken(token *oauth2.Token) Option {
	return func(o *option) *option {
		o.token = token
		return o
	}
}

// Login signs in to the platform with the password grant, using credentials of prof.
//
// Errors caused by the profile wrap profiles.ErrProfileInvalid.
// Rejected credentials wrap ErrUnauthorized.
func Login(ctx context.Context, prof *profiles.Profile, options ...Option) (*Session, error) {
	opt := &option{}
	for _, o := range options {
		opt = o(opt)
	}

	if err := prof.Verify(); err != nil {
		return nil, err
	}

	base := opt.base
	if base == nil {
		base = &http.Client{}
	}
	if prof.Cert.CA != "" {
		hc, err := rest.TrustCA(base, prof.Cert.CA)
		if err != nil {
			return nil, fmt.Errorf("%w: cert.ca: %w", profiles.ErrProfileInvalid, err)
		}
		base = hc
	}
	base = withUserAgent(base)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	conf := &oauth2.Config{
		ClientID:     prof.Credentials.ClientID,
		ClientSecret: prof.Credentials.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  prof.TokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	token := opt.token
	if token == nil {
		if err := prof.VerifyCredentials(); err != nil {
			return nil, err
		}
		t, err := conf.PasswordCredentialsToken(
			ctx, prof.Credentials.Username, prof.Credentials.Password,
		)
		if err != nil {
			var rerr *oauth2.RetrieveError
			if errors.As(err, &rerr) {
				return nil, fmt.Errorf("%w: %s: %w", ErrUnauthorized, prof.TokenURL(), err)
			}
			return nil, rest.NewCuiError(
				fmt.Sprintf("cannot reach %s", prof.TokenURL()), rest.WithCause(err),
			)
		}
		token = t
	}
	token = &oauth2.Token{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	if token.Expiry.IsZero() {
		token.Expiry = expiryOf(token.AccessToken)
	}

	source := oauth2.ReuseTokenSource(token, conf.TokenSource(context.WithoutCancel(ctx), token))
	return &Session{
		profile: *prof,
		source:  source,
		client: &http.Client{
			Transport: &oauth2.Transport{Source: source, Base: base.Transport},
			Timeout:   base.Timeout,
		},
	}, nil
}

// expiryOf reads "exp" claim of JWT access tokens. Tokens are not verified.
//
// Zero time is returned for tokens which are not JWT or have no "exp".
func expiryOf(accessToken string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Profile is the profile which this session signed in with.
func (s *Session) Profile() profiles.Profile {
	return s.profile
}

// Client is the HTTP client which authorizes requests with the bearer token.
func (s *Session) Client() *http.Client {
	return s.client
}

// Token is the current access token. It is refreshed when expired.
func (s *Session) Token() (*oauth2.Token, error) {
	return s.source.Token()
}

// AccessToken is the current access token, as a string.
//
// Some services (IDAHO chips) take it as a query parameter.
func (s *Session) AccessToken() (string, error) {
	t, err := s.Token()
	if err != nil {
		return "", err
	}
	return t.AccessToken, nil
}

type userAgent struct {
	base http.RoundTripper
}

func (ua *userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return ua.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", buildtime.UserAgent())
	return ua.base.RoundTrip(r)
}

func withUserAgent(hc *http.Client) *http.Client {
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if _, ok := base.(*userAgent); ok {
		return hc
	}
	ret := *hc
	ret.Transport = &userAgent{base: base}
	return &ret
}
