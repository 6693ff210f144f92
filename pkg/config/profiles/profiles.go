// Package profiles is the store of endpoints and credentials for the platform.
//
// A profile store is a YAML file mapping profile names to profiles:
//
//	default:
//	  apiRoot: https://geobigdata.io
//	  idahoRoot: https://idaho.geobigdata.io
//	  credentials:
//	    username: someone@example.com
//	    password: ...
//	    clientId: ...
//	    clientSecret: ...
package profiles

import (
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hectane/go-acl"
	kpath "github.com/opst/gbdxkit/pkg/utils/path"
	yaml "gopkg.in/yaml.v3"
)

var ErrProfileStoreNotFound = errors.New("profile store is not found")
var ErrCannotCreateConfig = errors.New("cannot create profile store")
var ErrCannotUpdateConfig = errors.New("cannot update profile store")
var ErrProfileInvalid = errors.New("gbdx profile is invalid")

const (
	DefaultApiRoot   = "https://geobigdata.io"
	DefaultIdahoRoot = "https://idaho.geobigdata.io"

	// DefaultProfile is the name of the profile used when no name is given.
	DefaultProfile = "default"

	authPath = "/auth/v1/oauth/token/"
)

// Environment variables overriding credentials of profiles.
const (
	EnvUsername     = "GBDX_USERNAME"
	EnvPassword     = "GBDX_PASSWORD"
	EnvClientID     = "GBDX_CLIENT_ID"
	EnvClientSecret = "GBDX_CLIENT_SECRET"
)

// DefaultStorePath is the path of the profile store when no path is given.
func DefaultStorePath() string {
	p, err := kpath.Resolve("~/.gbdx/profile")
	if err != nil {
		return filepath.Join(".gbdx", "profile")
	}
	return p
}

// ProfileStore is a map from profile name to Profile.
type ProfileStore map[string]*Profile

type Cert struct {
	// base64 encoded CA certificate
	CA string `yaml:"ca,omitempty"`
}

type Credentials struct {
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
	ClientID     string `yaml:"clientId,omitempty"`
	ClientSecret string `yaml:"clientSecret,omitempty"`
}

// Profile is a set of endpoints and credentials.
type Profile struct {
	// root URL of the platform API (workflows, catalog).
	ApiRoot string `yaml:"apiRoot"`

	// token endpoint. Default: <apiRoot>/auth/v1/oauth/token/
	AuthURL string `yaml:"authUrl,omitempty"`

	// root URL of the IDAHO tile/chip service.
	IdahoRoot string `yaml:"idahoRoot,omitempty"`

	Credentials Credentials `yaml:"credentials"`

	// Cert is a certificate for the platform.
	Cert Cert `yaml:"cert,omitempty"`
}

// Default is a profile pointing to the public platform, without credentials.
func Default() *Profile {
	return &Profile{ApiRoot: DefaultApiRoot, IdahoRoot: DefaultIdahoRoot}
}

// TokenURL is the OAuth2 token endpoint.
func (p *Profile) TokenURL() string {
	if p.AuthURL != "" {
		return p.AuthURL
	}
	return strings.TrimSuffix(p.ApiRoot, "/") + authPath
}

// Idaho is the root URL of the IDAHO service.
func (p *Profile) Idaho() string {
	if p.IdahoRoot != "" {
		return strings.TrimSuffix(p.IdahoRoot, "/")
	}
	return DefaultIdahoRoot
}

// WithEnv returns a copy of the profile, with credentials overridden by
// environment variables found by lookup (os.LookupEnv, usually).
func (p *Profile) WithEnv(lookup func(string) (string, bool)) *Profile {
	ret := *p
	for env, field := range map[string]*string{
		EnvUsername:     &ret.Credentials.Username,
		EnvPassword:     &ret.Credentials.Password,
		EnvClientID:     &ret.Credentials.ClientID,
		EnvClientSecret: &ret.Credentials.ClientSecret,
	} {
		if v, ok := lookup(env); ok && v != "" {
			*field = v
		}
	}
	return &ret
}

func verifyUrl(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.IsAbs()
}

func verifyPEM(b64cert string) bool {
	bin, err := base64.StdEncoding.DecodeString(b64cert)
	if err != nil {
		return false
	}
	blk, _ := pem.Decode(bin)
	return blk != nil
}

// Verify Profile
//
// # Return
//
// nil if it is valid. Otherwise, ErrProfileInvalid error.
func (p *Profile) Verify() error {
	if !verifyUrl(p.ApiRoot) {
		return fmt.Errorf("%w: apiRoot is not URL: %s", ErrProfileInvalid, p.ApiRoot)
	}
	if p.AuthURL != "" && !verifyUrl(p.AuthURL) {
		return fmt.Errorf("%w: authUrl is not URL: %s", ErrProfileInvalid, p.AuthURL)
	}
	if p.IdahoRoot != "" && !verifyUrl(p.IdahoRoot) {
		return fmt.Errorf("%w: idahoRoot is not URL: %s", ErrProfileInvalid, p.IdahoRoot)
	}
	if p.Cert.CA != "" && !verifyPEM(p.Cert.CA) {
		return fmt.Errorf("%w: cert.ca is not PEM", ErrProfileInvalid)
	}
	return nil
}

// VerifyCredentials checks that all credentials for the password grant are given.
func (p *Profile) VerifyCredentials() error {
	missing := []string{}
	for name, v := range map[string]string{
		"username":     p.Credentials.Username,
		"password":     p.Credentials.Password,
		"clientId":     p.Credentials.ClientID,
		"clientSecret": p.Credentials.ClientSecret,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf(
		"%w: credentials are missing (%s). set them in the profile, or with %s, %s, %s and %s",
		ErrProfileInvalid, strings.Join(missing, ", "),
		EnvUsername, EnvPassword, EnvClientID, EnvClientSecret,
	)
}

// LoadProfileStore loads profile store from file.
func LoadProfileStore(filepath string) (ProfileStore, error) {
	buf, err := os.ReadFile(filepath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrProfileStoreNotFound, filepath)
		}
		return nil, err
	}
	return Unmarshall(buf)
}

// Unmarshall profile store from yaml in byte array.
func Unmarshall(buf []byte) (ProfileStore, error) {
	ret := map[string]*Profile{}
	if err := yaml.Unmarshal(buf, &ret); err != nil {
		return nil, err
	}
	return ret, nil
}

// Save profile store to file.
//
// The file is readable only by the current user. If writing fails,
// the previous content is left in "<path>.backup".
func (ps *ProfileStore) Save(path string) error {
	saving := false

	if err := os.MkdirAll(filepath.Dir(path), os.FileMode(0700)); err != nil {
		return err
	}

	bkpath := path + ".backup"
	bk, err := newSafeFile(bkpath)
	if err != nil {
		return err
	}
	defer func() {
		if !saving {
			os.Remove(bkpath)
		}
	}()
	defer bk.Close()

	f, err := os.OpenFile(path, os.O_RDWR, os.FileMode(0600))
	if err == nil {
		// existing files may have loose permissions.
		if err := acl.Chmod(path, os.FileMode(0600)); err != nil {
			return err
		}
	} else {
		if os.IsPermission(err) {
			return fmt.Errorf(
				"%w, because no permission to write file at %s",
				ErrCannotUpdateConfig, path,
			)
		} else if os.IsNotExist(err) {
			f_, err_ := newSafeFile(path)
			if err_ != nil {
				return fmt.Errorf(
					"%w: cannot create a file at %s",
					ErrCannotCreateConfig, path,
				)
			}
			f = f_
		} else {
			return err
		}
	}
	defer f.Close()

	if _, err := io.Copy(bk, f); err != nil {
		return err
	}

	saving = true
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	buf, err := yaml.Marshal(ps)
	if err != nil {
		return err
	}
	if _, err = f.Write(buf); err != nil {
		return err
	}
	saving = false
	return nil
}
