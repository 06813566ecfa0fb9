// Package credentials resolves the identity a handle client authenticates
// with, together with the server configuration that comes along with it.
package credentials

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/eudat-b2safe/b2handle/pkg/clientconfig"
	"github.com/eudat-b2safe/b2handle/pkg/handle"
)

// Provider is any source of handle credentials. Config may return extra
// client options (see clientconfig.LayerFromMap); they rank below options
// passed explicitly to the client.
type Provider interface {
	Username() string
	Password() string
	ServerURL() string
	Config() map[string]interface{}
}

// AuthMode selects how requests are authenticated.
type AuthMode int

const (
	AuthNone AuthMode = iota
	AuthBasic
	AuthClientCertificate
)

func (m AuthMode) String() string {
	switch m {
	case AuthBasic:
		return "basic"
	case AuthClientCertificate:
		return "client-certificate"
	default:
		return "none"
	}
}

// Credentials is an immutable, validated identity.
type Credentials struct {
	serverURL string
	username  handle.IndexedHandle
	password  string
	mode      AuthMode

	// Options from the provider's Config, and options derived from the
	// credentials themselves (server URL, certificate paths).
	configLayer clientconfig.Layer
	ownLayer    clientconfig.Layer
	unusedKeys  []string
}

// Certificate holds client certificate file paths. Either CertificateAndKey
// is set, or both CertificateOnly and PrivateKey.
type Certificate struct {
	CertificateOnly   string
	PrivateKey        string
	CertificateAndKey string
}

// FromUsernamePassword builds Basic-auth credentials. The username must have
// the form "index:prefix/suffix". The password is not checked locally, the
// server is the authority on it.
func FromUsernamePassword(serverURL, username, password string, overrides map[string]interface{}) (*Credentials, error) {
	c, err := newCredentials(serverURL, username, overrides)
	if err != nil {
		return nil, err
	}
	c.password = password
	c.mode = AuthBasic
	return c, nil
}

// FromCertificate builds client-certificate credentials.
func FromCertificate(serverURL, username string, cert Certificate, overrides map[string]interface{}) (*Credentials, error) {
	c, err := newCredentials(serverURL, username, overrides)
	if err != nil {
		return nil, err
	}

	if err := validation.ValidateStruct(&cert,
		validation.Field(&cert.CertificateOnly, validation.When(cert.CertificateAndKey == "", validation.Required)),
		validation.Field(&cert.PrivateKey, validation.When(cert.CertificateAndKey == "", validation.Required)),
	); err != nil {
		return nil, fmt.Errorf("invalid client certificate: %w", err)
	}

	setIfNotEmpty(&c.ownLayer.CertificateOnly, cert.CertificateOnly)
	setIfNotEmpty(&c.ownLayer.PrivateKey, cert.PrivateKey)
	setIfNotEmpty(&c.ownLayer.CertificateAndKey, cert.CertificateAndKey)
	c.mode = AuthClientCertificate
	return c, nil
}

// FromProvider reads the four accessors of p. When p's Config names
// certificate files (and no password is given) certificate mode is used.
func FromProvider(p Provider) (*Credentials, error) {
	if p == nil {
		return nil, fmt.Errorf("credentials provider is nil")
	}
	c, err := FromUsernamePassword(p.ServerURL(), p.Username(), p.Password(), p.Config())
	if err != nil {
		return nil, err
	}

	cfg := clientconfig.Merge(c.configLayer)
	if c.password == "" && cfg.UsesClientCertificate() {
		c.mode = AuthClientCertificate
	}
	return c, nil
}

func newCredentials(serverURL, username string, overrides map[string]interface{}) (*Credentials, error) {
	ih, err := handle.ParseIndexed(username)
	if err != nil {
		return nil, &handle.Error{
			Op:     "Credentials",
			Handle: username,
			Err:    handle.ErrHandleSyntax,
			Msg:    "username must have the form \"index:prefix/suffix\"",
			Cause:  err,
		}
	}

	layer, unused, err := clientconfig.LayerFromMap(overrides)
	if err != nil {
		return nil, fmt.Errorf("invalid credentials config: %w", err)
	}

	c := &Credentials{
		serverURL:   serverURL,
		username:    ih,
		configLayer: layer,
		unusedKeys:  unused,
	}
	setIfNotEmpty(&c.ownLayer.HandleServerURL, serverURL)
	return c, nil
}

func setIfNotEmpty(dst **string, v string) {
	if v != "" {
		*dst = &v
	}
}

// Username returns the username as given, "index:prefix/suffix".
func (c *Credentials) Username() string {
	return c.username.String()
}

// UserHandle returns the handle part of the username.
func (c *Credentials) UserHandle() handle.Handle {
	return c.username.Handle
}

// UserIndex returns the index part of the username.
func (c *Credentials) UserIndex() int {
	return c.username.Index
}

// Password returns the password, empty in certificate mode.
func (c *Credentials) Password() string {
	return c.password
}

// ServerURL returns the server URL the credentials belong to.
func (c *Credentials) ServerURL() string {
	return c.serverURL
}

// Mode returns the authentication mode.
func (c *Credentials) Mode() AuthMode {
	if c == nil {
		return AuthNone
	}
	return c.mode
}

// Layers returns the configuration layers contributed by the credentials,
// lowest precedence first.
func (c *Credentials) Layers() []clientconfig.Layer {
	if c == nil {
		return nil
	}
	return []clientconfig.Layer{c.configLayer, c.ownLayer}
}

// UnusedConfigKeys lists keys of the provider's Config that are not client
// options.
func (c *Credentials) UnusedConfigKeys() []string {
	if c == nil {
		return nil
	}
	return c.unusedKeys
}
