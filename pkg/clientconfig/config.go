// Package clientconfig holds the handle client configuration and the rules
// for merging it from several sources.
//
// A Config is always the result of Merge over a list of Layers, applied in
// order on top of Defaults. Layers later in the list win. The handle client
// uses the order
//
//	Defaults <- credentials Config() map <- credentials fields <- explicit options
//
// so explicitly passed options always have the final say.
package clientconfig

import (
	"fmt"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	DefaultHandleServerURL           = "https://hdl.handle.net"
	DefaultRESTAPIURLExtension       = "/api/handles/"
	DefaultReverseLookupURLExtension = "/hrls/handles/"
	DefaultHSAdminIndex              = 100
	DefaultHSAdminPermissions        = "011111110011"
)

// DefaultAllowedSearchKeys are the entry types the reverse lookup servlet
// indexes out of the box.
var DefaultAllowedSearchKeys = []string{"URL", "CHECKSUM"}

// Config is the fully merged client configuration. Every field has exactly
// one final value.
type Config struct {
	HTTPSVerify         bool
	HandleServerURL     string
	RESTAPIURLExtension string

	ReverseLookupURLExtension string
	ReverseLookupUsername     string
	ReverseLookupPassword     string
	AllowedSearchKeys         []string

	// Client certificate authentication. CertificateAndKey is a single PEM
	// file holding both; otherwise CertificateOnly and PrivateKey are used.
	PrivateKey        string
	CertificateOnly   string
	CertificateAndKey string

	// HS_ADMIN entry added to newly created handles. An empty
	// HSAdminHandleOwner means "0.NA/<prefix>" of the created handle.
	HSAdminHandleOwner string
	HSAdminIndex       int
	HSAdminPermissions string
	ModifyHSAdmin      bool
}

// Defaults returns the base configuration.
func Defaults() Config {
	return Config{
		HTTPSVerify:               true,
		HandleServerURL:           DefaultHandleServerURL,
		RESTAPIURLExtension:       DefaultRESTAPIURLExtension,
		ReverseLookupURLExtension: DefaultReverseLookupURLExtension,
		AllowedSearchKeys:         append([]string(nil), DefaultAllowedSearchKeys...),
		HSAdminIndex:              DefaultHSAdminIndex,
		HSAdminPermissions:        DefaultHSAdminPermissions,
	}
}

// Layer is a partial configuration. Nil fields leave the value of lower
// layers untouched.
type Layer struct {
	HTTPSVerify         *bool   `mapstructure:"https_verify"`
	HandleServerURL     *string `mapstructure:"handle_server_url"`
	RESTAPIURLExtension *string `mapstructure:"rest_api_url_extension"`

	ReverseLookupURLExtension *string  `mapstructure:"reverselookup_url_extension"`
	ReverseLookupUsername     *string  `mapstructure:"reverselookup_username"`
	ReverseLookupPassword     *string  `mapstructure:"reverselookup_password"`
	AllowedSearchKeys         []string `mapstructure:"allowed_search_keys"`

	PrivateKey        *string `mapstructure:"private_key"`
	CertificateOnly   *string `mapstructure:"certificate_only"`
	CertificateAndKey *string `mapstructure:"certificate_and_key"`

	HSAdminHandleOwner *string `mapstructure:"hs_admin_handleowner"`
	HSAdminIndex       *int    `mapstructure:"hs_admin_index"`
	HSAdminPermissions *string `mapstructure:"hs_admin_permissions"`
	ModifyHSAdmin      *bool   `mapstructure:"modify_hs_admin"`
}

// Merge applies layers on top of Defaults, in order.
func Merge(layers ...Layer) Config {
	cfg := Defaults()
	for _, l := range layers {
		cfg = l.apply(cfg)
	}
	return cfg
}

func (l Layer) apply(cfg Config) Config {
	setBool(&cfg.HTTPSVerify, l.HTTPSVerify)
	setString(&cfg.HandleServerURL, l.HandleServerURL)
	setString(&cfg.RESTAPIURLExtension, l.RESTAPIURLExtension)
	setString(&cfg.ReverseLookupURLExtension, l.ReverseLookupURLExtension)
	setString(&cfg.ReverseLookupUsername, l.ReverseLookupUsername)
	setString(&cfg.ReverseLookupPassword, l.ReverseLookupPassword)
	if l.AllowedSearchKeys != nil {
		cfg.AllowedSearchKeys = append([]string(nil), l.AllowedSearchKeys...)
	}
	setString(&cfg.PrivateKey, l.PrivateKey)
	setString(&cfg.CertificateOnly, l.CertificateOnly)
	setString(&cfg.CertificateAndKey, l.CertificateAndKey)
	setString(&cfg.HSAdminHandleOwner, l.HSAdminHandleOwner)
	if l.HSAdminIndex != nil {
		cfg.HSAdminIndex = *l.HSAdminIndex
	}
	setString(&cfg.HSAdminPermissions, l.HSAdminPermissions)
	setBool(&cfg.ModifyHSAdmin, l.ModifyHSAdmin)
	return cfg
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks the merged configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.HandleServerURL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.HSAdminIndex, validation.Min(1)),
		validation.Field(&c.HSAdminPermissions, validation.Length(12, 12)),
		validation.Field(&c.CertificateOnly, validation.When(c.PrivateKey != "", validation.Required)),
		validation.Field(&c.PrivateKey, validation.When(c.CertificateOnly != "", validation.Required)),
	)
}

func httpURL(value interface{}) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https scheme, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host")
	}
	return nil
}

// UsesClientCertificate reports whether certificate paths are configured.
func (c Config) UsesClientCertificate() bool {
	return c.CertificateAndKey != "" || (c.CertificateOnly != "" && c.PrivateKey != "")
}

// HandlesPath returns the normalized REST path of the handles collection,
// with leading and trailing slash. "api/", "api/handles" and
// "/api/handles/" all yield "/api/handles/".
func (c Config) HandlesPath() string {
	return normalizePath(c.RESTAPIURLExtension, "handles/")
}

// ReverseLookupPath returns the normalized path of the reverse lookup
// servlet.
func (c Config) ReverseLookupPath() string {
	return normalizePath(c.ReverseLookupURLExtension, "")
}

// ServerURL returns HandleServerURL without trailing slash.
func (c Config) ServerURL() string {
	return strings.TrimRight(c.HandleServerURL, "/")
}

func normalizePath(p, collection string) string {
	p = "/" + strings.Trim(p, "/") + "/"
	if p == "//" {
		p = "/"
	}
	if collection != "" && !strings.HasSuffix(p, "/"+collection) {
		p += collection
	}
	return p
}

// IsAllowedSearchKey reports whether key may be used in a reverse lookup.
func (c Config) IsAllowedSearchKey(key string) bool {
	for _, k := range c.AllowedSearchKeys {
		if k == key {
			return true
		}
	}
	return false
}
