package credentials

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/spf13/afero"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gopkg.in/yaml.v3"
)

// FileContents is the decoded form of a credentials file. JSON and HCL files
// are decoded with hclsimple, YAML files with yaml.v3.
//
// Example (JSON):
//
//	{
//	  "handle_server_url": "https://handle.example.org:8000",
//	  "username": "300:21.T11998/USER01",
//	  "password": "secret",
//	  "HTTPS_verify": false
//	}
type FileContents struct {
	HandleServerURL string `hcl:"handle_server_url,optional" yaml:"handle_server_url"`
	BaseURI         string `hcl:"baseuri,optional" yaml:"baseuri"`
	Username        string `hcl:"username" yaml:"username"`
	Password        string `hcl:"password,optional" yaml:"password"`

	PrivateKey        string `hcl:"private_key,optional" yaml:"private_key"`
	CertificateOnly   string `hcl:"certificate_only,optional" yaml:"certificate_only"`
	CertificateAndKey string `hcl:"certificate_and_key,optional" yaml:"certificate_and_key"`

	// Client options carried by the file.
	HTTPSVerify               *bool    `hcl:"HTTPS_verify,optional" yaml:"HTTPS_verify"`
	RESTAPIURLExtension       *string  `hcl:"REST_API_url_extension,optional" yaml:"REST_API_url_extension"`
	ReverseLookupURLExtension *string  `hcl:"reverselookup_url_extension,optional" yaml:"reverselookup_url_extension"`
	ReverseLookupUsername     *string  `hcl:"reverselookup_username,optional" yaml:"reverselookup_username"`
	ReverseLookupPassword     *string  `hcl:"reverselookup_password,optional" yaml:"reverselookup_password"`
	AllowedSearchKeys         []string `hcl:"allowed_search_keys,optional" yaml:"allowed_search_keys"`
	HandleOwner               *string  `hcl:"handleowner,optional" yaml:"handleowner"`

	// Any other key of an HCL/JSON file. Its attributes are passed on as
	// client options, see File.Config.
	Remain hcl.Body `hcl:",remain" yaml:"-"`
}

// fileKeys are the keys FileContents decodes into its own fields.
var fileKeys = func() map[string]bool {
	keys := map[string]bool{}
	t := reflect.TypeOf(FileContents{})
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		if name != "" && name != "-" {
			keys[name] = true
		}
	}
	return keys
}()

// File is a credentials file loaded from disk. It implements Provider.
type File struct {
	contents FileContents
	path     string

	// Keys of the file that have no field in FileContents.
	extra map[string]interface{}
}

var _ Provider = (*File)(nil)

// LoadFile reads and validates a credentials file from fs.
func LoadFile(fs afero.Fs, path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("credentials file path is required")
	}

	src, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("error reading credentials file: %w", err)
	}

	var (
		contents FileContents
		extra    map[string]interface{}
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", ".hcl":
		// hclsimple picks the syntax from the file name suffix.
		if err := hclsimple.Decode("credentials"+ext, src, nil, &contents); err != nil {
			return nil, fmt.Errorf("error parsing credentials file %s: %w", path, err)
		}
		if extra, err = remainingAttributes(contents.Remain); err != nil {
			return nil, fmt.Errorf("error parsing credentials file %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(src, &contents); err != nil {
			return nil, fmt.Errorf("error parsing credentials file %s: %w", path, err)
		}
		var all map[string]interface{}
		if err := yaml.Unmarshal(src, &all); err != nil {
			return nil, fmt.Errorf("error parsing credentials file %s: %w", path, err)
		}
		extra = make(map[string]interface{}, len(all))
		for k, v := range all {
			if !fileKeys[k] {
				extra[k] = v
			}
		}
	default:
		return nil, fmt.Errorf("unsupported credentials file type %q", ext)
	}

	if err := contents.Validate(); err != nil {
		return nil, fmt.Errorf("invalid credentials file %s: %w", path, err)
	}
	return &File{contents: contents, path: path, extra: extra}, nil
}

// remainingAttributes converts the attributes hclsimple did not decode into
// plain Go values.
func remainingAttributes(body hcl.Body) (map[string]interface{}, error) {
	if body == nil {
		return nil, nil
	}
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}

	out := make(map[string]interface{}, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		raw, err := ctyjson.SimpleJSONValue{Value: val}.MarshalJSON()
		if err != nil {
			return nil, fmt.Errorf("option %q: %w", name, err)
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("option %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// Validate checks the required fields.
func (fc *FileContents) Validate() error {
	hasServer := fc.HandleServerURL != "" || fc.BaseURI != ""
	hasCert := fc.CertificateAndKey != "" || (fc.CertificateOnly != "" && fc.PrivateKey != "")
	return validation.ValidateStruct(fc,
		validation.Field(&fc.Username, validation.Required),
		validation.Field(&fc.HandleServerURL,
			validation.When(!hasServer, validation.Required.Error("handle_server_url or baseuri is required"))),
		validation.Field(&fc.Password,
			validation.When(!hasCert, validation.Required.Error("password or client certificate is required"))),
	)
}

// Path returns the file the credentials were loaded from.
func (f *File) Path() string {
	return f.path
}

// Contents returns the decoded file.
func (f *File) Contents() FileContents {
	return f.contents
}

func (f *File) Username() string {
	return f.contents.Username
}

func (f *File) Password() string {
	return f.contents.Password
}

// ServerURL prefers handle_server_url over the older baseuri key.
func (f *File) ServerURL() string {
	if f.contents.HandleServerURL != "" {
		return f.contents.HandleServerURL
	}
	return f.contents.BaseURI
}

// Config returns the client options set in the file. Options with a field
// in FileContents are keyed by their canonical names; any other key is
// passed on as written in the file.
func (f *File) Config() map[string]interface{} {
	c := f.contents
	m := make(map[string]interface{}, len(f.extra))
	for k, v := range f.extra {
		m[k] = v
	}
	putString(m, "private_key", c.PrivateKey)
	putString(m, "certificate_only", c.CertificateOnly)
	putString(m, "certificate_and_key", c.CertificateAndKey)
	if c.HTTPSVerify != nil {
		m["https_verify"] = *c.HTTPSVerify
	}
	putStringPtr(m, "rest_api_url_extension", c.RESTAPIURLExtension)
	putStringPtr(m, "reverselookup_url_extension", c.ReverseLookupURLExtension)
	putStringPtr(m, "reverselookup_username", c.ReverseLookupUsername)
	putStringPtr(m, "reverselookup_password", c.ReverseLookupPassword)
	putStringPtr(m, "hs_admin_handleowner", c.HandleOwner)
	if c.AllowedSearchKeys != nil {
		m["allowed_search_keys"] = append([]string(nil), c.AllowedSearchKeys...)
	}
	return m
}

func putString(m map[string]interface{}, key, v string) {
	if v != "" {
		m[key] = v
	}
}

func putStringPtr(m map[string]interface{}, key string, v *string) {
	if v != nil {
		m[key] = *v
	}
}
