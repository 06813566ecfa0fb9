// Package request composes the REST requests of the handle API: URL with
// escaped handle and query, authentication headers, and JSON body.
package request

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/eudat-b2safe/b2handle/pkg/clientconfig"
	"github.com/eudat-b2safe/b2handle/pkg/credentials"
	"github.com/eudat-b2safe/b2handle/pkg/handle"
	"github.com/eudat-b2safe/b2handle/pkg/transport"
)

const (
	contentTypeJSON = "application/json"

	// Sent instead of Basic credentials when authenticating with a TLS
	// client certificate.
	clientCertAuthorization = `Handle clientCert="true"`
)

// Builder builds requests for one configuration and identity. A nil
// identity builds unauthenticated requests.
type Builder struct {
	cfg   clientconfig.Config
	creds *credentials.Credentials
}

// NewBuilder creates a Builder.
func NewBuilder(cfg clientconfig.Config, creds *credentials.Credentials) *Builder {
	return &Builder{cfg: cfg, creds: creds}
}

// PutOptions selects between replacing a whole record and writing single
// entries.
type PutOptions struct {
	// Indices restricts the write to these entries. Empty means the body is
	// the complete record.
	Indices []int

	// Overwrite allows replacing an existing handle. Writes of single
	// entries always overwrite.
	Overwrite bool
}

// SearchQuery is a reverse lookup query.
type SearchQuery struct {
	// Terms maps entry type to value pattern; "*" is a wildcard.
	Terms map[string]string

	// Prefix restricts results to handles under this prefix.
	Prefix string

	Limit int
	Page  int
}

// Get builds a read of the record, or of the given indices only.
func (b *Builder) Get(h handle.Handle, indices ...int) (*transport.Request, error) {
	return b.newRequest(http.MethodGet, h, indexQuery(indices), nil)
}

// Put builds a write. The entries are validated and encoded here, so an
// invalid record never reaches the network.
func (b *Builder) Put(h handle.Handle, entries []handle.Entry, opts PutOptions) (*transport.Request, error) {
	body, err := handle.EncodeEntries(entries)
	if err != nil {
		return nil, err
	}

	q := indexQuery(opts.Indices)
	overwrite := opts.Overwrite || len(opts.Indices) > 0
	q.Set("overwrite", strconv.FormatBool(overwrite))

	return b.newRequest(http.MethodPut, h, q, body)
}

// Delete builds a removal of the given indices, or of the whole handle when
// none are given.
func (b *Builder) Delete(h handle.Handle, indices ...int) (*transport.Request, error) {
	return b.newRequest(http.MethodDelete, h, indexQuery(indices), nil)
}

// Search builds a reverse lookup request against the reverse lookup servlet.
func (b *Builder) Search(q SearchQuery) (*transport.Request, error) {
	if len(q.Terms) == 0 {
		return nil, handle.NewError("Search", "", handle.ErrReverseLookup, "no search terms given")
	}

	keys := make([]string, 0, len(q.Terms))
	for k := range q.Terms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		if !b.cfg.IsAllowedSearchKey(k) {
			return nil, handle.NewError("Search", "", handle.ErrReverseLookup,
				"search key %q is not allowed (allowed: %s)", k, strings.Join(b.cfg.AllowedSearchKeys, ", "))
		}
		values.Set(k, q.Terms[k])
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}

	u := b.cfg.ServerURL() + b.cfg.ReverseLookupPath()
	if q.Prefix != "" {
		u += url.PathEscape(q.Prefix)
	}
	u += "?" + values.Encode()

	req := &transport.Request{
		Method:    http.MethodGet,
		URL:       u,
		Header:    http.Header{},
		VerifyTLS: b.cfg.HTTPSVerify,
	}
	req.Header.Set("Accept", contentTypeJSON)

	username, password := b.cfg.ReverseLookupUsername, b.cfg.ReverseLookupPassword
	if username == "" && b.creds.Mode() == credentials.AuthBasic {
		username, password = b.creds.Username(), b.creds.Password()
	}
	if username != "" {
		req.Header.Set("Authorization", basicAuth(username, password))
	}
	return req, nil
}

// HandleURL returns the REST URL of h with the given query.
func (b *Builder) HandleURL(h handle.Handle, query url.Values) string {
	u := b.cfg.ServerURL() + b.cfg.HandlesPath() +
		url.PathEscape(h.Prefix()) + "/" + url.PathEscape(h.Suffix())
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (b *Builder) newRequest(method string, h handle.Handle, query url.Values, body []byte) (*transport.Request, error) {
	if h.IsZero() {
		return nil, handle.NewError(method, "", handle.ErrHandleSyntax, "no handle given")
	}

	req := &transport.Request{
		Method:    method,
		URL:       b.HandleURL(h, query),
		Header:    http.Header{},
		Body:      body,
		VerifyTLS: b.cfg.HTTPSVerify,
	}
	req.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	switch b.creds.Mode() {
	case credentials.AuthBasic:
		req.Header.Set("Authorization", basicAuth(quoteUsername(b.creds.Username()), b.creds.Password()))
	case credentials.AuthClientCertificate:
		req.Header.Set("Authorization", clientCertAuthorization)
		req.ClientCert = &transport.ClientCertificate{
			CertificateOnly:   b.cfg.CertificateOnly,
			PrivateKey:        b.cfg.PrivateKey,
			CertificateAndKey: b.cfg.CertificateAndKey,
		}
	}
	return req, nil
}

func indexQuery(indices []int) url.Values {
	q := url.Values{}
	for _, i := range indices {
		q.Add("index", strconv.Itoa(i))
	}
	return q
}

func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// quoteUsername percent-encodes a handle username the way handle servers
// expect it in Basic credentials: ":" is escaped, "/" is kept.
func quoteUsername(u string) string {
	q := url.PathEscape(u)
	q = strings.ReplaceAll(q, "%2F", "/")
	return strings.ReplaceAll(q, ":", "%3A")
}

// String renders a request for logs, without credentials.
func String(req *transport.Request) string {
	return fmt.Sprintf("%s %s", req.Method, req.URL)
}
