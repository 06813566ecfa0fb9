// Package handleclient is a client for the REST interface of Handle System
// servers. It reads, creates, modifies and deletes handle records, and
// searches handles through the reverse lookup servlet.
//
// A Client is immutable after construction and safe for concurrent use.
// Every operation blocks until the server has answered; the client never
// retries and never caches records.
package handleclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/eudat-b2safe/b2handle/pkg/clientconfig"
	"github.com/eudat-b2safe/b2handle/pkg/credentials"
	"github.com/eudat-b2safe/b2handle/pkg/handle"
	"github.com/eudat-b2safe/b2handle/pkg/request"
	"github.com/eudat-b2safe/b2handle/pkg/response"
	"github.com/eudat-b2safe/b2handle/pkg/transport"
)

// Client talks to one handle server with one identity, or anonymously.
type Client struct {
	cfg       clientconfig.Config
	creds     *credentials.Credentials
	builder   *request.Builder
	transport transport.Transport
	logger    hclog.Logger
}

type options struct {
	layer     clientconfig.Layer
	transport transport.Transport
	logger    hclog.Logger
	timeout   time.Duration
}

// Option is a functional option for creating a Client. Options are explicit
// configuration and override anything from credentials.
type Option func(*options)

// WithHandleServerURL sets the server URL, e.g. "https://handle.example.org:8000".
func WithHandleServerURL(u string) Option {
	return func(o *options) {
		o.layer.HandleServerURL = &u
	}
}

// WithHTTPSVerify enables or disables TLS certificate verification.
func WithHTTPSVerify(verify bool) Option {
	return func(o *options) {
		o.layer.HTTPSVerify = &verify
	}
}

// WithRESTAPIURLExtension sets the path of the REST API, e.g. "/api/handles/".
func WithRESTAPIURLExtension(ext string) Option {
	return func(o *options) {
		o.layer.RESTAPIURLExtension = &ext
	}
}

// WithReverseLookupURLExtension sets the path of the reverse lookup servlet.
func WithReverseLookupURLExtension(ext string) Option {
	return func(o *options) {
		o.layer.ReverseLookupURLExtension = &ext
	}
}

// WithReverseLookupCredentials sets the credentials of the reverse lookup
// servlet. By default the handle credentials are used.
func WithReverseLookupCredentials(username, password string) Option {
	return func(o *options) {
		o.layer.ReverseLookupUsername = &username
		o.layer.ReverseLookupPassword = &password
	}
}

// WithAllowedSearchKeys sets the entry types that may be searched.
func WithAllowedSearchKeys(keys ...string) Option {
	return func(o *options) {
		o.layer.AllowedSearchKeys = append([]string{}, keys...)
	}
}

// WithHSAdminHandleOwner sets the owner written into HS_ADMIN entries of
// created handles, as "index:prefix/suffix" or "prefix/suffix".
func WithHSAdminHandleOwner(owner string) Option {
	return func(o *options) {
		o.layer.HSAdminHandleOwner = &owner
	}
}

// WithHSAdminIndex sets the index of the HS_ADMIN entry of created handles.
func WithHSAdminIndex(index int) Option {
	return func(o *options) {
		o.layer.HSAdminIndex = &index
	}
}

// WithHSAdminPermissions sets the permission bits of created HS_ADMIN
// entries.
func WithHSAdminPermissions(permissions string) Option {
	return func(o *options) {
		o.layer.HSAdminPermissions = &permissions
	}
}

// WithModifyHSAdmin allows modifying and deleting HS_ADMIN entries.
func WithModifyHSAdmin(allow bool) Option {
	return func(o *options) {
		o.layer.ModifyHSAdmin = &allow
	}
}

// WithTransport replaces the default HTTP transport.
func WithTransport(t transport.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTimeout sets the per-request timeout of the default transport.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// New creates a client for read access. It sends no credentials and every
// write operation fails locally.
func New(opts ...Option) (*Client, error) {
	return newClient(nil, opts)
}

// NewForReadAccess is New.
func NewForReadAccess(opts ...Option) (*Client, error) {
	return New(opts...)
}

// NewWithUsernameAndPassword creates a client that authenticates with Basic
// credentials. The username has the form "index:prefix/suffix"; its handle
// must exist on the server.
func NewWithUsernameAndPassword(ctx context.Context, serverURL, username, password string, opts ...Option) (*Client, error) {
	creds, err := credentials.FromUsernamePassword(serverURL, username, password, nil)
	if err != nil {
		return nil, err
	}
	return newVerifiedClient(ctx, creds, opts)
}

// NewWithClientCertificate creates a client that authenticates with a TLS
// client certificate.
func NewWithClientCertificate(ctx context.Context, serverURL, username string, cert credentials.Certificate, opts ...Option) (*Client, error) {
	creds, err := credentials.FromCertificate(serverURL, username, cert, nil)
	if err != nil {
		return nil, err
	}
	return newVerifiedClient(ctx, creds, opts)
}

// NewWithCredentials creates a client from any credentials provider. The
// provider's Config ranks below opts.
func NewWithCredentials(ctx context.Context, p credentials.Provider, opts ...Option) (*Client, error) {
	creds, err := credentials.FromProvider(p)
	if err != nil {
		return nil, err
	}
	return newVerifiedClient(ctx, creds, opts)
}

func newVerifiedClient(ctx context.Context, creds *credentials.Credentials, opts []Option) (*Client, error) {
	c, err := newClient(creds, opts)
	if err != nil {
		return nil, err
	}
	if keys := creds.UnusedConfigKeys(); len(keys) > 0 {
		c.logger.Warn("ignoring unknown credentials config keys", "keys", keys)
	}
	if err := c.verifyUsername(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(creds *credentials.Credentials, opts []Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = hclog.NewNullLogger()
	}

	cfg := clientconfig.Merge(append(creds.Layers(), o.layer)...)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}

	logger := o.logger.Named("handle-client")
	if o.transport == nil {
		o.transport = transport.NewHTTPTransport(transport.Config{
			Timeout: o.timeout,
			Logger:  logger,
		})
	}

	c := &Client{
		cfg:       cfg,
		creds:     creds,
		builder:   request.NewBuilder(cfg, creds),
		transport: o.transport,
		logger:    logger,
	}
	logger.Debug("client created",
		"server", cfg.ServerURL(),
		"path", cfg.HandlesPath(),
		"auth", creds.Mode().String(),
		"verify_tls", cfg.HTTPSVerify,
	)
	return c, nil
}

// Config returns the merged configuration.
func (c *Client) Config() clientconfig.Config {
	return c.cfg
}

// IsReadOnly reports whether the client has no write credentials.
func (c *Client) IsReadOnly() bool {
	return c.creds.Mode() == credentials.AuthNone
}

// verifyUsername checks that the handle of the username exists. A 404 that
// does not carry the HANDLE_NOT_FOUND code comes from a wrong REST path,
// not from a missing handle.
func (c *Client) verifyUsername(ctx context.Context) error {
	const op = "VerifyUsername"
	user := c.creds.UserHandle()

	req, err := c.builder.Get(user)
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, op, user.String(), req)
	if err != nil {
		return err
	}

	o := response.Classify(resp.StatusCode, resp.Body)
	switch {
	case o.Kind == response.KindSuccess:
		return nil
	case o.Kind == response.KindNotFound && o.ResponseCode == handle.ResponseHandleNotFound:
		return &handle.Error{
			Op:         op,
			Handle:     user.String(),
			Err:        handle.ErrHandleNotFound,
			Msg:        "the handle of the username does not exist",
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
		}
	default:
		return &handle.Error{
			Op:         op,
			Handle:     user.String(),
			Err:        handle.ErrGenericHandle,
			Msg:        fmt.Sprintf("could not verify username at %s, check the server URL and REST API path", req.URL),
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
		}
	}
}

func (c *Client) send(ctx context.Context, op, h string, req *transport.Request) (*transport.Response, error) {
	return c.sendAs(ctx, op, h, handle.ErrGenericHandle, req)
}

// sendAs sends req and reports a transport failure as kind.
func (c *Client) sendAs(ctx context.Context, op, h string, kind error, req *transport.Request) (*transport.Response, error) {
	c.logger.Debug("sending request", "op", op, "method", req.Method, "url", req.URL)

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return nil, &handle.Error{
			Op:     op,
			Handle: h,
			Err:    kind,
			Msg:    "request failed",
			Cause:  err,
		}
	}

	c.logger.Debug("received response", "op", op, "method", req.Method, "url", req.URL, "status", resp.StatusCode)
	return resp, nil
}

func (c *Client) requireWriteAccess(op, h string) error {
	if c.IsReadOnly() {
		return &handle.Error{Op: op, Handle: h, Err: handle.ErrGenericHandle, Cause: handle.ErrReadOnly}
	}
	return nil
}

func parseHandle(op, s string) (handle.Handle, error) {
	h, err := handle.Parse(s)
	if err != nil {
		var herr *handle.Error
		if errors.As(err, &herr) {
			e := *herr
			e.Op = op
			return handle.Handle{}, &e
		}
		return handle.Handle{}, err
	}
	return h, nil
}
