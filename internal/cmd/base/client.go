package base

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	"github.com/eudat-b2safe/b2handle/pkg/credentials"
	"github.com/eudat-b2safe/b2handle/pkg/handleclient"
	"github.com/eudat-b2safe/b2handle/pkg/transport"
)

// Environment fallbacks of the client flags.
const (
	EnvCredentials = "B2HANDLE_CREDENTIALS"
	EnvServer      = "B2HANDLE_SERVER"
)

// ClientFlags are the flags shared by all commands that talk to a handle
// server.
type ClientFlags struct {
	Credentials string
	Server      string
	Insecure    bool
	Retries     int
	Timeout     time.Duration

	// Fs is where credentials files are read from. Default: the OS
	// filesystem.
	Fs afero.Fs

	retryInterval time.Duration
}

// AddFlags registers the client flags on f.
func (cf *ClientFlags) AddFlags(f *FlagSet) {
	f.StringVar(
		&cf.Credentials, "credentials", "",
		fmt.Sprintf("[%s] Path to a credentials file (.json, .hcl, .yaml). "+
			"Without it the client has read access only.", EnvCredentials),
	)
	f.StringVar(
		&cf.Server, "server", "",
		fmt.Sprintf("[%s] Handle server URL. Overrides the credentials file.", EnvServer),
	)
	f.BoolVar(
		&cf.Insecure, "insecure", false,
		"Skip verification of the server's TLS certificate.",
	)
	f.IntVar(
		&cf.Retries, "retries", 0,
		"Number of retries when the server cannot be reached.",
	)
	f.DurationVar(
		&cf.Timeout, "timeout", 30*time.Second,
		"Timeout of a single request.",
	)
}

// Validate checks the flag values.
func (cf *ClientFlags) Validate() error {
	if cf.Retries < 0 {
		return fmt.Errorf("retries must be non-negative, got %d", cf.Retries)
	}
	if cf.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", cf.Timeout)
	}
	return nil
}

// NewClient builds a client from the flags, reading the credentials file
// if one is given.
func (cf *ClientFlags) NewClient(ctx context.Context, log hclog.Logger) (*handleclient.Client, error) {
	credsPath := cf.Credentials
	if val, ok := os.LookupEnv(EnvCredentials); ok && credsPath == "" {
		credsPath = val
	}
	server := cf.Server
	if val, ok := os.LookupEnv(EnvServer); ok && server == "" {
		server = val
	}

	opts := []handleclient.Option{
		handleclient.WithLogger(log),
		handleclient.WithTimeout(cf.Timeout),
	}
	if server != "" {
		opts = append(opts, handleclient.WithHandleServerURL(server))
	}
	if cf.Insecure {
		opts = append(opts, handleclient.WithHTTPSVerify(false))
	}

	if credsPath == "" {
		return handleclient.New(opts...)
	}

	fs := cf.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	file, err := credentials.LoadFile(fs, credsPath)
	if err != nil {
		return nil, err
	}

	var c *handleclient.Client
	err = cf.Retry(ctx, log, func() error {
		var err error
		c, err = handleclient.NewWithCredentials(ctx, file, opts...)
		return err
	})
	return c, err
}

// Retry runs op until it succeeds, fails with anything other than a
// connection error, or the retries are used up.
func (cf *ClientFlags) Retry(ctx context.Context, log hclog.Logger, op func() error) error {
	if cf.Retries == 0 {
		return op()
	}

	eb := backoff.NewExponentialBackOff()
	if cf.retryInterval > 0 {
		eb.InitialInterval = cf.retryInterval
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(cf.Retries)), ctx)
	return backoff.RetryNotify(
		func() error {
			err := op()
			if err != nil && !errors.Is(err, transport.ErrConnection) {
				return backoff.Permanent(err)
			}
			return err
		},
		b,
		func(err error, d time.Duration) {
			log.Warn("handle server unreachable, retrying", "error", err, "backoff", d)
		},
	)
}
