package write

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eudat-b2safe/b2handle/internal/cmd/base"
	"github.com/eudat-b2safe/b2handle/pkg/handle"
)

const credsPath = "/etc/b2handle/credentials.json"

// recordServer keeps records in memory and implements the subset of the
// REST API the write commands use.
type recordServer struct {
	*httptest.Server

	mu      sync.Mutex
	records map[string][]handle.Entry
}

func newRecordServer(t *testing.T) *recordServer {
	t.Helper()
	s := &recordServer{records: map[string][]handle.Entry{
		"21.T11998/USER01": {
			{Index: 300, Type: "HS_SECKEY", Data: handle.StringData("")},
		},
	}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *recordServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := strings.TrimPrefix(r.URL.Path, "/api/handles/")
	entries, exists := s.records[h]
	indices := parseIndices(r.URL.Query()["index"])

	switch r.Method {
	case http.MethodGet:
		if !exists {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"responseCode": 100, "handle": h})
			return
		}
		body, _ := handle.Encode(&handle.Record{ResponseCode: 1, Handle: h, Values: entries})
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)

	case http.MethodPut:
		if user, _, ok := r.BasicAuth(); !ok || user == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"responseCode": 402})
			return
		}
		raw, _ := io.ReadAll(r.Body)
		rec, err := handle.Decode(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"responseCode": 2})
			return
		}
		if len(indices) == 0 {
			if exists && r.URL.Query().Get("overwrite") != "true" {
				writeJSON(w, http.StatusConflict, map[string]interface{}{"responseCode": 101, "handle": h})
				return
			}
			s.records[h] = rec.Values
			writeJSON(w, http.StatusCreated, map[string]interface{}{"responseCode": 1, "handle": h})
			return
		}
		for _, e := range rec.Values {
			entries = removeIndex(entries, e.Index)
			entries = append(entries, e)
		}
		s.records[h] = entries
		writeJSON(w, http.StatusOK, map[string]interface{}{"responseCode": 1, "handle": h})

	case http.MethodDelete:
		if !exists {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"responseCode": 100, "handle": h})
			return
		}
		if len(indices) == 0 {
			delete(s.records, h)
		} else {
			for _, i := range indices {
				entries = removeIndex(entries, i)
			}
			s.records[h] = entries
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"responseCode": 1, "handle": h})
	}
}

func (s *recordServer) put(h string, entries []handle.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[h] = entries
}

func (s *recordServer) get(h string) ([]handle.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[h]
	return e, ok
}

func (s *recordServer) value(t *testing.T, h, typ string) string {
	t.Helper()
	entries, ok := s.get(h)
	require.True(t, ok, "handle %s does not exist", h)
	v, _ := handle.ExtractOneValue(&handle.Record{Values: entries}, typ)
	return v
}

func parseIndices(qs []string) []int {
	var out []int
	for _, q := range qs {
		for _, part := range strings.Split(q, ",") {
			if i, err := strconv.Atoi(part); err == nil {
				out = append(out, i)
			}
		}
	}
	return out
}

func removeIndex(entries []handle.Entry, index int) []handle.Entry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Index != index {
			out = append(out, e)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// credentialsFs returns a filesystem holding a credentials file for s.
func credentialsFs(t *testing.T, s *recordServer) afero.Fs {
	t.Helper()
	t.Setenv(base.EnvCredentials, "")
	t.Setenv(base.EnvServer, "")

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, credsPath, []byte(fmt.Sprintf(`{
  "handle_server_url": %q,
  "username": "300:21.T11998/USER01",
  "password": "secret"
}`, s.URL)), 0o600))
	return fs
}

func newBase(ui cli.Ui) *base.Command {
	return base.NewCommand(hclog.NewNullLogger(), ui)
}

func TestCreateCommand(t *testing.T) {
	s := newRecordServer(t)
	fs := credentialsFs(t, s)

	ui := cli.NewMockUi()
	c := &CreateCommand{Command: newBase(ui)}
	c.client.Fs = fs
	code := c.Run([]string{
		"-credentials", credsPath,
		"-url", "https://example.org/data",
		"-checksum", "md5:abc",
		"-value", "EMAIL=me@example.org",
		"21.T11998/new",
	})
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	assert.Equal(t, "21.T11998/new\n", ui.OutputWriter.String())

	assert.Equal(t, "https://example.org/data", s.value(t, "21.T11998/new", "URL"))
	assert.Equal(t, "md5:abc", s.value(t, "21.T11998/new", "CHECKSUM"))
	assert.Equal(t, "me@example.org", s.value(t, "21.T11998/new", "EMAIL"))
	entries, _ := s.get("21.T11998/new")
	assert.Len(t, handle.IndicesForKey(&handle.Record{Values: entries}, handle.TypeHSAdmin), 1)

	// A second create of the same handle fails unless -overwrite is given.
	ui = cli.NewMockUi()
	c = &CreateCommand{Command: newBase(ui)}
	c.client.Fs = fs
	code = c.Run([]string{"-credentials", credsPath, "-url", "https://example.org/other", "21.T11998/new"})
	assert.Equal(t, 1, code)
	assert.Contains(t, ui.ErrorWriter.String(), "handle already exists")

	ui = cli.NewMockUi()
	c = &CreateCommand{Command: newBase(ui)}
	c.client.Fs = fs
	code = c.Run([]string{"-credentials", credsPath, "-overwrite", "-url", "https://example.org/other", "21.T11998/new"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())
	assert.Equal(t, "https://example.org/other", s.value(t, "21.T11998/new", "URL"))
}

func TestCreateCommand_Generate(t *testing.T) {
	s := newRecordServer(t)
	fs := credentialsFs(t, s)

	ui := cli.NewMockUi()
	c := &CreateCommand{Command: newBase(ui)}
	c.client.Fs = fs
	code := c.Run([]string{"-credentials", credsPath, "-url", "https://example.org", "-prefix", "21.T11998"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())

	h := strings.TrimSpace(ui.OutputWriter.String())
	assert.True(t, strings.HasPrefix(h, "21.T11998/"), h)
	assert.Equal(t, "https://example.org", s.value(t, h, "URL"))
}

func TestCreateCommand_Errors(t *testing.T) {
	s := newRecordServer(t)
	fs := credentialsFs(t, s)

	tests := map[string]struct {
		args    []string
		wantErr string
	}{
		"no url": {
			args:    []string{"-credentials", credsPath, "21.T11998/x"},
			wantErr: "url flag is required",
		},
		"no handle": {
			args:    []string{"-credentials", credsPath, "-url", "https://example.org"},
			wantErr: "exactly one handle is required",
		},
		"handle and prefix": {
			args:    []string{"-credentials", credsPath, "-url", "https://example.org", "-prefix", "21.T11998", "21.T11998/x"},
			wantErr: "either a handle or -prefix",
		},
		"read only": {
			args:    []string{"-server", s.URL, "-url", "https://example.org", "21.T11998/x"},
			wantErr: "client has no write credentials",
		},
		"extra HS_ADMIN": {
			args:    []string{"-credentials", credsPath, "-url", "https://example.org", "-value", "HS_ADMIN=x", "21.T11998/x"},
			wantErr: "illegal handle operation",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ui := cli.NewMockUi()
			c := &CreateCommand{Command: newBase(ui)}
			c.client.Fs = fs

			code := c.Run(tc.args)

			assert.Equal(t, 1, code)
			assert.Contains(t, ui.ErrorWriter.String(), tc.wantErr)
		})
	}
	_, exists := s.get("21.T11998/x")
	assert.False(t, exists)
}

func TestModifyCommand(t *testing.T) {
	s := newRecordServer(t)
	fs := credentialsFs(t, s)
	s.put("21.T11998/abc", []handle.Entry{
		{Index: 1, Type: "URL", Data: handle.StringData("https://example.org/old")},
		{Index: 100, Type: "HS_ADMIN", Data: handle.AdminData(handle.AdminValue{Handle: "0.NA/21.T11998", Index: 200, Permissions: "011111110011"})},
	})

	ui := cli.NewMockUi()
	c := &ModifyCommand{Command: newBase(ui)}
	c.client.Fs = fs
	code := c.Run([]string{
		"-credentials", credsPath,
		"-value", "URL=https://example.org/new",
		"-value", "EMAIL=me@example.org",
		"-ttl", "3600",
		"21.T11998/abc",
	})
	require.Equal(t, 0, code, ui.ErrorWriter.String())

	assert.Equal(t, "https://example.org/new", s.value(t, "21.T11998/abc", "URL"))
	assert.Equal(t, "me@example.org", s.value(t, "21.T11998/abc", "EMAIL"))
	entries, _ := s.get("21.T11998/abc")
	for _, e := range entries {
		if e.Type == "URL" || e.Type == "EMAIL" {
			require.NotNil(t, e.TTL)
			assert.Equal(t, 3600, *e.TTL)
		}
	}
}

func TestModifyCommand_NoAdd(t *testing.T) {
	s := newRecordServer(t)
	fs := credentialsFs(t, s)
	s.put("21.T11998/abc", []handle.Entry{
		{Index: 1, Type: "URL", Data: handle.StringData("https://example.org/old")},
	})

	ui := cli.NewMockUi()
	c := &ModifyCommand{Command: newBase(ui)}
	c.client.Fs = fs
	code := c.Run([]string{"-credentials", credsPath, "-no-add", "-value", "EMAIL=me@example.org", "21.T11998/abc"})

	assert.Equal(t, 1, code)
	assert.Contains(t, ui.ErrorWriter.String(), "illegal handle operation")
	assert.Equal(t, "", s.value(t, "21.T11998/abc", "EMAIL"))
}

func TestModifyCommand_Errors(t *testing.T) {
	s := newRecordServer(t)
	fs := credentialsFs(t, s)

	tests := map[string]struct {
		args    []string
		wantErr string
	}{
		"no values": {
			args:    []string{"-credentials", credsPath, "21.T11998/abc"},
			wantErr: "at least one -value is required",
		},
		"negative ttl": {
			args:    []string{"-credentials", credsPath, "-ttl", "-1", "-value", "URL=x", "21.T11998/abc"},
			wantErr: "ttl must be non-negative",
		},
		"missing handle": {
			args:    []string{"-credentials", credsPath, "-value", "URL=x", "21.T11998/nope"},
			wantErr: "handle not found",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ui := cli.NewMockUi()
			c := &ModifyCommand{Command: newBase(ui)}
			c.client.Fs = fs

			code := c.Run(tc.args)

			assert.Equal(t, 1, code)
			assert.Contains(t, ui.ErrorWriter.String(), tc.wantErr)
		})
	}
}

func TestDeleteCommand(t *testing.T) {
	s := newRecordServer(t)
	fs := credentialsFs(t, s)
	s.put("21.T11998/abc", []handle.Entry{
		{Index: 1, Type: "URL", Data: handle.StringData("https://example.org")},
		{Index: 2, Type: "EMAIL", Data: handle.StringData("a@example.org")},
		{Index: 3, Type: "EMAIL", Data: handle.StringData("b@example.org")},
	})

	ui := cli.NewMockUi()
	c := &DeleteCommand{Command: newBase(ui)}
	c.client.Fs = fs
	code := c.Run([]string{"-credentials", credsPath, "-type", "EMAIL", "21.T11998/abc"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())

	entries, ok := s.get("21.T11998/abc")
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, "URL", entries[0].Type)

	ui = cli.NewMockUi()
	c = &DeleteCommand{Command: newBase(ui)}
	c.client.Fs = fs
	code = c.Run([]string{"-credentials", credsPath, "21.T11998/abc"})
	require.Equal(t, 0, code, ui.ErrorWriter.String())

	_, ok = s.get("21.T11998/abc")
	assert.False(t, ok)

	ui = cli.NewMockUi()
	c = &DeleteCommand{Command: newBase(ui)}
	c.client.Fs = fs
	code = c.Run([]string{"-credentials", credsPath, "21.T11998/abc"})
	assert.Equal(t, 1, code)
	assert.Contains(t, ui.ErrorWriter.String(), "handle not found")
}
