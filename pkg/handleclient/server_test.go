package handleclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eudat-b2safe/b2handle/pkg/handle"
	"github.com/eudat-b2safe/b2handle/pkg/transport"
)

const (
	testUsername = "300:21.T11998/USER01"
	testPassword = "secret"
)

// recordedRequest is what fakeServer saw of one request.
type recordedRequest struct {
	Method        string
	Path          string
	Query         url.Values
	Body          []byte
	Authorization string
}

// fakeServer is an in-memory handle server with the REST semantics the
// client relies on, plus a reverse lookup servlet.
type fakeServer struct {
	*httptest.Server

	mu       sync.Mutex
	records  map[string][]handle.Entry
	requests []recordedRequest

	// Basic credentials required for writes; empty disables the check.
	username, password string

	// reverseLookup serves the search servlet when true.
	reverseLookup bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	s := &fakeServer{
		records:       make(map[string][]handle.Entry),
		username:      testUsername,
		password:      testPassword,
		reverseLookup: true,
	}
	s.put("21.T11998/USER01", []handle.Entry{
		{Index: 100, Type: handle.TypeHSAdmin, Data: handle.AdminData(handle.AdminValue{Handle: "0.NA/21.T11998", Index: 200, Permissions: "011111110011"})},
		{Index: 300, Type: "HS_SECKEY", Data: handle.StringData(testPassword)},
	})
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *fakeServer) put(h string, entries []handle.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[h] = entries
}

func (s *fakeServer) get(h string) ([]handle.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[h]
	return e, ok
}

func (s *fakeServer) recorded() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordedRequest(nil), s.requests...)
}

func (s *fakeServer) lastRequest() recordedRequest {
	r := s.recorded()
	return r[len(r)-1]
}

func (s *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, recordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Query:         r.URL.Query(),
		Body:          body,
		Authorization: r.Header.Get("Authorization"),
	})

	switch {
	case strings.HasPrefix(r.URL.Path, "/api/handles/"):
		s.handleREST(w, r, strings.TrimPrefix(r.URL.Path, "/api/handles/"), body)
	case strings.HasPrefix(r.URL.Path, "/hrls/handles/") && s.reverseLookup:
		s.handleSearch(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, "<html><body>Not Found</body></html>")
	}
}

func (s *fakeServer) handleREST(w http.ResponseWriter, r *http.Request, h string, body []byte) {
	if r.Method != http.MethodGet && s.username != "" && !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"responseCode": handle.ResponseAuthenticationFailed})
		return
	}

	entries, exists := s.records[h]
	indices := queryIndices(r.URL.Query())

	switch r.Method {
	case http.MethodGet:
		if !exists {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"responseCode": handle.ResponseHandleNotFound, "handle": h})
			return
		}
		writeRecord(w, h, filterIndices(entries, indices))

	case http.MethodPut:
		rec, err := handle.Decode(body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"responseCode": handle.ResponseInvalidValue})
			return
		}
		if len(indices) > 0 {
			if !exists {
				writeJSON(w, http.StatusNotFound, map[string]interface{}{"responseCode": handle.ResponseHandleNotFound, "handle": h})
				return
			}
			s.records[h] = mergeEntries(entries, rec.Values)
			writeJSON(w, http.StatusOK, map[string]interface{}{"responseCode": handle.ResponseSuccess, "handle": h})
			return
		}
		if exists && r.URL.Query().Get("overwrite") != "true" {
			writeJSON(w, http.StatusConflict, map[string]interface{}{"responseCode": handle.ResponseHandleAlreadyExists, "handle": h})
			return
		}
		s.records[h] = rec.Values
		status := http.StatusCreated
		if exists {
			status = http.StatusOK
		}
		writeJSON(w, status, map[string]interface{}{"responseCode": handle.ResponseSuccess, "handle": h})

	case http.MethodDelete:
		if !exists {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"responseCode": handle.ResponseHandleNotFound, "handle": h})
			return
		}
		if len(indices) > 0 {
			s.records[h] = removeIndices(entries, indices)
		} else {
			delete(s.records, h)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"responseCode": handle.ResponseSuccess, "handle": h})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *fakeServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimPrefix(r.URL.Path, "/hrls/handles/")
	q := r.URL.Query()

	var result []string
	for h, entries := range s.records {
		if prefix != "" && !strings.HasPrefix(h, prefix+"/") {
			continue
		}
		if matchesAll(entries, q) {
			result = append(result, h)
		}
	}
	sort.Strings(result)
	if result == nil {
		result = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"handles": result})
}

func (s *fakeServer) authorized(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}
	user, pass, _ := strings.Cut(string(raw), ":")
	user, _ = url.PathUnescape(user)
	return user == s.username && pass == s.password
}

func matchesAll(entries []handle.Entry, q url.Values) bool {
	for key, patterns := range q {
		if key == "limit" || key == "page" {
			continue
		}
		found := false
		for _, e := range entries {
			if e.Type != key {
				continue
			}
			if wildcard(patterns[0]).MatchString(e.Data.Value) {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func wildcard(pattern string) *regexp.Regexp {
	return regexp.MustCompile("^" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*") + "$")
}

func queryIndices(q url.Values) []int {
	var indices []int
	for _, v := range q["index"] {
		i, err := strconv.Atoi(v)
		if err == nil {
			indices = append(indices, i)
		}
	}
	return indices
}

func filterIndices(entries []handle.Entry, indices []int) []handle.Entry {
	if len(indices) == 0 {
		return entries
	}
	var out []handle.Entry
	for _, e := range entries {
		for _, i := range indices {
			if e.Index == i {
				out = append(out, e)
			}
		}
	}
	return out
}

func mergeEntries(entries, updates []handle.Entry) []handle.Entry {
	out := append([]handle.Entry(nil), entries...)
	for _, u := range updates {
		replaced := false
		for i := range out {
			if out[i].Index == u.Index {
				out[i] = u
				replaced = true
			}
		}
		if !replaced {
			out = append(out, u)
		}
	}
	return out
}

func removeIndices(entries []handle.Entry, indices []int) []handle.Entry {
	var out []handle.Entry
	for _, e := range entries {
		keep := true
		for _, i := range indices {
			if e.Index == i {
				keep = false
			}
		}
		if keep {
			out = append(out, e)
		}
	}
	return out
}

func writeRecord(w http.ResponseWriter, h string, entries []handle.Entry) {
	body, err := handle.Encode(&handle.Record{ResponseCode: handle.ResponseSuccess, Handle: h, Values: entries})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// newTestClient returns a Basic-auth client against s.
func newTestClient(t *testing.T, s *fakeServer, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(hclog.NewNullLogger())}, opts...)
	c, err := NewWithUsernameAndPassword(context.Background(), s.URL, testUsername, testPassword, opts...)
	require.NoError(t, err)
	return c
}

// MockTransport mocks the transport.Transport interface.
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transport.Response), args.Error(1)
}
