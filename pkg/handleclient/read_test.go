package handleclient

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eudat-b2safe/b2handle/pkg/handle"
	"github.com/eudat-b2safe/b2handle/pkg/transport"
)

func seedRecord(s *fakeServer) {
	s.put("21.T11998/abc", []handle.Entry{
		{Index: 1, Type: handle.TypeURL, Data: handle.StringData("https://example.org/data/1")},
		{Index: 2, Type: handle.TypeChecksum, Data: handle.StringData("md5:1234")},
		{Index: 3, Type: "test1", Data: handle.StringData("val1")},
		{Index: 4, Type: "test1", Data: handle.StringData("val2")},
		{Index: 100, Type: handle.TypeHSAdmin, Data: handle.AdminData(handle.AdminValue{Handle: "0.NA/21.T11998", Index: 200, Permissions: "011111110011"})},
	})
}

func TestRetrieveHandleRecordJSON(t *testing.T) {
	s := newFakeServer(t)
	seedRecord(s)
	c, err := New(WithHandleServerURL(s.URL))
	require.NoError(t, err)

	rec, err := c.RetrieveHandleRecordJSON(context.Background(), "21.T11998/abc")
	require.NoError(t, err)
	assert.Equal(t, "21.T11998/abc", rec.Handle)
	assert.Equal(t, handle.ResponseSuccess, rec.ResponseCode)
	require.Len(t, rec.Values, 5)
	assert.Equal(t, "0.NA/21.T11998", rec.Values[4].Data.Admin.Handle)

	// Read access sends no credentials.
	assert.Empty(t, s.lastRequest().Authorization)
}

func TestRetrieveHandleRecordJSON_NotFound(t *testing.T) {
	s := newFakeServer(t)
	c, err := New(WithHandleServerURL(s.URL))
	require.NoError(t, err)

	_, err = c.RetrieveHandleRecordJSON(context.Background(), "21.T11998/missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, handle.ErrHandleNotFound)
}

func TestRetrieveHandleRecordJSON_Syntax(t *testing.T) {
	mt := new(MockTransport)
	c, err := New(WithTransport(mt))
	require.NoError(t, err)

	tests := []string{"", "abc", "21.T11998/", "/abc", "21.T11998/a/b"}
	for _, h := range tests {
		_, err := c.RetrieveHandleRecordJSON(context.Background(), h)
		require.Error(t, err, h)
		assert.ErrorIs(t, err, handle.ErrHandleSyntax, h)
	}
	mt.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestRetrieveHandleRecordJSON_Broken(t *testing.T) {
	mt := new(MockTransport)
	mt.On("Send", mock.Anything, mock.Anything).Return(&transport.Response{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"responseCode":1,"handle":"21.T11998/abc"}`),
	}, nil)
	c, err := New(WithTransport(mt))
	require.NoError(t, err)

	_, err = c.RetrieveHandleRecordJSON(context.Background(), "21.T11998/abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, handle.ErrBrokenHandleRecord)
}

func TestRetrieveHandleRecord(t *testing.T) {
	s := newFakeServer(t)
	seedRecord(s)
	c, err := New(WithHandleServerURL(s.URL))
	require.NoError(t, err)

	m, err := c.RetrieveHandleRecord(context.Background(), "21.T11998/abc")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/data/1", m[handle.TypeURL])
	assert.Equal(t, "val1", m["test1"])
	assert.Equal(t, "0.NA/21.T11998:200 011111110011", m[handle.TypeHSAdmin])
}

func TestGetValueFromHandle(t *testing.T) {
	s := newFakeServer(t)
	seedRecord(s)
	c, err := New(WithHandleServerURL(s.URL))
	require.NoError(t, err)

	tests := []struct {
		name      string
		handle    string
		key       string
		wantValue string
		wantFound bool
		wantErr   error
	}{
		{name: "present", handle: "21.T11998/abc", key: "URL", wantValue: "https://example.org/data/1", wantFound: true},
		{name: "first of several", handle: "21.T11998/abc", key: "test1", wantValue: "val1", wantFound: true},
		{name: "absent key", handle: "21.T11998/abc", key: "test100"},
		{name: "case sensitive", handle: "21.T11998/abc", key: "url"},
		{name: "absent handle", handle: "21.T11998/missing", key: "URL", wantErr: handle.ErrHandleNotFound},
		{name: "bad handle", handle: "abc", key: "URL", wantErr: handle.ErrHandleSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, found, err := c.GetValueFromHandle(context.Background(), tt.handle, tt.key)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.wantValue, v)
		})
	}
}

func TestRetrieve_EscapedHandle(t *testing.T) {
	s := newFakeServer(t)
	s.put("21.T11998/a b?c", []handle.Entry{{Index: 1, Type: handle.TypeURL, Data: handle.StringData("x")}})
	c, err := New(WithHandleServerURL(s.URL))
	require.NoError(t, err)

	v, found, err := c.GetValueFromHandle(context.Background(), "21.T11998/a b?c", "URL")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "x", v)
}
