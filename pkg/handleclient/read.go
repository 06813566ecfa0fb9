package handleclient

import (
	"context"

	"github.com/eudat-b2safe/b2handle/pkg/handle"
	"github.com/eudat-b2safe/b2handle/pkg/response"
)

// RetrieveHandleRecordJSON reads the complete record of h.
func (c *Client) RetrieveHandleRecordJSON(ctx context.Context, h string) (*handle.Record, error) {
	return c.retrieve(ctx, "RetrieveHandleRecord", h)
}

// RetrieveHandleRecord reads the record of h as a map from entry type to
// value. Of several entries with the same type, the first one is kept.
func (c *Client) RetrieveHandleRecord(ctx context.Context, h string) (map[string]string, error) {
	rec, err := c.retrieve(ctx, "RetrieveHandleRecord", h)
	if err != nil {
		return nil, err
	}
	return rec.ToMap(), nil
}

// GetValueFromHandle returns the value of the first entry of type key. The
// boolean is false when the record has no such entry; a missing handle is
// ErrHandleNotFound.
func (c *Client) GetValueFromHandle(ctx context.Context, h, key string) (string, bool, error) {
	rec, err := c.retrieve(ctx, "GetValueFromHandle", h)
	if err != nil {
		return "", false, err
	}
	v, ok := handle.ExtractOneValue(rec, key)
	return v, ok, nil
}

func (c *Client) retrieve(ctx context.Context, op, s string) (*handle.Record, error) {
	h, err := parseHandle(op, s)
	if err != nil {
		return nil, err
	}

	req, err := c.builder.Get(h)
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, op, s, req)
	if err != nil {
		return nil, err
	}
	return response.CheckRecordResponse(op, s, resp.StatusCode, resp.Body)
}
