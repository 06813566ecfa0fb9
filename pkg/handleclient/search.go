package handleclient

import (
	"context"

	"github.com/eudat-b2safe/b2handle/pkg/handle"
	"github.com/eudat-b2safe/b2handle/pkg/request"
	"github.com/eudat-b2safe/b2handle/pkg/response"
)

// SearchQuery is a reverse lookup query: entry type -> value pattern, with
// "*" as wildcard, optionally restricted to one prefix.
type SearchQuery = request.SearchQuery

// SearchHandle finds the handles whose entries match all terms of q. It
// needs the reverse lookup servlet on the server; when that is missing or
// disabled the error is ErrReverseLookup.
func (c *Client) SearchHandle(ctx context.Context, q SearchQuery) ([]string, error) {
	const op = "SearchHandle"

	req, err := c.builder.Search(q)
	if err != nil {
		return nil, err
	}

	resp, err := c.sendAs(ctx, op, "", handle.ErrReverseLookup, req)
	if err != nil {
		return nil, err
	}

	handles, err := response.CheckReverseLookupResponse(resp.StatusCode, resp.Body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("reverse lookup done", "terms", len(q.Terms), "results", len(handles))
	return handles, nil
}
