package handleclient

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/eudat-b2safe/b2handle/pkg/handle"
	"github.com/eudat-b2safe/b2handle/pkg/request"
	"github.com/eudat-b2safe/b2handle/pkg/response"
)

// Admin index of the default HS_ADMIN owner "0.NA/<prefix>".
const defaultAdminOwnerIndex = 200

// CreateOptions configures CreateHandle.
type CreateOptions struct {
	// Overwrite replaces an existing handle instead of failing with
	// ErrHandleAlreadyExists.
	Overwrite bool
}

// RegisterOptions configures RegisterHandle.
type RegisterOptions struct {
	Overwrite bool

	// Checksum is stored as CHECKSUM entry when set.
	Checksum string

	// ExtraValues are stored as string entries, type -> value.
	ExtraValues map[string]string
}

// ModifyOptions configures ModifyHandleValues.
type ModifyOptions struct {
	// AddIfNotExist adds entries for types the record does not have yet.
	// Without it, such types fail with ErrIllegalOperation.
	AddIfNotExist bool

	// TTL is set on every written entry when non-nil.
	TTL *int
}

// CreateHandle creates h with the given entries and returns the record as
// written. An HS_ADMIN entry is added when entries contain none, at the
// configured admin index or the next free index after it.
func (c *Client) CreateHandle(ctx context.Context, h string, entries []handle.Entry, opts CreateOptions) (*handle.Record, error) {
	const op = "CreateHandle"
	hh, err := parseHandle(op, h)
	if err != nil {
		return nil, err
	}
	if err := c.requireWriteAccess(op, h); err != nil {
		return nil, err
	}

	values := append([]handle.Entry(nil), entries...)
	if rec := (&handle.Record{Values: values}); len(handle.IndicesForKey(rec, handle.TypeHSAdmin)) == 0 {
		admin, err := c.adminEntry(op, hh)
		if err != nil {
			return nil, err
		}
		if handle.IndexExists(rec, admin.Index) {
			admin.Index = handle.FreeIndex(rec, admin.Index)
			c.logger.Warn("HS_ADMIN index is taken by another entry, using the next free one",
				"handle", h, "index", admin.Index)
		}
		values = append(values, admin)
	}

	req, err := c.builder.Put(hh, values, request.PutOptions{Overwrite: opts.Overwrite})
	if err != nil {
		return nil, invalidEntries(op, h, err)
	}
	resp, err := c.send(ctx, op, h, req)
	if err != nil {
		return nil, err
	}
	code, err := response.CheckAckResponse(op, h, resp.StatusCode, resp.Body)
	if err != nil {
		return nil, err
	}

	c.logger.Info("created handle", "handle", h, "entries", len(values), "overwrite", opts.Overwrite)
	return &handle.Record{Handle: hh.String(), Values: values, ResponseCode: code}, nil
}

// RegisterHandle creates h pointing at location (URL entry at index 1).
func (c *Client) RegisterHandle(ctx context.Context, h, location string, opts RegisterOptions) (string, error) {
	const op = "RegisterHandle"
	if location == "" {
		return "", handle.NewError(op, h, handle.ErrIllegalOperation, "a location is required")
	}

	entries := []handle.Entry{
		{Index: 1, Type: handle.TypeURL, Data: handle.StringData(location)},
	}
	if opts.Checksum != "" {
		entries = append(entries, handle.Entry{Index: 2, Type: handle.TypeChecksum, Data: handle.StringData(opts.Checksum)})
	}

	keys := make([]string, 0, len(opts.ExtraValues))
	for k := range opts.ExtraValues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == handle.TypeHSAdmin {
			return "", handle.NewError(op, h, handle.ErrIllegalOperation, "HS_ADMIN cannot be given as extra value")
		}
		rec := &handle.Record{Values: entries}
		entries = append(entries, handle.Entry{
			Index: handle.FreeIndex(rec, 2, c.cfg.HSAdminIndex),
			Type:  k,
			Data:  handle.StringData(opts.ExtraValues[k]),
		})
	}

	if _, err := c.CreateHandle(ctx, h, entries, CreateOptions{Overwrite: opts.Overwrite}); err != nil {
		return "", err
	}
	return h, nil
}

// GenerateAndRegisterHandle registers a new handle under prefix with a
// random UUID suffix and returns it.
func (c *Client) GenerateAndRegisterHandle(ctx context.Context, prefix, location string, opts RegisterOptions) (string, error) {
	opts.Overwrite = false
	return c.RegisterHandle(ctx, prefix+"/"+uuid.NewString(), location, opts)
}

// ModifyHandleValue sets the value of the entry of type key, adding the
// entry if the record has none.
func (c *Client) ModifyHandleValue(ctx context.Context, h, key, value string) error {
	return c.ModifyHandleValues(ctx, h, map[string]string{key: value}, ModifyOptions{AddIfNotExist: true})
}

// ModifyHandleValues sets several values at once, type -> value. The record
// is read first to find the indices of the entries to change; only those
// entries are written. Of several entries of one type, the first is
// changed. An HS_ADMIN value has the form "index:prefix/suffix" and is only
// accepted when modifying HS_ADMIN is enabled.
func (c *Client) ModifyHandleValues(ctx context.Context, h string, values map[string]string, opts ModifyOptions) error {
	const op = "ModifyHandleValues"
	hh, err := parseHandle(op, h)
	if err != nil {
		return err
	}
	if err := c.requireWriteAccess(op, h); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}
	if _, ok := values[handle.TypeHSAdmin]; ok && !c.cfg.ModifyHSAdmin {
		return handle.NewError(op, h, handle.ErrIllegalOperation, "modifying HS_ADMIN is not enabled")
	}

	rec, err := c.retrieve(ctx, op, h)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	working := &handle.Record{Values: append([]handle.Entry(nil), rec.Values...)}
	var (
		touched []handle.Entry
		indices []int
	)
	for _, key := range keys {
		var (
			e        handle.Entry
			existing *handle.Entry
		)
		if found := handle.IndicesForKey(rec, key); len(found) > 0 {
			existing = entryAt(rec, found[0])
			if len(found) > 1 {
				c.logger.Warn("record has several entries of this type, changing the first",
					"handle", h, "type", key, "indices", found)
			}
		}

		data, err := c.modifiedData(op, h, key, values[key], existing)
		if err != nil {
			return err
		}

		switch {
		case existing != nil:
			e = *existing
			e.Data = data
			e.Timestamp = nil
		case opts.AddIfNotExist:
			e = handle.Entry{Index: c.freeIndex(working, key), Type: key, Data: data}
			working.Values = append(working.Values, e)
		default:
			return handle.NewError(op, h, handle.ErrIllegalOperation,
				"record has no entry of type %q", key)
		}
		if opts.TTL != nil {
			ttl := *opts.TTL
			e.TTL = &ttl
		}
		touched = append(touched, e)
		indices = append(indices, e.Index)
	}

	req, err := c.builder.Put(hh, touched, request.PutOptions{Indices: indices})
	if err != nil {
		return invalidEntries(op, h, err)
	}
	resp, err := c.send(ctx, op, h, req)
	if err != nil {
		return err
	}
	if _, err := response.CheckAckResponse(op, h, resp.StatusCode, resp.Body); err != nil {
		return err
	}

	c.logger.Info("modified handle", "handle", h, "types", keys, "indices", indices)
	return nil
}

// DeleteHandle deletes h with all its entries.
func (c *Client) DeleteHandle(ctx context.Context, h string) error {
	const op = "DeleteHandle"
	hh, err := parseHandle(op, h)
	if err != nil {
		return err
	}
	if err := c.requireWriteAccess(op, h); err != nil {
		return err
	}

	req, err := c.builder.Delete(hh)
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, op, h, req)
	if err != nil {
		return err
	}
	if _, err := response.CheckAckResponse(op, h, resp.StatusCode, resp.Body); err != nil {
		return err
	}

	c.logger.Info("deleted handle", "handle", h)
	return nil
}

// DeleteHandleValue deletes all entries of the given types. Types the record
// does not have are ignored; if none of them is present no request is sent.
func (c *Client) DeleteHandleValue(ctx context.Context, h string, keys ...string) error {
	const op = "DeleteHandleValue"
	hh, err := parseHandle(op, h)
	if err != nil {
		return err
	}
	if err := c.requireWriteAccess(op, h); err != nil {
		return err
	}
	for _, k := range keys {
		if k == handle.TypeHSAdmin && !c.cfg.ModifyHSAdmin {
			return handle.NewError(op, h, handle.ErrIllegalOperation, "deleting HS_ADMIN is not enabled")
		}
	}
	if len(keys) == 0 {
		return nil
	}

	rec, err := c.retrieve(ctx, op, h)
	if err != nil {
		return err
	}

	var indices []int
	for _, k := range keys {
		indices = append(indices, handle.IndicesForKey(rec, k)...)
	}
	if len(indices) == 0 {
		c.logger.Debug("no entries to delete", "handle", h, "types", keys)
		return nil
	}
	sort.Ints(indices)

	req, err := c.builder.Delete(hh, indices...)
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, op, h, req)
	if err != nil {
		return err
	}
	if _, err := response.CheckAckResponse(op, h, resp.StatusCode, resp.Body); err != nil {
		return err
	}

	c.logger.Info("deleted handle values", "handle", h, "types", keys, "indices", indices)
	return nil
}

// adminEntry builds the HS_ADMIN entry for a new handle. The owner is the
// configured handle owner, or "200:0.NA/<prefix>".
func (c *Client) adminEntry(op string, h handle.Handle) (handle.Entry, error) {
	admin := handle.AdminValue{
		Handle:      "0.NA/" + h.Prefix(),
		Index:       defaultAdminOwnerIndex,
		Permissions: c.cfg.HSAdminPermissions,
	}

	if owner := c.cfg.HSAdminHandleOwner; owner != "" {
		if ih, err := handle.ParseIndexed(owner); err == nil {
			admin.Handle, admin.Index = ih.Handle.String(), ih.Index
		} else if oh, perr := handle.Parse(owner); perr == nil {
			admin.Handle = oh.String()
		} else {
			return handle.Entry{}, &handle.Error{
				Op:     op,
				Handle: h.String(),
				Err:    handle.ErrHandleSyntax,
				Msg:    fmt.Sprintf("invalid HS_ADMIN handle owner %q", owner),
				Cause:  perr,
			}
		}
	}

	return handle.Entry{
		Index: c.cfg.HSAdminIndex,
		Type:  handle.TypeHSAdmin,
		Data:  handle.AdminData(admin),
	}, nil
}

func (c *Client) modifiedData(op, h, key, value string, existing *handle.Entry) (handle.Data, error) {
	if key != handle.TypeHSAdmin {
		return handle.StringData(value), nil
	}

	ih, err := handle.ParseIndexed(value)
	if err != nil {
		return handle.Data{}, &handle.Error{
			Op:     op,
			Handle: h,
			Err:    handle.ErrHandleSyntax,
			Msg:    "HS_ADMIN value must have the form \"index:prefix/suffix\"",
			Cause:  err,
		}
	}
	permissions := c.cfg.HSAdminPermissions
	if existing != nil && existing.Data.Admin != nil {
		permissions = existing.Data.Admin.Permissions
	}
	return handle.AdminData(handle.AdminValue{
		Handle:      ih.Handle.String(),
		Index:       ih.Index,
		Permissions: permissions,
	}), nil
}

// freeIndex picks the index of a new entry: URL entries start at 1,
// HS_ADMIN at the configured admin index, everything else at 2 skipping
// the admin index.
func (c *Client) freeIndex(rec *handle.Record, key string) int {
	switch key {
	case handle.TypeURL:
		return handle.FreeIndex(rec, 1, c.cfg.HSAdminIndex)
	case handle.TypeHSAdmin:
		return handle.FreeIndex(rec, c.cfg.HSAdminIndex)
	default:
		return handle.FreeIndex(rec, 2, c.cfg.HSAdminIndex)
	}
}

func entryAt(rec *handle.Record, index int) *handle.Entry {
	for i := range rec.Values {
		if rec.Values[i].Index == index {
			return &rec.Values[i]
		}
	}
	return nil
}

// invalidEntries reports entries rejected before sending.
func invalidEntries(op, h string, err error) error {
	kind := handle.ErrInvalidEntries
	if errors.Is(err, handle.ErrEncoding) {
		kind = handle.ErrEncoding
	}
	return &handle.Error{Op: op, Handle: h, Err: kind, Msg: "entries rejected before sending", Cause: err}
}
