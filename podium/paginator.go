package podium

import (
	"fmt"
	"maps"
	"net/url"
	"strconv"
	"time"
)

// Params holds query parameters for a request. Values are rendered with
// fmt-style formatting, except time.Time which uses the wire format.
type Params map[string]any

// Clone returns a shallow copy; a nil Params yields an empty one
func (p Params) Clone() Params {
	out := make(Params, len(p))
	maps.Copy(out, p)
	return out
}

// Values renders the params as url.Values
func (p Params) Values() url.Values {
	values := url.Values{}
	for key, v := range p {
		switch val := v.(type) {
		case nil:
			continue
		case []string:
			for _, s := range val {
				values.Add(key, s)
			}
		default:
			values.Set(key, paramString(val))
		}
	}
	return values
}

func paramString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return FormatWireTime(val)
	case *time.Time:
		if val == nil {
			return ""
		}
		return FormatWireTime(*val)
	case interface{ String() string }:
		return val.String()
	}
	return fmt.Sprint(v)
}

// Paginator describes which page of a collection to fetch. Podium accepts
// either page/per_page offsets or an opaque cursor; older API versions use
// different parameter names, selected with SetLegacyMode.
type Paginator struct {
	Page    int
	PerPage int
	Cursor  string

	legacy bool
}

// Parameter names for both naming schemes
const (
	ParamPage    = "page"
	ParamPerPage = "per_page"
	ParamCursor  = "cursor"

	LegacyParamPage    = "pageNumber"
	LegacyParamPerPage = "pageSize"
	LegacyParamCursor  = "start"
)

// NewPaginator creates an offset paginator
func NewPaginator(page, perPage int) *Paginator {
	return &Paginator{Page: page, PerPage: perPage}
}

// NewCursorPaginator creates a cursor paginator
func NewCursorPaginator(cursor string, perPage int) *Paginator {
	return &Paginator{Cursor: cursor, PerPage: perPage}
}

// SetLegacyMode switches between the current and legacy parameter names
func (p *Paginator) SetLegacyMode(legacy bool) {
	p.legacy = legacy
}

// Legacy reports whether legacy parameter names are emitted
func (p *Paginator) Legacy() bool {
	return p.legacy
}

// ToParams renders the paginator as query parameters. Zero-valued fields are
// omitted. The paginator itself is not modified.
func (p *Paginator) ToParams() Params {
	pageKey, perPageKey, cursorKey := ParamPage, ParamPerPage, ParamCursor
	if p.legacy {
		pageKey, perPageKey, cursorKey = LegacyParamPage, LegacyParamPerPage, LegacyParamCursor
	}

	params := Params{}
	if p.Page > 0 {
		params[pageKey] = p.Page
	}
	if p.PerPage > 0 {
		params[perPageKey] = p.PerPage
	}
	if p.Cursor != "" {
		params[cursorKey] = p.Cursor
	}
	return params
}

// Next returns a paginator for the following offset page, keeping the mode.
// Cursor paginators return nil: the next cursor comes from the response.
func (p *Paginator) Next() *Paginator {
	if p.Cursor != "" {
		return nil
	}
	next := *p
	if next.Page < 1 {
		next.Page = 1
	}
	next.Page++
	return &next
}
