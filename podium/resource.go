package podium

import (
	"context"
	"maps"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
)

// MaxConcurrency bounds the number of in-flight requests started by GetMany
const MaxConcurrency = 10

// Resource is a handle on one Podium collection, e.g. "members" or
// "events". It is immutable and may be shared between goroutines.
type Resource struct {
	client *Client
	name   string
}

// Resource returns a handle for the named collection
func (c *Client) Resource(name string) *Resource {
	return &Resource{
		client: c,
		name:   strings.Trim(name, "/"),
	}
}

// Name returns the resource path segment
func (r *Resource) Name() string {
	return r.name
}

// Get fetches one entity: GET {endpoint}{resource}/{id}
func (r *Resource) Get(ctx context.Context, id string) (any, error) {
	return r.client.Request(ctx, http.MethodGet, r.name, id, nil, nil)
}

// Delete removes one entity: DELETE {endpoint}{resource}/{id}
func (r *Resource) Delete(ctx context.Context, id string) (any, error) {
	return r.client.Request(ctx, http.MethodDelete, r.name, id, nil, nil)
}

// List fetches the collection: GET {endpoint}{resource}. When paginator is
// given it is switched to the client's legacy mode and its parameters are
// layered over params; params itself is left untouched.
func (r *Resource) List(ctx context.Context, params Params, paginator *Paginator) (any, error) {
	query := params.Clone()
	if paginator != nil {
		paginator.SetLegacyMode(r.client.legacy)
		maps.Copy(query, paginator.ToParams())
	}
	return r.client.Request(ctx, http.MethodGet, r.name, "", query, nil)
}

// Post creates an entity: POST {endpoint}{resource}
func (r *Resource) Post(ctx context.Context, data any) (any, error) {
	return r.client.Request(ctx, http.MethodPost, r.name, "", nil, data)
}

// Update replaces an entity: PUT {endpoint}{resource}/{id}
func (r *Resource) Update(ctx context.Context, id string, data any) (any, error) {
	return r.client.Request(ctx, http.MethodPut, r.name, id, nil, data)
}

// GetMany fetches several entities concurrently. Each Get is an independent
// request; the first failure cancels the rest and is returned. Results are
// in the order of ids.
func (r *Resource) GetMany(ctx context.Context, ids ...string) ([]any, error) {
	results := make([]any, len(ids))
	if len(ids) == 0 {
		return results, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrency)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			data, err := r.Get(ctx, id)
			if err != nil {
				return err
			}
			results[i] = data
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
