package api

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Batch runs reqs in parallel. Results keep the order of reqs. The first
// failure cancels the rest and is returned.
func (c *Client) Batch(ctx context.Context, reqs []*Request) ([]*Response, error) {
	out := make([]*Response, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			resp, err := c.Do(gctx, req)
			if err != nil {
				return err
			}
			out[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
