package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/turtacn/SMARTSexplore/pkg/types/graph"
)

// Graph returns every SMARTS and the subset edges whose SP similarity lies
// in [minSP, maxSP].
func (c *Client) Graph(ctx context.Context, minSP, maxSP float64) (*graph.Graph, error) {
	var g graph.Graph
	if err := c.postJSON(ctx, "/smarts/data", graph.Query{SPSimMin: &minSP, SPSimMax: &maxSP}, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// SMARTSImage downloads the SVG of one SMARTS.
func (c *Client) SMARTSImage(ctx context.Context, id int64) ([]byte, error) {
	return c.svg(ctx, fmt.Sprintf("/smarts/smartsview/%d", id))
}

// SubsetImage downloads the SVG of one directed subset edge.
func (c *Client) SubsetImage(ctx context.Context, edgeID int64) ([]byte, error) {
	return c.svg(ctx, fmt.Sprintf("/smarts/smartssubsets/%d", edgeID))
}

func (c *Client) svg(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, request{method: http.MethodGet, path: path, accept: "image/svg+xml"})
}
