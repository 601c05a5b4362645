package overpass

import (
	"context"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"github.com/mapgrove/osmconflate/conflate"
)

// FetchReference pulls the three reference layers for the area covered by
// the import points, running the queries concurrently. The area is the
// convex hull of the points.
func FetchReference(ctx context.Context, c *Client, importPoints []orb.Point) (conflate.ReferenceData, error) {
	var ref conflate.ReferenceData

	poly := PolyFilter(ConvexHull(importPoints))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		body, err := c.Query(ctx, AddressQuery(poly))
		if err != nil {
			return err
		}
		ref.Addresses, err = ParseAddresses(body)
		return err
	})
	g.Go(func() error {
		body, err := c.Query(ctx, BuildingQuery(poly))
		if err != nil {
			return err
		}
		ref.Buildings, err = ParseBuildings(body)
		return err
	})
	g.Go(func() error {
		body, err := c.Query(ctx, StreetQuery(poly))
		if err != nil {
			return err
		}
		ref.Streets, err = ParseStreets(body)
		return err
	})
	if err := g.Wait(); err != nil {
		return conflate.ReferenceData{}, err
	}
	return ref, nil
}
