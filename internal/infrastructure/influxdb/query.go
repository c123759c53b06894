package influxdb

import (
	"context"
	"fmt"

	client "github.com/influxdata/influxdb/client/v2"
	"github.com/influxdata/influxdb/models"
)

// Query runs an InfluxQL statement and returns the series of every result.
//
// precision selects epoch timestamps in the given unit (ns, u, ms, s, m, h);
// empty returns RFC3339 strings. Numeric values are decoded as json.Number.
func (c *Client) Query(ctx context.Context, command, precision string) ([]models.Row, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	resp, err := c.v1.QueryCtx(ctx, client.NewQuery(command, c.database, precision))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	if err := resp.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	var rows []models.Row
	for _, result := range resp.Results {
		rows = append(rows, result.Series...)
	}
	return rows, nil
}
