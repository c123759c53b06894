package influxdb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DeleteSeries drops every point of measurement whose tags match exactly.
//
// On 1.x this issues DROP SERIES; on 2.x it calls the delete API over the
// whole retention range of the bucket.
func (c *Client) DeleteSeries(ctx context.Context, measurement string, tags map[string]string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if c.v2 != nil {
		predicate := deletePredicate(measurement, tags)
		err := c.v2.DeleteAPI().DeleteWithName(ctx, c.cfg.Org, c.cfg.Bucket, time.Unix(0, 0).UTC(), time.Now().UTC(), predicate)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
		}
		return nil
	}

	if _, err := c.Query(ctx, dropSeriesStatement(measurement, tags), ""); err != nil {
		return fmt.Errorf("%w: %w", ErrDeleteFailed, err)
	}
	return nil
}

// dropSeriesStatement builds an InfluxQL DROP SERIES with tag conditions in key order.
func dropSeriesStatement(measurement string, tags map[string]string) string {
	var b strings.Builder
	b.WriteString("DROP SERIES FROM ")
	b.WriteString(quoteIdent(measurement))

	keys := sortedKeys(tags)
	for i, k := range keys {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(quoteIdent(k))
		b.WriteString(" = ")
		b.WriteString(quoteLiteral(tags[k]))
	}
	return b.String()
}

// deletePredicate builds a 2.x delete predicate with tag conditions in key order.
func deletePredicate(measurement string, tags map[string]string) string {
	parts := []string{fmt.Sprintf("_measurement=%s", quotePredicate(measurement))}
	for _, k := range sortedKeys(tags) {
		parts = append(parts, fmt.Sprintf("%s=%s", k, quotePredicate(tags[k])))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// quoteIdent double-quotes an InfluxQL identifier.
func quoteIdent(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// quoteLiteral single-quotes an InfluxQL string literal.
func quoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `'` + strings.ReplaceAll(s, `'`, `\'`) + `'`
}

func quotePredicate(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
