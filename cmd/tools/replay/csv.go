package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"livetrade/internal/schema"
)

// readTicks parses symbol,price,timestamp rows. A header row is skipped.
// Timestamps are RFC3339 or unix seconds or milliseconds; an empty timestamp
// is left zero and stamped on arrival.
func readTicks(r io.Reader) ([]schema.Tick, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var ticks []schema.Tick
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			return ticks, nil
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "symbol") {
			continue
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("line %d: want symbol,price[,timestamp], got %d fields", line, len(record))
		}

		price, err := decimal.NewFromString(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("line %d: price: %w", line, err)
		}
		tick := schema.Tick{Symbol: strings.TrimSpace(record[0]), Price: price}
		if len(record) > 2 {
			if tick.Timestamp, err = parseTimestamp(strings.TrimSpace(record[2])); err != nil {
				return nil, fmt.Errorf("line %d: timestamp: %w", line, err)
			}
		}
		ticks = append(ticks, tick)
	}
}

func parseTimestamp(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		// 1e11 seconds is far beyond any realistic date
		if n > 1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339Nano, v)
}
