package sqlstore

import (
	"fmt"
	"time"

	"itemcore/internal/filter"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(filter.SQLTimeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(filter.SQLTimeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", raw, err)
	}
	return t, nil
}
