// ABOUTME: Timestamp encoding shared by both dialects.
// ABOUTME: Writes fixed-width UTC text; scans time.Time, string or []byte.
package storage

import (
	"database/sql/driver"
	"fmt"
	"time"
)

const timeLayout = "2006-01-02T15:04:05.000000Z"

var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// dbTime scans a NOT NULL timestamp column.
type dbTime struct {
	time.Time
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		p, err := parseTime(v)
		t.Time = p
		return err
	case []byte:
		p, err := parseTime(string(v))
		t.Time = p
		return err
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (t dbTime) Value() (driver.Value, error) {
	return formatTime(t.Time), nil
}

// nullTime scans a nullable timestamp column.
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (n *nullTime) Scan(src any) error {
	if src == nil {
		n.Time, n.Valid = time.Time{}, false
		return nil
	}
	var t dbTime
	if err := t.Scan(src); err != nil {
		return err
	}
	n.Time, n.Valid = t.Time, true
	return nil
}

func (n nullTime) Ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// minuteRange returns the [start, end) bounds of the minute containing t.
func minuteRange(t time.Time) (string, string) {
	start := t.UTC().Truncate(time.Minute)
	return formatTime(start), formatTime(start.Add(time.Minute))
}
