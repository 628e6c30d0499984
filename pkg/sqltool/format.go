package sqltool

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	dateLayout        = "2006-01-02"
	timestampLayout   = "2006-01-02 15:04:05"
	timestamptzLayout = "2006-01-02 15:04:05-07:00"

	// fractional seconds are always printed with all six digits
	timestampFracLayout   = "2006-01-02 15:04:05.000000"
	timestamptzFracLayout = "2006-01-02 15:04:05.000000-07:00"
)

func writeRecord(buf *bytes.Buffer, fields []pgconn.FieldDescription, values []any) error {
	// Later duplicates of a column name win, like a dict built row by row.
	last := make(map[string]int, len(fields))
	for i, f := range fields {
		last[f.Name] = i
	}

	buf.WriteByte('{')
	first := true
	for i, f := range fields {
		if last[f.Name] != i {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		key, err := json.Marshal(f.Name)
		if err != nil {
			return err
		}
		val, err := json.Marshal(normalize(values[i], f.DataTypeOID))
		if err != nil {
			return fmt.Errorf("column %s: %w", f.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return nil
}

// normalize turns a decoded column value into something encoding/json
// renders the way a reader expects. Types without a natural JSON form are
// stringified.
func normalize(v any, oid uint32) any {
	switch val := v.(type) {
	case nil, bool, string, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return val
	case float32:
		return normalizeFloat(float64(val))
	case float64:
		return normalizeFloat(val)
	case time.Time:
		return formatTime(val, oid)
	case []byte:
		return string(val)
	case [16]byte:
		return uuid.UUID(val).String()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item, 0)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item, 0)
		}
		return out
	case driver.Valuer:
		dv, err := val.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		return normalize(dv, oid)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(v)
	}
}

func normalizeFloat(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return f
}

func formatTime(t time.Time, oid uint32) string {
	switch oid {
	case pgtype.DateOID:
		return t.Format(dateLayout)
	case pgtype.TimestampOID:
		if t.Nanosecond() != 0 {
			return t.Format(timestampFracLayout)
		}
		return t.Format(timestampLayout)
	default:
		if t.Nanosecond() != 0 {
			return t.Format(timestamptzFracLayout)
		}
		return t.Format(timestamptzLayout)
	}
}
