package ksid

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNilValue is returned by Canonicalize when given nil — vindexes must
// reject null/absent values with an argument error rather than silently
// mapping them.
var ErrNilValue = errors.New("ksid: cannot canonicalize nil value")

// Canonicalize converts an arbitrary scalar into the byte sequence a hash
// kernel consumes. Signed/unsigned integers use their decimal
// representation, raw byte sequences are used verbatim, and every other
// scalar uses its canonical textual form.
func Canonicalize(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, ErrNilValue
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	case int:
		return []byte(strconv.FormatInt(int64(t), 10)), nil
	case int8:
		return []byte(strconv.FormatInt(int64(t), 10)), nil
	case int16:
		return []byte(strconv.FormatInt(int64(t), 10)), nil
	case int32:
		return []byte(strconv.FormatInt(int64(t), 10)), nil
	case int64:
		return []byte(strconv.FormatInt(t, 10)), nil
	case uint:
		return []byte(strconv.FormatUint(uint64(t), 10)), nil
	case uint8:
		return []byte(strconv.FormatUint(uint64(t), 10)), nil
	case uint16:
		return []byte(strconv.FormatUint(uint64(t), 10)), nil
	case uint32:
		return []byte(strconv.FormatUint(uint64(t), 10)), nil
	case uint64:
		return []byte(strconv.FormatUint(t, 10)), nil
	case decimal.Decimal:
		return []byte(t.String()), nil
	case time.Time:
		return []byte(t.UTC().Format(time.RFC3339Nano)), nil
	case bool:
		return []byte(strconv.FormatBool(t)), nil
	case float32:
		return []byte(strconv.FormatFloat(float64(t), 'g', -1, 32)), nil
	case float64:
		return []byte(strconv.FormatFloat(t, 'g', -1, 64)), nil
	default:
		return []byte(fmt.Sprintf("%v", t)), nil
	}
}
