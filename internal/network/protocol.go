package network

import (
	"encoding/json"
	"fmt"
	"math"
	"primetime/internal/types"
	"unicode/utf8"
)

// machineEpsilon is the gap between 1.0 and the next float64.
const machineEpsilon = 0x1p-52

// protocolError is a request line the server refuses. Its text becomes the
// ErrorResponse and the connection is closed after it is written.
type protocolError struct {
	msg string
}

func (e *protocolError) Error() string { return e.msg }

func violation(format string, args ...interface{}) error {
	return &protocolError{msg: fmt.Sprintf(format, args...)}
}

type wireRequest struct {
	Method *string  `json:"method"`
	Number *float64 `json:"number"`
}

// decodeRequest parses and validates one request line. Unknown fields are
// ignored; a missing field or one of the wrong JSON type is a violation.
func decodeRequest(line []byte) (types.Request, error) {
	if !utf8.Valid(line) {
		return types.Request{}, violation("request line is not valid UTF-8")
	}
	var wire wireRequest
	if err := json.Unmarshal(line, &wire); err != nil {
		return types.Request{}, violation("malformed request: %v", err)
	}
	if wire.Method == nil {
		return types.Request{}, violation("missing field `method`")
	}
	if *wire.Method != types.MethodIsPrime {
		return types.Request{}, violation("only %s is supported as method", types.MethodIsPrime)
	}
	if wire.Number == nil {
		return types.Request{}, violation("missing field `number`")
	}
	return types.Request{Method: *wire.Method, Number: *wire.Number}, nil
}

// isInteger reports whether n has no fractional part, to within machine
// epsilon.
func isInteger(n float64) bool {
	return math.Abs(math.Trunc(n)-n) < machineEpsilon
}

// toInt64 truncates n, saturating at the int64 limits.
func toInt64(n float64) int64 {
	switch {
	case n >= math.MaxInt64:
		return math.MaxInt64
	case n <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(n)
	}
}

func encodeLine(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
