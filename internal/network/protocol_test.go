package network

import (
	"errors"
	"math"
	"testing"
)

func TestDecodeRequest(t *testing.T) {
	valid := []struct {
		line   string
		number float64
	}{
		{`{"method":"isPrime","number":7}`, 7},
		{`{"method":"isPrime","number":-5}`, -5},
		{`{"method":"isPrime","number":7.5}`, 7.5},
		{`{"method":"isPrime","number":1e3}`, 1000},
		{`{"number":13,"method":"isPrime","extra":[1,2,3]}`, 13},
		{` {"method":"isPrime","number":2} `, 2},
	}
	for _, tc := range valid {
		req, err := decodeRequest([]byte(tc.line))
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.line, err)
			continue
		}
		if req.Method != "isPrime" || req.Number != tc.number {
			t.Errorf("%s: got %+v", tc.line, req)
		}
	}

	invalid := []string{
		``,
		`not json`,
		`garbage`,
		`{}`,
		`null`,
		`[]`,
		`{"method":"foo","number":7}`,
		`{"method":"isPrime"}`,
		`{"number":7}`,
		`{"method":"isPrime","number":"7"}`,
		`{"method":"isPrime","number":null}`,
		`{"method":7,"number":7}`,
		`{"method":"isPrime","number":true}`,
		`{"method":"isPrime","number":7}x`,
		`{"method":"isPrime","number":1e999}`,
		"{\"method\":\"isPrime\",\"number\":7,\"x\":\"\xff\"}",
	}
	for _, line := range invalid {
		_, err := decodeRequest([]byte(line))
		var perr *protocolError
		if !errors.As(err, &perr) {
			t.Errorf("%q: expected protocol violation, got %v", line, err)
			continue
		}
		if perr.Error() == "" {
			t.Errorf("%q: empty violation message", line)
		}
	}
}

func TestIsInteger(t *testing.T) {
	cases := map[float64]bool{
		7:       true,
		-5:      true,
		0:       true,
		7.5:     false,
		-0.5:    false,
		1e20:    true,
		0.1:     false,
		2.00001: false,
	}
	for n, want := range cases {
		if got := isInteger(n); got != want {
			t.Errorf("isInteger(%v) = %v, want %v", n, got, want)
		}
	}
}

func TestToInt64(t *testing.T) {
	cases := map[float64]int64{
		7:     7,
		-5:    -5,
		1e19:  math.MaxInt64,
		-1e19: math.MinInt64,
		1e15:  1_000_000_000_000_000,
	}
	for n, want := range cases {
		if got := toInt64(n); got != want {
			t.Errorf("toInt64(%v) = %d, want %d", n, got, want)
		}
	}
}
