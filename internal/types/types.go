package types

// MethodIsPrime is the only method the protocol accepts.
const MethodIsPrime = "isPrime"

// LookupPath identifies how the oracle answered a query.
type LookupPath int

const (
	PathTrivial  LookupPath = iota // value <= 1
	PathIndex                      // membership index bit
	PathFallback                   // trial division beyond the index bound
)

func (p LookupPath) String() string {
	switch p {
	case PathTrivial:
		return "trivial"
	case PathIndex:
		return "index"
	case PathFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Request is a validated protocol request.
type Request struct {
	Method string
	Number float64
}

// Response answers a valid request. Method echoes the request.
type Response struct {
	Method string `json:"method"`
	Prime  bool   `json:"prime"`
}

// ErrorResponse is written in place of Response on a protocol violation,
// after which the connection is closed.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PrimalityRequest carries one query from a connection handler to a compute
// worker. Reply is single-use and must have capacity one.
type PrimalityRequest struct {
	Value int64
	Reply chan<- bool
}

// Deliver hands the answer to the waiting handler. It never blocks. A reply
// nobody will read is not an error: with capacity one the value lands in the
// buffer and is collected with the channel, and a reply that cannot be
// accepted at all is dropped with Deliver reporting false.
func (r PrimalityRequest) Deliver(prime bool) bool {
	select {
	case r.Reply <- prime:
		return true
	default:
		return false
	}
}
