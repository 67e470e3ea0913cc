package transport

// State is the lifecycle state of a connection.
type State int

const (
	// StateUninitialized is the zero state before Connect.
	StateUninitialized State = iota

	// StateConnecting means a dial or redial is in progress.
	StateConnecting

	// StateOpen means the connection is established.
	StateOpen

	// StateClosed means the connection was deliberately torn down.
	StateClosed

	// StateErrored means the last dial or read failed; the reconnect loop
	// moves the connection back to StateConnecting on its own.
	StateErrored
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "uninitialized"
	}
}

// Transport delivers framed events over a persistent connection.
//
// Implementations must deliver inbound frames in arrival order on the
// Events channel, reconnect on their own after transient failures, and
// never invoke state observers concurrently.
type Transport interface {
	// Connect starts the connection lifecycle. It returns immediately;
	// progress is observable through OnStateChange.
	Connect()

	// Send enqueues a frame for delivery. Frames enqueued while the
	// connection is re-establishing are flushed once it reopens.
	Send(Frame) error

	// Events returns the ordered inbound frame stream. The channel is
	// closed when the transport shuts down.
	Events() <-chan Frame

	// OnStateChange registers an observer invoked on every state
	// transition, in registration order.
	OnStateChange(func(State))

	// State returns the current connection state.
	State() State

	// Close tears the connection down. It is idempotent.
	Close() error
}
