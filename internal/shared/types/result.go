package types

// Status is the outcome carried by a commit or archive status delivery.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusPendingUserAction
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusPendingUserAction:
		return "PENDING_USER_ACTION"
	default:
		return "FAILURE"
	}
}

// Result is the status payload delivered to a StatusReceiver.
type Result struct {
	Status        Status `json:"status"`
	StatusMessage string `json:"status_message"`
	PackageName   string `json:"package_name,omitempty"`
	SessionID     int    `json:"session_id,omitempty"`
	// UserAction names the intent action a pending or failed request wants
	// surfaced to the user (unarchive error dialog).
	UserAction string `json:"user_action,omitempty"`
}

// OK reports a successful result.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// StatusReceiver receives asynchronous operation results.
type StatusReceiver interface {
	Deliver(Result)
}

// StatusReceiverFunc adapts a function to StatusReceiver.
type StatusReceiverFunc func(Result)

func (f StatusReceiverFunc) Deliver(r Result) { f(r) }

// ResultChan is a one-shot StatusReceiver backed by a buffered channel.
type ResultChan chan Result

// NewResultChan returns a receiver that buffers a single result.
func NewResultChan() ResultChan { return make(ResultChan, 1) }

func (c ResultChan) Deliver(r Result) {
	select {
	case c <- r:
	default:
	}
}

// Deliver sends r to rcv when rcv is non-nil.
func Deliver(rcv StatusReceiver, r Result) {
	if rcv != nil {
		rcv.Deliver(r)
	}
}
