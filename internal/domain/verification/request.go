package verification

import (
	"time"

	"github.com/GriffinCanCode/pkgmgr/internal/shared/types"
)

// Decision is a verifier's answer.
type Decision int

const (
	Allow Decision = iota + 1
	Reject
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "ALLOW"
	case Reject:
		return "REJECT"
	default:
		return "PENDING"
	}
}

// State is the lifecycle state of a verification request.
type State int

const (
	StatePending State = iota
	StateAllowed
	StateRejected
	// StateTimedOutAllow is reached when the window elapses under the
	// allow-by-default policy or an extension asked to allow.
	StateTimedOutAllow
	// StateTimedOutReject is the timeout outcome under a reject policy.
	StateTimedOutReject
	// StateAborted ends a request whose commit was cancelled.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateAllowed:
		return "ALLOWED"
	case StateRejected:
		return "REJECTED"
	case StateTimedOutAllow:
		return "TIMED_OUT_ALLOW"
	case StateTimedOutReject:
		return "TIMED_OUT_REJECT"
	case StateAborted:
		return "ABORTED"
	default:
		return "PENDING"
	}
}

// Terminal reports whether s is final.
func (s State) Terminal() bool { return s != StatePending }

// allowed reports whether the install may proceed.
func (s State) allowed() bool {
	return s == StateAllowed || s == StateTimedOutAllow
}

// participant is one verifier of a request.
type participant struct {
	pkg      string
	required bool
	response Decision
}

// request is one pending verification. Guarded by the coordinator lock.
type request struct {
	id          int
	sessionID   int
	packageName string
	user        int
	loader      types.DataLoaderType
	rootHash    string
	verifiers   []*participant

	state        State
	created      time.Time
	deadline     time.Time
	timeoutAllow bool
	extended     bool
	timer        *time.Timer
	done         chan struct{}
}

func (r *request) participant(pkg string) *participant {
	for _, p := range r.verifiers {
		if p.pkg == pkg {
			return p
		}
	}
	return nil
}

// aggregate computes the decision from the responses so far. A required
// rejection is final. With required verifiers present, sufficient ones are
// advisory. With none, the first sufficient allow decides, and only a
// unanimous sufficient rejection rejects.
func (r *request) aggregate() State {
	var required, sufficient []*participant
	for _, p := range r.verifiers {
		if p.required {
			required = append(required, p)
		} else {
			sufficient = append(sufficient, p)
		}
	}

	if len(required) > 0 {
		allAllowed := true
		for _, p := range required {
			switch p.response {
			case Reject:
				return StateRejected
			case Allow:
			default:
				allAllowed = false
			}
		}
		if allAllowed {
			return StateAllowed
		}
		return StatePending
	}

	rejected := 0
	for _, p := range sufficient {
		switch p.response {
		case Allow:
			return StateAllowed
		case Reject:
			rejected++
		}
	}
	if len(sufficient) > 0 && rejected == len(sufficient) {
		return StateRejected
	}
	return StatePending
}

// Info is a point-in-time view of a request.
type Info struct {
	ID             int                  `json:"id"`
	SessionID      int                  `json:"session_id"`
	PackageName    string               `json:"package_name"`
	DataLoaderType types.DataLoaderType `json:"data_loader_type"`
	RootHash       string               `json:"root_hash,omitempty"`
	State          string               `json:"state"`
	Deadline       time.Time            `json:"deadline"`
	Required       map[string]string    `json:"required"`
	Sufficient     map[string]string    `json:"sufficient"`
}

func (r *request) info() Info {
	in := Info{
		ID:             r.id,
		SessionID:      r.sessionID,
		PackageName:    r.packageName,
		DataLoaderType: r.loader,
		RootHash:       r.rootHash,
		State:          r.state.String(),
		Deadline:       r.deadline,
		Required:       make(map[string]string),
		Sufficient:     make(map[string]string),
	}
	for _, p := range r.verifiers {
		if p.required {
			in.Required[p.pkg] = p.response.String()
		} else {
			in.Sufficient[p.pkg] = p.response.String()
		}
	}
	return in
}
