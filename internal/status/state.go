package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/wpplink/internal/bus"
)

// State is a step of a link-and-sync session.
type State string

const (
	Idle State = "IDLE"

	// Primary role.
	KeyGenerated     State = "KEY_GENERATED"
	WaitingForLink   State = "WAITING_FOR_LINK"
	GeneratingBackup State = "GENERATING_BACKUP"
	Uploading        State = "UPLOADING"
	MarkingUploaded  State = "MARKING_UPLOADED"

	// Secondary role.
	WaitingForBackup State = "WAITING_FOR_BACKUP"
	Downloading      State = "DOWNLOADING"
	Restoring        State = "RESTORING"

	Done   State = "DONE"
	Failed State = "FAILED"
)

// Role is the side of the handshake a session drives.
type Role string

const (
	Primary   Role = "primary"
	Secondary Role = "secondary"
)

// validTransitions defines allowed state transitions per role. Failed is
// reachable from every non-terminal state and added by allowed().
var validTransitions = map[Role]map[State][]State{
	Primary: {
		Idle:             {KeyGenerated},
		KeyGenerated:     {WaitingForLink},
		WaitingForLink:   {GeneratingBackup},
		GeneratingBackup: {Uploading},
		Uploading:        {MarkingUploaded},
		MarkingUploaded:  {Done},
	},
	Secondary: {
		Idle:             {WaitingForBackup},
		WaitingForBackup: {Downloading},
		Downloading:      {Restoring},
		Restoring:        {Done},
	},
}

// Terminal reports whether no further transitions are possible from s.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

func allowed(role Role, from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == Failed {
		return true
	}
	return slices.Contains(validTransitions[role][from], to)
}

// Machine tracks and enforces the state of one link session.
type Machine struct {
	mu        sync.RWMutex
	role      Role
	sessionID string
	current   State
	failure   string
	updatedAt time.Time
	bus       *bus.Bus
}

// NewMachine creates a session machine starting in Idle.
func NewMachine(role Role, sessionID string, b *bus.Bus) *Machine {
	return &Machine{
		role:      role,
		sessionID: sessionID,
		current:   Idle,
		updatedAt: time.Now(),
		bus:       b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot returns the externally visible state of the session.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Role:      m.role,
		SessionID: m.sessionID,
		State:     m.current,
		Failure:   m.failure,
		UpdatedAt: m.updatedAt,
	}
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	return m.transition(to, "")
}

// Fail moves the session to Failed, recording reason.
func (m *Machine) Fail(reason string) error {
	return m.transition(Failed, reason)
}

func (m *Machine) transition(to State, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !allowed(m.role, m.current, to) {
		return fmt.Errorf("invalid %s transition from %s to %s", m.role, m.current, to)
	}
	from := m.current
	m.current = to
	m.failure = reason
	m.updatedAt = time.Now()
	m.bus.Publish(bus.Event{
		Kind:      bus.KindLinkStateChanged,
		Timestamp: m.updatedAt,
		Payload: StatusChange{
			Role:      m.role,
			SessionID: m.sessionID,
			From:      from,
			To:        to,
			Reason:    reason,
		},
	})
	return nil
}

// StatusChange is the payload for state change events.
type StatusChange struct {
	Role      Role
	SessionID string
	From      State
	To        State
	Reason    string
}

// Snapshot is a point-in-time copy of a session's state.
type Snapshot struct {
	Role      Role
	SessionID string
	State     State
	Failure   string
	UpdatedAt time.Time
}
