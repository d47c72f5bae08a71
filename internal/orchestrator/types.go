package orchestrator

import (
	"errors"
	"time"

	"github.com/MeKo-Tech/leafcheck/internal/diagnosis"
	"github.com/MeKo-Tech/leafcheck/internal/remote"
)

var (
	// ErrNoImage is returned when Analyze is called without image data.
	ErrNoImage = errors.New("no image selected")
	// ErrBusy is returned when an analysis is already running on the session.
	ErrBusy = errors.New("an analysis is already in progress")
)

// Image is one photo submitted for analysis.
type Image struct {
	Name string
	Data []byte
}

// Size returns the image size in bytes.
func (i *Image) Size() int {
	if i == nil {
		return 0
	}
	return len(i.Data)
}

// State is the processing stage of an analysis.
type State int

const (
	Idle State = iota
	Uploading
	Probing
	RemoteCall
	LocalInference
	Complete
)

var stateNames = [...]string{"idle", "uploading", "probing", "remote_call", "local_inference", "complete"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Path records which inference path produced a diagnosis.
type Path string

const (
	PathOnline  Path = "online"
	PathOffline Path = "offline"
)

// NoticeKind identifies a user-facing notice.
type NoticeKind string

const (
	NoticeOfflineNoConnectivity NoticeKind = "offline_no_connectivity"
	NoticeSwitchingOffline      NoticeKind = "switching_offline"
	NoticeCompleteOnline        NoticeKind = "complete_online"
	NoticeCompleteOffline       NoticeKind = "complete_offline"
	NoticeDegraded              NoticeKind = "degraded_result"
)

// Notice is an advisory message emitted during an analysis.
type Notice struct {
	Kind    NoticeKind    `json:"kind"`
	Message string        `json:"message"`
	Reason  remote.Reason `json:"reason,omitempty"`
}

// Result is the outcome of one analysis.
type Result struct {
	ID             string              `json:"id"`
	Diagnosis      diagnosis.Diagnosis `json:"diagnosis"`
	Path           Path                `json:"path"`
	FallbackReason remote.Reason       `json:"fallback_reason,omitempty"`
	Notices        []Notice            `json:"notices"`
	Duration       time.Duration       `json:"-"`
}

// Observer receives state transitions and notices as they happen.
type Observer interface {
	OnState(State)
	OnNotice(Notice)
}

// NoOpObserver ignores everything.
type NoOpObserver struct{}

func (NoOpObserver) OnState(State)   {}
func (NoOpObserver) OnNotice(Notice) {}

// ObserverFuncs adapts optional functions to Observer.
type ObserverFuncs struct {
	State  func(State)
	Notice func(Notice)
}

func (f ObserverFuncs) OnState(s State) {
	if f.State != nil {
		f.State(s)
	}
}

func (f ObserverFuncs) OnNotice(n Notice) {
	if f.Notice != nil {
		f.Notice(n)
	}
}
