package domain

import (
	"fmt"
	"time"
)

const (
	DefaultMaxParts       = 6
	DefaultMinPartBytes   = 2 * 1024 * 1024
	DefaultMaxPartBytes   = 32 * 1024 * 1024
	DefaultConnectTimeout = 20 * time.Second
	DefaultReadTimeout    = 120 * time.Second

	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
)

// PartPolicy bounds how a transfer is split into byte ranges
type PartPolicy struct {
	MaxParts       int
	MinPartBytes   int64
	MaxPartBytes   int64
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// DefaultPartPolicy returns the default part policy
func DefaultPartPolicy() PartPolicy {
	return PartPolicy{
		MaxParts:       DefaultMaxParts,
		MinPartBytes:   DefaultMinPartBytes,
		MaxPartBytes:   DefaultMaxPartBytes,
		ConnectTimeout: DefaultConnectTimeout,
		ReadTimeout:    DefaultReadTimeout,
	}
}

// Normalize replaces zero or negative fields with defaults
func (p PartPolicy) Normalize() PartPolicy {
	def := DefaultPartPolicy()
	if p.MaxParts <= 0 {
		p.MaxParts = def.MaxParts
	}
	if p.MinPartBytes <= 0 {
		p.MinPartBytes = def.MinPartBytes
	}
	if p.MaxPartBytes <= 0 {
		p.MaxPartBytes = def.MaxPartBytes
	}
	if p.MaxPartBytes < p.MinPartBytes {
		p.MaxPartBytes = p.MinPartBytes
	}
	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = def.ConnectTimeout
	}
	if p.ReadTimeout <= 0 {
		p.ReadTimeout = def.ReadTimeout
	}
	return p
}

// TransferRequest describes a single application-level transfer.
// It must not be mutated once the transfer has started.
type TransferRequest struct {
	ID          string
	URL         string
	Destination string
	Referer     string
	Title       string
	Headers     map[string]string // overrides on top of the header source
	Policy      PartPolicy
}

// CapabilityResult is the outcome of a byte-range probe
type CapabilityResult struct {
	SupportsRanges bool
	TotalBytes     int64 // -1 when unknown
	ContentType    string
}

// ByteRange is an inclusive byte interval of the remote resource
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the range
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// Header returns the value for the HTTP Range request header
func (r ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// PlanRanges splits [0, total) into contiguous ranges.
// The part size is total/MaxParts clamped to [MinPartBytes, MaxPartBytes];
// a total that fits in one part yields a single range.
func PlanRanges(total int64, policy PartPolicy) []ByteRange {
	if total <= 0 {
		return nil
	}
	policy = policy.Normalize()

	part := total / int64(policy.MaxParts)
	if part < policy.MinPartBytes {
		part = policy.MinPartBytes
	}
	if part > policy.MaxPartBytes {
		part = policy.MaxPartBytes
	}

	if total <= part {
		return []ByteRange{{Start: 0, End: total - 1}}
	}

	ranges := make([]ByteRange, 0, (total+part-1)/part)
	for start := int64(0); start < total; start += part {
		end := start + part - 1
		if end >= total {
			end = total - 1
		}
		ranges = append(ranges, ByteRange{Start: start, End: end})
	}
	return ranges
}

// TransferState is a stage of the transfer state machine
type TransferState string

const (
	StateIdle                 TransferState = "idle"
	StateProbing              TransferState = "probing"
	StatePlanning             TransferState = "planning"
	StateParallel             TransferState = "parallel"
	StateAggregating          TransferState = "aggregating"
	StateSingleStream         TransferState = "single_stream"
	StateSingleStreamFallback TransferState = "single_stream_fallback"
	StateCompleted            TransferState = "completed"
	StateFailed               TransferState = "failed"
)

// IsTerminal reports whether no further transitions can happen
func (s TransferState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// EventKind identifies the type of a transfer event
type EventKind string

const (
	EventStart    EventKind = "start"
	EventProgress EventKind = "progress"
	EventState    EventKind = "state"
	EventComplete EventKind = "complete"
	EventError    EventKind = "error"
)

// Event is a single observation emitted by a running transfer
type Event struct {
	Kind        EventKind
	TransferID  string
	Done        int64
	Total       int64
	State       TransferState
	Path        string
	ContentType string
	Err         error
}

// IsTerminal reports whether the event ends the stream
func (e Event) IsTerminal() bool {
	return e.Kind == EventComplete || e.Kind == EventError
}

// TransferListener receives transfer callbacks.
// OnStart fires at most once; exactly one of OnComplete and OnError fires.
type TransferListener interface {
	OnStart(total int64)
	OnProgress(done, total int64)
	OnComplete(path string)
	OnError(err error)
}

// ListenerFuncs adapts plain functions to TransferListener. Nil fields are ignored.
type ListenerFuncs struct {
	Start    func(total int64)
	Progress func(done, total int64)
	Complete func(path string)
	Error    func(err error)
}

func (l ListenerFuncs) OnStart(total int64) {
	if l.Start != nil {
		l.Start(total)
	}
}

func (l ListenerFuncs) OnProgress(done, total int64) {
	if l.Progress != nil {
		l.Progress(done, total)
	}
}

func (l ListenerFuncs) OnComplete(path string) {
	if l.Complete != nil {
		l.Complete(path)
	}
}

func (l ListenerFuncs) OnError(err error) {
	if l.Error != nil {
		l.Error(err)
	}
}

// Dispatch delivers an event to a listener. State events have no listener callback.
func Dispatch(listener TransferListener, e Event) {
	if listener == nil {
		return
	}
	switch e.Kind {
	case EventStart:
		listener.OnStart(e.Total)
	case EventProgress:
		listener.OnProgress(e.Done, e.Total)
	case EventComplete:
		listener.OnComplete(e.Path)
	case EventError:
		listener.OnError(e.Err)
	}
}

// RouteDecision records which path the router chose for a request
type RouteDecision string

const (
	RouteHostQueue RouteDecision = "host_queue"
	RouteDirect    RouteDecision = "direct"
	RouteTranscode RouteDecision = "transcode"
)
