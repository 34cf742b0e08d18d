package eventbus

import "time"

// Kind discriminates StepEvent variants.
type Kind string

const (
	StepStarted   Kind = "step_started"
	StepCompleted Kind = "step_completed"
	StepFailed    Kind = "step_failed"
)

// Terminal reports whether k closes a step.
func (k Kind) Terminal() bool { return k == StepCompleted || k == StepFailed }

// StepEvent is one observable transition of a platform-channel execution.
//
// The JSON shape is the wire contract of the stream endpoint. Variant fields
// are omitted when they do not apply: DurationMs is set on terminal events,
// ErrorCode and Retryable only on StepFailed.
type StepEvent struct {
	Type       Kind   `json:"type"`
	Platform   string `json:"platform"`
	Method     string `json:"method"`
	StepID     string `json:"stepId"`
	RunID      string `json:"runId"`
	Message    string `json:"message,omitempty"`
	DurationMs *int64 `json:"durationMs,omitempty"`
	ErrorCode  string `json:"errorCode,omitempty"`
	Retryable  *bool  `json:"retryable,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// Step identifies the execution an event belongs to.
type Step struct {
	Platform string
	Method   string
	StepID   string
	RunID    string
}

func (s Step) event(k Kind, now time.Time) StepEvent {
	return StepEvent{
		Type:      k,
		Platform:  s.Platform,
		Method:    s.Method,
		StepID:    s.StepID,
		RunID:     s.RunID,
		Timestamp: now.UnixMilli(),
	}
}

// Started builds a StepStarted event.
func Started(s Step, msg string) StepEvent {
	e := s.event(StepStarted, time.Now())
	e.Message = msg
	return e
}

// Completed builds a StepCompleted event.
func Completed(s Step, msg string, took time.Duration) StepEvent {
	e := s.event(StepCompleted, time.Now())
	ms := took.Milliseconds()
	e.Message = msg
	e.DurationMs = &ms
	return e
}

// Failed builds a StepFailed event.
func Failed(s Step, errMsg, code string, retryable bool, took time.Duration) StepEvent {
	e := s.event(StepFailed, time.Now())
	ms := took.Milliseconds()
	e.Message = errMsg
	e.ErrorCode = code
	e.Retryable = &retryable
	e.DurationMs = &ms
	return e
}

// Emitter is the write side of a session bus.
type Emitter interface {
	Emit(e StepEvent)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(e StepEvent)

func (f EmitterFunc) Emit(e StepEvent) { f(e) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(StepEvent) {})
