package monitoring

import "time"

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	CapturePanic(v any, tags map[string]string)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any, map[string]string)       {}
func (NopMonitor) Flush(time.Duration)                       {}

var current Monitor = NopMonitor{}

// Init sets the global monitor implementation.
func Init(m Monitor) {
	if m != nil {
		current = m
	}
}

// Current returns the global monitor.
func Current() Monitor { return current }

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	if current != nil && err != nil {
		current.CaptureException(err, tags)
	}
}

// Recover reports a panic raised in the calling goroutine and re-panics.
// It must be deferred directly:
//
//	defer monitoring.Recover(map[string]string{"component": "mqtt"})
func Recover(tags map[string]string) {
	if r := recover(); r != nil {
		if current != nil {
			current.CapturePanic(r, tags)
			current.Flush(2 * time.Second)
		}
		panic(r)
	}
}

// Contain reports a panic raised in the calling goroutine and stops it there.
// Use it in long-lived callbacks where one bad input must not end the process.
// It must be deferred directly.
func Contain(tags map[string]string) {
	if r := recover(); r != nil && current != nil {
		current.CapturePanic(r, tags)
	}
}

// Flush flushes buffered events.
func Flush(d time.Duration) {
	if current != nil {
		current.Flush(d)
	}
}
