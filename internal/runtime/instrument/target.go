package instrument

import (
	"sync/atomic"

	"github.com/drblury/faultline/internal/runtime/breadcrumbs"
)

// Built-in hook names.
const (
	HTTPHook    = "http"
	LoggingHook = "logging"
)

func init() {
	Register(HTTPHook, installHTTP)
	Register(LoggingHook, installLogging)
}

type recorderBox struct {
	rec breadcrumbs.Recorder
}

// target routes breadcrumbs from a process-wide hook to whichever client
// installed it last.
type target struct {
	current atomic.Pointer[recorderBox]
}

func (t *target) attach(rec breadcrumbs.Recorder) func() {
	box := &recorderBox{rec: rec}
	t.current.Store(box)
	return func() {
		t.current.CompareAndSwap(box, nil)
	}
}

func (t *target) RecordBreadcrumb(b breadcrumbs.Breadcrumb) {
	if box := t.current.Load(); box != nil {
		box.rec.RecordBreadcrumb(b)
	}
}
