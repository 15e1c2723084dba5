package instrument

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/drblury/faultline/internal/runtime/breadcrumbs"
)

var (
	httpTarget target
	httpOnce   sync.Once
)

var httpNow = time.Now

func installHTTP(rec breadcrumbs.Recorder) (func(), error) {
	httpOnce.Do(func() {
		http.DefaultTransport = NewRoundTripper(http.DefaultTransport, &httpTarget)
	})
	return httpTarget.attach(rec), nil
}

// RoundTripper records a breadcrumb for every outbound request.
type RoundTripper struct {
	next http.RoundTripper
	rec  breadcrumbs.Recorder
}

// NewRoundTripper wraps next. A nil next uses http.DefaultTransport.
func NewRoundTripper(next http.RoundTripper, rec breadcrumbs.Recorder) *RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RoundTripper{next: next, rec: rec}
}

func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := httpNow()
	resp, err := rt.next.RoundTrip(req)

	data := map[string]any{
		"method":      req.Method,
		"url":         cleanURL(req.URL),
		"duration_ms": httpNow().Sub(start).Milliseconds(),
	}
	level := breadcrumbs.LevelInfo
	if err != nil {
		data["error"] = err.Error()
		level = breadcrumbs.LevelError
	} else {
		data["status_code"] = resp.StatusCode
		if resp.StatusCode >= http.StatusInternalServerError {
			level = breadcrumbs.LevelError
		} else if resp.StatusCode >= http.StatusBadRequest {
			level = breadcrumbs.LevelWarning
		}
	}
	rt.rec.RecordBreadcrumb(breadcrumbs.Breadcrumb{
		Type:     breadcrumbs.TypeHTTP,
		Category: HTTPHook,
		Level:    level,
		Data:     data,
	})
	return resp, err
}

// cleanURL drops credentials and the query string.
func cleanURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := *u
	clean.User = nil
	clean.RawQuery = ""
	clean.ForceQuery = false
	clean.Fragment = ""
	return clean.String()
}
