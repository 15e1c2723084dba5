// Package report defines the error report payload and its wire encodings.
package report

import (
	"net/http"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/drblury/faultline/internal/runtime/breadcrumbs"
)

// Tag keys set by the client.
const (
	TagSite    = "site"
	TagTraceID = "trace_id"
	TagSpanID  = "span_id"
)

// Report is a single captured error or message.
type Report struct {
	EventID     string                   `json:"event_id"`
	Timestamp   time.Time                `json:"timestamp"`
	Level       string                   `json:"level"`
	Logger      string                   `json:"logger,omitempty"`
	Message     string                   `json:"message,omitempty"`
	Exception   *Exception               `json:"exception,omitempty"`
	Release     string                   `json:"release,omitempty"`
	Environment string                   `json:"environment,omitempty"`
	ServerName  string                   `json:"server_name,omitempty"`
	Tags        map[string]string        `json:"tags,omitempty"`
	Breadcrumbs []breadcrumbs.Breadcrumb `json:"breadcrumbs,omitempty"`
	Request     *Request                 `json:"request,omitempty"`
	Extra       map[string]any           `json:"extra,omitempty"`
}

// Exception describes a captured error.
type Exception struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Stacktrace []Frame `json:"stacktrace,omitempty"`
}

// Frame is one stack frame, innermost last.
type Frame struct {
	Function string `json:"function"`
	Module   string `json:"module,omitempty"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// Request is the sanitized view of the HTTP request being served.
type Request struct {
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	QueryString string            `json:"query_string,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RemoteAddr  string            `json:"remote_addr,omitempty"`
}

// Title is a one-line summary used by CLIs and logs.
func (r *Report) Title() string {
	if r.Exception != nil {
		return r.Exception.Type + ": " + r.Exception.Value
	}
	return r.Message
}

// SetTag sets a tag, allocating the map on first use. Empty values are ignored.
func (r *Report) SetTag(key, value string) {
	if value == "" {
		return
	}
	if r.Tags == nil {
		r.Tags = make(map[string]string)
	}
	r.Tags[key] = value
}

// NewException describes err with the current stack. skip is the number of
// callers to omit above NewException itself.
func NewException(err error, skip int) *Exception {
	return &Exception{
		Type:       errorType(err),
		Value:      err.Error(),
		Stacktrace: Stacktrace(skip + 1),
	}
}

func errorType(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return reflect.TypeOf(err).String()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}

const maxFrames = 64

// Stacktrace captures the calling goroutine's stack, outermost first.
func Stacktrace(skip int) []Frame {
	pcs := make([]uintptr, maxFrames)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	var out []Frame
	for {
		frame, more := frames.Next()
		if frame.Function != "" {
			module, function := splitFunction(frame.Function)
			out = append(out, Frame{Function: function, Module: module, File: frame.File, Line: frame.Line})
		}
		if !more {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func splitFunction(name string) (string, string) {
	slash := strings.LastIndex(name, "/")
	dot := strings.Index(name[slash+1:], ".")
	if dot < 0 {
		return "", name
	}
	dot += slash + 1
	return name[:dot], name[dot+1:]
}

// RequestFromHTTP copies the parts of r a report carries. Values are not
// sanitized here.
func RequestFromHTTP(r *http.Request) *Request {
	if r == nil {
		return nil
	}
	req := &Request{
		Method:     r.Method,
		RemoteAddr: r.RemoteAddr,
	}
	if r.URL != nil {
		u := *r.URL
		req.QueryString = u.RawQuery
		u.RawQuery = ""
		u.User = nil
		if u.Host == "" {
			u.Host = r.Host
		}
		if u.Scheme == "" {
			u.Scheme = "http"
			if r.TLS != nil {
				u.Scheme = "https"
			}
		}
		req.URL = u.String()
	}
	if len(r.Header) > 0 {
		req.Headers = make(map[string]string, len(r.Header))
		for k, v := range r.Header {
			req.Headers[k] = strings.Join(v, ", ")
		}
	}
	return req
}
