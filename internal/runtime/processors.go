package runtime

import (
	"net/url"
	"strings"

	"github.com/drblury/faultline/internal/runtime/report"
)

// Filtered replaces sensitive values.
const Filtered = "[Filtered]"

// Processor inspects or rewrites a report before it is queued. Returning nil
// drops the report.
type Processor func(r *report.Report) *report.Report

// DefaultSensitiveKeys are matched case-insensitively as substrings of
// header, query, tag and extra keys. Dashes count as underscores.
var DefaultSensitiveKeys = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"authorization",
	"cookie",
	"api_key",
	"apikey",
	"dsn",
	"sentry_auth",
}

// DefaultProcessors returns the processor chain clients use unless
// WithProcessors replaces it.
func DefaultProcessors() []Processor {
	return []Processor{SanitizeProcessor(DefaultSensitiveKeys...)}
}

// SanitizeProcessor replaces values whose key matches one of keys.
func SanitizeProcessor(keys ...string) Processor {
	normalized := make([]string, len(keys))
	for i, k := range keys {
		normalized[i] = normalizeKey(k)
	}
	sensitive := func(key string) bool {
		key = normalizeKey(key)
		for _, k := range normalized {
			if strings.Contains(key, k) {
				return true
			}
		}
		return false
	}

	return func(r *report.Report) *report.Report {
		for k := range r.Tags {
			if sensitive(k) {
				r.Tags[k] = Filtered
			}
		}
		r.Extra = sanitizeMap(r.Extra, sensitive)
		for i := range r.Breadcrumbs {
			r.Breadcrumbs[i].Data = sanitizeMap(r.Breadcrumbs[i].Data, sensitive)
		}
		if r.Request != nil {
			for k := range r.Request.Headers {
				if sensitive(k) {
					r.Request.Headers[k] = Filtered
				}
			}
			r.Request.QueryString = sanitizeQuery(r.Request.QueryString, sensitive)
		}
		return r
	}
}

func normalizeKey(k string) string {
	return strings.ReplaceAll(strings.ToLower(k), "-", "_")
}

func sanitizeMap(m map[string]any, sensitive func(string) bool) map[string]any {
	for k, v := range m {
		if sensitive(k) {
			m[k] = Filtered
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			m[k] = sanitizeMap(nested, sensitive)
		}
	}
	return m
}

func sanitizeQuery(raw string, sensitive func(string) bool) string {
	if raw == "" {
		return raw
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return Filtered
	}
	changed := false
	for k, vs := range values {
		if !sensitive(k) {
			continue
		}
		for i := range vs {
			vs[i] = Filtered
		}
		changed = true
	}
	if !changed {
		return raw
	}
	return values.Encode()
}

func runProcessors(r *report.Report, processors []Processor) *report.Report {
	for _, p := range processors {
		if r = p(r); r == nil {
			return nil
		}
	}
	return r
}
