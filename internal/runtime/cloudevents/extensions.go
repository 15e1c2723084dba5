package cloudevents

// Extension attributes carried next to a report so brokers and relays can
// route on them without decoding the payload.
const (
	ExtLevel       = "fllevel"
	ExtRelease     = "flrelease"
	ExtEnvironment = "flenvironment"
	ExtTraceID     = "fltraceid"
	ExtSpanID      = "flspanid"
	ExtEncoding    = "flencoding"
)

// Level returns the report level extension.
func Level(evt Event) string {
	return evt.GetExtensionString(ExtLevel)
}

// TraceID returns the trace id extension.
func TraceID(evt Event) string {
	return evt.GetExtensionString(ExtTraceID)
}

// SetTrace stores trace correlation ids. Empty values are skipped.
func SetTrace(evt *Event, traceID, spanID string) {
	if evt.Extensions == nil {
		evt.Extensions = make(map[string]any)
	}
	if traceID != "" {
		evt.Extensions[ExtTraceID] = traceID
	}
	if spanID != "" {
		evt.Extensions[ExtSpanID] = spanID
	}
}
