package report

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/drblury/faultline/internal/runtime/cloudevents"
	"github.com/drblury/faultline/internal/runtime/jsoncodec"
)

// Payload encodings.
const (
	EncodingJSON      = "json"
	EncodingProtoJSON = "protojson"
)

const contentTypeJSON = "application/json"

// Envelope wraps r in a CloudEvents envelope with source set to the server
// name. The payload is encoded with encoding.
func Envelope(r *Report, encoding string) (cloudevents.Event, error) {
	data, err := encodeData(r, encoding)
	if err != nil {
		return cloudevents.Event{}, err
	}
	source := r.ServerName
	if source == "" {
		source = "faultline"
	}
	evt := cloudevents.NewWithID(r.EventID, cloudevents.ReportType, source, json.RawMessage(data))
	evt.Time = r.Timestamp.UTC()
	evt.DataContentType = contentTypeJSON
	evt.Subject = r.Title()
	evt = evt.WithExtension(cloudevents.ExtLevel, r.Level).
		WithExtension(cloudevents.ExtEncoding, normalizeEncoding(encoding))
	if r.Release != "" {
		evt = evt.WithExtension(cloudevents.ExtRelease, r.Release)
	}
	if r.Environment != "" {
		evt = evt.WithExtension(cloudevents.ExtEnvironment, r.Environment)
	}
	cloudevents.SetTrace(&evt, r.Tags[TagTraceID], r.Tags[TagSpanID])
	return evt, nil
}

// Marshal encodes r as a CloudEvents JSON document.
func Marshal(r *Report, encoding string) ([]byte, error) {
	evt, err := Envelope(r, encoding)
	if err != nil {
		return nil, err
	}
	return jsoncodec.Marshal(evt)
}

// Unmarshal decodes a document produced by Marshal.
func Unmarshal(payload []byte) (*Report, cloudevents.Event, error) {
	var evt cloudevents.Event
	if err := jsoncodec.Unmarshal(payload, &evt); err != nil {
		return nil, cloudevents.Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	if err := evt.Validate(); err != nil {
		return nil, evt, fmt.Errorf("invalid envelope: %w", err)
	}
	if evt.Type != cloudevents.ReportType {
		return nil, evt, fmt.Errorf("unexpected event type %q", evt.Type)
	}
	raw, ok := evt.Data.(json.RawMessage)
	if !ok {
		return nil, evt, fmt.Errorf("envelope %s has no data", evt.ID)
	}
	r, err := decodeData(raw, evt.GetExtensionString(cloudevents.ExtEncoding))
	if err != nil {
		return nil, evt, err
	}
	return r, evt, nil
}

func normalizeEncoding(encoding string) string {
	if encoding == EncodingProtoJSON {
		return EncodingProtoJSON
	}
	return EncodingJSON
}

func encodeData(r *Report, encoding string) ([]byte, error) {
	switch normalizeEncoding(encoding) {
	case EncodingProtoJSON:
		m, err := jsoncodec.ToMap(r)
		if err != nil {
			return nil, fmt.Errorf("convert report: %w", err)
		}
		st, err := structpb.NewStruct(m)
		if err != nil {
			return nil, fmt.Errorf("convert report: %w", err)
		}
		return protojson.Marshal(st)
	default:
		return jsoncodec.Marshal(r)
	}
}

func decodeData(raw []byte, encoding string) (*Report, error) {
	if normalizeEncoding(encoding) == EncodingProtoJSON {
		var st structpb.Struct
		if err := protojson.Unmarshal(raw, &st); err != nil {
			return nil, fmt.Errorf("decode protojson report: %w", err)
		}
		canonical, err := jsoncodec.Marshal(st.AsMap())
		if err != nil {
			return nil, fmt.Errorf("decode protojson report: %w", err)
		}
		raw = canonical
	}
	var r Report
	if err := jsoncodec.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}
