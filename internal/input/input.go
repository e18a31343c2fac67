// Package input feeds upstream events into the dispatch pipeline.
package input

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrMissingTopic = errors.New("missing topic")

type Inputer interface {
	Name() string
	IsReady() bool
	Start(ctx context.Context) error
	Stop() error
}

type baseInput struct {
	subject *Subject
}

func (bi *baseInput) IsReady() bool {
	return bi.subject != nil
}

// eventLine is the NDJSON wire form of an event. A JSON string payload is
// taken verbatim; any other JSON value is kept as its raw encoding.
type eventLine struct {
	Topic    string          `json:"topic"`
	Payload  json.RawMessage `json:"payload"`
	Retained bool            `json:"retained"`
}

func parseEventLine(line []byte) (topic string, payload []byte, retained bool, err error) {
	var l eventLine
	if err = json.Unmarshal(line, &l); err != nil {
		return
	}
	if l.Topic == "" {
		err = ErrMissingTopic
		return
	}
	payload = l.Payload
	if string(payload) == "null" {
		payload = nil
	}
	if len(payload) > 0 && payload[0] == '"' {
		var s string
		if err = json.Unmarshal(payload, &s); err != nil {
			return
		}
		payload = []byte(s)
	}
	return l.Topic, payload, l.Retained, nil
}
