package kafka

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string
}

// EventType returns the event_type header, empty when absent.
func (m *IncomingMessage) EventType() string {
	return m.Headers["event_type"]
}

// Decode unmarshals the value into v, rejecting fields v does not declare. A message that
// does not decode will never decode, so the error is permanent.
func (m *IncomingMessage) Decode(v any) error {
	dec := json.NewDecoder(bytes.NewReader(m.Value))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return Permanent(fmt.Errorf("decode %s message: %w", m.Topic, err))
	}
	return nil
}

// PermanentError marks a message that must be committed and skipped rather than retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as a PermanentError. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err or anything it wraps is a PermanentError.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}
