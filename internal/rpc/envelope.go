package rpc

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates the four envelope kinds on the wire.
type MessageType string

const (
	TypeRequest      MessageType = "request"
	TypeResponse     MessageType = "response"
	TypeNotification MessageType = "notification"
	TypeEvent        MessageType = "event"
)

// ErrorObject is the error half of a response envelope. A response
// carries either a result or an error, never both.
type ErrorObject struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the wire unit exchanged between services. Top-level
// fields not listed here survive a decode/encode round trip via Extra.
type Envelope struct {
	ID     string          `json:"id,omitempty"`
	Type   MessageType     `json:"type"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorObject    `json:"error,omitempty"`

	// Extra holds unrecognized top-level fields byte-for-byte.
	Extra map[string]json.RawMessage `json:"-"`
}

var knownEnvelopeFields = map[string]bool{
	"id": true, "type": true, "method": true,
	"params": true, "result": true, "error": true,
}

// UnmarshalJSON decodes the known fields and stashes everything else
// in Extra.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	type plain Envelope
	if err := json.Unmarshal(data, (*plain)(e)); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if knownEnvelopeFields[k] {
			continue
		}
		if e.Extra == nil {
			e.Extra = make(map[string]json.RawMessage)
		}
		e.Extra[k] = v
	}
	return nil
}

// MarshalJSON re-emits the known fields plus any preserved extras.
// Known fields win on key collision.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.Extra)+6)
	for k, v := range e.Extra {
		if !knownEnvelopeFields[k] {
			out[k] = v
		}
	}

	put := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = b
		return nil
	}

	if e.ID != "" {
		if err := put("id", e.ID); err != nil {
			return nil, err
		}
	}
	if err := put("type", e.Type); err != nil {
		return nil, err
	}
	if e.Method != "" {
		if err := put("method", e.Method); err != nil {
			return nil, err
		}
	}
	if len(e.Params) > 0 {
		out["params"] = e.Params
	}
	if len(e.Result) > 0 {
		out["result"] = e.Result
	}
	if e.Error != nil {
		if err := put("error", e.Error); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// ParamsMap decodes params into a generic map. A missing params field
// yields an empty map so handlers can index without nil checks.
func (e *Envelope) ParamsMap() (map[string]any, error) {
	if len(e.Params) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(e.Params, &m); err != nil {
		return nil, Errorf(CodeInvalidParams, "params must be an object: %v", err)
	}
	return m, nil
}

// NewRequest builds a request envelope with marshaled params.
func NewRequest(id, method string, params any) (*Envelope, error) {
	raw, err := marshalOrNil(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	return &Envelope{ID: id, Type: TypeRequest, Method: method, Params: raw}, nil
}

// NewNotification builds a fire-and-forget envelope. Notifications
// carry no id and receive no response.
func NewNotification(method string, params any) (*Envelope, error) {
	raw, err := marshalOrNil(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	return &Envelope{Type: TypeNotification, Method: method, Params: raw}, nil
}

// NewEvent builds an unsolicited event envelope.
func NewEvent(method string, params any) (*Envelope, error) {
	raw, err := marshalOrNil(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	return &Envelope{Type: TypeEvent, Method: method, Params: raw}, nil
}

// NewResult builds a success response correlated to a request id.
func NewResult(id string, result any) (*Envelope, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Envelope{ID: id, Type: TypeResponse, Result: raw}, nil
}

// NewErrorResponse builds an error response correlated to a request id.
func NewErrorResponse(id string, err error) *Envelope {
	return &Envelope{
		ID:   id,
		Type: TypeResponse,
		Error: &ErrorObject{
			Code:    CodeOf(err),
			Message: MessageOf(err),
		},
	}
}

func marshalOrNil(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
