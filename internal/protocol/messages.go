package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// RequestType is the closed set of host to frame requests.
type RequestType string

const (
	RequestConnect         RequestType = "connect"
	RequestDisconnect      RequestType = "disconnect"
	RequestGetAccounts     RequestType = "getAccounts"
	RequestSelectAccount   RequestType = "selectAccount"
	RequestSignTransaction RequestType = "signTransaction"
)

// Valid reports whether t is a known request type.
func (t RequestType) Valid() bool {
	switch t {
	case RequestConnect, RequestDisconnect, RequestGetAccounts, RequestSelectAccount, RequestSignTransaction:
		return true
	default:
		return false
	}
}

// EventName is the closed set of unsolicited frame events.
type EventName string

const (
	EventConnectStart   EventName = "connect_start"
	EventConnect        EventName = "connect"
	EventConnectError   EventName = "connect_error"
	EventDisconnect     EventName = "disconnect"
	EventError          EventName = "error"
	EventLock           EventName = "lock"
	EventAccountChanged EventName = "account_changed"
)

// ReadyType marks the readiness handshake posted by the frame once it is
// listening for requests.
const ReadyType = "frame_ready"

// Request is sent by the host and answered by exactly one Response.
type Request struct {
	ID      string          `json:"id"`
	Origin  string          `json:"origin"`
	Type    RequestType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewRequest builds a request with a fresh correlation id and an encoded
// payload. A nil payload is omitted.
func NewRequest(origin string, typ RequestType, payload any) (*Request, error) {
	req := &Request{
		ID:     NewRequestID(),
		Origin: origin,
		Type:   typ,
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode %s payload", typ)
		}
		req.Payload = raw
	}

	return req, nil
}

// DecodePayload decodes the request payload into out.
func (r *Request) DecodePayload(out any) error {
	if len(r.Payload) == 0 {
		return errors.Wrapf(ErrInvalidPayload, "%s payload is empty", r.Type)
	}
	if err := json.Unmarshal(r.Payload, out); err != nil {
		return errors.Wrapf(ErrInvalidPayload, "%s payload: %v", r.Type, err)
	}

	return nil
}

// Response answers the Request with the same ID.
type Response struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResponse builds a response for id from either a result or an error.
func NewResponse(id string, result any, err error) *Response {
	if err != nil {
		return &Response{ID: id, Success: false, Error: ToWire(err)}
	}

	raw, mErr := json.Marshal(result)
	if mErr != nil {
		return &Response{ID: id, Success: false, Error: ToWire(errors.Wrap(mErr, "failed to encode result"))}
	}

	return &Response{ID: id, Success: true, Result: raw}
}

// Err returns the error carried by a failed response, nil otherwise.
func (r *Response) Err() error {
	if r.Success {
		return nil
	}
	if r.Error == nil {
		return ErrInternal
	}

	return FromWire(r.Error)
}

// DecodeResult decodes a successful response's result into out.
func (r *Response) DecodeResult(out any) error {
	if err := r.Err(); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return errors.Wrapf(ErrInvalidPayload, "response %s: %v", r.ID, err)
	}

	return nil
}

// Event is an unsolicited broadcast, not correlated to any request.
type Event struct {
	Broadcast bool            `json:"broadcast"`
	Event     EventName       `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds a broadcast event with encoded data.
func NewEvent(name EventName, data any) (*Event, error) {
	ev := &Event{Broadcast: true, Event: name}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode %s event", name)
		}
		ev.Data = raw
	}

	return ev, nil
}

// Envelope is the union of every frame message used to classify inbound
// traffic before routing it.
type Envelope struct {
	ID        string          `json:"id,omitempty"`
	Origin    string          `json:"origin,omitempty"`
	Type      string          `json:"type,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Success   bool            `json:"success,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *Error          `json:"error,omitempty"`
	Broadcast bool            `json:"broadcast,omitempty"`
	Event     EventName       `json:"event,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// DecodeEnvelope parses raw message bytes.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrapf(ErrInvalidPayload, "malformed message: %v", err)
	}

	return &env, nil
}

// IsReady reports whether the envelope is the readiness handshake.
func (e *Envelope) IsReady() bool {
	return e.Type == ReadyType && e.ID == ""
}

// IsEvent reports whether the envelope carries the broadcast marker.
func (e *Envelope) IsEvent() bool {
	return e.Broadcast && e.Event != ""
}

// IsRequest reports whether the envelope looks like a host request.
func (e *Envelope) IsRequest() bool {
	return e.ID != "" && RequestType(e.Type).Valid()
}

// Response converts the envelope into a Response.
func (e *Envelope) Response() *Response {
	return &Response{ID: e.ID, Success: e.Success, Result: e.Result, Error: e.Error}
}

// Request converts the envelope into a Request.
func (e *Envelope) Request() *Request {
	return &Request{ID: e.ID, Origin: e.Origin, Type: RequestType(e.Type), Payload: e.Payload}
}

// AsEvent converts the envelope into an Event.
func (e *Envelope) AsEvent() *Event {
	return &Event{Broadcast: e.Broadcast, Event: e.Event, Data: e.Data}
}

// ReadyMessage returns the encoded readiness handshake.
func ReadyMessage() []byte {
	return []byte(`{"type":"` + ReadyType + `"}`)
}
