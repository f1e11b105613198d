package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// WorkerRequestType is the closed set of frame to worker requests.
type WorkerRequestType string

const (
	WorkerUnlock                    WorkerRequestType = "unlock"
	WorkerLock                      WorkerRequestType = "lock"
	WorkerDeriveAccount             WorkerRequestType = "deriveAccount"
	WorkerSignSerializedTransaction WorkerRequestType = "signSerializedTransaction"
	WorkerGetPublicKey              WorkerRequestType = "getPublicKey"
	WorkerIsUnlocked                WorkerRequestType = "isUnlocked"
)

// WorkerEventName is the closed set of unsolicited worker events.
type WorkerEventName string

const (
	WorkerEventAutoLock WorkerEventName = "auto_lock"
)

// WorkerMessageKind discriminates messages posted by the worker.
type WorkerMessageKind string

const (
	WorkerKindResponse WorkerMessageKind = "response"
	WorkerKindEvent    WorkerMessageKind = "event"
	// WorkerKindError reports an uncaught worker level failure.
	WorkerKindError WorkerMessageKind = "error"
)

// WorkerRequest is posted by the frame to the worker.
type WorkerRequest struct {
	ID      string            `json:"id"`
	Type    WorkerRequestType `json:"type"`
	Payload json.RawMessage   `json:"payload,omitempty"`
}

// DecodePayload decodes the request payload into out.
func (r *WorkerRequest) DecodePayload(out any) error {
	if len(r.Payload) == 0 {
		return errors.Wrapf(ErrInvalidPayload, "%s payload is empty", r.Type)
	}
	if err := json.Unmarshal(r.Payload, out); err != nil {
		return errors.Wrapf(ErrInvalidPayload, "%s payload: %v", r.Type, err)
	}

	return nil
}

// WorkerMessage is posted by the worker to the frame.
type WorkerMessage struct {
	Kind    WorkerMessageKind `json:"kind"`
	ID      string            `json:"id,omitempty"`
	Success bool              `json:"success,omitempty"`
	Result  json.RawMessage   `json:"result,omitempty"`
	Error   *Error            `json:"error,omitempty"`
	Event   WorkerEventName   `json:"event,omitempty"`
	Data    json.RawMessage   `json:"data,omitempty"`
}

// NewWorkerResponse builds the response for a worker request.
func NewWorkerResponse(id string, result any, err error) *WorkerMessage {
	resp := NewResponse(id, result, err)

	return &WorkerMessage{
		Kind:    WorkerKindResponse,
		ID:      resp.ID,
		Success: resp.Success,
		Result:  resp.Result,
		Error:   resp.Error,
	}
}

// Response converts a response message into a Response.
func (m *WorkerMessage) Response() *Response {
	return &Response{ID: m.ID, Success: m.Success, Result: m.Result, Error: m.Error}
}

// WorkerEvent is an unsolicited worker event delivered to subscribers.
type WorkerEvent struct {
	Name WorkerEventName
	Data json.RawMessage
}

// UnlockPayload carries the encrypted seed envelope and the password.
type UnlockPayload struct {
	Encrypted json.RawMessage `json:"encrypted"`
	Password  string          `json:"password"`
}

// IndexPayload addresses an account by derivation index.
type IndexPayload struct {
	Index uint32 `json:"index"`
}

// SignSerializedTransactionPayload asks the worker to sign a transaction.
type SignSerializedTransactionPayload struct {
	Index                 uint32 `json:"index"`
	SerializedTransaction string `json:"serializedTransaction"`
}

// DerivedAccount is returned by deriveAccount.
type DerivedAccount struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
	Path      string `json:"path"`
}

// PublicKeyResult is returned by getPublicKey.
type PublicKeyResult struct {
	PublicKey string `json:"publicKey"`
	Address   string `json:"address"`
}

// SignedTransaction is returned by signSerializedTransaction.
type SignedTransaction struct {
	SignedTransaction string `json:"signedTransaction"`
}

// UnlockedResult is returned by isUnlocked.
type UnlockedResult struct {
	Unlocked bool `json:"unlocked"`
}
