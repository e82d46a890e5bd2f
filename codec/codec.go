// Package codec defines the process layer's serialization plug-in: an
// external collaborator the core treats as opaque. The wire format,
// compression, encryption, and checksum policy are entirely the codec's
// concern; process.Send/Recv only ever handle the returned blob.
package codec

import (
	"errors"

	"github.com/google/uuid"
)

// ErrRoundTrip is returned by a Codec implementation when Deserialize
// cannot make sense of a blob it did not itself produce.
var ErrRoundTrip = errors.New("codec: blob failed to round-trip")

// Codec serializes and deserializes message payloads exchanged between
// processes. Implementations must make Deserialize the exact inverse of
// Serialize for any blob Serialize produced.
type Codec interface {
	// Serialize copies data into an owned blob, annotated with the sender
	// and receiver pids for diagnostics. Ownership of the returned blob
	// passes to the caller.
	Serialize(data []byte, senderPid, receiverPid uint64) ([]byte, error)
	// Deserialize is Serialize's inverse: it returns the original bytes,
	// which the caller now owns.
	Deserialize(blob []byte) ([]byte, error)
}

// Identity is the trivial "copy in, copy out" codec the process layer
// falls back to when no codec is configured.
type Identity struct{}

// Serialize returns a defensive copy of data; sender/receiver pids are
// accepted for interface parity but not encoded into the blob.
func (Identity) Serialize(data []byte, _, _ uint64) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Deserialize returns a defensive copy of blob.
func (Identity) Deserialize(blob []byte) ([]byte, error) {
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

// Envelope is a diagnostic wrapper process.Send attaches to every
// serialized blob: a UUID correlating a send with its eventual receive
// across log lines, independent of whatever Codec produced the blob.
type Envelope struct {
	ID   uuid.UUID
	Blob []byte
}

// NewEnvelope stamps blob with a fresh correlation id.
func NewEnvelope(blob []byte) Envelope {
	return Envelope{ID: uuid.New(), Blob: blob}
}
