// Package serialize is IcyDB's wire codec: CBOR encode/decode for row
// payloads and protocol responses (spec.md §4, §6), backed by
// ugorji/go/codec with deny-unknown-fields semantics so a stale decoder
// never silently drops a field it doesn't recognize.
package serialize

import (
	"bytes"

	"github.com/ugorji/go/codec"

	icyerrors "github.com/icydb/icydb/errors"
)

var handle = func() *codec.CborHandle {
	h := &codec.CborHandle{}
	h.ErrorIfNoField = true
	h.Canonical = true
	return h
}()

// Serialize encodes v to canonical CBOR bytes.
func Serialize(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, handle)
	if err := enc.Encode(v); err != nil {
		return nil, icyerrors.Newf(icyerrors.ClassSerialize, icyerrors.OriginSerialize, "cbor encode failed: %v", err)
	}
	return buf.Bytes(), nil
}

// Deserialize decodes CBOR bytes into out, which must be a pointer.
func Deserialize(data []byte, out any) error {
	dec := codec.NewDecoderBytes(data, handle)
	if err := dec.Decode(out); err != nil {
		return icyerrors.Newf(icyerrors.ClassSerialize, icyerrors.OriginSerialize, "cbor decode failed: %v", err)
	}
	return nil
}

// DeserializeProtocolPayload decodes data into out after checking it does
// not exceed maxBytes, the bound protocol-facing payloads must respect
// (spec.md §6: oversize payloads are rejected before any decode work).
func DeserializeProtocolPayload(data []byte, maxBytes int, out any) error {
	if len(data) > maxBytes {
		return icyerrors.Newf(icyerrors.ClassUnsupported, icyerrors.OriginSerialize,
			"protocol payload of %d bytes exceeds limit of %d bytes", len(data), maxBytes)
	}
	return Deserialize(data, out)
}
