// Package seqcodec converts terminal data frames between their wire form and
// the (sequence, payload) pair applied by a terminal session.
//
// Payloads travel as strict standard base64 so control bytes survive any
// text transport. The codec keeps no state between calls; sequence tracking
// belongs to the session.
package seqcodec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"pkt.systems/channeldeck/schema"
)

var encoding = base64.StdEncoding.Strict()

// Frame is a decoded inbound data frame.
type Frame struct {
	Sequence uint64
	Payload  []byte
	// Empty reports a frame that carried no payload; sessions treat it as a no-op.
	Empty bool
}

type wireFrame struct {
	Sequence uint64  `json:"sequence"`
	Content  *string `json:"content"`
}

// Decode parses a wire frame. A frame without a content field, with invalid
// JSON, or with content that is not valid base64 yields schema.ErrMalformedFrame.
func Decode(frame []byte) (Frame, error) {
	var wire wireFrame
	if err := json.Unmarshal(frame, &wire); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", schema.ErrMalformedFrame, err)
	}
	if wire.Content == nil {
		return Frame{}, fmt.Errorf("%w: missing content", schema.ErrMalformedFrame)
	}
	if *wire.Content == "" {
		return Frame{Sequence: wire.Sequence, Empty: true}, nil
	}
	payload, err := encoding.DecodeString(*wire.Content)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: sequence %d: %v", schema.ErrMalformedFrame, wire.Sequence, err)
	}
	if len(payload) == 0 {
		return Frame{Sequence: wire.Sequence, Empty: true}, nil
	}
	return Frame{Sequence: wire.Sequence, Payload: payload}, nil
}

// Encode returns the wire text for an outbound payload.
func Encode(payload []byte) string {
	return encoding.EncodeToString(payload)
}

// EncodeFrame builds a complete wire frame for the payload.
func EncodeFrame(sequence uint64, payload []byte) []byte {
	content := Encode(payload)
	data, _ := json.Marshal(wireFrame{Sequence: sequence, Content: &content})
	return data
}
