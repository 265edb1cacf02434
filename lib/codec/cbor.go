// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// Decode limits for peer input. Every frame the helper receives comes
// from a process it has not yet authenticated, so the decoder caps
// structure sizes before allocation happens. The limits are far above
// anything a legitimate message needs.
const (
	maxNestedLevels  = 16
	maxArrayElements = 131072
	maxMapPairs      = 4096
)

// encMode is the CBOR encoder configured with Core Deterministic
// Encoding (RFC 8949 §4.2): sorted map keys, smallest integer
// encoding, no indefinite-length items. Same logical data always
// produces identical bytes, which keeps signature inputs stable.
var encMode cbor.EncMode

// decMode is the CBOR decoder hardened for untrusted peers: duplicate
// map keys are rejected (no hash-flooding via repeated keys), nesting
// depth and element counts are capped (no allocation bombs), and
// indefinite-length items are forbidden to match the encoder.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		MaxNestedLevels:  maxNestedLevels,
		MaxArrayElements: maxArrayElements,
		MaxMapPairs:      maxMapPairs,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v using the hardened decode mode.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is a raw encoded CBOR value. Message payloads are carried
// as RawMessage so the envelope can be decoded before the type-specific
// payload schema is known.
type RawMessage = cbor.RawMessage
