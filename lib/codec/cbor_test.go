// Copyright 2026 The WireBound Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type sample struct {
	Name  string `cbor:"1,keyasint"`
	Count int    `cbor:"2,keyasint"`
	Data  []byte `cbor:"3,keyasint,omitempty"`
}

func TestRoundTrip(t *testing.T) {
	in := sample{Name: "eth0", Count: 42, Data: []byte{0xde, 0xad}}

	encoded, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out sample
	if err := Unmarshal(encoded, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if out.Name != in.Name || out.Count != in.Count || !bytes.Equal(out.Data, in.Data) {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestMarshal_Deterministic(t *testing.T) {
	in := map[string]int{"b": 2, "a": 1, "c": 3}

	first, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same value produced different encodings")
	}
}

func TestUnmarshal_RejectsDuplicateMapKeys(t *testing.T) {
	// {1: "a", 1: "b"} — a CBOR map with a duplicated integer key.
	data := []byte{0xa2, 0x01, 0x61, 0x61, 0x01, 0x61, 0x62}

	var out sample
	if err := Unmarshal(data, &out); err == nil {
		t.Error("decoding duplicate map keys succeeded, want error")
	}
}

func TestUnmarshal_RejectsIndefiniteLength(t *testing.T) {
	// 0x9f ... 0xff — indefinite-length array of two small ints.
	data := []byte{0x9f, 0x01, 0x02, 0xff}

	var out []int
	if err := Unmarshal(data, &out); err == nil {
		t.Error("decoding indefinite-length item succeeded, want error")
	}
}

func TestUnmarshal_RejectsDeepNesting(t *testing.T) {
	// An array nested beyond maxNestedLevels: [[[[...]]]].
	depth := maxNestedLevels + 4
	data := make([]byte, 0, depth+1)
	for i := 0; i < depth; i++ {
		data = append(data, 0x81) // one-element array
	}
	data = append(data, 0x01)

	var out any
	if err := Unmarshal(data, &out); err == nil {
		t.Error("decoding over-deep nesting succeeded, want error")
	}
}
