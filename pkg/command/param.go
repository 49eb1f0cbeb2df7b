// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package command implements the typed command protocol described in
// spec section 4.3: typed parameter encoding/decoding, the command
// table, error demultiplexing, and fragmented-response reassembly.
package command

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode"

	"github.com/bdr-fiscal/tse-driver/pkg/tseerr"
)

// ParamType is the 1-byte type tag prefixing every typed parameter.
type ParamType byte

const (
	TypeByte      ParamType = 0x01
	TypeByteArray ParamType = 0x02
	TypeShort     ParamType = 0x03
	TypeString    ParamType = 0x04
	TypeLongArray ParamType = 0x05
)

func (t ParamType) String() string {
	switch t {
	case TypeByte:
		return "BYTE"
	case TypeByteArray:
		return "BYTE_ARRAY"
	case TypeShort:
		return "SHORT"
	case TypeString:
		return "STRING"
	case TypeLongArray:
		return "LONG_ARRAY"
	default:
		return fmt.Sprintf("<unknown type 0x%02x>", byte(t))
	}
}

// Param is one typed parameter, on the wire or decoded. Exactly one of
// the value fields is meaningful, chosen by Type.
type Param struct {
	Type      ParamType
	ByteVal   byte
	Bytes     []byte
	ShortVal  uint16
	StringVal string
	LongArray []uint32
}

func Byte(v byte) Param          { return Param{Type: TypeByte, ByteVal: v} }
func ByteArray(v []byte) Param    { return Param{Type: TypeByteArray, Bytes: v} }
func Short(v uint16) Param        { return Param{Type: TypeShort, ShortVal: v} }
func String(v string) Param      { return Param{Type: TypeString, StringVal: v} }
func LongArray(v []uint32) Param  { return Param{Type: TypeLongArray, LongArray: v} }

// Encode appends the wire representation of p to buf and returns the
// extended buffer, per spec section 3's typed-parameter table.
func (p Param) Encode(buf []byte) ([]byte, error) {
	switch p.Type {
	case TypeByte:
		buf = append(buf, byte(TypeByte), 0x00, 0x01, p.ByteVal)
	case TypeByteArray:
		buf = append(buf, byte(TypeByteArray))
		buf = appendUint16(buf, uint16(len(p.Bytes)))
		buf = append(buf, p.Bytes...)
	case TypeShort:
		buf = append(buf, byte(TypeShort), 0x00, 0x02)
		buf = appendUint16(buf, p.ShortVal)
	case TypeString:
		if !isASCII(p.StringVal) {
			return nil, tseerr.Framing(fmt.Sprintf("STRING parameter %q is not 7-bit ASCII", p.StringVal))
		}
		buf = append(buf, byte(TypeString))
		buf = appendUint16(buf, uint16(len(p.StringVal)))
		buf = append(buf, []byte(p.StringVal)...)
	case TypeLongArray:
		buf = append(buf, byte(TypeLongArray), 0x00, 0x02)
		buf = appendUint16(buf, uint16(len(p.LongArray)*4))
		for _, v := range p.LongArray {
			buf = appendUint32(buf, v)
		}
	default:
		return nil, tseerr.Framing(fmt.Sprintf("unknown parameter type 0x%02x", byte(p.Type)))
	}
	return buf, nil
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func appendUint16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

// EncodeParams encodes a sequence of typed parameters back to back, the
// shape carried inside an inner command frame's parameter block.
func EncodeParams(params []Param) ([]byte, error) {
	var buf []byte
	for _, p := range params {
		var err error
		buf, err = p.Encode(buf)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// DecodeParams parses a sequence of back-to-back typed parameters,
// consuming exactly len(data) bytes or returning a FramingError.
func DecodeParams(data []byte) ([]Param, error) {
	var out []Param
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		p, err := decodeOne(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func decodeOne(r *bytes.Reader) (Param, error) {
	tagByte, err := r.ReadByte()
	if err != nil {
		return Param{}, tseerr.Framing("truncated parameter: missing type tag")
	}
	tag := ParamType(tagByte)
	switch tag {
	case TypeByte:
		var fixed [2]byte
		if _, err := readFull(r, fixed[:]); err != nil {
			return Param{}, err
		}
		if fixed != [2]byte{0x00, 0x01} {
			return Param{}, tseerr.Framing(fmt.Sprintf("BYTE parameter length field was %v, want [0 1]", fixed))
		}
		v, err := r.ReadByte()
		if err != nil {
			return Param{}, tseerr.Framing("truncated BYTE parameter")
		}
		return Byte(v), nil

	case TypeByteArray:
		n, err := readUint16(r)
		if err != nil {
			return Param{}, err
		}
		var b []byte
		if n > 0 {
			b = make([]byte, n)
			if _, err := readFull(r, b); err != nil {
				return Param{}, err
			}
		}
		return ByteArray(b), nil

	case TypeShort:
		var fixed [2]byte
		if _, err := readFull(r, fixed[:]); err != nil {
			return Param{}, err
		}
		if fixed != [2]byte{0x00, 0x02} {
			return Param{}, tseerr.Framing(fmt.Sprintf("SHORT parameter length field was %v, want [0 2]", fixed))
		}
		v, err := readUint16(r)
		if err != nil {
			return Param{}, err
		}
		return Short(v), nil

	case TypeString:
		n, err := readUint16(r)
		if err != nil {
			return Param{}, err
		}
		b := make([]byte, n)
		if _, err := readFull(r, b); err != nil {
			return Param{}, err
		}
		if !isASCII(string(b)) {
			return Param{}, tseerr.Framing("STRING parameter body is not 7-bit ASCII")
		}
		return String(string(b)), nil

	case TypeLongArray:
		var fixed [2]byte
		if _, err := readFull(r, fixed[:]); err != nil {
			return Param{}, err
		}
		if fixed != [2]byte{0x00, 0x02} {
			return Param{}, tseerr.Framing(fmt.Sprintf("LONG_ARRAY parameter length field was %v, want [0 2]", fixed))
		}
		byteLen, err := readUint16(r)
		if err != nil {
			return Param{}, err
		}
		if byteLen%4 != 0 {
			return Param{}, tseerr.Framing(fmt.Sprintf("LONG_ARRAY byte count %d is not a multiple of 4", byteLen))
		}
		count := int(byteLen) / 4
		var vals []uint32
		if count > 0 {
			vals = make([]uint32, count)
		}
		for i := range vals {
			v, err := readUint32(r)
			if err != nil {
				return Param{}, err
			}
			vals[i] = v
		}
		return LongArray(vals), nil

	default:
		return Param{}, tseerr.Framing(fmt.Sprintf("unknown parameter type tag 0x%02x", byte(tag)))
	}
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	n, err := r.Read(b)
	if err != nil || n != len(b) {
		return n, tseerr.Framing("truncated parameter body")
	}
	return n, nil
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
