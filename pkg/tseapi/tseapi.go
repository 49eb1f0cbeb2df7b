// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tseapi packages the command transport's raw send(id, params)
// surface into one Go method per TSE operation, the thin layer spec
// section 6 leaves for callers to build on top of the core.
package tseapi

import (
	"encoding/binary"
	"fmt"

	"github.com/bdr-fiscal/tse-driver/pkg/command"
	"github.com/bdr-fiscal/tse-driver/pkg/tseerr"
)

// sender is the command transport's public surface. Kept as an
// interface so tests can substitute a fake without a real MSC/block
// stack underneath.
type sender interface {
	Send(cmd command.ID, params []command.Param) (*command.Result, error)
}

// Session is the operation façade over a command transport.
type Session struct {
	t sender
}

// New wraps t, typically a *command.Transport, in the operation façade.
func New(t sender) *Session {
	return &Session{t: t}
}

// UserId names the two principal identities the TSE recognizes.
type UserId string

const (
	UserAdmin     UserId = "Admin"
	UserTimeAdmin UserId = "TimeAdmin"
)

// AuthenticationResult is the outcome of AuthenticateUser/UnblockUser.
type AuthenticationResult uint16

const (
	AuthSuccess          AuthenticationResult = 0
	AuthFailed           AuthenticationResult = 1
	AuthPinBlocked       AuthenticationResult = 2
	AuthUnknownUserId    AuthenticationResult = 3
	AuthUnspecifiedError AuthenticationResult = 4
)

func (r AuthenticationResult) String() string {
	switch r {
	case AuthSuccess:
		return "success"
	case AuthFailed:
		return "failed"
	case AuthPinBlocked:
		return "pin blocked"
	case AuthUnknownUserId:
		return "unknown user id"
	case AuthUnspecifiedError:
		return "unspecified error"
	default:
		return fmt.Sprintf("<unknown authentication result %d>", uint16(r))
	}
}

// StartInfo is the response to Start: the TSE's firmware version string
// and a raw serial-like byte array.
type StartInfo struct {
	Version string
	Serial  []byte
}

// Start is the first command sent after the suspend handshake (spec
// section 4.3's command table entry 0x0000); it carries no parameters.
func (s *Session) Start() (StartInfo, error) {
	res, err := s.t.Send(command.Start, nil)
	if err != nil {
		return StartInfo{}, err
	}
	if len(res.Params) < 2 {
		return StartInfo{}, tseerr.Framing("Start response carried fewer than 2 parameters")
	}
	if res.Params[0].Type != command.TypeString || res.Params[1].Type != command.TypeByteArray {
		return StartInfo{}, tseerr.Framing("Start response parameters were not [STRING, BYTE_ARRAY]")
	}
	return StartInfo{Version: res.Params[0].StringVal, Serial: res.Params[1].Bytes}, nil
}

// PinStates reports whether each of the four PINs/PUKs (Admin PUK,
// Admin PIN, TimeAdmin PUK, TimeAdmin PIN, in that order) is set.
func (s *Session) PinStates() ([4]bool, error) {
	var out [4]bool
	res, err := s.t.Send(command.GetPinStates, nil)
	if err != nil {
		return out, err
	}
	if len(res.Params) < 1 || res.Params[0].Type != command.TypeByteArray {
		return out, tseerr.Framing("GetPinStates response did not carry a BYTE_ARRAY")
	}
	states := res.Params[0].Bytes
	if len(states) < 4 {
		return out, tseerr.Framing("GetPinStates BYTE_ARRAY shorter than 4 bytes")
	}
	for i := range out {
		out[i] = states[i] != 0
	}
	return out, nil
}

// InitializePins provisions the two PUK/PIN pairs. Both users must be
// provisioned together (spec section 4.3's InitializePins entry).
func (s *Session) InitializePins(adminPuk, adminPin, timeAdminPuk, timeAdminPin []byte) error {
	_, err := s.t.Send(command.InitializePins, []command.Param{
		command.ByteArray(adminPuk),
		command.ByteArray(adminPin),
		command.ByteArray(timeAdminPuk),
		command.ByteArray(timeAdminPin),
	})
	return err
}

// AuthenticationOutcome pairs an AuthenticateUser/UnblockUser result
// with the PIN/PUK retries remaining.
type AuthenticationOutcome struct {
	Result           AuthenticationResult
	RemainingRetries uint16
}

// AuthenticateUser logs user in with pin.
func (s *Session) AuthenticateUser(user UserId, pin []byte) (AuthenticationOutcome, error) {
	res, err := s.t.Send(command.AuthenticateUser, []command.Param{
		command.String(string(user)),
		command.ByteArray(pin),
	})
	if err != nil {
		return AuthenticationOutcome{}, err
	}
	return decodeAuthenticationOutcome(res)
}

// UnblockUser clears a blocked PIN using the matching PUK and sets
// newPin as the replacement.
func (s *Session) UnblockUser(user UserId, puk, newPin []byte) (AuthenticationResult, error) {
	res, err := s.t.Send(command.UnblockUser, []command.Param{
		command.String(string(user)),
		command.ByteArray(puk),
		command.ByteArray(newPin),
	})
	if err != nil {
		return 0, err
	}
	if len(res.Params) < 1 || res.Params[0].Type != command.TypeShort {
		return 0, tseerr.Framing("UnblockUser response did not carry a SHORT result code")
	}
	return AuthenticationResult(res.Params[0].ShortVal), nil
}

func decodeAuthenticationOutcome(res *command.Result) (AuthenticationOutcome, error) {
	if len(res.Params) < 2 {
		return AuthenticationOutcome{}, tseerr.Framing("authentication response carried fewer than 2 parameters")
	}
	if res.Params[0].Type != command.TypeShort || res.Params[1].Type != command.TypeShort {
		return AuthenticationOutcome{}, tseerr.Framing("authentication response parameters were not [SHORT, SHORT]")
	}
	return AuthenticationOutcome{
		Result:           AuthenticationResult(res.Params[0].ShortVal),
		RemainingRetries: res.Params[1].ShortVal,
	}, nil
}

// Logout ends the current user's authenticated session without
// tearing down the MSC transport itself.
func (s *Session) Logout() error {
	_, err := s.t.Send(command.Logout, nil)
	return err
}

// Initialize readies the TSE's internal state machine after pins are
// provisioned and before the first transaction.
func (s *Session) Initialize() error {
	_, err := s.t.Send(command.Initialize, nil)
	return err
}

// UpdateTime pushes wall-clock UNIX seconds to the device, encoded as
// an 8-byte big-endian BYTE_ARRAY (spec section 6's Clock collaborator).
func (s *Session) UpdateTime(unixSeconds uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], unixSeconds)
	_, err := s.t.Send(command.UpdateTime, []command.Param{command.ByteArray(buf[:])})
	return err
}

// GetSerialNumbers returns the device's own serial and its embedded
// secure element's serial as raw byte arrays.
func (s *Session) GetSerialNumbers() (tseSerial, secureElementSerial []byte, err error) {
	res, err := s.t.Send(command.GetSerialNumbers, nil)
	if err != nil {
		return nil, nil, err
	}
	if len(res.Params) < 2 || res.Params[0].Type != command.TypeByteArray || res.Params[1].Type != command.TypeByteArray {
		return nil, nil, tseerr.Framing("GetSerialNumbers response parameters were not [BYTE_ARRAY, BYTE_ARRAY]")
	}
	return res.Params[0].Bytes, res.Params[1].Bytes, nil
}

// MapERStoKey associates an External Receipt Storage identifier with a
// signing key slot.
func (s *Session) MapERStoKey(ersId []byte, keyId uint16) error {
	_, err := s.t.Send(command.MapERStoKey, []command.Param{
		command.ByteArray(ersId),
		command.Short(keyId),
	})
	return err
}

// StartTransaction begins a fiscal transaction and returns its number.
func (s *Session) StartTransaction(clientId string, processData []byte, processType string) (uint32, error) {
	res, err := s.t.Send(command.StartTransaction, []command.Param{
		command.String(clientId),
		command.ByteArray(processData),
		command.String(processType),
	})
	if err != nil {
		return 0, err
	}
	if len(res.Params) < 1 || res.Params[0].Type != command.TypeLongArray || len(res.Params[0].LongArray) < 1 {
		return 0, tseerr.Framing("StartTransaction response did not carry a transaction number")
	}
	return res.Params[0].LongArray[0], nil
}

// UpdateTransaction attaches more process data to an open transaction.
func (s *Session) UpdateTransaction(transactionNumber uint32, clientId string, processData []byte) error {
	_, err := s.t.Send(command.UpdateTransaction, []command.Param{
		command.LongArray([]uint32{transactionNumber}),
		command.String(clientId),
		command.ByteArray(processData),
	})
	return err
}

// FinishTransaction closes an open transaction and signs the final
// process data.
func (s *Session) FinishTransaction(transactionNumber uint32, clientId string, processData []byte, processType string) error {
	_, err := s.t.Send(command.FinishTransaction, []command.Param{
		command.LongArray([]uint32{transactionNumber}),
		command.String(clientId),
		command.ByteArray(processData),
		command.String(processType),
	})
	return err
}

// ExportData requests the raw export variant of the inner response
// (spec section 3): log data reassembled across C5 continuation reads.
func (s *Session) ExportData(clientId string) ([]byte, error) {
	res, err := s.t.Send(command.ExportData, []command.Param{command.String(clientId)})
	if err != nil {
		return nil, err
	}
	if !res.IsRaw {
		return nil, tseerr.Framing("ExportData response was not the raw export variant")
	}
	return res.Raw, nil
}

// DeleteUpTo deletes exported log data up to and including
// transactionNumber.
func (s *Session) DeleteUpTo(transactionNumber uint32) error {
	_, err := s.t.Send(command.DeleteUpTo, []command.Param{command.LongArray([]uint32{transactionNumber})})
	return err
}

// Shutdown cleanly powers the secure element down prior to suspend-on.
func (s *Session) Shutdown() error {
	_, err := s.t.Send(command.Shutdown, nil)
	return err
}

// UpdateCertificate replaces the signing certificate chain.
func (s *Session) UpdateCertificate(certificate []byte) error {
	_, err := s.t.Send(command.UpdateCertificate, []command.Param{command.ByteArray(certificate)})
	return err
}

// factoryResetMagic1/2/3 are the three undocumented payloads pulled
// from a decompiled vendor tool. Reproduced bit-exactly; do not
// attempt to infer intent (spec section 9).
var (
	factoryResetMagic1 = []byte{0xA0, 0x00, 0x00, 0x01, 0x51, 0x53, 0x50, 0x41}
	factoryResetMagic2 = []byte{0x00}
	factoryResetMagic3 = []byte{0x00}
)

// FactoryReset issues the three-call factory reset sequence. It is
// irreversible and wipes all fiscal state.
func (s *Session) FactoryReset() error {
	for _, magic := range [][]byte{factoryResetMagic1, factoryResetMagic2, factoryResetMagic3} {
		if _, err := s.t.Send(command.FactoryReset, []command.Param{command.ByteArray(magic)}); err != nil {
			return err
		}
	}
	return nil
}

// FirmwareUpdate passes a firmware image chunk through unmodified; the
// caller is responsible for chunking and sequencing per the device's
// firmware-update protocol (spec section 3 identifies this command but
// does not further constrain its payload shape).
func (s *Session) FirmwareUpdate(chunk []byte) error {
	_, err := s.t.Send(command.FirmwareUpdate, []command.Param{command.ByteArray(chunk)})
	return err
}
