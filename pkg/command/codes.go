// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package command

// ID is the 16-bit command identifier carried in the inner frame.
// Grounded on original_source/bdr_tse/transport.py's TransportCommand
// enum, same codes.
type ID uint16

const (
	Start             ID = 0x0000
	GetPinStates      ID = 0x0001
	InitializePins    ID = 0x0002
	AuthenticateUser  ID = 0x0003
	UnblockUser       ID = 0x0004
	Logout            ID = 0x0005
	Initialize        ID = 0x0006
	UpdateTime        ID = 0x0007
	GetSerialNumbers  ID = 0x0008
	MapERStoKey       ID = 0x0009
	StartTransaction  ID = 0x000A
	UpdateTransaction ID = 0x000B
	FinishTransaction ID = 0x000C
	ExportData        ID = 0x000D
	GetCertificates   ID = 0x000E
	ReadLogMessage    ID = 0x000F
	Erase             ID = 0x0010
	GetConfigData     ID = 0x0011
	GetStatus         ID = 0x0012
	Deactivate        ID = 0x0013
	Activate          ID = 0x0014
	Disable           ID = 0x0015
	ExportMoreData    ID = 0x0016
	GetERSMappings    ID = 0x0017
	GetKeyData        ID = 0x0018
	GetWearIndicator  ID = 0x0019
	UpdateCertificate ID = 0x001A
	DeleteUpTo        ID = 0x001B
	FactoryReset      ID = 0x002A
	FirmwareUpdate    ID = 0x0063
	Shutdown          ID = 0x00FF
)

var names = map[ID]string{
	Start:             "Start",
	GetPinStates:      "GetPinStates",
	InitializePins:    "InitializePins",
	AuthenticateUser:  "AuthenticateUser",
	UnblockUser:       "UnblockUser",
	Logout:            "Logout",
	Initialize:        "Initialize",
	UpdateTime:        "UpdateTime",
	GetSerialNumbers:  "GetSerialNumbers",
	MapERStoKey:       "MapERStoKey",
	StartTransaction:  "StartTransaction",
	UpdateTransaction: "UpdateTransaction",
	FinishTransaction: "FinishTransaction",
	ExportData:        "ExportData",
	GetCertificates:   "GetCertificates",
	ReadLogMessage:    "ReadLogMessage",
	Erase:             "Erase",
	GetConfigData:     "GetConfigData",
	GetStatus:         "GetStatus",
	Deactivate:        "Deactivate",
	Activate:          "Activate",
	Disable:           "Disable",
	ExportMoreData:    "ExportMoreData",
	GetERSMappings:    "GetERSMappings",
	GetKeyData:        "GetKeyData",
	GetWearIndicator:  "GetWearIndicator",
	UpdateCertificate: "UpdateCertificate",
	DeleteUpTo:        "DeleteUpTo",
	FactoryReset:      "FactoryReset",
	FirmwareUpdate:    "FirmwareUpdate",
	Shutdown:          "Shutdown",
}

func (c ID) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "<unknown command>"
}
