// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package zkproto implements the ZK (ESSL/ZKTeco) binary wire protocol:
// packet framing, the one's-complement checksum, and the device's packed
// attendance-record and timestamp formats. It is a pure codec over byte
// buffers; nothing here touches a socket.
package zkproto

// Command is a ZK protocol command or reply code.
type Command uint16

const (
	CmdConnect       Command = 1000
	CmdExit          Command = 1001
	CmdEnableDevice  Command = 1002
	CmdDisableDevice Command = 1003
	CmdGetAttendance Command = 13
	CmdGetUsers      Command = 9
	CmdGetDeviceInfo Command = 11
	CmdPrepareData   Command = 1500
	CmdData          Command = 1501
	CmdFreeData      Command = 1502
	CmdAckOK         Command = 2000
	CmdAckError      Command = 2001
	CmdAckData       Command = 2002

	// CmdClearAttendance is not in the spec's wire-constant table (only
	// GET_ATTENDANCE's transport is exercised by the scheduler) but is
	// needed to implement the clear_attendance() session operation;
	// value matches the real ZK protocol's CLEAR_ATTENDANCE command.
	CmdClearAttendance Command = 1013
)

func (c Command) String() string {
	switch c {
	case CmdConnect:
		return "CONNECT"
	case CmdExit:
		return "EXIT"
	case CmdEnableDevice:
		return "ENABLE_DEVICE"
	case CmdDisableDevice:
		return "DISABLE_DEVICE"
	case CmdGetAttendance:
		return "GET_ATTENDANCE"
	case CmdGetUsers:
		return "GET_USERS"
	case CmdGetDeviceInfo:
		return "GET_DEVICE_INFO"
	case CmdPrepareData:
		return "PREPARE_DATA"
	case CmdData:
		return "DATA"
	case CmdFreeData:
		return "FREE_DATA"
	case CmdAckOK:
		return "ACK_OK"
	case CmdAckError:
		return "ACK_ERROR"
	case CmdAckData:
		return "ACK_DATA"
	case CmdClearAttendance:
		return "CLEAR_ATTENDANCE"
	default:
		return "UNKNOWN"
	}
}

const (
	tcpMagic1 uint16 = 0x5050
	tcpMagic2 uint16 = 0x8282
)
