// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package zkdevice owns one TCP connection to one ZK attendance terminal
// for its whole lifetime: the connect/exit handshake, command/response
// framing built on top of internal/zkproto, and the chunked-data flow used
// to pull attendance and user records.
package zkdevice

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/punch-agent/punch-agent/internal/zkproto"
	"github.com/punch-agent/punch-agent/pkg/log"
)

// State is the session's connection lifecycle state: Idle until Connect,
// Connected after the handshake, Closed after Disconnect or any I/O error.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateClosed
)

var (
	ErrNotConnected   = errors.New("zkdevice: not connected")
	ErrConnectTimeout = errors.New("zkdevice: connect timeout")
	ErrCommandTimeout = errors.New("zkdevice: command timeout")
)

const (
	DefaultCommandTimeout = 5 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// Session owns one TCP socket to one device.
type Session struct {
	addr           string
	commandTimeout time.Duration
	connectTimeout time.Duration

	conn      net.Conn
	state     State
	sessionID uint16
	replyID   uint16
}

// New creates a session for the device at addr ("ip:port"). It does not
// connect; call Connect for that.
func New(addr string, commandTimeout, connectTimeout time.Duration) *Session {
	if commandTimeout <= 0 {
		commandTimeout = DefaultCommandTimeout
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Session{
		addr:           addr,
		commandTimeout: commandTimeout,
		connectTimeout: connectTimeout,
		state:          StateIdle,
	}
}

func (s *Session) State() State { return s.state }

// Connect opens the TCP socket and performs the CONNECT handshake,
// recording the session id the device assigns.
func (s *Session) Connect() error {
	conn, err := net.DialTimeout("tcp", s.addr, s.connectTimeout)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return fmt.Errorf("%w: %s: %v", ErrConnectTimeout, s.addr, err)
		}
		return fmt.Errorf("zkdevice: dial %s: %w", s.addr, err)
	}
	s.conn = conn
	s.sessionID = 0
	s.replyID = 0
	s.state = StateConnected

	resp, err := s.sendCommand(zkproto.CmdConnect, nil, s.connectTimeout)
	if err != nil {
		s.teardown()
		return fmt.Errorf("zkdevice: connect handshake to %s: %w", s.addr, err)
	}
	if resp.Command != zkproto.CmdAckOK {
		s.teardown()
		return fmt.Errorf("%w: connect got %s", zkproto.ErrUnexpectedCommand, resp.Command)
	}

	s.sessionID = resp.SessionID
	log.Debugf("zkdevice: connected to %s, session id %d", s.addr, s.sessionID)
	return nil
}

// Disconnect sends EXIT best-effort and closes the socket. Safe to call
// from any state, and idempotent.
func (s *Session) Disconnect() {
	if s.state == StateConnected {
		if _, err := s.sendCommand(zkproto.CmdExit, nil, s.commandTimeout); err != nil {
			log.Debugf("zkdevice: exit command to %s failed (ignored): %v", s.addr, err)
		}
	}
	s.teardown()
}

func (s *Session) teardown() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.state = StateClosed
}

// DeviceInfo holds the best-effort key=value fields parsed from
// GET_DEVICE_INFO. Individual field failures yield empty strings rather
// than propagating an error.
type DeviceInfo struct {
	SerialNumber string
	Raw          map[string]string
}

// GetDeviceInfo requests ~SerialNumber and parses key=value pairs out of
// the NUL-stripped response payload.
func (s *Session) GetDeviceInfo() (DeviceInfo, error) {
	resp, err := s.command(zkproto.CmdGetDeviceInfo, []byte("~SerialNumber\x00"))
	if err != nil {
		return DeviceInfo{}, err
	}

	info := DeviceInfo{Raw: map[string]string{}}
	parseKeyValues(resp.Payload, info.Raw)
	info.SerialNumber = info.Raw["~SerialNumber"]
	return info, nil
}

// Enable re-enables the device for normal (non-maintenance) operation.
func (s *Session) Enable() error {
	_, err := s.singleAck(zkproto.CmdEnableDevice, nil)
	return err
}

// Disable puts the device into maintenance mode so reads are consistent.
func (s *Session) Disable() error {
	_, err := s.singleAck(zkproto.CmdDisableDevice, nil)
	return err
}

// ClearAttendance wipes the device's onboard attendance log. Not called
// by the scheduler's sweep (reading punches never requires clearing
// them off the device) — it exists for an operator-triggered wipe after
// records are confirmed durable elsewhere.
func (s *Session) ClearAttendance() error {
	_, err := s.singleAck(zkproto.CmdClearAttendance, nil)
	return err
}

// singleAck sends cmd and requires the reply to be ACK_OK.
func (s *Session) singleAck(cmd zkproto.Command, payload []byte) (zkproto.Packet, error) {
	resp, err := s.command(cmd, payload)
	if err != nil {
		return zkproto.Packet{}, err
	}
	if resp.Command != zkproto.CmdAckOK {
		return resp, fmt.Errorf("%w: %s got %s", zkproto.ErrUnexpectedCommand, cmd, resp.Command)
	}
	return resp, nil
}

// command is the externally usable wrapper around sendCommand: it fails
// fast with ErrNotConnected if the session isn't live, and demotes any
// transport error to a Closed state.
func (s *Session) command(cmd zkproto.Command, payload []byte) (zkproto.Packet, error) {
	if s.state != StateConnected {
		return zkproto.Packet{}, ErrNotConnected
	}
	resp, err := s.sendCommand(cmd, payload, s.commandTimeout)
	if err != nil {
		s.teardown()
		return zkproto.Packet{}, err
	}
	return resp, nil
}

// sendCommand writes one framed request and reads back the matching
// framed response, discarding any stray frame whose reply id doesn't
// match (bounded by the same deadline as the whole exchange).
func (s *Session) sendCommand(cmd zkproto.Command, payload []byte, timeout time.Duration) (zkproto.Packet, error) {
	s.replyID++
	req := zkproto.Packet{
		Command:   cmd,
		SessionID: s.sessionID,
		ReplyID:   s.replyID,
		Payload:   payload,
	}

	deadline := time.Now().Add(timeout)
	if err := s.conn.SetDeadline(deadline); err != nil {
		return zkproto.Packet{}, fmt.Errorf("zkdevice: set deadline: %w", err)
	}

	if _, err := s.conn.Write(zkproto.Encode(req)); err != nil {
		return zkproto.Packet{}, s.classifyIOErr(err)
	}

	for {
		resp, err := s.readFrame()
		if err != nil {
			return zkproto.Packet{}, err
		}
		if resp.ReplyID != s.replyID {
			log.Debugf("zkdevice: discarding stray frame reply_id=%d want=%d", resp.ReplyID, s.replyID)
			if time.Now().After(deadline) {
				return zkproto.Packet{}, fmt.Errorf("%w: no matching reply", ErrCommandTimeout)
			}
			continue
		}
		return resp, nil
	}
}

func (s *Session) readFrame() (zkproto.Packet, error) {
	hdr := make([]byte, 8)
	if _, err := readFull(s.conn, hdr); err != nil {
		return zkproto.Packet{}, s.classifyIOErr(err)
	}
	bodyLen, err := zkproto.DecodeTCPHeader(hdr)
	if err != nil {
		return zkproto.Packet{}, err
	}

	body := make([]byte, bodyLen)
	if _, err := readFull(s.conn, body); err != nil {
		return zkproto.Packet{}, s.classifyIOErr(err)
	}

	return zkproto.DecodeCommandLayer(body)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *Session) classifyIOErr(err error) error {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrCommandTimeout, err)
	}
	return fmt.Errorf("zkdevice: io: %w", err)
}

// parseKeyValues splits a NUL/comma separated key=value payload into dst.
func parseKeyValues(payload []byte, dst map[string]string) {
	clean := trimTrailingNuls(payload)
	for _, field := range splitAny(clean, ",\x00") {
		if field == "" {
			continue
		}
		k, v, ok := cutEquals(field)
		if !ok {
			continue
		}
		dst[k] = v
	}
}
