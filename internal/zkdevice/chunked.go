// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package zkdevice

import (
	"encoding/binary"
	"fmt"

	"github.com/punch-agent/punch-agent/internal/zkproto"
	"github.com/punch-agent/punch-agent/pkg/log"
)

// GetAttendance pulls and decodes all attendance punches currently buffered
// on the device via the chunked-data flow.
func (s *Session) GetAttendance() ([]zkproto.Record, error) {
	buf, err := s.chunkedRead(zkproto.CmdGetAttendance)
	if err != nil {
		return nil, err
	}
	return zkproto.DecodeRecordBuffer(buf), nil
}

// GetUsers pulls the raw user-table buffer via the same chunked-data flow
// GetAttendance uses; the device returns user records in the same
// fixed-size layouts, so DecodeRecordBuffer can parse them too.
func (s *Session) GetUsers() ([]zkproto.Record, error) {
	buf, err := s.chunkedRead(zkproto.CmdGetUsers)
	if err != nil {
		return nil, err
	}
	return zkproto.DecodeRecordBuffer(buf), nil
}

// chunkedRead implements the PREPARE_DATA/DATA/FREE_DATA chunked-data
// flow, falling back to the small-payload ACK_OK-with-data path when the
// device doesn't need to chunk the response.
func (s *Session) chunkedRead(cmd zkproto.Command) ([]byte, error) {
	resp, err := s.command(cmd, nil)
	if err != nil {
		return nil, err
	}

	switch resp.Command {
	case zkproto.CmdAckOK:
		// Small-payload path: data came back inline. FREE_DATA is
		// intentionally NOT sent here — see SPEC_FULL.md Open Question 3,
		// preserving the source's behavior of only freeing a server-side
		// buffer that was actually allocated via PREPARE_DATA.
		return resp.Payload, nil

	case zkproto.CmdPrepareData:
		return s.readPreparedChunks(resp.Payload)

	default:
		return nil, fmt.Errorf("%w: got %s", zkproto.ErrUnexpectedCommand, resp.Command)
	}
}

func (s *Session) readPreparedChunks(preparePayload []byte) ([]byte, error) {
	if len(preparePayload) < 4 {
		return nil, fmt.Errorf("%w: PREPARE_DATA payload too short", zkproto.ErrTruncated)
	}
	totalSize := binary.LittleEndian.Uint32(preparePayload[0:4])

	buf := make([]byte, 0, totalSize)
	for uint32(len(buf)) < totalSize {
		resp, err := s.command(zkproto.CmdData, nil)
		if err != nil {
			return nil, err
		}

		switch resp.Command {
		case zkproto.CmdData:
			buf = append(buf, resp.Payload...)
		case zkproto.CmdAckOK:
			// Terminator: device signalled end of data before totalSize
			// bytes were actually delivered.
			goto done
		default:
			return nil, fmt.Errorf("%w: got %s during chunked read", zkproto.ErrUnexpectedCommand, resp.Command)
		}
	}
done:

	if _, err := s.command(zkproto.CmdFreeData, nil); err != nil {
		log.Debugf("zkdevice: FREE_DATA failed (ignored): %v", err)
	}

	return buf, nil
}
