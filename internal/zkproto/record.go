// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package zkproto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrRecordDecode marks a per-record decode failure. DecodeRecordBuffer
// drops the offending record and keeps going rather than failing the
// whole chunk.
var ErrRecordDecode = errors.New("zkproto: record decode error")

const (
	NewRecordSize = 40
	OldRecordSize = 16
)

// Record is one decoded attendance punch, independent of which of the two
// wire layouts it came from.
type Record struct {
	OderID    uint16
	OderID2   uint16
	OderID3   uint16
	UserID    string
	Timestamp time.Time
	Status    byte
	Punch     byte
	UID       uint16
}

func trimNul(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

// DecodeRecordBuffer splits buf into fixed-size records — 40 bytes if the
// buffer is at least that long, 16 bytes otherwise — and decodes each one.
// Individual decode failures are dropped silently, not propagated.
func DecodeRecordBuffer(buf []byte) []Record {
	size := OldRecordSize
	if len(buf) >= NewRecordSize {
		size = NewRecordSize
	}
	if size == 0 || len(buf) < size {
		return nil
	}

	out := make([]Record, 0, len(buf)/size)
	for off := 0; off+size <= len(buf); off += size {
		chunk := buf[off : off+size]
		var rec Record
		var err error
		if size == NewRecordSize {
			rec, err = decodeNewRecord(chunk)
		} else {
			rec, err = decodeOldRecord(chunk)
		}
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// decodeNewRecord parses the 40-byte "new" attendance record layout.
func decodeNewRecord(b []byte) (Record, error) {
	if len(b) < NewRecordSize {
		return Record{}, fmt.Errorf("%w: short new-format record", ErrRecordDecode)
	}

	userID := trimNul(b[6:15])
	if userID == "" {
		return Record{}, fmt.Errorf("%w: empty userId", ErrRecordDecode)
	}

	rec := Record{
		OderID:    binary.LittleEndian.Uint16(b[0:2]),
		OderID2:   binary.LittleEndian.Uint16(b[2:4]),
		OderID3:   binary.LittleEndian.Uint16(b[4:6]),
		UserID:    userID,
		Timestamp: DecodeTimestamp(binary.LittleEndian.Uint32(b[24:28])),
		Status:    b[28],
		Punch:     b[29],
		UID:       binary.LittleEndian.Uint16(b[32:34]),
	}
	return rec, nil
}

// decodeOldRecord parses the 16-byte "old" attendance record layout. If the
// userId field is empty after NUL-stripping, it falls back to the decimal
// string of the uid field.
func decodeOldRecord(b []byte) (Record, error) {
	if len(b) < OldRecordSize {
		return Record{}, fmt.Errorf("%w: short old-format record", ErrRecordDecode)
	}

	uid := binary.LittleEndian.Uint16(b[0:2])
	userID := trimNul(b[2:6])
	if userID == "" {
		userID = strconv.Itoa(int(uid))
	}
	if userID == "" {
		return Record{}, fmt.Errorf("%w: empty userId", ErrRecordDecode)
	}

	rec := Record{
		UID:       uid,
		UserID:    userID,
		Timestamp: DecodeTimestamp(binary.LittleEndian.Uint32(b[4:8])),
		Status:    b[8],
		Punch:     b[9],
	}
	return rec, nil
}

// EncodeNewRecord is the inverse of decodeNewRecord, used by tests to
// exercise the round-trip law stated in the spec.
func EncodeNewRecord(r Record) []byte {
	b := make([]byte, NewRecordSize)
	binary.LittleEndian.PutUint16(b[0:2], r.OderID)
	binary.LittleEndian.PutUint16(b[2:4], r.OderID2)
	binary.LittleEndian.PutUint16(b[4:6], r.OderID3)
	copy(b[6:15], r.UserID)
	binary.LittleEndian.PutUint32(b[24:28], EncodeTimestamp(r.Timestamp))
	b[28] = r.Status
	b[29] = r.Punch
	binary.LittleEndian.PutUint16(b[32:34], r.UID)
	return b
}

// EncodeOldRecord is the inverse of decodeOldRecord for a userId of at most
// one byte. The userId slot (bytes 2..6) overlaps the timestamp (bytes
// 4..8): the timestamp overwrites bytes 4 and 5, so a longer userId does
// not decode back to itself.
func EncodeOldRecord(r Record) []byte {
	b := make([]byte, OldRecordSize)
	binary.LittleEndian.PutUint16(b[0:2], r.UID)
	copy(b[2:6], r.UserID)
	binary.LittleEndian.PutUint32(b[4:8], EncodeTimestamp(r.Timestamp))
	b[8] = r.Status
	b[9] = r.Punch
	return b
}
