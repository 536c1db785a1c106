// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package zkproto

import "time"

// DecodeTimestamp unpacks the device's base-2000 packed timestamp. The
// device encodes local wall-clock; callers (the record store) then treat
// the result as UTC without conversion, reproducing the naive
// local-time-as-UTC behavior of the source application. This is a known
// time-shift bug whenever the host and device timezones differ — see
// SPEC_FULL.md Open Questions. Preserved intentionally, not fixed.
func DecodeTimestamp(packed uint32) time.Time {
	t := packed
	sec := t % 60
	t /= 60
	min := t % 60
	t /= 60
	hour := t % 24
	t /= 24
	day := (t % 31) + 1
	t /= 31
	month := t % 12 // 0-based, January = 0
	year := t/12 + 2000

	return time.Date(int(year), time.Month(month+1), int(day), int(hour), int(min), int(sec), 0, time.UTC)
}

// EncodeTimestamp is the inverse of DecodeTimestamp: it packs a UTC-labeled
// time value (interpreted as if it were the device's local wall-clock)
// back into the base-2000, 31-day-month wire format.
func EncodeTimestamp(ts time.Time) uint32 {
	year := uint32(ts.Year()) - 2000
	month := uint32(ts.Month()) - 1
	day := uint32(ts.Day()) - 1
	hour := uint32(ts.Hour())
	min := uint32(ts.Minute())
	sec := uint32(ts.Second())

	t := year*12 + month
	t = t*31 + day
	t = t*24 + hour
	t = t*60 + min
	t = t*60 + sec
	return t
}
