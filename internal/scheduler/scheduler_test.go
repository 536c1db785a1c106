// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scheduler

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punch-agent/punch-agent/internal/store"
	"github.com/punch-agent/punch-agent/internal/zkproto"
	"github.com/punch-agent/punch-agent/pkg/events"
)

// fakeDevice is a minimal ZK-protocol server, mirroring the harness in
// internal/zkdevice's tests, used here to exercise the scheduler's
// end-to-end sweep without a real terminal.
type fakeDevice struct {
	t  *testing.T
	ln net.Listener
}

func startFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return &fakeDevice{t: t, ln: ln}
}

func (f *fakeDevice) addr() string { return f.ln.Addr().String() }
func (f *fakeDevice) port() int    { return f.ln.Addr().(*net.TCPAddr).Port }
func (f *fakeDevice) ip() string   { return f.ln.Addr().(*net.TCPAddr).IP.String() }

func readFull(conn net.Conn, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return err
		}
		total += n
	}
	return nil
}

func (f *fakeDevice) serveOneAttendanceSweep(t *testing.T, userIDs ...string) {
	t.Helper()
	conn, err := f.ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	recv := func() zkproto.Packet {
		hdr := make([]byte, 8)
		require.NoError(t, readFull(conn, hdr))
		bodyLen, err := zkproto.DecodeTCPHeader(hdr)
		require.NoError(t, err)
		body := make([]byte, bodyLen)
		require.NoError(t, readFull(conn, body))
		p, err := zkproto.DecodeCommandLayer(body)
		require.NoError(t, err)
		return p
	}
	send := func(req zkproto.Packet, cmd zkproto.Command, payload []byte) {
		resp := zkproto.Packet{Command: cmd, SessionID: 0x1, ReplyID: req.ReplyID, Payload: payload}
		_, err := conn.Write(zkproto.Encode(resp))
		require.NoError(t, err)
	}

	req := recv()
	require.Equal(t, zkproto.CmdConnect, req.Command)
	send(req, zkproto.CmdAckOK, nil)

	req = recv()
	require.Equal(t, zkproto.CmdDisableDevice, req.Command)
	send(req, zkproto.CmdAckOK, nil)

	req = recv()
	require.Equal(t, zkproto.CmdGetAttendance, req.Command)
	var payload []byte
	for i, uid := range userIDs {
		r := zkproto.Record{UserID: uid, Status: 0, Timestamp: zkproto.DecodeTimestamp(uint32(1000 + i))}
		payload = append(payload, zkproto.EncodeNewRecord(r)...)
	}
	send(req, zkproto.CmdAckOK, payload)

	req = recv()
	require.Equal(t, zkproto.CmdEnableDevice, req.Command)
	send(req, zkproto.CmdAckOK, nil)

	req = recv()
	require.Equal(t, zkproto.CmdExit, req.Command)
	send(req, zkproto.CmdAckOK, nil)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "scheduler.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSyncOnePersistsPunches(t *testing.T) {
	fd := startFakeDevice(t)
	defer fd.ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fd.serveOneAttendanceSweep(t, "101", "102")
	}()

	st := newTestStore(t)
	devID, err := st.AddDevice(store.Device{Name: "dev", IP: fd.ip(), Port: fd.port(), Active: true})
	require.NoError(t, err)

	bus := events.New()
	sched, err := New(st, bus, time.Minute)
	require.NoError(t, err)
	sched.commandTimeout = time.Second
	sched.connectTimeout = time.Second

	result, err := sched.SyncOne(devID)
	require.NoError(t, err)
	<-done

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.RecordsAdded)

	count, err := st.CountPunches(store.PunchFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	logs, err := st.ListSyncLogs(&devID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "success", logs[0].Status)
}

func TestSyncOneRecordsErrorOnUnreachableDevice(t *testing.T) {
	st := newTestStore(t)
	devID, err := st.AddDevice(store.Device{Name: "unreachable", IP: "127.0.0.1", Port: 1, Active: true})
	require.NoError(t, err)

	bus := events.New()
	sched, err := New(st, bus, time.Minute)
	require.NoError(t, err)
	sched.connectTimeout = 200 * time.Millisecond

	result, err := sched.SyncOne(devID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)

	logs, err := st.ListSyncLogs(&devID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "error", logs[0].Status)
}

func TestSyncAllSingleFlightSkipsConcurrentSweep(t *testing.T) {
	st := newTestStore(t)
	bus := events.New()
	sched, err := New(st, bus, time.Minute)
	require.NoError(t, err)

	sched.syncing.Store(true)
	results := sched.SyncAll()
	assert.Nil(t, results, "a sweep already in progress must short-circuit with no results")
}

func TestSyncAllEmitsProgressEvents(t *testing.T) {
	st := newTestStore(t)
	bus := events.New()
	sched, err := New(st, bus, time.Minute)
	require.NoError(t, err)

	var started, completed bool
	bus.Subscribe(events.SubjectSyncStarted, func(_ string, _ []byte) { started = true })
	bus.Subscribe(events.SubjectSyncCompleted, func(_ string, _ []byte) { completed = true })

	results := sched.SyncAll()
	assert.Empty(t, results, "no active devices registered")
	assert.True(t, started)
	assert.True(t, completed)
}
