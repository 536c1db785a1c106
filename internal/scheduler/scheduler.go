// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scheduler is the poll scheduler (C4): a single-flight,
// interval-driven sweep across active devices. Each tick opens a device
// session (internal/zkdevice), pulls attendance, bulk-inserts through
// the store (internal/store) and emits progress on pkg/events, the way
// the teacher's taskManager drives its periodic jobs through gocron.
package scheduler

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/punch-agent/punch-agent/internal/store"
	"github.com/punch-agent/punch-agent/internal/zkdevice"
	"github.com/punch-agent/punch-agent/internal/zkproto"
	"github.com/punch-agent/punch-agent/pkg/events"
	"github.com/punch-agent/punch-agent/pkg/log"
)

const (
	DefaultCommandTimeout = 5 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// SyncResult is one device's outcome within a sweep.
type SyncResult struct {
	DeviceID     int64  `json:"deviceId"`
	DeviceName   string `json:"deviceName"`
	Success      bool   `json:"success"`
	RecordsAdded int    `json:"recordsAdded"`
	TotalRecords int    `json:"totalRecords"`
	Error        string `json:"error,omitempty"`
}

type syncStartedEvent struct {
	DeviceCount int `json:"deviceCount"`
}

type syncCompletedEvent struct {
	Results []SyncResult `json:"results"`
}

// Scheduler drives the periodic attendance sweep. Zero value is not
// usable; construct with New.
type Scheduler struct {
	store *store.Store
	bus   *events.Bus

	commandTimeout time.Duration
	connectTimeout time.Duration

	sched    gocron.Scheduler
	job      gocron.Job
	interval time.Duration

	running atomic.Bool
	syncing atomic.Bool
}

// New constructs a Scheduler with the given sweep interval. Call Start
// to arm the periodic timer.
func New(st *store.Store, bus *events.Bus, interval time.Duration) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: create gocron scheduler: %w", err)
	}

	return &Scheduler{
		store:          st,
		bus:            bus,
		commandTimeout: DefaultCommandTimeout,
		connectTimeout: DefaultConnectTimeout,
		sched:          sched,
		interval:       interval,
	}, nil
}

// Start arms the periodic sweep and kicks an immediate one. A second
// Start while already running is a no-op, per spec.md §4.4.
func (s *Scheduler) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	job, err := s.sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.SyncAll() }),
	)
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("scheduler: schedule sweep job: %w", err)
	}
	s.job = job
	s.sched.Start()

	go s.SyncAll()
	return nil
}

// Stop cancels the future timer; an in-flight sweep is allowed to finish.
func (s *Scheduler) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	return s.sched.Shutdown()
}

// SetInterval updates the sweep period. If running, the timer is
// restarted at the new interval.
func (s *Scheduler) SetInterval(d time.Duration) error {
	s.interval = d
	if !s.running.Load() {
		return nil
	}

	if err := s.sched.RemoveJob(s.job.ID()); err != nil {
		return fmt.Errorf("scheduler: remove job for interval update: %w", err)
	}
	job, err := s.sched.NewJob(
		gocron.DurationJob(d),
		gocron.NewTask(func() { s.SyncAll() }),
	)
	if err != nil {
		return fmt.Errorf("scheduler: reschedule sweep job: %w", err)
	}
	s.job = job
	return nil
}

// SetTimeouts overrides the per-device command/connect timeouts used by
// subsequent sweeps. Call before Start; safe to skip to keep the
// package defaults.
func (s *Scheduler) SetTimeouts(command, connect time.Duration) {
	s.commandTimeout = command
	s.connectTimeout = connect
}

// SyncAll runs one single-flight sweep across all active devices. A
// concurrent call while a sweep is already in progress returns an empty
// slice immediately rather than queuing, per spec.md §4.4.
func (s *Scheduler) SyncAll() []SyncResult {
	if !s.syncing.CompareAndSwap(false, true) {
		return nil
	}
	defer s.syncing.Store(false)

	devices, err := s.store.ListDevices(true)
	if err != nil {
		log.Errorf("scheduler: list active devices: %v", err)
		return nil
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })

	s.bus.Publish(events.SubjectSyncStarted, syncStartedEvent{DeviceCount: len(devices)})

	results := make([]SyncResult, 0, len(devices))
	for _, d := range devices {
		result := s.syncDevice(d)
		results = append(results, result)
		s.bus.Publish(events.SubjectDeviceSynced, result)
	}

	s.bus.Publish(events.SubjectSyncCompleted, syncCompletedEvent{Results: results})
	return results
}

// SyncOne syncs a single device by id, outside the single-flight guard
// so it can be triggered ad-hoc (e.g. from an admin action) even while a
// full sweep is running.
func (s *Scheduler) SyncOne(deviceID int64) (SyncResult, error) {
	d, err := s.store.GetDevice(deviceID)
	if err != nil {
		return SyncResult{}, err
	}
	return s.syncDevice(d), nil
}

func (s *Scheduler) syncDevice(d store.Device) SyncResult {
	result := SyncResult{DeviceID: d.ID, DeviceName: d.Name}

	addr := fmt.Sprintf("%s:%d", d.IP, d.Port)
	sess := zkdevice.New(addr, s.commandTimeout, s.connectTimeout)

	if err := sess.Connect(); err != nil {
		return s.fail(d, result, "connect", err)
	}
	defer sess.Disconnect()

	if err := sess.Disable(); err != nil {
		log.Warnf("scheduler: device %d (%s) disable (maintenance mode) failed, reading anyway: %v", d.ID, d.Name, err)
	} else {
		defer func() {
			if err := sess.Enable(); err != nil {
				log.Warnf("scheduler: device %d (%s) re-enable failed: %v", d.ID, d.Name, err)
			}
		}()
	}

	records, err := sess.GetAttendance()
	if err != nil {
		return s.fail(d, result, "pull", err)
	}

	punches := make([]store.Punch, 0, len(records))
	for _, r := range records {
		punches = append(punches, toPunch(d.ID, r))
	}

	inserted, err := s.store.AddPunchesBulk(punches)
	if err != nil {
		return s.fail(d, result, "persist", err)
	}

	result.Success = true
	result.RecordsAdded = inserted
	result.TotalRecords = len(records)

	if err := s.store.StampLastSync(d.ID, time.Now()); err != nil {
		log.Warnf("scheduler: stamp last_sync for device %d: %v", d.ID, err)
	}

	_ = s.store.AddSyncLog(store.SyncLog{
		DeviceID: d.ID,
		Type:     "pull",
		Count:    inserted,
		Status:   "success",
	})

	return result
}

func (s *Scheduler) fail(d store.Device, result SyncResult, stage string, err error) SyncResult {
	result.Success = false
	result.Error = err.Error()
	log.Warnf("scheduler: device %d (%s) %s failed: %v", d.ID, d.Name, stage, err)

	_ = s.store.AddSyncLog(store.SyncLog{
		DeviceID: d.ID,
		Type:     "pull",
		Count:    0,
		Status:   "error",
		Message:  err.Error(),
	})
	return result
}

func toPunch(deviceID int64, r zkproto.Record) store.Punch {
	return store.Punch{
		DeviceID:  deviceID,
		OderID:    int(r.OderID),
		OderID2:   int(r.OderID2),
		OderID3:   int(r.OderID3),
		UserID:    r.UserID,
		Timestamp: r.Timestamp,
		Status:    int(r.Status),
		Punch:     int(r.Punch),
	}
}
