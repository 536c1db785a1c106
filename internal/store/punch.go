// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/punch-agent/punch-agent/pkg/log"
)

// minPunchTimestamp is the spec.md §3 invariant lower bound (2000-01-01).
var minPunchTimestamp = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// AddPunch inserts one punch, returning 1 if it was newly inserted or 0 if
// its natural key (deviceId, oderId, oderId2, oderId3, userId, timestamp)
// already exists — duplicates are ignored silently, not an error.
func (s *Store) AddPunch(p Punch) (int, error) {
	if err := validatePunch(p); err != nil {
		return 0, fmt.Errorf("store: add punch: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.DB.Exec(
		`INSERT OR IGNORE INTO punches
			(device_id, oder_id, oder_id2, oder_id3, user_id, timestamp, status, punch, synced_to_cloud, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		p.DeviceID, p.OderID, p.OderID2, p.OderID3, p.UserID, unixOf(p.Timestamp), p.Status, p.Punch,
		unixOf(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("store: add punch: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: add punch rows affected: %w", err)
	}
	return int(n), nil
}

// AddPunchesBulk inserts records atomically in one transaction, returning
// the count actually inserted (duplicates by natural key are skipped, not
// errors). Readers never observe a partial batch.
func (s *Store) AddPunchesBulk(records []Punch) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.DB.Beginx()
	if err != nil {
		return 0, fmt.Errorf("store: bulk insert begin: %w", err)
	}

	now := unixOf(time.Now())
	inserted := 0
	for _, p := range records {
		if err := validatePunch(p); err != nil {
			log.Warnf("store: dropping invalid punch for device %d: %v", p.DeviceID, err)
			continue
		}

		res, err := tx.Exec(
			`INSERT OR IGNORE INTO punches
				(device_id, oder_id, oder_id2, oder_id3, user_id, timestamp, status, punch, synced_to_cloud, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			p.DeviceID, p.OderID, p.OderID2, p.OderID3, p.UserID, unixOf(p.Timestamp), p.Status, p.Punch, now,
		)
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("store: bulk insert: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("store: bulk insert rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: bulk insert commit: %w", err)
	}
	return inserted, nil
}

func validatePunch(p Punch) error {
	if p.Timestamp.Before(minPunchTimestamp) {
		return fmt.Errorf("timestamp %s before minimum", p.Timestamp)
	}
	if strings.TrimSpace(strings.Trim(p.UserID, "\x00")) == "" {
		return fmt.Errorf("empty userId")
	}
	return nil
}

// PunchFilter narrows ListPunches/CountPunches. Nil fields are omitted
// from the WHERE clause.
type PunchFilter struct {
	DeviceID      *int64
	UserID        *string
	StartDate     *time.Time // inclusive
	EndDate       *time.Time // inclusive
	SyncedToCloud *bool
}

func (f PunchFilter) apply(q sq.SelectBuilder) sq.SelectBuilder {
	if f.DeviceID != nil {
		q = q.Where(sq.Eq{"device_id": *f.DeviceID})
	}
	if f.UserID != nil {
		q = q.Where(sq.Eq{"user_id": *f.UserID})
	}
	if f.StartDate != nil {
		q = q.Where(sq.GtOrEq{"timestamp": unixOf(*f.StartDate)})
	}
	if f.EndDate != nil {
		q = q.Where(sq.LtOrEq{"timestamp": unixOf(*f.EndDate)})
	}
	if f.SyncedToCloud != nil {
		q = q.Where(sq.Eq{"synced_to_cloud": *f.SyncedToCloud})
	}
	return q
}

// ListPunches returns punches matching filter, newest-first, bounded by
// limit/offset (limit<=0 means unbounded).
func (s *Store) ListPunches(filter PunchFilter, limit, offset int) ([]Punch, error) {
	q := filter.apply(sq.Select("*").From("punches")).OrderBy("timestamp DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build list query: %w", err)
	}

	punches := []Punch{}
	if err := s.DB.Select(&punches, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("store: list punches: %w", err)
	}
	for i := range punches {
		punches[i].populateTimes()
	}
	return punches, nil
}

// CountPunches applies the same filters as ListPunches and returns the
// matching row count.
func (s *Store) CountPunches(filter PunchFilter) (int64, error) {
	q := filter.apply(sq.Select("count(*)").From("punches"))
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("store: build count query: %w", err)
	}

	var count int64
	if err := s.DB.Get(&count, sqlStr, args...); err != nil {
		return 0, fmt.Errorf("store: count punches: %w", err)
	}
	return count, nil
}

// ListUnsynced is equivalent to ListPunches({SyncedToCloud: false}, limit).
// since, if non-zero, additionally restricts to timestamp >= since.
func (s *Store) ListUnsynced(since time.Time, limit int) ([]Punch, error) {
	unsynced := false
	filter := PunchFilter{SyncedToCloud: &unsynced}
	if !since.IsZero() {
		filter.StartDate = &since
	}
	return s.ListPunches(filter, limit, 0)
}

// MarkSynced flips synced_to_cloud for the given ids. Unknown ids are
// silently ignored, making repeated calls with overlapping id sets
// idempotent, per spec.md §8.
func (s *Store) MarkSynced(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, args, err := sq.Update("punches").
		Set("synced_to_cloud", true).
		Where(sq.Eq{"id": ids}).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build mark-synced query: %w", err)
	}

	if _, err := s.DB.Exec(q, args...); err != nil {
		return fmt.Errorf("store: mark synced: %w", err)
	}
	return nil
}

// ClearPunches purges all punches and returns the count removed.
func (s *Store) ClearPunches() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.DB.Exec(`DELETE FROM punches`)
	if err != nil {
		return 0, fmt.Errorf("store: clear punches: %w", err)
	}
	return res.RowsAffected()
}
