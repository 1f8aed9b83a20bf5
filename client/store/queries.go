package store

import "database/sql"

// InsertAllocEvent records an ALLOC row.
func InsertAllocEvent(tx *sql.Tx, frame, addr, size uint64, typeID, callstackID int64) error {
	_, err := tx.Exec(
		`INSERT INTO Events (event_type_id, type_id, address, size, frame, callstack_id) VALUES (?, ?, ?, ?, ?, ?)`,
		EventAlloc, typeID, addr, size, frame, callstackID,
	)
	return err
}

// InsertFreeEvent records a FREE row. Unlike ALLOC, FREE carries no type
// or call stack: spec.md's wire FREE payload doesn't either, so there is
// nothing to intern here.
func InsertFreeEvent(tx *sql.Tx, frame, addr, size uint64) error {
	_, err := tx.Exec(
		`INSERT INTO Events (event_type_id, address, frame, size) VALUES (?, ?, ?, ?)`,
		EventFree, addr, frame, size,
	)
	return err
}

// InsertType interns a type name under id, skipping if id is already
// present (both directions of a race between two frames sharing a type
// should resolve to the same id, so the insert is idempotent).
func InsertType(tx *sql.Tx, id int64, name string) error {
	_, err := tx.Exec(`INSERT OR IGNORE INTO Types (type_id, name) VALUES (?, ?)`, id, name)
	return err
}

// InsertCallstack interns a call-stack text under id.
func InsertCallstack(tx *sql.Tx, id int64, stack string) error {
	_, err := tx.Exec(`INSERT OR IGNORE INTO Callstacks (callstack_id, callstack) VALUES (?, ?)`, id, stack)
	return err
}

// InsertFrameStats upserts one frame's aggregate counters.
func InsertFrameStats(tx *sql.Tx, frame, allocs, frees uint64, size int64) error {
	_, err := tx.Exec(
		`INSERT OR REPLACE INTO FrameStats (frame, allocs, frees, size) VALUES (?, ?, ?, ?)`,
		frame, allocs, frees, size,
	)
	return err
}

// MinMaxFrame returns the inclusive frame range covered by the Events
// table. ok is false if the table is empty.
func (s *Store) MinMaxFrame() (min, max uint64, ok bool, err error) {
	row := s.db.QueryRow(`SELECT MIN(frame) AS min_frame, MAX(frame) AS max_frame FROM Events`)
	var minN, maxN sql.NullInt64
	if err := row.Scan(&minN, &maxN); err != nil {
		return 0, 0, false, err
	}
	if !minN.Valid {
		return 0, 0, false, nil
	}
	return uint64(minN.Int64), uint64(maxN.Int64), true, nil
}

// Events returns every event with frame in [from, to], ordered by frame.
func (s *Store) Events(from, to uint64) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT event_type_id, event_id, type_id, address, size, frame, callstack_id
		 FROM Events WHERE frame >= ? AND frame <= ? ORDER BY frame ASC`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Kind, &e.EventID, &e.TypeID, &e.Address, &e.Size, &e.Frame, &e.CallstackID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EventsCount counts events with frame in [from, to].
func (s *Store) EventsCount(from, to uint64) (int64, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM Events WHERE frame >= ? AND frame <= ?`, from, to).Scan(&count)
	return count, err
}

// FrameStatsRange returns recorded FrameStats rows with frame in
// [from, to], ordered by frame. The query engine fills gaps between rows
// itself; this returns exactly what was recorded.
func (s *Store) FrameStatsRange(from, to uint64) ([]FrameStat, error) {
	rows, err := s.db.Query(
		`SELECT frame, allocs, frees, size FROM FrameStats WHERE frame >= ? AND frame <= ? ORDER BY frame`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FrameStat
	for rows.Next() {
		var f FrameStat
		if err := rows.Scan(&f.Frame, &f.Allocs, &f.Frees, &f.Size); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// LastGoodSize returns the most recently recorded FrameStats.size at or
// before from, for gap-filling a frame range that starts mid-gap. ok is
// false if no such row exists (the range starts before any recorded
// stats).
func (s *Store) LastGoodSize(from uint64) (size int64, ok bool, err error) {
	row := s.db.QueryRow(`SELECT size FROM FrameStats WHERE frame <= ? ORDER BY frame DESC LIMIT 1`, from)
	if err := row.Scan(&size); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}
	return size, true, nil
}

// Types returns the full type-name intern dictionary.
func (s *Store) Types() (map[int64]string, error) {
	rows, err := s.db.Query(`SELECT type_id, name FROM Types`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

// Callstacks returns the full call-stack intern dictionary.
func (s *Store) Callstacks() (map[int64]string, error) {
	rows, err := s.db.Query(`SELECT callstack_id, callstack FROM Callstacks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var id int64
		var stack string
		if err := rows.Scan(&id, &stack); err != nil {
			return nil, err
		}
		out[id] = stack
	}
	return out, rows.Err()
}

// EventsForType returns every event of the given type in [from, to], with
// call stack text already joined in, for the "go to callstack" style
// query. The type name is not joined in.
func (s *Store) EventsForType(from, to uint64, typeID int64) ([]Event, map[int64]string, error) {
	rows, err := s.db.Query(
		`SELECT e.event_id, e.type_id, e.address, e.size, e.frame, e.callstack_id, c.callstack
		 FROM Events e
		 LEFT JOIN Callstacks c ON c.callstack_id = e.callstack_id
		 WHERE e.frame >= ? AND e.frame <= ? AND e.type_id = ?`, from, to, typeID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var events []Event
	stacks := make(map[int64]string)
	for rows.Next() {
		var e Event
		var stack sql.NullString
		if err := rows.Scan(&e.EventID, &e.TypeID, &e.Address, &e.Size, &e.Frame, &e.CallstackID, &stack); err != nil {
			return nil, nil, err
		}
		e.Kind = EventAlloc
		if e.CallstackID.Valid && stack.Valid {
			stacks[e.CallstackID.Int64] = stack.String
		}
		events = append(events, e)
	}
	return events, stacks, rows.Err()
}
