// Package outbox is a durable event outbox on pebble. Committed exchange
// events are appended here and relayed to the stream publisher; the state
// machine (new, sent, acked, failed) survives restarts, so an event that
// committed is delivered at least once even across a crash.
package outbox

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"predex/internal/engine"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

var ErrNotFound = errors.New("outbox record not found")

// Record is one appended event plus its delivery state
type Record struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64 // unix nanos of the last send attempt
	Type        string
	Payload     []byte // event JSON
}

// binary encoding: [state:1][retries:4][lastAttempt:8][typeLen:2][type][payload]
func encodeRecord(r *Record) ([]byte, error) {
	if len(r.Type) > 0xFFFF {
		return nil, errors.New("event type too long")
	}
	buf := make([]byte, 1+4+8+2+len(r.Type)+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	binary.BigEndian.PutUint16(buf[13:15], uint16(len(r.Type)))
	copy(buf[15:], r.Type)
	copy(buf[15+len(r.Type):], r.Payload)
	return buf, nil
}

func decodeRecord(b []byte) (*Record, error) {
	if len(b) < 15 {
		return nil, errors.New("invalid outbox record length")
	}
	typeLen := int(binary.BigEndian.Uint16(b[13:15]))
	if len(b) < 15+typeLen {
		return nil, errors.New("invalid outbox record type length")
	}
	return &Record{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Type:        string(b[15 : 15+typeLen]),
		Payload:     append([]byte(nil), b[15+typeLen:]...),
	}, nil
}

// Outbox is the pebble-backed store. Appends are sequenced under a mutex;
// the sequence is recovered from the highest key on open.
type Outbox struct {
	db *pebble.DB

	mu  sync.Mutex
	seq uint64
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // we WANT durability
	})
	if err != nil {
		return nil, err
	}

	o := &Outbox{db: db}
	if err := o.recoverSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return o, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

func (o *Outbox) recoverSeq() error {
	iter, err := o.db.NewIter(keyBounds())
	if err != nil {
		return err
	}
	defer iter.Close()

	if iter.Last() && iter.Valid() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		o.seq = seq
	}
	return iter.Error()
}

// Append durably stores an event in state NEW and returns its sequence.
func (o *Outbox) Append(ev engine.Event) (uint64, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.seq++
	rec := &Record{
		Seq:     o.seq,
		State:   StateNew,
		Type:    ev.EventType(),
		Payload: payload,
	}
	val, err := encodeRecord(rec)
	if err != nil {
		return 0, err
	}
	if err := o.db.Set(keyFor(o.seq), val, pebble.Sync); err != nil {
		return 0, err
	}
	return o.seq, nil
}

// Get returns the record for a sequence.
func (o *Outbox) Get(seq uint64) (*Record, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	rec, err := decodeRecord(val)
	if err != nil {
		return nil, err
	}
	rec.Seq = seq
	return rec, nil
}

// MarkSent records a send attempt: state SENT, retries incremented.
func (o *Outbox) MarkSent(seq uint64) error {
	return o.update(seq, func(r *Record) {
		r.State = StateSent
		r.Retries++
		r.LastAttempt = time.Now().UnixNano()
	})
}

// MarkAcked records a confirmed delivery.
func (o *Outbox) MarkAcked(seq uint64) error {
	return o.update(seq, func(r *Record) {
		r.State = StateAcked
	})
}

// MarkFailed parks a record that exhausted its retries.
func (o *Outbox) MarkFailed(seq uint64) error {
	return o.update(seq, func(r *Record) {
		r.State = StateFailed
	})
}

func (o *Outbox) update(seq uint64, mutate func(*Record)) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, err := o.Get(seq)
	if err != nil {
		return err
	}
	mutate(rec)
	val, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	return o.db.Set(keyFor(seq), val, pebble.Sync)
}

// Delete removes a record, used to clean up acked entries.
func (o *Outbox) Delete(seq uint64) error {
	return o.db.Delete(keyFor(seq), pebble.Sync)
}

// ScanPending iterates records awaiting delivery in sequence order: NEW
// entries plus SENT ones whose ack never arrived (a crash between send and
// ack means the delivery status is unknown, so they go again).
func (o *Outbox) ScanPending(fn func(rec *Record) error) error {
	iter, err := o.db.NewIter(keyBounds())
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		if rec.State != StateNew && rec.State != StateSent {
			continue
		}
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec.Seq = seq

		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

func keyBounds() *pebble.IterOptions {
	return &pebble.IterOptions{
		LowerBound: []byte("event/"),
		UpperBound: []byte("event/~"),
	}
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("event/%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(b), "event/%d", &seq)
	return seq, err
}
