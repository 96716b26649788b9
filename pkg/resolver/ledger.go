package resolver

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/spherity/ethr-did/pkg/registry"
)

// Record is one logical delegate or attribute derived from the event log.
type Record struct {
	Index        int
	Kind         registry.EventKind
	DelegateType registry.DelegateType
	Delegate     common.Address
	Name         string
	Value        []byte
	ValidTo      uint64

	// grantedUntil is the expiry last granted by an add/set. A revoke lowers
	// ValidTo but leaves it alone, so a re-add inside the original window
	// keeps the record's index.
	grantedUntil uint64
}

// Active reports whether the record is live at now.
func (r Record) Active(now uint64) bool {
	return r.ValidTo > now
}

type recordKey struct {
	kind  registry.EventKind
	a     string
	b     string
	extra common.Address
}

// Ledger folds delegate and attribute events into indexed records. Delegates
// and attributes draw from a single counter; an index is never handed out
// twice.
type Ledger struct {
	next    int
	records map[recordKey]*Record
}

// NewLedger returns an empty ledger. The first record gets index 1.
func NewLedger() *Ledger {
	return &Ledger{next: 1, records: make(map[recordKey]*Record)}
}

// Apply folds one event. Events must arrive oldest first. Owner changes are
// ignored.
func (l *Ledger) Apply(ev registry.Event) {
	var key recordKey
	switch ev.Kind {
	case registry.DelegateChanged:
		key = recordKey{kind: ev.Kind, a: string(ev.DelegateType), extra: ev.Delegate}
	case registry.AttributeChanged:
		key = recordKey{kind: ev.Kind, a: ev.Name, b: string(ev.Value)}
	default:
		return
	}

	grant := ev.ValidTo > ev.Timestamp
	rec, ok := l.records[key]
	if !ok {
		if !grant {
			return
		}
		rec = &Record{
			Index:        l.take(),
			Kind:         ev.Kind,
			DelegateType: ev.DelegateType,
			Delegate:     ev.Delegate,
			Name:         ev.Name,
			Value:        append([]byte(nil), ev.Value...),
		}
		l.records[key] = rec
	} else if grant && rec.grantedUntil <= ev.Timestamp {
		rec.Index = l.take()
	}

	rec.ValidTo = ev.ValidTo
	if grant {
		rec.grantedUntil = ev.ValidTo
	}
}

func (l *Ledger) take() int {
	i := l.next
	l.next++
	return i
}

// Active returns the records live at now in index order.
func (l *Ledger) Active(now uint64) []Record {
	out := make([]Record, 0, len(l.records))
	for _, rec := range l.records {
		if rec.Active(now) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Lookup returns the record for a delegate, active or not.
func (l *Ledger) Lookup(t registry.DelegateType, delegate common.Address) (Record, bool) {
	rec, ok := l.records[recordKey{kind: registry.DelegateChanged, a: string(t), extra: delegate}]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}
