// Package memory is an in-process dining.Store used by tests and by local runs without a
// database. Transactions are serialized behind one mutex and applied to a copy of the state, so
// a failed transaction leaves nothing behind.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"dinein-service/internal/dining"
)

type state struct {
	seq      int64
	tables   map[int64]dining.Table
	sessions map[int64]dining.DiningSession
	groups   map[int64]dining.Group
	members  map[int64]dining.Member
	menu     map[int64]dining.MenuItem
	orders   map[int64]dining.Order
	items    map[int64]dining.OrderItem
	bills    map[int64]dining.Bill
	splits   map[int64]dining.BillSplit
	payments map[int64]dining.Payment
}

func newState() *state {
	return &state{
		tables:   map[int64]dining.Table{},
		sessions: map[int64]dining.DiningSession{},
		groups:   map[int64]dining.Group{},
		members:  map[int64]dining.Member{},
		menu:     map[int64]dining.MenuItem{},
		orders:   map[int64]dining.Order{},
		items:    map[int64]dining.OrderItem{},
		bills:    map[int64]dining.Bill{},
		splits:   map[int64]dining.BillSplit{},
		payments: map[int64]dining.Payment{},
	}
}

func (s *state) clone() *state {
	return &state{
		seq:      s.seq,
		tables:   maps.Clone(s.tables),
		sessions: maps.Clone(s.sessions),
		groups:   maps.Clone(s.groups),
		members:  maps.Clone(s.members),
		menu:     maps.Clone(s.menu),
		orders:   maps.Clone(s.orders),
		items:    maps.Clone(s.items),
		bills:    maps.Clone(s.bills),
		splits:   maps.Clone(s.splits),
		payments: maps.Clone(s.payments),
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx dining.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// AddTables provisions tables numbered 1..n that do not exist yet.
func (s *Store) AddTables(n int32) []dining.Table {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := map[int32]bool{}
	for _, t := range s.st.tables {
		existing[t.Number] = true
	}
	var out []dining.Table
	for number := int32(1); number <= n; number++ {
		if existing[number] {
			continue
		}
		t := dining.Table{ID: s.st.nextID(), Number: number}
		s.st.tables[t.ID] = t
		out = append(out, t)
	}
	return out
}

// PutMenuItem inserts or replaces a menu entry. A zero ID gets a fresh one.
func (s *Store) PutMenuItem(item dining.MenuItem) dining.MenuItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == 0 {
		item.ID = s.st.nextID()
	} else if item.ID > s.st.seq {
		s.st.seq = item.ID
	}
	s.st.menu[item.ID] = item
	return item
}

// DefaultMenu is the small catalog loaded for local runs.
func DefaultMenu() []dining.MenuItem {
	return []dining.MenuItem{
		{Name: "Pad Thai", Price: decimal.RequireFromString("120"), IsAvailable: true},
		{Name: "Green Curry", Price: decimal.RequireFromString("150"), IsAvailable: true},
		{Name: "Som Tam", Price: decimal.RequireFromString("80"), IsAvailable: true},
		{Name: "Mango Sticky Rice", Price: decimal.RequireFromString("95"), IsAvailable: true},
		{Name: "Thai Iced Tea", Price: decimal.RequireFromString("55"), IsAvailable: true},
	}
}

func sortedValues[V any](m map[int64]V, keep func(V) bool) []V {
	ids := make([]int64, 0, len(m))
	for id, v := range m {
		if keep == nil || keep(v) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func lookup[V any](m map[int64]V, id int64) (V, error) {
	v, ok := m[id]
	if !ok {
		var zero V
		return zero, dining.ErrNoRows
	}
	return v, nil
}
