package mixedlm

import (
	"sync"
)

// UnitStore はユニット識別子からUnitStateへのレジストリ。
// コアの外側が所有するコラボレータで、オーケストレータは観測ごとに
// Getで取り出しPutで書き戻す。ユニットを削除する操作は存在しない:
// 退役させたユニットの最終寄与もグローバル十分統計量の一部であり続ける。
type UnitStore interface {
	// Get はユニット状態を返す。存在しない場合は(nil, false, nil)。
	Get(id string) (*UnitState, bool, error)

	// Put はユニット状態を保存する。
	Put(id string, u *UnitState) error
}

// MemoryStore はプロセス内マップによるUnitStoreの参照実装。
type MemoryStore struct {
	mu    sync.RWMutex
	units map[string]*UnitState
}

// NewMemoryStore は空のMemoryStoreを作成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{units: make(map[string]*UnitState)}
}

// Get はユニット状態を返す。
func (s *MemoryStore) Get(id string) (*UnitState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[id]
	return u, ok, nil
}

// Put はユニット状態を保存する。
func (s *MemoryStore) Put(id string, u *UnitState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[id] = u
	return nil
}

// Len は保存されているユニット数を返す。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.units)
}

// IDs は保存されている全ユニットの識別子を返す。順序は不定。
func (s *MemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.units))
	for id := range s.units {
		ids = append(ids, id)
	}
	return ids
}
