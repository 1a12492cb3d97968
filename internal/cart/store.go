// Package cart содержит корзину покупателя и реестр корзин по сессиям.
//
// Store ведёт себя как последовательный редьюсер: любые запросы приводятся
// к допустимому состоянию (clamp) и никогда не возвращают ошибок. Количество
// в каждой позиции всегда лежит в [1, stock].
package cart

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Snapshot: неизменяемый снимок корзины, который получают подписчики.
type Snapshot struct {
	Version   uint64
	Lines     []domain.CartLine
	Total     decimal.Decimal
	LineCount int
	ItemCount int
}

// Listener вызывается после каждой мутации, изменившей корзину.
// Слушатель не должен изменять корзину, из которой пришёл снимок.
type Listener func(Snapshot)

// Store: корзина одной сессии.
type Store struct {
	// notifyMu сериализует мутацию вместе с рассылкой, чтобы подписчики
	// видели снимки строго в порядке версий.
	notifyMu sync.Mutex

	mu        sync.RWMutex
	lines     []domain.CartLine
	index     map[string]int
	version   uint64
	listeners map[int]Listener
	nextID    int
}

// NewStore создаёт пустую корзину.
func NewStore() *Store {
	return &Store{
		index:     make(map[string]int),
		listeners: make(map[int]Listener),
	}
}

// Restore создаёт корзину из сохранённых позиций. Позиции приводятся к
// инвариантам: дубликаты схлопываются, количество ограничивается остатком,
// позиции без остатка отбрасываются.
func Restore(lines []domain.CartLine) *Store {
	s := NewStore()
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		s.addLocked(line.Item, line.Quantity)
	}
	return s
}

// Add кладёт в корзину одну единицу товара.
func (s *Store) Add(item domain.CatalogItem) {
	s.AddItem(item, 1)
}

// AddItem увеличивает количество существующей позиции или добавляет новую.
// Итог ограничивается остатком item.Stock; при нулевом остатке ничего не меняется.
// Новая позиция с количеством меньше единицы получает 1, существующая не меняется.
func (s *Store) AddItem(item domain.CatalogItem, qty int) {
	s.mutate(func() bool {
		return s.addLocked(item, qty)
	})
}

// UpdateQuantity выставляет количество позиции. n <= 0 удаляет позицию,
// иначе значение ограничивается диапазоном [1, stock]. Неизвестный id игнорируется.
// Позиция с нулевым остатком удаляется при любом n.
func (s *Store) UpdateQuantity(id string, n int) {
	s.mutate(func() bool {
		i, ok := s.index[id]
		if !ok {
			return false
		}
		// нулевой остаток не оставляет допустимого количества
		if n <= 0 || s.lines[i].Item.Stock <= 0 {
			s.removeLocked(id)
			return true
		}
		next := clamp(n, 1, s.lines[i].Item.Stock)
		if next == s.lines[i].Quantity {
			return false
		}
		s.lines[i].Quantity = next
		return true
	})
}

// Refresh заменяет карточку товара в позиции на актуальную. Количество
// сжимается до нового остатка, при нулевом остатке позиция удаляется.
// Товара нет в корзине: ничего не меняется.
func (s *Store) Refresh(item domain.CatalogItem) {
	s.mutate(func() bool {
		i, ok := s.index[item.ID]
		if !ok {
			return false
		}
		if item.Stock <= 0 {
			return s.removeLocked(item.ID)
		}
		s.lines[i].Item = item.Clone()
		s.lines[i].Quantity = min(s.lines[i].Quantity, item.Stock)
		return true
	})
}

// RemoveItem удаляет позицию, если она есть.
func (s *Store) RemoveItem(id string) {
	s.mutate(func() bool {
		return s.removeLocked(id)
	})
}

// Clear очищает корзину.
func (s *Store) Clear() {
	s.mutate(func() bool {
		if len(s.lines) == 0 {
			return false
		}
		s.lines = nil
		s.index = make(map[string]int)
		return true
	})
}

// Deduct списывает из корзины оформленные позиции. Добавленное после
// снимка остаётся в корзине; позиция с нулевым остатком удаляется.
func (s *Store) Deduct(ordered []domain.CartLine) {
	s.mutate(func() bool {
		changed := false
		for _, o := range ordered {
			i, ok := s.index[o.Item.ID]
			if !ok {
				continue
			}
			if rest := s.lines[i].Quantity - o.Quantity; rest > 0 {
				s.lines[i].Quantity = rest
			} else {
				s.removeLocked(o.Item.ID)
			}
			changed = true
		}
		return changed
	})
}

// Total возвращает Σ(price × quantity); для пустой корзины: ноль.
func (s *Store) Total() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CartTotal(s.lines)
}

// LineCount возвращает число различных позиций.
func (s *Store) LineCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// ItemCount возвращает сумму количеств по всем позициям.
func (s *Store) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return itemCount(s.lines)
}

// Lines возвращает копию позиций в порядке добавления.
func (s *Store) Lines() []domain.CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLines(s.lines)
}

// Quantity возвращает количество товара id в корзине (0, если позиции нет).
func (s *Store) Quantity(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.index[id]; ok {
		return s.lines[i].Quantity
	}
	return 0
}

// Snapshot возвращает согласованный снимок корзины.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe регистрирует слушателя и возвращает функцию отписки.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) mutate(fn func() bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return
	}
	s.version++
	snap := s.snapshotLocked()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

// addLocked: для новой позиции qty < 1 трактуется как 1, для существующей
// такой запрос ничего не меняет.
func (s *Store) addLocked(item domain.CatalogItem, qty int) bool {
	if item.Stock <= 0 {
		return false
	}

	if i, ok := s.index[item.ID]; ok {
		if qty < 1 {
			return false
		}
		// сравнение до сложения: qty может быть близко к MaxInt
		next := item.Stock
		if cur := s.lines[i].Quantity; cur < item.Stock && qty < item.Stock-cur {
			next = cur + qty
		}
		s.lines[i].Item = item.Clone()
		s.lines[i].Quantity = next
		return true
	}

	s.index[item.ID] = len(s.lines)
	s.lines = append(s.lines, domain.CartLine{
		Item:     item.Clone(),
		Quantity: clamp(qty, 1, item.Stock),
	})
	return true
}

func (s *Store) removeLocked(id string) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.lines); j++ {
		s.index[s.lines[j].Item.ID] = j
	}
	return true
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Version:   s.version,
		Lines:     cloneLines(s.lines),
		Total:     domain.CartTotal(s.lines),
		LineCount: len(s.lines),
		ItemCount: itemCount(s.lines),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func itemCount(lines []domain.CartLine) int {
	var n int
	for _, line := range lines {
		n += line.Quantity
	}
	return n
}

func cloneLines(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, len(lines))
	for i, line := range lines {
		out[i] = domain.CartLine{Item: line.Item.Clone(), Quantity: line.Quantity}
	}
	return out
}
