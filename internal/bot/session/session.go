// Package session хранит состояние диалога пользователя с ботом между обновлениями.
// Записи истекают сами, поэтому брошенный на середине сценарий не копится в памяти
package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Step - шаг сценария, на котором находится пользователь
type Step string

const (
	StepIdle         Step = ""
	StepProvider     Step = "provider"
	StepDuration     Step = "duration"
	StepDate         Step = "date"
	StepSlot         Step = "slot"
	StepPayment      Step = "payment"
	StepRefundReason Step = "refund_reason"
	StepFeedback     Step = "feedback"
)

// State - состояние сценария бронирования
type State struct {
	Step            Step
	Product         string
	ProviderID      int64
	DurationMinutes int
	Date            time.Time
	WindowID        int64
	BookingID       string
}

// Store - хранилище состояний с истечением по времени, ключ - ID пользователя
type Store struct {
	cache *cache.Cache
	mu    sync.Mutex
}

// New создает хранилище; ttl - время жизни состояния без активности
func New(ttl, cleanupInterval time.Duration) *Store {
	return &Store{cache: cache.New(ttl, cleanupInterval)}
}

func key(requesterID int64) string {
	return strconv.FormatInt(requesterID, 10)
}

// Get возвращает копию состояния пользователя
func (s *Store) Get(requesterID int64) (State, bool) {
	if x, found := s.cache.Get(key(requesterID)); found {
		return x.(State), true
	}
	return State{}, false
}

// Save сохраняет состояние и продлевает срок его жизни
func (s *Store) Save(requesterID int64, state State) {
	s.cache.Set(key(requesterID), state, cache.DefaultExpiration)
}

// Update применяет fn к текущему состоянию (или пустому) и сохраняет результат
func (s *Store) Update(requesterID int64, fn func(*State)) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, _ := s.Get(requesterID)
	fn(&state)
	s.Save(requesterID, state)
	return state
}

// Clear сбрасывает сценарий пользователя
func (s *Store) Clear(requesterID int64) {
	s.cache.Delete(key(requesterID))
}

// Len возвращает число активных сценариев
func (s *Store) Len() int {
	return s.cache.ItemCount()
}
