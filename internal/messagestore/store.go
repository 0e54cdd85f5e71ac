// Package messagestore tracks the messages of a single room subscription and
// reconciles messages the current user is sending with the copies the server
// later delivers.
//
// Matching is done on the correlation identifier carried in a hidden part of
// every outgoing message (see package multipart). A server message always
// replaces the local record it matches; a local state change never replaces
// a server message.
package messagestore

import (
	"sync"

	"roomchat/internal/models"
	"roomchat/internal/observable"
)

// Model is the state published after every accepted change.
type Model struct {
	CurrentUser Identity
	// Items is a snapshot; it is not modified by later changes.
	Items      []Item
	LastChange Change
}

// Store holds the ordered records of a room. It is safe for concurrent use.
//
// Each mutating call reconciles and then notifies listeners synchronously
// while holding the store's lock, so notifications are delivered in the
// same order as the changes they describe. Listeners must therefore not call
// the mutating methods of the same Store.
type Store struct {
	currentUser Identity

	mu    sync.Mutex
	items []Item
	model observable.Value[Model]
}

// New returns an empty store for currentUser.
func New(currentUser Identity) *Store {
	return &Store{currentUser: currentUser}
}

// RecordServerMessage adds m, or replaces whichever record carries the same
// correlation identifier.
func (s *Store) RecordServerMessage(m *models.Message) {
	s.addOrUpdateItem(FromServer(m))
}

// RecordPendingMessage records parts that are about to be sent.
func (s *Store) RecordPendingMessage(parts []models.Part) {
	s.addOrUpdateItem(Local(parts, StatePending))
}

// MarkSent records that the server accepted parts.
func (s *Store) MarkSent(parts []models.Part) {
	s.addOrUpdateItem(Local(parts, StateSent))
}

// MarkFailed records that sending parts failed.
func (s *Store) MarkFailed(parts []models.Part) {
	s.addOrUpdateItem(Local(parts, StateFailed))
}

func (s *Store) addOrUpdateItem(item Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.findItemIndexByCorrelationID(item)

	switch item.Kind {
	case KindFromServer:
		if index == -1 {
			s.addItem(item)
		} else {
			s.replaceItem(item, index)
		}
	case KindLocal:
		// Server state is canonical; a local update never overwrites it.
		if index == -1 {
			s.addItem(item)
		} else if s.items[index].Kind != KindFromServer {
			s.replaceItem(item, index)
		}
	}
}

// findItemIndexByCorrelationID scans from the most recent record backwards.
// Records without an identifier never match.
func (s *Store) findItemIndexByCorrelationID(item Item) int {
	id, ok := item.CorrelationID()
	if !ok || id == "" {
		return -1
	}
	for i := len(s.items) - 1; i >= 0; i-- {
		if other, ok := s.items[i].CorrelationID(); ok && other == id {
			return i
		}
	}
	return -1
}

func (s *Store) addItem(item Item) {
	s.items = append(s.items, item)
	s.publish(Added(len(s.items) - 1))
}

func (s *Store) replaceItem(item Item, index int) {
	s.items[index] = item
	s.publish(Updated(index))
}

func (s *Store) publish(change Change) {
	snapshot := make([]Item, len(s.items))
	copy(snapshot, s.items)
	s.model.Set(Model{
		CurrentUser: s.currentUser,
		Items:       snapshot,
		LastChange:  change,
	})
}

// Subscribe registers fn to receive every future Model.
func (s *Store) Subscribe(fn func(Model)) (unsubscribe func()) {
	return s.model.Subscribe(fn)
}

// Current returns the most recently published Model.
func (s *Store) Current() (Model, bool) {
	return s.model.Current()
}

// Item returns the record at index.
func (s *Store) Item(index int) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.items) {
		return Item{}, false
	}
	return s.items[index], true
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
