// Package document provides in-memory implementations of the external
// collaborator contracts. They back the package tests and the demo binary;
// production hosts supply their own document layer.
package document

import (
	"chat-router/contract"
	"chat-router/domain"
	"context"
	"sync"
)

type subscription struct {
	unsubscribe func() error
}

func (s subscription) Unsubscribe() error { return s.unsubscribe() }

// ChatDocument is an in-memory message list with a delta stream.
type ChatDocument struct {
	mu        sync.Mutex
	messages  []domain.Message
	nextSubID int
	observers map[int]func(deltas []contract.MessageDelta)
}

func NewChatDocument() *ChatDocument {
	return &ChatDocument{observers: make(map[int]func(deltas []contract.MessageDelta))}
}

func (d *ChatDocument) ObserveMessages(cb func(deltas []contract.MessageDelta)) contract.Subscription {
	d.mu.Lock()
	d.nextSubID++
	id := d.nextSubID
	d.observers[id] = cb
	d.mu.Unlock()
	return subscription{unsubscribe: func() error {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
		return nil
	}}
}

// Append inserts messages and notifies observers with one delta batch,
// synchronously on the caller's goroutine.
func (d *ChatDocument) Append(messages ...domain.Message) {
	d.mu.Lock()
	d.messages = append(d.messages, messages...)
	observers := make([]func(deltas []contract.MessageDelta), 0, len(d.observers))
	for _, cb := range d.observers {
		observers = append(observers, cb)
	}
	d.mu.Unlock()

	deltas := []contract.MessageDelta{{Insert: messages}}
	for _, cb := range observers {
		cb(deltas)
	}
}

// ObserverCount reports how many delta subscriptions are live.
func (d *ChatDocument) ObserverCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.observers)
}

// PresenceMap is an in-memory client -> state map with change notification.
type PresenceMap struct {
	mu        sync.Mutex
	states    map[int64]domain.ClientState
	nextSubID int
	observers map[int]func()
}

func NewPresenceMap() *PresenceMap {
	return &PresenceMap{
		states:    make(map[int64]domain.ClientState),
		observers: make(map[int]func()),
	}
}

func (p *PresenceMap) States() map[int64]domain.ClientState {
	p.mu.Lock()
	defer p.mu.Unlock()
	snapshot := make(map[int64]domain.ClientState, len(p.states))
	for client, state := range p.states {
		snapshot[client] = state
	}
	return snapshot
}

func (p *PresenceMap) Observe(cb func()) contract.Subscription {
	p.mu.Lock()
	p.nextSubID++
	id := p.nextSubID
	p.observers[id] = cb
	p.mu.Unlock()
	return subscription{unsubscribe: func() error {
		p.mu.Lock()
		delete(p.observers, id)
		p.mu.Unlock()
		return nil
	}}
}

// Set stores one client's state and notifies observers synchronously.
func (p *PresenceMap) Set(client int64, state domain.ClientState) {
	p.mu.Lock()
	p.states[client] = state
	observers := p.observerList()
	p.mu.Unlock()

	for _, cb := range observers {
		cb()
	}
}

// Remove drops one client's state and notifies observers.
func (p *PresenceMap) Remove(client int64) {
	p.mu.Lock()
	delete(p.states, client)
	observers := p.observerList()
	p.mu.Unlock()

	for _, cb := range observers {
		cb()
	}
}

// ObserverCount reports how many presence subscriptions are live.
func (p *PresenceMap) ObserverCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.observers)
}

func (p *PresenceMap) observerList() []func() {
	observers := make([]func(), 0, len(p.observers))
	for _, cb := range p.observers {
		observers = append(observers, cb)
	}
	return observers
}

// Notebook is an in-memory notebook document: an awareness map plus a cell
// change stream.
type Notebook struct {
	Path string

	mu        sync.Mutex
	awareness *PresenceMap
	nextSubID int
	observers map[int]func()
}

func NewNotebook(path string) *Notebook {
	return &Notebook{
		Path:      path,
		awareness: NewPresenceMap(),
		observers: make(map[int]func()),
	}
}

func (n *Notebook) Awareness() contract.PresenceMap { return n.awareness }

// SetPresence stores a client state on the notebook's awareness map.
func (n *Notebook) SetPresence(client int64, state domain.ClientState) {
	n.awareness.Set(client, state)
}

func (n *Notebook) ObserveCells(cb func()) contract.Subscription {
	n.mu.Lock()
	n.nextSubID++
	id := n.nextSubID
	n.observers[id] = cb
	n.mu.Unlock()
	return subscription{unsubscribe: func() error {
		n.mu.Lock()
		delete(n.observers, id)
		n.mu.Unlock()
		return nil
	}}
}

// EditCells simulates a content edit and notifies cell observers.
func (n *Notebook) EditCells() {
	n.mu.Lock()
	observers := make([]func(), 0, len(n.observers))
	for _, cb := range n.observers {
		observers = append(observers, cb)
	}
	n.mu.Unlock()

	for _, cb := range observers {
		cb()
	}
}

// CellObserverCount reports how many cell subscriptions are live.
func (n *Notebook) CellObserverCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.observers)
}

// RoomResolver maps notebook paths to room identifiers.
type RoomResolver struct {
	mu    sync.Mutex
	rooms map[string]string
}

func NewRoomResolver(rooms map[string]string) *RoomResolver {
	if rooms == nil {
		rooms = make(map[string]string)
	}
	return &RoomResolver{rooms: rooms}
}

// Add maps one notebook path to a room.
func (r *RoomResolver) Add(path, roomID string) {
	r.mu.Lock()
	r.rooms[path] = roomID
	r.mu.Unlock()
}

func (r *RoomResolver) ResolveRoom(_ context.Context, path string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms[path], nil
}

// DocumentResolver maps room identifiers to notebook documents.
type DocumentResolver struct {
	mu        sync.Mutex
	notebooks map[string]contract.NotebookDocument
}

func NewDocumentResolver(notebooks map[string]contract.NotebookDocument) *DocumentResolver {
	if notebooks == nil {
		notebooks = make(map[string]contract.NotebookDocument)
	}
	return &DocumentResolver{notebooks: notebooks}
}

// Add maps one room to a notebook document.
func (r *DocumentResolver) Add(roomID string, doc contract.NotebookDocument) {
	r.mu.Lock()
	r.notebooks[roomID] = doc
	r.mu.Unlock()
}

func (r *DocumentResolver) ResolveNotebook(_ context.Context, roomID string) (contract.NotebookDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notebooks[roomID], nil
}
