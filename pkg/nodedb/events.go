package nodedb

import (
	"sync"
)

type EventKind string

const EventNodeListChanged EventKind = "nodeListChanged"

// Event carries the number of the affected node, or nil when the change
// is not about a single node.
type Event struct {
	Kind EventKind
	Num  *NodeNum
}

type Observer func(Event)

type observerEntry struct {
	id       uint64
	observer Observer
}

type observerList struct {
	mutex   sync.Mutex
	nextId  uint64
	entries []observerEntry
}

// Register an observer. It is called synchronously, in registration order,
// after every change. The returned function unregisters it.
func (db *NodeDB) Subscribe(observer Observer) func() {
	l := &db.observers

	l.mutex.Lock()
	id := l.nextId
	l.nextId++
	l.entries = append(l.entries, observerEntry{id: id, observer: observer})
	l.mutex.Unlock()

	return func() {
		l.mutex.Lock()
		defer l.mutex.Unlock()

		for i, e := range l.entries {
			if e.id == id {
				l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
				return
			}
		}
	}
}

func (db *NodeDB) dispatch(num *NodeNum) {
	event := Event{Kind: EventNodeListChanged}
	if num != nil {
		n := *num
		event.Num = &n
	}

	l := &db.observers
	l.mutex.Lock()
	entries := l.entries
	l.mutex.Unlock()

	for _, e := range entries {
		e.observer(event)
	}
}
