// Package realtime fans mutation events out to board subscribers.
package realtime

import "sync"

// Event is one realtime notification scoped to a board.
type Event struct {
	Type    string `json:"type"`
	BoardID string `json:"boardId"`
	Payload any    `json:"payload,omitempty"`
}

// Event types emitted by the mutation pipeline.
const (
	EventBoardUpdated  = "board:updated"
	EventListCreated   = "list:created"
	EventListUpdated   = "list:updated"
	EventListDeleted   = "list:deleted"
	EventTaskCreated   = "task:created"
	EventTaskUpdated   = "task:updated"
	EventTaskMoved     = "task:moved"
	EventTaskDeleted   = "task:deleted"
	EventMemberAdded   = "member:added"
	EventMemberRemoved = "member:removed"
)

// Broadcaster keeps one subscriber set per board. Publish never blocks: a
// subscriber whose buffer is full misses the event, slow consumers cannot
// stall the mutation path.
type Broadcaster struct {
	mu    sync.Mutex
	rooms map[string]map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{rooms: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a new subscriber for one board and returns its channel.
func (b *Broadcaster) Subscribe(boardID string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	room, ok := b.rooms[boardID]
	if !ok {
		room = make(map[chan Event]struct{})
		b.rooms[boardID] = room
	}
	room[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broadcaster) Unsubscribe(boardID string, ch chan Event) {
	b.mu.Lock()
	if room, ok := b.rooms[boardID]; ok {
		delete(room, ch)
		if len(room) == 0 {
			delete(b.rooms, boardID)
		}
	}
	b.mu.Unlock()
}

// Publish delivers the event to every subscriber of its board. Delivery is
// serialized under the lock, so each subscriber sees events in publish order.
func (b *Broadcaster) Publish(event Event) {
	b.mu.Lock()
	for ch := range b.rooms[event.BoardID] {
		select {
		case ch <- event:
		default:
		}
	}
	b.mu.Unlock()
}

// SubscriberCount reports how many subscribers a board currently has.
func (b *Broadcaster) SubscriberCount(boardID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms[boardID])
}
