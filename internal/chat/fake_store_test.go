package chat

import (
	"context"
	"sync"
	"time"

	"designguard/internal/identity"
)

type storedMessage struct {
	id     int64
	roomID int64
	sender int64
	text   string
	read   bool
}

// fakeStore is an in-memory Store with the same pairing rules as Repository.
type fakeStore struct {
	mu       sync.Mutex
	roles    map[int64]identity.Role
	emails   map[int64]string
	rooms    map[pairKey]*Room
	byID     map[int64]*Room
	messages []*storedMessage
	nextRoom int64
	nextMsg  int64

	SaveMessageFunc func(ctx context.Context, roomID, senderID int64, text string) (int64, time.Time, error)
	UpsertRoomFunc  func(ctx context.Context, vepariID, factoryID int64) (*Room, error)
}

func newFakeStore(roles map[int64]identity.Role) *fakeStore {
	return &fakeStore{
		roles:  roles,
		emails: map[int64]string{},
		rooms:  map[pairKey]*Room{},
		byID:   map[int64]*Room{},
	}
}

func (f *fakeStore) ResolveParticipants(_ context.Context, a, b int64) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a == b {
		return 0, 0, ErrInvalidRoles
	}
	ra, okA := f.roles[a]
	rb, okB := f.roles[b]
	if !okA || !okB {
		return 0, 0, ErrInvalidUsers
	}
	switch {
	case ra.IsVepari() && rb.IsFactoryOwner():
		return a, b, nil
	case rb.IsVepari() && ra.IsFactoryOwner():
		return b, a, nil
	}
	return 0, 0, ErrInvalidRoles
}

func (f *fakeStore) UpsertRoom(ctx context.Context, vepariID, factoryID int64) (*Room, error) {
	if f.UpsertRoomFunc != nil {
		return f.UpsertRoomFunc(ctx, vepariID, factoryID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := pairKey{vepariID, factoryID}
	if r, ok := f.rooms[k]; ok {
		cp := *r
		return &cp, nil
	}
	f.nextRoom++
	r := &Room{ID: f.nextRoom, VepariID: vepariID, FactoryID: factoryID, CreatedAt: time.Now()}
	f.rooms[k] = r
	f.byID[r.ID] = r
	cp := *r
	return &cp, nil
}

func (f *fakeStore) GetRoom(_ context.Context, roomID int64) (*Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeStore) RoomForParticipant(ctx context.Context, roomID, userID int64) (*Room, error) {
	r, err := f.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !r.HasParticipant(userID) {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

func (f *fakeStore) SaveMessage(ctx context.Context, roomID, senderID int64, text string) (int64, time.Time, error) {
	if f.SaveMessageFunc != nil {
		return f.SaveMessageFunc(ctx, roomID, senderID, text)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsg++
	now := time.Now()
	f.messages = append(f.messages, &storedMessage{id: f.nextMsg, roomID: roomID, sender: senderID, text: text})
	r := f.byID[roomID]
	r.LastMessage = &text
	r.LastMessageAt = &now
	return f.nextMsg, now, nil
}

func (f *fakeStore) MarkRead(_ context.Context, roomID, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[roomID]
	if !ok || !r.HasParticipant(userID) {
		return 0, nil
	}
	var n int64
	for _, m := range f.messages {
		if m.roomID == roomID && m.sender != userID && !m.read {
			m.read = true
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) History(_ context.Context, roomID int64, limit, offset int) ([]Message, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []Message
	for _, m := range f.messages {
		if m.roomID == roomID {
			all = append(all, Message{ID: m.id, MessageText: m.text, SenderID: m.sender, IsRead: m.read,
				SenderEmail: f.emails[m.sender], SenderRole: f.roles[m.sender].String()})
		}
	}
	total := len(all)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	return append([]Message{}, all[offset:end]...), total, nil
}

func (f *fakeStore) RoomsFor(_ context.Context, caller identity.Identity) ([]RoomSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []RoomSummary{}
	for _, r := range f.byID {
		if r.HasParticipant(caller.UserID) {
			out = append(out, RoomSummary{Room: *r})
		}
	}
	return out, nil
}

func (f *fakeStore) ClearHistory(_ context.Context, roomID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.messages[:0]
	var n int64
	for _, m := range f.messages {
		if m.roomID == roomID {
			n++
			continue
		}
		kept = append(kept, m)
	}
	f.messages = kept
	f.byID[roomID].LastMessage = nil
	return n, nil
}

func (f *fakeStore) count(roomID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.messages {
		if m.roomID == roomID {
			n++
		}
	}
	return n
}

func (f *fakeStore) unread(roomID, forUser int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.messages {
		if m.roomID == roomID && m.sender != forUser && !m.read {
			n++
		}
	}
	return n
}
