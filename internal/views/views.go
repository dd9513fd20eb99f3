package views

import (
	"context"
	"strings"
	"sync"

	"github.com/lxxma/MeetMind/internal/api"
)

// TopicsView backs the explore-topics page.
type TopicsView struct {
	c *api.Client
	b binding[[]api.Topic]

	mu    sync.Mutex
	query string
}

func NewTopicsView(c *api.Client) *TopicsView {
	return &TopicsView{c: c}
}

func (v *TopicsView) Load(ctx context.Context) error {
	return v.b.run(ctx, func(ctx context.Context) ([]api.Topic, error) {
		return v.c.Topics(ctx)
	})
}

// SetQuery narrows Topics over the last loaded set. It never fetches.
func (v *TopicsView) SetQuery(q string) {
	v.mu.Lock()
	v.query = q
	v.mu.Unlock()
}

func (v *TopicsView) Topics() []api.Topic {
	data, _, _ := v.b.snapshot()
	v.mu.Lock()
	q := strings.ToLower(v.query)
	v.mu.Unlock()
	if q == "" {
		return data
	}
	out := make([]api.Topic, 0, len(data))
	for _, t := range data {
		if strings.Contains(strings.ToLower(t.Name), q) {
			out = append(out, t)
		}
	}
	return out
}

func (v *TopicsView) Loading() bool { _, l, _ := v.b.snapshot(); return l }
func (v *TopicsView) Err() error    { _, _, err := v.b.snapshot(); return err }
func (v *TopicsView) Close()        { v.b.close() }

// RoomsView backs the study-rooms list, optionally scoped to one topic.
type RoomsView struct {
	c       *api.Client
	b       binding[[]api.Room]
	topicID int64

	mu    sync.Mutex
	query string
}

func NewRoomsView(c *api.Client, topicID int64) *RoomsView {
	return &RoomsView{c: c, topicID: topicID}
}

func (v *RoomsView) Load(ctx context.Context) error {
	return v.b.run(ctx, func(ctx context.Context) ([]api.Room, error) {
		return v.c.Rooms(ctx, v.topicID)
	})
}

func (v *RoomsView) SetQuery(q string) {
	v.mu.Lock()
	v.query = q
	v.mu.Unlock()
}

// Rooms returns the last loaded set, narrowed by the search query.
func (v *RoomsView) Rooms() []api.Room {
	data, _, _ := v.b.snapshot()
	v.mu.Lock()
	q := strings.ToLower(v.query)
	v.mu.Unlock()
	if q == "" {
		return data
	}
	out := make([]api.Room, 0, len(data))
	for _, r := range data {
		if strings.Contains(strings.ToLower(r.Name), q) {
			out = append(out, r)
		}
	}
	return out
}

func (v *RoomsView) Loading() bool { _, l, _ := v.b.snapshot(); return l }
func (v *RoomsView) Err() error    { _, _, err := v.b.snapshot(); return err }
func (v *RoomsView) Close()        { v.b.close() }

// roomState is what the study-room page renders: the room object plus its
// message list.
type roomState struct {
	Room     *api.Room
	Messages []api.Message
}

// RoomView backs a single study room. Membership questions are always
// answered from the latest fetched room object, never inferred locally.
type RoomView struct {
	c      *api.Client
	b      binding[roomState]
	roomID int64
}

func NewRoomView(c *api.Client, roomID int64) *RoomView {
	return &RoomView{c: c, roomID: roomID}
}

func (v *RoomView) Load(ctx context.Context) error {
	return v.b.run(ctx, func(ctx context.Context) (roomState, error) {
		room, err := v.c.Room(ctx, v.roomID)
		if err != nil {
			return roomState{}, err
		}
		msgs, err := v.c.Messages(ctx, v.roomID)
		if err != nil {
			return roomState{}, err
		}
		return roomState{Room: room, Messages: filterRoomMessages(msgs, v.roomID)}, nil
	})
}

// filterRoomMessages drops messages tagged with a different room. The
// backend already scopes the list, so this is defensive; messages without a
// room field are kept.
func filterRoomMessages(msgs []api.Message, roomID int64) []api.Message {
	out := msgs[:0]
	for _, m := range msgs {
		if m.Room == 0 || m.Room == roomID {
			out = append(out, m)
		}
	}
	return out
}

func (v *RoomView) Room() *api.Room {
	data, _, _ := v.b.snapshot()
	return data.Room
}

// Messages returns the list in arrival order.
func (v *RoomView) Messages() []api.Message {
	data, _, _ := v.b.snapshot()
	return data.Messages
}

// Send posts a message and appends the backend's echo to the local list.
func (v *RoomView) Send(ctx context.Context, content string) (*api.Message, error) {
	msg, err := v.c.PostMessage(ctx, v.roomID, content)
	if err != nil {
		return nil, err
	}
	v.b.mu.Lock()
	if !v.b.closed && v.b.loaded {
		v.b.data.Messages = append(v.b.data.Messages, *msg)
	}
	v.b.mu.Unlock()
	return msg, nil
}

// Join adds the current user and reloads so membership reflects the
// backend's participant list.
func (v *RoomView) Join(ctx context.Context) error {
	if err := v.c.JoinRoom(ctx, v.roomID); err != nil {
		return err
	}
	return v.Load(ctx)
}

func (v *RoomView) Leave(ctx context.Context) error {
	if err := v.c.LeaveRoom(ctx, v.roomID); err != nil {
		return err
	}
	return v.Load(ctx)
}

func (v *RoomView) Loading() bool { _, l, _ := v.b.snapshot(); return l }
func (v *RoomView) Err() error    { _, _, err := v.b.snapshot(); return err }
func (v *RoomView) Close()        { v.b.close() }

// ProfileView backs the profile page.
type ProfileView struct {
	c *api.Client
	b binding[*api.User]
}

func NewProfileView(c *api.Client) *ProfileView {
	return &ProfileView{c: c}
}

func (v *ProfileView) Load(ctx context.Context) error {
	return v.b.run(ctx, func(ctx context.Context) (*api.User, error) {
		return v.c.Me(ctx)
	})
}

func (v *ProfileView) User() *api.User {
	data, _, _ := v.b.snapshot()
	return data
}

// Update edits the profile and replaces the local copy with the backend's
// response.
func (v *ProfileView) Update(ctx context.Context, upd api.ProfileUpdate) (*api.User, error) {
	user, err := v.c.UpdateMe(ctx, upd)
	if err != nil {
		return nil, err
	}
	v.b.mu.Lock()
	if !v.b.closed {
		v.b.data = user
		v.b.loaded = true
	}
	v.b.mu.Unlock()
	return user, nil
}

func (v *ProfileView) Loading() bool { _, l, _ := v.b.snapshot(); return l }
func (v *ProfileView) Err() error    { _, _, err := v.b.snapshot(); return err }
func (v *ProfileView) Close()        { v.b.close() }

// ActivityView backs the recent-activity panel.
type ActivityView struct {
	c *api.Client
	b binding[[]api.Activity]
}

func NewActivityView(c *api.Client) *ActivityView {
	return &ActivityView{c: c}
}

func (v *ActivityView) Load(ctx context.Context) error {
	return v.b.run(ctx, func(ctx context.Context) ([]api.Activity, error) {
		return v.c.RecentActivities(ctx)
	})
}

func (v *ActivityView) Activities() []api.Activity {
	data, _, _ := v.b.snapshot()
	return data
}

func (v *ActivityView) Loading() bool { _, l, _ := v.b.snapshot(); return l }
func (v *ActivityView) Err() error    { _, _, err := v.b.snapshot(); return err }
func (v *ActivityView) Close()        { v.b.close() }
