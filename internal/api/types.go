package api

import "github.com/lxxma/MeetMind/internal/credstore"

// Wire models for the MeetMind REST backend. Field names follow the backend's
// JSON exactly; the client never invents fields the server does not send.

// Profile and User live in credstore (the bottom of the import graph, since
// the credential store persists the cached user); the aliases keep api.User
// and api.Profile as the same types for every caller.
type Profile = credstore.Profile

type User = credstore.User

type Topic struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	RoomCount   int    `json:"room_count,omitempty"`
}

// Participant is the reduced user reference the backend embeds in room
// membership lists.
type Participant struct {
	ID int64 `json:"id"`
}

type Room struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Topic        string        `json:"topic"`
	Creator      int64         `json:"creator"`
	Participants []Participant `json:"participants"`
	Created      string        `json:"created,omitempty"`
	Updated      string        `json:"updated,omitempty"`
}

// HasParticipant reports membership from the latest fetched room object.
// Membership is never inferred locally; callers must refetch after join/leave.
func (r *Room) HasParticipant(userID int64) bool {
	for _, p := range r.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

// IsCreator is display-only. Edit/delete permission is enforced by the
// backend; a 403 from it is authoritative.
func (r *Room) IsCreator(userID int64) bool {
	return r.Creator == userID
}

type Message struct {
	ID        int64  `json:"id"`
	Room      int64  `json:"room,omitempty"`
	Author    int64  `json:"author"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Activity is a read-only projection of a past account action.
type Activity struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Timestamp   string   `json:"timestamp"`
	Room        *Room    `json:"room,omitempty"`
	Message     *Message `json:"message,omitempty"`
}

// Display labels for the known activity types. Unknown types pass through
// verbatim so newer backends keep rendering.
var activityLabels = map[string]string{
	"create_room":  "Created Room",
	"join_room":    "Joined Room",
	"leave_room":   "Left Room",
	"post_message": "Posted Message",
	"update_room":  "Updated Room",
}

func (a *Activity) Label() string {
	if label, ok := activityLabels[a.Type]; ok {
		return label
	}
	return a.Type
}

// Request payloads.

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// RoomRequest is shared by create and update. Fields left empty on update
// are omitted so the backend keeps the existing values.
type RoomRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Topic       string `json:"topic,omitempty"`
}

type MessageRequest struct {
	Content string `json:"content"`
	Room    int64  `json:"room,omitempty"`
}

// ProfileUpdate carries the PUT /users/me/ fields. AvatarPath switches the
// request to multipart when set.
type ProfileUpdate struct {
	Username   string
	Email      string
	Bio        string
	FullName   string
	AvatarPath string
}

// Responses.

type LoginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    User   `json:"user"`
}

type SignupResponse struct {
	Access   string `json:"access"`
	Refresh  string `json:"refresh"`
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type RefreshResponse struct {
	Access string `json:"access"`
}
