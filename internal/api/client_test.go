package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxxma/MeetMind/internal/credstore"
	"github.com/lxxma/MeetMind/internal/logger"
	"github.com/lxxma/MeetMind/internal/transport"
)

type recordedCall struct {
	method string
	path   string
	query  string
}

func newRecordingClient(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) (*Client, *recordedCall) {
	t.Helper()
	rec := &recordedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		respond(w, r)
	}))
	t.Cleanup(srv.Close)
	store := credstore.NewMemStore()
	require.NoError(t, store.SetSession("A1", "R1", nil))
	tr := transport.NewClient(transport.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, store, logger.Nop())
	return NewClient(tr), rec
}

func respondJSON(v interface{}) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(v)
	}
}

func TestEndpointPaths(t *testing.T) {
	tests := []struct {
		name       string
		call       func(c *Client) error
		wantMethod string
		wantPath   string
		wantQuery  string
		respond    func(w http.ResponseWriter, r *http.Request)
	}{
		{
			name:       "me",
			call:       func(c *Client) error { _, err := c.Me(context.Background()); return err },
			wantMethod: "GET", wantPath: "/users/me/",
			respond: respondJSON(User{ID: 1}),
		},
		{
			name:       "delete account",
			call:       func(c *Client) error { return c.DeleteAccount(context.Background()) },
			wantMethod: "DELETE", wantPath: "/users/me/",
			respond: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) },
		},
		{
			name:       "topics",
			call:       func(c *Client) error { _, err := c.Topics(context.Background()); return err },
			wantMethod: "GET", wantPath: "/topics/",
			respond: respondJSON([]Topic{}),
		},
		{
			name:       "topic detail",
			call:       func(c *Client) error { _, err := c.Topic(context.Background(), 3); return err },
			wantMethod: "GET", wantPath: "/topics/3/",
			respond: respondJSON(Topic{ID: 3}),
		},
		{
			name:       "rooms",
			call:       func(c *Client) error { _, err := c.Rooms(context.Background(), 0); return err },
			wantMethod: "GET", wantPath: "/rooms/",
			respond: respondJSON([]Room{}),
		},
		{
			name:       "rooms scoped to topic",
			call:       func(c *Client) error { _, err := c.Rooms(context.Background(), 5); return err },
			wantMethod: "GET", wantPath: "/rooms/", wantQuery: "topic=5",
			respond: respondJSON([]Room{}),
		},
		{
			name:       "room detail",
			call:       func(c *Client) error { _, err := c.Room(context.Background(), 8); return err },
			wantMethod: "GET", wantPath: "/rooms/8/",
			respond: respondJSON(Room{ID: 8}),
		},
		{
			name: "create room",
			call: func(c *Client) error {
				_, err := c.CreateRoom(context.Background(), RoomRequest{Name: "n", Description: "d", Topic: "t"})
				return err
			},
			wantMethod: "POST", wantPath: "/rooms/create/",
			respond: respondJSON(Room{ID: 1}),
		},
		{
			name: "update room",
			call: func(c *Client) error {
				_, err := c.UpdateRoom(context.Background(), 8, RoomRequest{Name: "n"})
				return err
			},
			wantMethod: "PUT", wantPath: "/rooms/8/",
			respond: respondJSON(Room{ID: 8}),
		},
		{
			name:       "delete room",
			call:       func(c *Client) error { return c.DeleteRoom(context.Background(), 8) },
			wantMethod: "DELETE", wantPath: "/rooms/8/",
			respond: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) },
		},
		{
			name:       "join room",
			call:       func(c *Client) error { return c.JoinRoom(context.Background(), 8) },
			wantMethod: "POST", wantPath: "/rooms/8/join/",
			respond: respondJSON(map[string]string{"detail": "joined"}),
		},
		{
			name:       "leave room",
			call:       func(c *Client) error { return c.LeaveRoom(context.Background(), 8) },
			wantMethod: "POST", wantPath: "/rooms/8/leave/",
			respond: respondJSON(map[string]string{"detail": "left"}),
		},
		{
			name:       "messages",
			call:       func(c *Client) error { _, err := c.Messages(context.Background(), 8); return err },
			wantMethod: "GET", wantPath: "/rooms/8/messages/",
			respond: respondJSON([]Message{}),
		},
		{
			name: "post message",
			call: func(c *Client) error {
				_, err := c.PostMessage(context.Background(), 8, "hi")
				return err
			},
			wantMethod: "POST", wantPath: "/rooms/8/messages/",
			respond: respondJSON(Message{ID: 1, Content: "hi"}),
		},
		{
			name:       "recent activities",
			call:       func(c *Client) error { _, err := c.RecentActivities(context.Background()); return err },
			wantMethod: "GET", wantPath: "/recent-activities/",
			respond: respondJSON([]Activity{}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newRecordingClient(t, tt.respond)
			require.NoError(t, tt.call(c))
			assert.Equal(t, tt.wantMethod, rec.method)
			assert.Equal(t, tt.wantPath, rec.path)
			assert.Equal(t, tt.wantQuery, rec.query)
		})
	}
}

func TestUpdateMeMultipartWithAvatar(t *testing.T) {
	avatar := filepath.Join(t.TempDir(), "avatar.png")
	require.NoError(t, os.WriteFile(avatar, []byte("png-bytes"), 0o600))

	c, _ := newRecordingClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "new bio", r.FormValue("bio"))
		assert.Equal(t, "Sam Doe", r.FormValue("full_name"))
		f, hdr, err := r.FormFile("avatar")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "avatar.png", hdr.Filename)
		json.NewEncoder(w).Encode(User{ID: 1, Username: "sam"})
	})

	user, err := c.UpdateMe(context.Background(), ProfileUpdate{
		Bio:        "new bio",
		FullName:   "Sam Doe",
		AvatarPath: avatar,
	})
	require.NoError(t, err)
	assert.Equal(t, "sam", user.Username)
}

func TestUpdateMeJSONWithoutAvatar(t *testing.T) {
	c, rec := newRecordingClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"bio": "hello"}, body)
		json.NewEncoder(w).Encode(User{ID: 1})
	})

	_, err := c.UpdateMe(context.Background(), ProfileUpdate{Bio: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "PUT", rec.method)
	assert.Equal(t, "/users/me/", rec.path)
}

func TestActivityLabels(t *testing.T) {
	tests := []struct {
		typ  string
		want string
	}{
		{"create_room", "Created Room"},
		{"join_room", "Joined Room"},
		{"leave_room", "Left Room"},
		{"post_message", "Posted Message"},
		{"update_room", "Updated Room"},
		// Unknown types pass through verbatim.
		{"pin_message", "pin_message"},
		{"", ""},
	}
	for _, tt := range tests {
		a := Activity{Type: tt.typ}
		assert.Equal(t, tt.want, a.Label())
	}
}

func TestRoomMembershipHelpers(t *testing.T) {
	r := Room{
		Creator:      3,
		Participants: []Participant{{ID: 3}, {ID: 7}},
	}
	assert.True(t, r.HasParticipant(7))
	assert.False(t, r.HasParticipant(8))
	assert.True(t, r.IsCreator(3))
	assert.False(t, r.IsCreator(7))
}
