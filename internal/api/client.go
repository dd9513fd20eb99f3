// Package api is the typed surface over the MeetMind REST endpoints. Every
// method is a thin call through the transport; the backend stays the single
// source of truth and results are transient caches.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/lxxma/MeetMind/internal/apierr"
	"github.com/lxxma/MeetMind/internal/transport"
)

type Client struct {
	tr *transport.Client
}

func NewClient(tr *transport.Client) *Client {
	return &Client{tr: tr}
}

// Ping probes backend reachability without credentials. Any HTTP answer
// counts as reachable, including 401; only transport failures are errors.
func (c *Client) Ping(ctx context.Context) error {
	err := c.tr.DoPublic(ctx, "GET", "/topics/", nil, nil)
	if err == nil || !errors.Is(err, apierr.ErrUnavailable) {
		return nil
	}
	return err
}

// Me fetches the authenticated profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.tr.Do(ctx, "GET", "/users/me/", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateMe edits the profile. With an avatar file the request goes up as
// multipart, matching the backend's PUT handler; otherwise plain JSON.
func (c *Client) UpdateMe(ctx context.Context, upd ProfileUpdate) (*User, error) {
	var u User
	if upd.AvatarPath == "" {
		body := map[string]string{}
		setIf(body, "username", upd.Username)
		setIf(body, "email", upd.Email)
		setIf(body, "bio", upd.Bio)
		setIf(body, "full_name", upd.FullName)
		if err := c.tr.Do(ctx, "PUT", "/users/me/", body, &u); err != nil {
			return nil, err
		}
		return &u, nil
	}

	payload, contentType, err := multipartProfile(upd)
	if err != nil {
		return nil, err
	}
	if err := c.tr.DoBytes(ctx, "PUT", "/users/me/", contentType, payload, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteAccount removes the account and everything owned by it.
func (c *Client) DeleteAccount(ctx context.Context) error {
	return c.tr.Do(ctx, "DELETE", "/users/me/", nil, nil)
}

func (c *Client) Topics(ctx context.Context) ([]Topic, error) {
	var topics []Topic
	if err := c.tr.Do(ctx, "GET", "/topics/", nil, &topics); err != nil {
		return nil, err
	}
	return topics, nil
}

func (c *Client) Topic(ctx context.Context, id int64) (*Topic, error) {
	var t Topic
	if err := c.tr.Do(ctx, "GET", fmt.Sprintf("/topics/%d/", id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Rooms lists rooms, optionally scoped to a topic.
func (c *Client) Rooms(ctx context.Context, topicID int64) ([]Room, error) {
	path := "/rooms/"
	if topicID > 0 {
		path = fmt.Sprintf("/rooms/?topic=%d", topicID)
	}
	var rooms []Room
	if err := c.tr.Do(ctx, "GET", path, nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

func (c *Client) Room(ctx context.Context, id int64) (*Room, error) {
	var r Room
	if err := c.tr.Do(ctx, "GET", fmt.Sprintf("/rooms/%d/", id), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) CreateRoom(ctx context.Context, req RoomRequest) (*Room, error) {
	var r Room
	if err := c.tr.Do(ctx, "POST", "/rooms/create/", req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRoom edits a room. Non-creators get the backend's 403 back as
// Forbidden; there is no local permission check.
func (c *Client) UpdateRoom(ctx context.Context, id int64, req RoomRequest) (*Room, error) {
	var r Room
	if err := c.tr.Do(ctx, "PUT", fmt.Sprintf("/rooms/%d/", id), req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *Client) DeleteRoom(ctx context.Context, id int64) error {
	return c.tr.Do(ctx, "DELETE", fmt.Sprintf("/rooms/%d/", id), nil, nil)
}

func (c *Client) JoinRoom(ctx context.Context, id int64) error {
	return c.tr.Do(ctx, "POST", fmt.Sprintf("/rooms/%d/join/", id), nil, nil)
}

func (c *Client) LeaveRoom(ctx context.Context, id int64) error {
	return c.tr.Do(ctx, "POST", fmt.Sprintf("/rooms/%d/leave/", id), nil, nil)
}

// Messages returns a room's messages in backend order; the client never
// re-sorts them.
func (c *Client) Messages(ctx context.Context, roomID int64) ([]Message, error) {
	var msgs []Message
	if err := c.tr.Do(ctx, "GET", fmt.Sprintf("/rooms/%d/messages/", roomID), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (c *Client) PostMessage(ctx context.Context, roomID int64, content string) (*Message, error) {
	var m Message
	req := MessageRequest{Content: content, Room: roomID}
	if err := c.tr.Do(ctx, "POST", fmt.Sprintf("/rooms/%d/messages/", roomID), req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) RecentActivities(ctx context.Context) ([]Activity, error) {
	var acts []Activity
	if err := c.tr.Do(ctx, "GET", "/recent-activities/", nil, &acts); err != nil {
		return nil, err
	}
	return acts, nil
}

func setIf(m map[string]string, key, val string) {
	if val != "" {
		m[key] = val
	}
}

func multipartProfile(upd ProfileUpdate) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"username":  upd.Username,
		"email":     upd.Email,
		"bio":       upd.Bio,
		"full_name": upd.FullName,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("api: multipart field %s: %w", k, err)
		}
	}
	f, err := os.Open(upd.AvatarPath)
	if err != nil {
		return nil, "", fmt.Errorf("api: open avatar: %w", err)
	}
	defer f.Close()
	part, err := w.CreateFormFile("avatar", filepath.Base(upd.AvatarPath))
	if err != nil {
		return nil, "", fmt.Errorf("api: multipart avatar: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("api: copy avatar: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
