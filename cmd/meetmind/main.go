// Command meetmind is a terminal client for the MeetMind study-group
// backend. It is a thin driver over the session and view layers; all auth,
// refresh and error mapping happens below it.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lxxma/MeetMind/internal/api"
	"github.com/lxxma/MeetMind/internal/apierr"
	"github.com/lxxma/MeetMind/internal/config"
	"github.com/lxxma/MeetMind/internal/credstore"
	"github.com/lxxma/MeetMind/internal/logger"
	"github.com/lxxma/MeetMind/internal/metrics"
	"github.com/lxxma/MeetMind/internal/session"
	"github.com/lxxma/MeetMind/internal/transport"
	"github.com/lxxma/MeetMind/internal/views"
)

const usage = `Usage: meetmind <command> [flags]

Commands:
  login, signup, logout, whoami
  profile, update-profile, delete-account
  topics, topic, rooms, room, create-room, edit-room, delete-room
  join, leave, messages, send
  activity
`

type app struct {
	cfg     *config.Config
	sess    *session.Controller
	api     *api.Client
	scanner *bufio.Scanner
}

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	cfgPath := os.Getenv("MEETMIND_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Development: cfg.Log.Development, Name: "meetmind"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err := credstore.NewFileStore(cfg.Credentials.Path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "credentials:", err)
		os.Exit(1)
	}

	tr := transport.NewClient(transport.Config{
		BaseURL:         cfg.API.BaseURL,
		Timeout:         cfg.Timeout,
		BreakerFailures: uint32(cfg.Breaker.Failures),
		BreakerOpenFor:  cfg.BreakerOpenFor,
	}, store, log)
	sess := session.NewController(tr, store, log)
	tr.SetRefresher(sess)
	sess.OnExpired(func() {
		fmt.Fprintln(os.Stderr, "Session expired. Please login again.")
	})

	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Warnw("metrics listener stopped", "err", err)
			}
		}()
	}

	a := &app{cfg: cfg, sess: sess, api: api.NewClient(tr), scanner: bufio.NewScanner(os.Stdin)}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if cmd != "logout" && cmd != "whoami" {
		if err := a.waitForBackend(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "backend unreachable:", apierr.Detail(err))
			os.Exit(1)
		}
	}

	if err := a.dispatch(ctx, cmd, args); err != nil {
		if errors.Is(err, apierr.ErrUnauthenticated) {
			fmt.Fprintln(os.Stderr, "Not authenticated. Please login first.")
		} else if errors.Is(err, apierr.ErrSessionExpired) {
			// The OnExpired hook already told the user; nothing to add.
		} else {
			fmt.Fprintln(os.Stderr, "Error:", apierr.Detail(err))
		}
		os.Exit(1)
	}
}

// waitForBackend gives the backend a short window to come up before the
// first call. One-time startup courtesy, not a request-path retry.
func (a *app) waitForBackend(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 10 * time.Second
	return backoff.Retry(func() error {
		return a.api.Ping(ctx)
	}, backoff.WithContext(b, ctx))
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "signup":
		return a.signup(ctx, args)
	case "logout":
		return a.sess.Logout()
	case "whoami":
		return a.whoami()
	case "profile":
		return a.profile(ctx)
	case "update-profile":
		return a.updateProfile(ctx, args)
	case "delete-account":
		return a.deleteAccount(ctx)
	case "topics":
		return a.topics(ctx, args)
	case "topic":
		return a.topic(ctx, args)
	case "rooms":
		return a.rooms(ctx, args)
	case "room":
		return a.room(ctx, args)
	case "create-room":
		return a.createRoom(ctx, args)
	case "edit-room":
		return a.editRoom(ctx, args)
	case "delete-room":
		return a.deleteRoom(ctx, args)
	case "join":
		return a.joinLeave(ctx, args, true)
	case "leave":
		return a.joinLeave(ctx, args, false)
	case "messages":
		return a.messages(ctx, args)
	case "send":
		return a.send(ctx, args)
	case "activity":
		return a.activity(ctx)
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) prompt(label string) string {
	fmt.Printf("%s: ", label)
	if !a.scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(a.scanner.Text())
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "Account email")
	password := fs.String("password", "", "Account password (prompted when omitted)")
	fs.Parse(args)
	if *email == "" {
		*email = a.prompt("Email")
	}
	if *password == "" {
		*password = a.prompt("Password")
	}
	user, err := a.sess.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Printf("Welcome back, %s\n", user.Username)
	return nil
}

func (a *app) signup(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	username := fs.String("username", "", "Username")
	email := fs.String("email", "", "Email")
	password := fs.String("password", "", "Password (prompted when omitted)")
	fs.Parse(args)
	if *username == "" {
		*username = a.prompt("Username")
	}
	if *email == "" {
		*email = a.prompt("Email")
	}
	if *password == "" {
		*password = a.prompt("Password")
	}
	user, err := a.sess.Signup(ctx, *username, *email, *password)
	if err != nil {
		return err
	}
	fmt.Printf("Account created for %s\n", user.Username)
	return nil
}

func (a *app) whoami() error {
	if !a.sess.Authenticated() {
		fmt.Println("Not logged in.")
		return nil
	}
	if u := a.sess.CurrentUser(); u != nil {
		fmt.Printf("%s <%s> (id %d)\n", u.Username, u.Email, u.ID)
	} else {
		fmt.Println("Logged in (profile not fetched yet; run 'meetmind profile').")
	}
	return nil
}

func (a *app) profile(ctx context.Context) error {
	v := views.NewProfileView(a.api)
	defer v.Close()
	if err := v.Load(ctx); err != nil {
		return err
	}
	u := v.User()
	fmt.Printf("Username:  %s\nEmail:     %s\nFull name: %s\nBio:       %s\n",
		u.Username, u.Email, u.Profile.FullName, u.Profile.Bio)
	return nil
}

func (a *app) updateProfile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("update-profile", flag.ExitOnError)
	username := fs.String("username", "", "New username")
	email := fs.String("email", "", "New email")
	bio := fs.String("bio", "", "New bio")
	fullName := fs.String("full-name", "", "New full name")
	avatar := fs.String("avatar", "", "Path to avatar image")
	fs.Parse(args)

	v := views.NewProfileView(a.api)
	defer v.Close()
	user, err := v.Update(ctx, api.ProfileUpdate{
		Username:   *username,
		Email:      *email,
		Bio:        *bio,
		FullName:   *fullName,
		AvatarPath: *avatar,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Profile updated for %s\n", user.Username)
	return nil
}

func (a *app) deleteAccount(ctx context.Context) error {
	if a.prompt("Type 'delete' to confirm account deletion") != "delete" {
		fmt.Println("Aborted.")
		return nil
	}
	if err := a.api.DeleteAccount(ctx); err != nil {
		return err
	}
	_ = a.sess.Logout()
	fmt.Println("Account deleted.")
	return nil
}

func (a *app) topics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("topics", flag.ExitOnError)
	query := fs.String("q", "", "Filter topics by name")
	fs.Parse(args)

	v := views.NewTopicsView(a.api)
	defer v.Close()
	if err := v.Load(ctx); err != nil {
		return err
	}
	v.SetQuery(*query)
	for _, t := range v.Topics() {
		fmt.Printf("%4d  %-30s %d rooms\n", t.ID, t.Name, t.RoomCount)
	}
	return nil
}

func (a *app) topic(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("topic", flag.ExitOnError)
	id := fs.Int64("id", 0, "Topic ID")
	fs.Parse(args)
	if *id == 0 {
		return errors.New("--id required")
	}
	t, err := a.api.Topic(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n%s\n", t.Name, t.Description)
	return nil
}

func (a *app) rooms(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rooms", flag.ExitOnError)
	topicID := fs.Int64("topic", 0, "Only rooms for this topic ID")
	query := fs.String("q", "", "Filter rooms by name")
	fs.Parse(args)

	v := views.NewRoomsView(a.api, *topicID)
	defer v.Close()
	if err := v.Load(ctx); err != nil {
		return err
	}
	v.SetQuery(*query)
	for _, r := range v.Rooms() {
		fmt.Printf("%4d  %-30s [%s] %d participants\n", r.ID, r.Name, r.Topic, len(r.Participants))
	}
	return nil
}

func (a *app) room(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("room", flag.ExitOnError)
	id := fs.Int64("id", 0, "Room ID")
	fs.Parse(args)
	if *id == 0 {
		return errors.New("--id required")
	}

	v := views.NewRoomView(a.api, *id)
	defer v.Close()
	if err := v.Load(ctx); err != nil {
		return err
	}
	r := v.Room()
	fmt.Printf("%s [%s]\n%s\n", r.Name, r.Topic, r.Description)
	if u := a.sess.CurrentUser(); u != nil && r.HasParticipant(u.ID) {
		fmt.Println("You are a participant.")
	}
	fmt.Printf("-- %d messages --\n", len(v.Messages()))
	for _, m := range v.Messages() {
		fmt.Printf("[%s] user %d: %s\n", m.CreatedAt, m.Author, m.Content)
	}
	return nil
}

func (a *app) createRoom(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-room", flag.ExitOnError)
	name := fs.String("name", "", "Room name")
	desc := fs.String("description", "", "Room description")
	topic := fs.String("topic", "", "Topic name")
	fs.Parse(args)
	if *name == "" || *desc == "" || *topic == "" {
		return errors.New("--name, --description and --topic are required")
	}
	r, err := a.api.CreateRoom(ctx, api.RoomRequest{Name: *name, Description: *desc, Topic: *topic})
	if err != nil {
		return err
	}
	fmt.Printf("Created room %d: %s\n", r.ID, r.Name)
	return nil
}

func (a *app) editRoom(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("edit-room", flag.ExitOnError)
	id := fs.Int64("id", 0, "Room ID")
	name := fs.String("name", "", "New name")
	desc := fs.String("description", "", "New description")
	topic := fs.String("topic", "", "New topic name")
	fs.Parse(args)
	if *id == 0 {
		return errors.New("--id required")
	}
	r, err := a.api.UpdateRoom(ctx, *id, api.RoomRequest{Name: *name, Description: *desc, Topic: *topic})
	if err != nil {
		return err
	}
	fmt.Printf("Updated room %d: %s\n", r.ID, r.Name)
	return nil
}

func (a *app) deleteRoom(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete-room", flag.ExitOnError)
	id := fs.Int64("id", 0, "Room ID")
	fs.Parse(args)
	if *id == 0 {
		return errors.New("--id required")
	}
	if err := a.api.DeleteRoom(ctx, *id); err != nil {
		return err
	}
	fmt.Println("Room deleted.")
	return nil
}

func (a *app) joinLeave(ctx context.Context, args []string, join bool) error {
	name := "leave"
	if join {
		name = "join"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	id := fs.Int64("id", 0, "Room ID")
	fs.Parse(args)
	if *id == 0 {
		return errors.New("--id required")
	}
	var err error
	if join {
		err = a.api.JoinRoom(ctx, *id)
	} else {
		err = a.api.LeaveRoom(ctx, *id)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Room %d: %s ok\n", *id, name)
	return nil
}

func (a *app) messages(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("messages", flag.ExitOnError)
	id := fs.Int64("room", 0, "Room ID")
	fs.Parse(args)
	if *id == 0 {
		return errors.New("--room required")
	}
	msgs, err := a.api.Messages(ctx, *id)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		fmt.Printf("[%s] user %d: %s\n", m.CreatedAt, m.Author, m.Content)
	}
	return nil
}

func (a *app) send(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	id := fs.Int64("room", 0, "Room ID")
	content := fs.String("message", "", "Message content")
	fs.Parse(args)
	if *id == 0 {
		return errors.New("--room required")
	}
	if strings.TrimSpace(*content) == "" {
		return errors.New("message cannot be empty")
	}
	msg, err := a.api.PostMessage(ctx, *id, *content)
	if err != nil {
		return err
	}
	fmt.Printf("Sent message %d\n", msg.ID)
	return nil
}

func (a *app) activity(ctx context.Context) error {
	v := views.NewActivityView(a.api)
	defer v.Close()
	if err := v.Load(ctx); err != nil {
		return err
	}
	acts := v.Activities()
	if len(acts) == 0 {
		fmt.Println("No recent activity.")
		return nil
	}
	for _, act := range acts {
		fmt.Printf("%-16s %s  (%s)\n", act.Label(), act.Description, act.Timestamp)
	}
	return nil
}
