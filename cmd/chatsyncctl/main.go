package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nestiq/chatsync/internal/auth"
	"github.com/nestiq/chatsync/internal/cache"
	"github.com/nestiq/chatsync/internal/config"
	"github.com/nestiq/chatsync/internal/conversation"
	"github.com/nestiq/chatsync/internal/dispatch"
	"github.com/nestiq/chatsync/internal/resolver"
	"github.com/nestiq/chatsync/internal/rest"
	"github.com/nestiq/chatsync/internal/session"
	"go.uber.org/zap"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	guestName := flag.String("name", "", "guest sender name (send only)")
	guestEmail := flag.String("email", "", "guest sender email (send only)")
	guestPhone := flag.String("phone", "", "guest sender phone (send only)")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "conversations":
		cmdConversations(sessionName, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chatsyncctl messages <conversation-id>")
			os.Exit(1)
		}
		cmdMessages(sessionName, args[1], *jsonFlag)
	case "status":
		cmdStatus(sessionName, *jsonFlag)
	case "send":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chatsyncctl send <text>")
			os.Exit(1)
		}
		var guest *conversation.GuestInfo
		if *guestName != "" || *guestEmail != "" {
			guest = &conversation.GuestInfo{Name: *guestName, Email: *guestEmail, Phone: *guestPhone}
		}
		cmdSend(sessionName, args[1], guest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatsyncctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  conversations        List mirrored conversations")
	fmt.Fprintln(os.Stderr, "  messages <id>        Show a conversation's mirrored messages")
	fmt.Fprintln(os.Stderr, "  status               Show mirror sync status")
	fmt.Fprintln(os.Stderr, "  send <text>          Send a message (use --name/--email for guest)")
}

func openCache(sessionName string) *cache.DB {
	db, err := cache.Open(session.CacheDBPath(sessionName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot open cache for session %q: %v\n", sessionName, err)
		os.Exit(1)
	}
	if _, err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return db
}

func cmdConversations(sessionName string, jsonOut bool) {
	db := openCache(sessionName)
	defer func() { _ = db.Close() }()

	convs, err := db.ListConversations(50, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(convs)
		return
	}
	if len(convs) == 0 {
		fmt.Println("No conversations mirrored yet.")
		return
	}
	for _, c := range convs {
		title := c.PropertyTitle
		if title == "" {
			title = c.PropertyID
		}
		fmt.Printf("%-36s unread=%-3d %-30s %s\n", c.ID, c.UnreadCount, title, c.LastMessage)
	}
}

func cmdMessages(sessionName, conversationID string, jsonOut bool) {
	db := openCache(sessionName)
	defer func() { _ = db.Close() }()

	msgs, err := db.ListMessages(conversationID, 200)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	if len(msgs) == 0 {
		fmt.Println("No messages mirrored for this conversation.")
		return
	}
	for _, m := range msgs {
		ts := "-"
		if m.Timestamp > 0 {
			ts = time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04")
		}
		read := " "
		if m.Read {
			read = "r"
		}
		fmt.Printf("%s [%s]%s %s\n", ts, m.SenderRole, read, m.Body)
	}
}

func cmdStatus(sessionName string, jsonOut bool) {
	db := openCache(sessionName)
	defer func() { _ = db.Close() }()

	checkpoint, err := db.GetState("last_synced_at")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	count, err := db.CountConversations()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if jsonOut {
		outputJSON(map[string]any{
			"session":        sessionName,
			"conversations":  count,
			"last_synced_at": checkpoint,
		})
		return
	}
	fmt.Printf("Session: %s\n", sessionName)
	fmt.Printf("Conversations mirrored: %d\n", count)
	if checkpoint == "" {
		fmt.Println("Last sync: never")
	} else {
		fmt.Printf("Last sync: %s\n", checkpoint)
	}
}

// cmdSend talks to the backend directly; it does not need the daemon.
func cmdSend(sessionName, text string, guest *conversation.GuestInfo) {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var creds *auth.Credentials
	if guest == nil {
		creds, err = auth.Load(session.CredentialsPath(sessionName))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v (use --name/--email to send as guest)\n", err)
			os.Exit(1)
		}
	}

	convID, err := runSend(cfg, creds, text, guest)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sent to conversation %s\n", convID)
}

// runSend resolves the conversation and dispatches one message. A guest
// carries no credential and cannot have an existing conversation, so the
// pre-send lookup is skipped and the dispatcher takes the inquiry path.
func runSend(cfg *config.Config, creds *auth.Credentials, text string, guest *conversation.GuestInfo) (string, error) {
	role := conversation.Role(cfg.Identity.Role)
	clientID, agentID := cfg.Identity.UserID, cfg.Watch.PeerID
	if role == conversation.RoleAgent {
		clientID, agentID = cfg.Watch.PeerID, cfg.Identity.UserID
	}

	var tokens rest.TokenSource
	if creds != nil {
		tokens = creds
	}
	api := rest.NewClient(cfg.API.BaseURL, tokens, time.Duration(cfg.API.TimeoutSeconds)*time.Second)
	logger := zap.NewNop()
	res := resolver.New(api, clientID, agentID, cfg.Watch.PropertyID, conversation.Fallbacks{}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store := conversation.NewStore()
	if guest == nil {
		conv, err := res.Fetch(ctx)
		if err != nil {
			return "", err
		}
		store.Initialize(conv)
	}

	d := dispatch.New(dispatch.Config{
		API:        api,
		Refresher:  res,
		Store:      store,
		Creds:      tokens,
		Role:       role,
		UserID:     cfg.Identity.UserID,
		PeerID:     cfg.Watch.PeerID,
		PropertyID: cfg.Watch.PropertyID,
		Logger:     logger,
	})
	if err := d.Send(ctx, text, guest); err != nil {
		return "", err
	}
	return store.ID(), nil
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
