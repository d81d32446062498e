package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"taskly-chat/internal/api"
	"taskly-chat/internal/auth"
	"taskly-chat/internal/chat"
	"taskly-chat/internal/config"
	"taskly-chat/internal/logging"
	"taskly-chat/internal/models"
	"taskly-chat/internal/tracing"
	"taskly-chat/internal/ws"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join the global chat from the terminal",
		Long: `Join the global chat from the terminal.

Log in with --login (password from --password or TASKLY_PASSWORD), or pass an
identity directly with --user-id and --user-name. Lines typed on stdin are sent;
/logout drops the identity and /quit exits.`,
		RunE: runChat,
	}

	cmd.Flags().String("login", "", "email or username for POST /user/login")
	cmd.Flags().String("password", "", "password for --login")
	cmd.Flags().Int("user-id", 0, "identity id (skips login)")
	cmd.Flags().String("user-name", "", "identity display name (skips login)")

	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Init(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, ServiceName: "taskly-chat"})
	logger := logging.L()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.OTel.ServiceName, cfg.OTel.Endpoint)
	if err != nil {
		logger.Warn().Err(err).Msg("tracing disabled")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	client := api.NewClient(cfg.API.BaseURL, cfg.Chat.WSURL, cfg.API.Timeout)
	store := auth.NewStore(client)
	view := newConsoleView(cmd.OutOrStdout(), store)
	dialer := ws.NewDialer(cfg.Chat.WriteWait, logger)

	factory := func(identity *models.Identity) *chat.Session {
		view.Printf("joining global chat as %s\n", identity.Name)
		return chat.NewSession(identity, chat.Options{
			BaseURL:        cfg.Chat.WSURL,
			HistoryLimit:   cfg.Chat.HistoryLimit,
			ReconnectDelay: cfg.Chat.ReconnectDelay,
			Dialer:         dialer,
			History:        client,
			Logger:         logger,
			Listener:       view,
		})
	}
	binder := auth.NewBinder(ctx, store, factory, logger)
	defer binder.Close()

	if err := authenticate(ctx, cmd, store); err != nil {
		return err
	}

	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleLine(line, binder, store, view); done {
				return nil
			}
		}
	}
}

func authenticate(ctx context.Context, cmd *cobra.Command, store *auth.Store) error {
	login, _ := cmd.Flags().GetString("login")
	if login != "" {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = os.Getenv("TASKLY_PASSWORD")
		}
		if err := store.Login(ctx, login, password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		return nil
	}

	userID, _ := cmd.Flags().GetInt("user-id")
	userName, _ := cmd.Flags().GetString("user-name")
	userName = strings.TrimSpace(userName)
	if userID <= 0 || userName == "" {
		return errors.New("either --login or both --user-id and --user-name are required")
	}
	store.Set(&models.Identity{ID: userID, Name: userName}, "")
	return nil
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

// handleLine reports true when the client should exit.
func handleLine(line string, binder *auth.Binder, store *auth.Store, view *consoleView) bool {
	switch strings.TrimSpace(line) {
	case "/quit":
		return true
	case "/logout":
		store.Logout()
		view.Printf("logged out\n")
		return false
	}

	session := binder.Session()
	if session == nil {
		view.Printf("not logged in\n")
		return false
	}
	session.SetInput(line)
	if !session.Submit() && strings.TrimSpace(line) != "" {
		view.Printf("not sent: %s\n", session.Status())
	}
	return false
}

// consoleView renders session events as plain text lines.
type consoleView struct {
	mu    sync.Mutex
	out   io.Writer
	store *auth.Store
}

func newConsoleView(out io.Writer, store *auth.Store) *consoleView {
	return &consoleView{out: out, store: store}
}

func (v *consoleView) Printf(format string, args ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, format, args...)
}

func (v *consoleView) MessageAppended(msg models.ChatMessage) {
	v.Printf("%s\n", v.format(msg))
}

func (v *consoleView) HistoryLoaded(batch []models.ChatMessage) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, "-- %d earlier messages --\n", len(batch))
	for _, msg := range batch {
		fmt.Fprintf(v.out, "%s\n", v.format(msg))
	}
	fmt.Fprintln(v.out, "--")
}

func (v *consoleView) PresenceChanged(connected bool) {
	if connected {
		v.Printf("* connected\n")
		return
	}
	v.Printf("* reconnecting...\n")
}

func (v *consoleView) format(msg models.ChatMessage) string {
	stamp := "--:--"
	if ts, ok := msg.Timestamp(); ok {
		stamp = ts.Local().Format("15:04")
	}
	name := msg.UserName
	if msg.IsMine(v.store.Identity()) {
		name += " (you)"
	}
	return fmt.Sprintf("[%s] %s: %s", stamp, name, msg.Message)
}
