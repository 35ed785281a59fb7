package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/ronalddlopez/housecat/internal/domain"
	"github.com/ronalddlopez/housecat/internal/livestream"
)

// NewTailCommand creates the tail command.
func NewTailCommand() *cobra.Command {
	var server, after string

	cmd := &cobra.Command{
		Use:   "tail <test_id>",
		Short: "Follow a test's live event stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			t := &tailer{
				server: server,
				testID: args[0],
				cursor: after,
				out:    cmd.OutOrStdout(),
				styles: defaultStyles(),
			}
			return t.run(ctx)
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "housecat server URL")
	cmd.Flags().StringVar(&after, "after", "", "resume after this event id")
	return cmd
}

type tailer struct {
	server string
	testID string
	cursor string
	out    io.Writer
	styles styles
}

// run follows the stream, reconnecting with the last seen id when the
// connection drops, until ctx is done or the server closes normally.
func (t *tailer) run(ctx context.Context) error {
	for {
		err := t.follow(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			fmt.Fprintln(t.out, t.styles.muted.Render("stream closed"))
			return nil
		}
		var dialErr *dialError
		if errors.As(err, &dialErr) {
			return err
		}
		fmt.Fprintln(t.out, t.styles.muted.Render("connection lost, reconnecting"))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

type dialError struct{ err error }

func (e *dialError) Error() string { return "dial: " + e.err.Error() }
func (e *dialError) Unwrap() error { return e.err }

func (t *tailer) follow(ctx context.Context) error {
	target, err := StreamURL(t.server, t.testID, t.cursor)
	if err != nil {
		return &dialError{err: err}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return &dialError{err: err}
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var frame livestream.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		t.cursor = frame.ID
		fmt.Fprintln(t.out, t.styles.format(frame))
	}
}

// StreamURL builds the WebSocket live stream URL for a test.
func StreamURL(server, testID, cursor string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/tests/" + url.PathEscape(testID) + "/live/ws"
	q := u.Query()
	if cursor != "" {
		q.Set("last_event_id", cursor)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type styles struct {
	id      lipgloss.Style
	kind    lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		id:      lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		kind:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		failure: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
}

// format renders one frame as "<id> <time> <type> <message>".
func (s styles) format(frame livestream.Frame) string {
	var data map[string]string
	if err := json.Unmarshal(frame.Event, &data); err != nil {
		return s.id.Render(frame.ID) + " " + string(frame.Event)
	}

	ts := data[domain.EventKeyTimestamp]
	if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		ts = parsed.Local().Format("15:04:05")
	}

	eventType := domain.EventType(data[domain.EventKeyType])
	message := data[domain.EventKeyMessage]
	switch {
	case eventType == domain.EventTypeError, data["passed"] == "false":
		message = s.failure.Render(message)
	case data["passed"] == "true":
		message = s.success.Render(message)
	}

	return fmt.Sprintf("%s %s %s %s",
		s.id.Render(frame.ID),
		s.muted.Render(ts),
		s.kind.Render(fmt.Sprintf("%-16s", eventType)),
		message)
}
