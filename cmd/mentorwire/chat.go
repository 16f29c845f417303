package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/mentorwire/internal/client"
	"github.com/vovakirdan/mentorwire/internal/log"
	"github.com/vovakirdan/mentorwire/internal/proto"
)

type chatOptions struct {
	server string
	token  string
	userID int64
	name   string
	to     int64
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	co := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal client for direct messages",
		Long: `Reads lines from stdin and sends them as direct messages.

  <peer>:<text>      send text to peer
  <text>             send text to the --to peer
  /retry <id>        resend a failed message
  /accept <callId>   accept an incoming call
  /reject <callId>   reject an incoming call
  /end <callId>      hang up`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runChat(ctx, co, cfg.UnreadPollInterval, cfg.LogLevel, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&co.server, "server", "http://localhost:8080", "server base URL")
	f.StringVar(&co.token, "token", "", "access token from `mentorwire token`")
	f.Int64Var(&co.userID, "user-id", 0, "user id to join as")
	f.StringVar(&co.name, "name", "", "display name")
	f.Int64Var(&co.to, "to", 0, "default peer for lines without a peer prefix")
	return cmd
}

func runChat(ctx context.Context, co *chatOptions, pollEvery time.Duration, level string, in io.Reader, out io.Writer) error {
	logger := log.New(level, "")

	wsURL, err := websocketURL(co.server)
	if err != nil {
		return err
	}

	unread := &client.UnreadCounter{}
	sess, err := client.Dial(ctx, wsURL, proto.JoinData{
		UserID: co.userID,
		Token:  co.token,
		Name:   co.name,
	}, unread, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	fmt.Fprintf(out, "Connected to %s as user %d\n", wsURL, sess.UserID())
	fmt.Fprintln(out, "Type messages and press Enter to send. Ctrl+C to exit.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return readLoop(gctx, sess, unread, out) })
	if co.token != "" {
		poller := client.NewUnreadPoller(co.server, co.token, pollEvery, unread, logger)
		g.Go(func() error {
			if err := poller.Run(gctx); err != nil && gctx.Err() == nil {
				logger.Warn().Err(err).Msg("unread poller stopped")
			}
			return nil
		})
	}
	g.Go(func() error {
		err := writeLoop(gctx, sess, co.to, in, out)
		// stdin closed or user quit; tear the rest down.
		_ = sess.Close()
		return err
	})

	if err := g.Wait(); err != nil && !isQuietClose(err) {
		return err
	}
	return nil
}

func readLoop(ctx context.Context, sess *client.Session, unread *client.UnreadCounter, out io.Writer) error {
	for {
		env, err := sess.Next(ctx)
		if err != nil {
			if isQuietClose(err) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		printEnvelope(out, env, unread)
	}
}

func printEnvelope(out io.Writer, env client.Envelope, unread *client.UnreadCounter) {
	if env.Type == proto.OutboundTypeError && env.Error != nil {
		fmt.Fprintf(out, "! %s: %s\n", env.Error.Code, env.Error.Msg)
		return
	}

	switch env.Event {
	case proto.EventReceiveMessage:
		var msg proto.ChatMessage
		if json.Unmarshal(env.Data, &msg) == nil {
			fmt.Fprintf(out, "[%d] %s\n", msg.SenderID, msg.Content)
		}
	case proto.EventMessageConfirmed:
		var ack proto.EventMessageConfirmedData
		if json.Unmarshal(env.Data, &ack) == nil {
			fmt.Fprintf(out, "  sent %s (#%d)\n", ack.MessageID, ack.Seq)
		}
	case proto.EventMessageFailed:
		var failed proto.EventMessageFailedData
		if json.Unmarshal(env.Data, &failed) == nil {
			fmt.Fprintf(out, "  failed %s: %s (/retry %s)\n", failed.MessageID, failed.Error, failed.MessageID)
		}
	case proto.EventUserOnline, proto.EventUserOffline:
		var p proto.EventPresenceData
		if json.Unmarshal(env.Data, &p) == nil {
			fmt.Fprintf(out, "* user %d is %s\n", p.UserID, strings.ToLower(strings.TrimPrefix(env.Event, "user")))
		}
	case proto.EventActiveUsers:
		var users proto.EventActiveUsersData
		if json.Unmarshal(env.Data, &users) == nil {
			fmt.Fprintf(out, "* online: %v\n", users.UserIDs)
		}
	case proto.EventIncomingCall:
		var call proto.EventIncomingCallData
		if json.Unmarshal(env.Data, &call) == nil {
			fmt.Fprintf(out, "* incoming call %s from %d %s\n", call.CallID, call.CallerID, call.CallerName)
		}
	case proto.EventCallFailed, proto.EventCallAccepted, proto.EventCallRejected, proto.EventCallEnded:
		var call proto.EventCallData
		if json.Unmarshal(env.Data, &call) == nil {
			fmt.Fprintf(out, "* %s %s %s\n", env.Event, call.CallID, call.Reason)
		}
	case proto.EventNewNotification, proto.EventUnreadCount:
		fmt.Fprintf(out, "* unread notifications: %d\n", unread.Get())
	}
}

func writeLoop(ctx context.Context, sess *client.Session, defaultPeer int64, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := dispatchLine(ctx, sess, defaultPeer, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "! %v\n", err)
		}
	}
	return scanner.Err()
}

func dispatchLine(ctx context.Context, sess *client.Session, defaultPeer int64, line string) error {
	if cmd, arg, ok := strings.Cut(line, " "); ok && strings.HasPrefix(cmd, "/") {
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "/retry":
			_, err := sess.Retry(ctx, arg)
			return err
		case "/accept":
			return sess.Send(ctx, proto.InboundTypeAcceptCall, proto.AnswerCallData{CallID: arg})
		case "/reject":
			return sess.Send(ctx, proto.InboundTypeRejectCall, proto.AnswerCallData{CallID: arg})
		case "/end":
			return sess.Send(ctx, proto.InboundTypeEndCall, proto.EndCallData{CallID: arg})
		default:
			return fmt.Errorf("unknown command %s", cmd)
		}
	}

	peer, text := parseLine(line, defaultPeer)
	if peer <= 0 {
		return errors.New("no peer: use <peer>:<text> or --to")
	}
	_, err := sess.SendText(ctx, peer, text)
	return err
}

// parseLine splits "<peer>:<text>". Lines without a numeric prefix go to fallback.
func parseLine(line string, fallback int64) (int64, string) {
	head, rest, ok := strings.Cut(line, ":")
	if !ok {
		return fallback, line
	}
	peer, err := strconv.ParseInt(strings.TrimSpace(head), 10, 64)
	if err != nil {
		return fallback, line
	}
	return peer, strings.TrimSpace(rest)
}

func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

func isQuietClose(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
