package gamebus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ernie/craftbridge/internal/config"
	"github.com/ernie/craftbridge/internal/domain"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Subjects of the game-server protocol. The game plugin publishes events on
// game.events, serves name lookups on game.lookup, and subscribes to
// game.broadcast for lines to show in-game.
const (
	subjectEvents    = "game.events"
	subjectBroadcast = "game.broadcast"
	subjectLookup    = "game.lookup"
)

const embeddedStartTimeout = 5 * time.Second

// Bus is the connection to the game server, optionally hosting the embedded
// message server the game plugin connects to.
type Bus struct {
	conn          *nats.Conn
	srv           *server.Server
	sub           *nats.Subscription
	lookupTimeout time.Duration
}

// Start brings up the embedded server if configured and connects to the bus
func Start(cfg config.GameConfig) (*Bus, error) {
	url := cfg.BusURL

	var srv *server.Server
	if cfg.Embedded {
		opts := &server.Options{
			Host:   cfg.ListenAddr,
			Port:   cfg.ListenPort,
			NoSigs: true,
		}
		s, err := server.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("creating embedded bus server: %w", err)
		}
		go s.Start()
		if !s.ReadyForConnections(embeddedStartTimeout) {
			s.Shutdown()
			return nil, fmt.Errorf("embedded bus server not ready after %v", embeddedStartTimeout)
		}
		url = s.ClientURL()
		srv = s
		log.Printf("Gamebus: embedded server listening on %s", url)
	}

	conn, err := nats.Connect(url,
		nats.Name("craftbridge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("Gamebus: disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("Gamebus: reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		if srv != nil {
			srv.Shutdown()
		}
		return nil, fmt.Errorf("connecting to game bus: %w", err)
	}

	return &Bus{
		conn:          conn,
		srv:           srv,
		lookupTimeout: cfg.LookupTimeout,
	}, nil
}

// Close drains the connection and stops the embedded server
func (b *Bus) Close() {
	if b.sub != nil {
		b.sub.Unsubscribe()
	}
	if b.conn != nil {
		b.conn.Drain()
	}
	if b.srv != nil {
		b.srv.Shutdown()
	}
}

// SubscribeEvents decodes game events onto the returned channel. A full
// buffer drops the event rather than blocking the bus callback.
func (b *Bus) SubscribeEvents(buffer int) (<-chan domain.GameEvent, error) {
	ch := make(chan domain.GameEvent, buffer)
	sub, err := b.conn.Subscribe(subjectEvents, func(msg *nats.Msg) {
		var ev domain.GameEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Printf("Gamebus: dropping malformed event: %v", err)
			return
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now()
		}
		select {
		case ch <- ev:
		default:
			log.Printf("Gamebus: event buffer full, dropping %s event", ev.Kind)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to game events: %w", err)
	}
	b.sub = sub
	return ch, nil
}

// Broadcast publishes a line for the game server to show to all players
func (b *Bus) Broadcast(text string) error {
	if err := b.conn.Publish(subjectBroadcast, []byte(text)); err != nil {
		return fmt.Errorf("publishing broadcast: %w", err)
	}
	return nil
}

type lookupRequest struct {
	Name string `json:"name"`
}

type lookupReply struct {
	Found    bool   `json:"found"`
	GameID   string `json:"game_id"`
	GameName string `json:"game_name"`
}

// LookupPlayer asks the game server to resolve an in-game name to an account.
// Returns ErrNotFound when the server does not know the player.
func (b *Bus) LookupPlayer(ctx context.Context, gameName string) (string, string, error) {
	data, err := json.Marshal(lookupRequest{Name: gameName})
	if err != nil {
		return "", "", fmt.Errorf("encoding lookup request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.lookupTimeout)
	defer cancel()

	msg, err := b.conn.RequestWithContext(ctx, subjectLookup, data)
	if err != nil {
		return "", "", fmt.Errorf("looking up player %q: %w", gameName, err)
	}

	var reply lookupReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", "", fmt.Errorf("decoding lookup reply: %w", err)
	}
	if !reply.Found {
		return "", "", domain.ErrNotFound
	}
	return reply.GameID, reply.GameName, nil
}
