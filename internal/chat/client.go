package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ernie/craftbridge/internal/config"
	"github.com/ernie/craftbridge/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zlib"
)

// Gateway op codes
const (
	opDispatch     = 0
	opHeartbeat    = 1
	opIdentify     = 2
	opHello        = 10
	opHeartbeatACK = 11
)

// Gateway intents: guild messages plus message content
const identifyIntents = (1 << 9) | (1 << 15)

const (
	writeTimeout     = 10 * time.Second
	maxReconnectWait = 60 * time.Second
)

// payload is the gateway frame envelope
type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  int64           `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type messageCreateData struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Author    struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Bot      bool   `json:"bot"`
	} `json:"author"`
}

// Client maintains a gateway session with the chat platform and sends
// messages through its REST API. Inbound messages are handed to OnMessage.
type Client struct {
	cfg  config.ChatConfig
	http *http.Client

	// OnMessage receives every MESSAGE_CREATE dispatch. Set before Run.
	OnMessage func(domain.ChatMessage)
}

// New creates a chat client
func New(cfg config.ChatConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// Run maintains the gateway connection, reconnecting with capped backoff
// until the context is canceled.
func (c *Client) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		started := time.Now()
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Chat: gateway session ended: %v", err)
		}
		if ctx.Err() != nil {
			return
		}

		// A session that held for a while earns a fresh backoff
		if time.Since(started) > time.Minute {
			backoff = time.Second
		}

		log.Printf("Chat: reconnecting in %v", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// gatewayConn serializes frame writes. The session loop and the heartbeat
// goroutine both write, and the websocket allows only one concurrent writer.
type gatewayConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (g *gatewayConn) writeFrame(p payload) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return g.conn.WriteJSON(p)
}

func (g *gatewayConn) Close() error {
	return g.conn.Close()
}

// session runs one gateway connection to completion
func (c *Client) session(ctx context.Context) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.GatewayURL, nil)
	if err != nil {
		return fmt.Errorf("dialing gateway: %w", err)
	}
	conn := &gatewayConn{conn: ws}
	defer conn.Close()

	// Close the socket when the context goes away so the read loop unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	frames, err := c.decodeFrames(ws)
	if err != nil {
		return err
	}

	var seq atomic.Int64
	heartbeatStop := make(chan struct{})
	defer close(heartbeatStop)

	for p := range frames {
		if p.S != 0 {
			seq.Store(p.S)
		}

		switch p.Op {
		case opHello:
			var hello helloData
			if err := json.Unmarshal(p.D, &hello); err != nil {
				return fmt.Errorf("decoding hello: %w", err)
			}
			if err := c.identify(conn); err != nil {
				return err
			}
			go c.heartbeatLoop(conn, time.Duration(hello.HeartbeatInterval)*time.Millisecond, &seq, heartbeatStop)

		case opHeartbeat:
			if err := conn.writeFrame(payload{Op: opHeartbeat, D: marshalSeq(seq.Load())}); err != nil {
				return err
			}

		case opHeartbeatACK:
			// nothing to do

		case opDispatch:
			if p.T == "MESSAGE_CREATE" {
				c.dispatchMessage(p.D)
			}
		}
	}

	return fmt.Errorf("gateway connection closed")
}

// decodeFrames turns the websocket into a channel of payloads, inflating the
// zlib transport stream when the gateway URL requests it.
func (c *Client) decodeFrames(conn *websocket.Conn) (<-chan payload, error) {
	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := pw.Write(data); err != nil {
				return
			}
		}
	}()

	var src io.Reader = pr
	if strings.Contains(c.cfg.GatewayURL, "zlib-stream") {
		zr, err := zlib.NewReader(pr)
		if err != nil {
			return nil, fmt.Errorf("opening transport stream: %w", err)
		}
		src = zr
	}

	frames := make(chan payload)
	dec := json.NewDecoder(src)
	go func() {
		defer close(frames)
		for {
			var p payload
			if err := dec.Decode(&p); err != nil {
				return
			}
			frames <- p
		}
	}()
	return frames, nil
}

func (c *Client) identify(conn *gatewayConn) error {
	identify := map[string]any{
		"token":   c.cfg.Token,
		"intents": identifyIntents,
		"properties": map[string]string{
			"os":      "linux",
			"browser": "craftbridge",
			"device":  "craftbridge",
		},
	}
	data, err := json.Marshal(identify)
	if err != nil {
		return fmt.Errorf("encoding identify: %w", err)
	}
	return conn.writeFrame(payload{Op: opIdentify, D: data})
}

func (c *Client) heartbeatLoop(conn *gatewayConn, interval time.Duration, seq *atomic.Int64, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 41250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.writeFrame(payload{Op: opHeartbeat, D: marshalSeq(seq.Load())}); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (c *Client) dispatchMessage(data json.RawMessage) {
	if c.OnMessage == nil {
		return
	}
	var m messageCreateData
	if err := json.Unmarshal(data, &m); err != nil {
		log.Printf("Chat: dropping malformed message event: %v", err)
		return
	}
	c.OnMessage(domain.ChatMessage{
		ChannelID:  m.ChannelID,
		AuthorID:   m.Author.ID,
		AuthorName: m.Author.Username,
		IsBot:      m.Author.Bot,
		Content:    m.Content,
	})
}

func marshalSeq(seq int64) json.RawMessage {
	if seq == 0 {
		return json.RawMessage("null")
	}
	data, _ := json.Marshal(seq)
	return data
}

// SendMessage posts content to a channel through the REST API
func (c *Client) SendMessage(channelID, content string) error {
	body, err := json.Marshal(map[string]string{
		"content": content,
		"nonce":   uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", c.cfg.APIURL, channelID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sending message: unexpected status %s", resp.Status)
	}
	return nil
}
