package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stellarlinkco/todoclaw/internal/bus"
	"github.com/stellarlinkco/todoclaw/internal/config"
)

const WebChannelName = "web"

type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

type wsClient struct {
	id     string
	userID string
	room   string
	conn   *websocket.Conn
}

// WebChannel serves a websocket chat endpoint. A client joins with
// ?user=<id>[&name=<display>][&room=<room>]; without a room the client is
// in a direct chat with the bot whose chat id is its user id.
type WebChannel struct {
	BaseChannel
	addr   string
	server *http.Server
	log    *zap.Logger

	mu      sync.RWMutex
	clients map[string]*wsClient
	nextID  atomic.Int64
}

func NewWebChannel(cfg config.WebConfig, gwCfg config.GatewayConfig, b *bus.MessageBus, log *zap.Logger) (*WebChannel, error) {
	port := gwCfg.Port
	if port == 0 {
		port = config.DefaultPort
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebChannel{
		BaseChannel: NewBaseChannel(WebChannelName, b, cfg.AllowFrom),
		addr:        fmt.Sprintf("%s:%d", gwCfg.Host, port),
		log:         log.Named("web"),
		clients:     make(map[string]*wsClient),
	}, nil
}

// Handler returns the HTTP routes of the channel.
func (w *WebChannel) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ginZapMiddleware(w.log))

	r.GET("/healthz", w.handleHealth)
	r.GET("/ws", w.handleWS)
	return r
}

func (w *WebChannel) Start(ctx context.Context) error {
	w.server = &http.Server{
		Addr:              w.addr,
		Handler:           w.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		w.log.Info("listening", zap.String("addr", w.addr))
		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			w.log.Error("server error", zap.Error(err))
		}
	}()
	return nil
}

func (w *WebChannel) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"clients": w.clientCount(),
	})
}

func (w *WebChannel) handleWS(c *gin.Context) {
	userID := c.Query("user")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user query parameter is required"})
		return
	}
	if !w.IsAllowed(userID) {
		w.log.Info("rejected connection", zap.String("user", userID))
		c.JSON(http.StatusForbidden, gin.H{"error": "user not allowed"})
		return
	}
	name := c.DefaultQuery("name", userID)
	room := c.Query("room")

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		w.log.Warn("websocket accept failed", zap.Error(err))
		return
	}

	client := &wsClient{
		id:     fmt.Sprintf("web-%d", w.nextID.Add(1)),
		userID: userID,
		room:   room,
		conn:   conn,
	}
	w.mu.Lock()
	w.clients[client.id] = client
	w.mu.Unlock()
	w.log.Debug("client connected", zap.String("client", client.id), zap.String("user", userID), zap.String("room", room))

	defer func() {
		w.mu.Lock()
		delete(w.clients, client.id)
		w.mu.Unlock()
		conn.CloseNow()
		w.log.Debug("client disconnected", zap.String("client", client.id))
	}()

	chatID := room
	if chatID == "" {
		chatID = userID
	}

	ctx := c.Request.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != "message" || msg.Content == "" {
			continue
		}

		// The web client always talks to the bot, so every message counts
		// as addressed.
		select {
		case w.bus.Inbound <- bus.InboundMessage{
			Channel:    WebChannelName,
			SenderID:   userID,
			SenderName: name,
			ChatID:     chatID,
			Content:    msg.Content,
			Direct:     room == "",
			Mentioned:  true,
			Timestamp:  time.Now(),
			Metadata:   map[string]any{"client_id": client.id},
		}:
		case <-ctx.Done():
			return
		}
	}
}

// Send writes the message to every connected client in the target chat:
// clients in that room, or the user's own direct connections.
func (w *WebChannel) Send(msg bus.OutboundMessage) error {
	data, err := json.Marshal(wsMessage{Type: "message", Content: msg.Content})
	if err != nil {
		return err
	}

	w.mu.RLock()
	var targets []*wsClient
	for _, c := range w.clients {
		if c.room == msg.ChatID || (c.room == "" && c.userID == msg.ChatID) {
			targets = append(targets, c)
		}
	}
	w.mu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("no web client connected for chat %s", msg.ChatID)
	}

	var errs []error
	for _, c := range targets {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
			errs = append(errs, fmt.Errorf("write to %s: %w", c.id, err))
		}
		cancel()
	}
	return errors.Join(errs...)
}

func (w *WebChannel) Stop() error {
	if w.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.server.Shutdown(ctx); err != nil {
			w.log.Warn("shutdown error", zap.Error(err))
		}
	}
	w.mu.Lock()
	for _, c := range w.clients {
		c.conn.CloseNow()
	}
	w.mu.Unlock()
	w.log.Info("stopped")
	return nil
}

func (w *WebChannel) clientCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.clients)
}
