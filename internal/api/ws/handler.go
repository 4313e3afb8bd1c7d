package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/pkgmgr/internal/domain/broadcast"
	"github.com/GriffinCanCode/pkgmgr/internal/infrastructure/monitoring"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced by the HTTP middleware
	},
}

// Subscriber hands out broadcast subscriptions.
type Subscriber interface {
	Subscribe(filter broadcast.Filter) *broadcast.Subscription
}

// Message is a client request or server event.
type Message struct {
	Type      string               `json:"type"`
	Message   string               `json:"message,omitempty"`
	Actions   []string             `json:"actions,omitempty"`
	Package   string               `json:"package,omitempty"`
	Target    string               `json:"target,omitempty"`
	Broadcast *broadcast.Broadcast `json:"broadcast,omitempty"`
	Timestamp int64                `json:"timestamp,omitempty"`
}

// Handler streams bus broadcasts to WebSocket clients
type Handler struct {
	bus     Subscriber
	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a new WebSocket handler. metrics may be nil.
func NewHandler(bus Subscriber, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{bus: bus, logger: logger, metrics: metrics}
}

// filterFor builds a subscription filter. Empty fields match everything.
func filterFor(actions []string, pkg, target string) broadcast.Filter {
	var filters []broadcast.Filter
	if len(actions) > 0 {
		acts := make([]broadcast.Action, len(actions))
		for i, a := range actions {
			acts[i] = broadcast.Action(a)
		}
		filters = append(filters, broadcast.Actions(acts...))
	}
	if pkg != "" {
		filters = append(filters, broadcast.ForPackage(pkg))
	}
	if target != "" {
		filters = append(filters, broadcast.ForTarget(target))
	}
	if len(filters) == 0 {
		return nil
	}
	return broadcast.And(filters...)
}

// conn serializes writes; gorilla allows one concurrent writer.
type conn struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	metrics *monitoring.Metrics
}

func (c *conn) send(msg Message) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	c.metrics.RecordWSMessage("out", msg.Type)
	return nil
}

func (c *conn) sendError(message string) error {
	return c.send(Message{Type: "error", Message: message, Timestamp: time.Now().Unix()})
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// HandleConnection upgrades the request and streams matching broadcasts.
// The initial filter comes from the action, package and target query
// parameters; a "subscribe" message replaces it.
func (h *Handler) HandleConnection(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	cn := &conn{ws: ws, metrics: h.metrics}
	sub := h.bus.Subscribe(filterFor(c.QueryArray("action"), c.Query("package"), c.Query("target")))
	defer func() { sub.Close() }()

	swaps := make(chan *broadcast.Subscription)
	go h.readLoop(ctx, cancel, cn, swaps)

	if err := cn.send(Message{Type: "system", Message: "subscribed", Timestamp: time.Now().Unix()}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case next := <-swaps:
			sub.Close()
			sub = next
			if err := cn.send(Message{Type: "subscribed", Timestamp: time.Now().Unix()}); err != nil {
				return
			}
		case bc, ok := <-sub.C():
			if !ok {
				return
			}
			if err := cn.send(Message{Type: "broadcast", Broadcast: &bc, Timestamp: bc.Time.Unix()}); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := cn.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, cancel context.CancelFunc, cn *conn, swaps chan<- *broadcast.Subscription) {
	defer cancel()

	_ = cn.ws.SetReadDeadline(time.Now().Add(pongWait))
	cn.ws.SetPongHandler(func(string) error {
		return cn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		_ = cn.ws.SetReadDeadline(time.Now().Add(pongWait))

		var msg Message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			_ = cn.sendError("invalid message")
			continue
		}
		h.metrics.RecordWSMessage("in", msg.Type)

		switch msg.Type {
		case "ping":
			_ = cn.send(Message{Type: "pong", Timestamp: time.Now().Unix()})
		case "subscribe":
			next := h.bus.Subscribe(filterFor(msg.Actions, msg.Package, msg.Target))
			select {
			case swaps <- next:
			case <-ctx.Done():
				next.Close()
				return
			}
		default:
			_ = cn.sendError("unknown message type")
		}
	}
}
