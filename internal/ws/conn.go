package ws

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/starford/maplab/internal/board"
	"github.com/starford/maplab/internal/boardservice"
	"github.com/starford/maplab/internal/models"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 64 << 10
)

var errSlowConsumer = errors.New("ws: send buffer full")

// Handler upgrades requests to the gesture channel of a room.
type Handler struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a websocket handler. checkOrigin may be nil to accept
// any origin.
func NewHandler(logger *slog.Logger, checkOrigin func(r *http.Request) bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// Serve upgrades the request and runs the connection of participant p on
// room until the client disconnects.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, room *boardservice.Room, p models.Participant) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &connection{
		conn:    conn,
		room:    room,
		ctrl:    board.NewController(room.Session(p)),
		send:    make(chan ServerMessage, sendBuffer),
		closing: make(chan struct{}),
		logger:  h.logger.With(slog.String("room", room.ID()), slog.String("user", p.Info.ID)),
	}
	c.run()
}

type connection struct {
	conn    *websocket.Conn
	room    *boardservice.Room
	ctrl    *board.Controller
	send    chan ServerMessage
	closing chan struct{}
	logger  *slog.Logger
}

func (c *connection) run() {
	sess := c.ctrl.Session()
	self := sess.Participant()
	userID := self.Info.ID

	snap := c.room.Doc().Snapshot()
	c.push(ServerMessage{
		Type:    MsgHello,
		Version: snap.Version(),
		Self:    &self,
		Notes:   snap.Notes(),
		Fonts:   board.FontPresets,
		History: historyState(sess.History()),
	})

	unsubscribe := c.room.Doc().Subscribe(func(ev board.Event) {
		c.push(ServerMessage{Type: MsgChange, Version: ev.Version, Origin: ev.Origin, Changes: ev.Changes})
	})
	toolbar, cancelToolbar := board.Watch(c.room.Doc(),
		func(s board.Snapshot) board.Toolbar { return board.ToolbarFor(s, userID) },
		board.Equal[board.Toolbar],
		func(t board.Toolbar) { c.push(ServerMessage{Type: MsgToolbar, Toolbar: &t}) },
	)
	c.push(ServerMessage{Type: MsgToolbar, Toolbar: &toolbar})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeLoop()
	}()

	c.readLoop()

	unsubscribe()
	cancelToolbar()
	c.ctrl.Close()
	close(c.closing)
	<-done
	_ = c.conn.Close()
	c.logger.Debug("ws connection closed")
}

// push queues msg without blocking the document commit path. A client that
// cannot keep up is disconnected.
func (c *connection) push(msg ServerMessage) {
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("ws client too slow, disconnecting", slog.String("error", errSlowConsumer.Error()))
		_ = c.conn.Close()
	}
}

func (c *connection) readLoop() {
	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("ws read failed", slog.String("error", err.Error()))
			}
			return
		}
		c.handle(msg)
	}
}

func (c *connection) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-c.closing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *connection) handle(msg ClientMessage) {
	ctrl := c.ctrl
	sess := ctrl.Session()
	pt := board.Point{X: msg.X, Y: msg.Y}
	wasDragging := ctrl.Dragging()

	switch msg.Type {
	case MsgCanvasOrigin:
		ctrl.SetCanvasOrigin(pt)
	case MsgNotePointerDown:
		ctrl.NotePointerDown(msg.ID, pt)
	case MsgPointerMove:
		ctrl.PointerMove(pt)
	case MsgPointerUp:
		ctrl.PointerUp()
	case MsgPointerLeave:
		ctrl.PointerLeave()
	case MsgCanvasPointerDown:
		ctrl.CanvasPointerDown()
	case MsgResizeStart:
		ctrl.ResizeStart(msg.ID)
	case MsgResize:
		if w, h, ok := ctrl.Resize(msg.Width, msg.Height); ok {
			c.push(ServerMessage{Type: MsgResize, Width: w, Height: h})
		}
		return
	case MsgResizeStop:
		ctrl.ResizeStop()
	case MsgFocus:
		ctrl.Focus(msg.ID)
	case MsgBlur:
		ctrl.Blur()
	case MsgKeyDown:
		ctrl.KeyDown(msg.Key)
	case MsgTextChange:
		ctrl.TextChange(msg.ID, msg.Text)
	case MsgPopover:
		ctrl.PopoverOpenChange(board.Popover(msg.Name), msg.Open)
	case MsgStyle:
		if msg.Patch != nil {
			ctrl.StyleChange(*msg.Patch)
		}
	case MsgFont:
		ctrl.SelectFont(msg.Label)
	case MsgAddNote:
		sess.AddNote()
	case MsgDeleteNote:
		sess.DeleteNote(msg.ID)
	case MsgUndo:
		sess.Undo()
	case MsgRedo:
		sess.Redo()
	default:
		c.push(ServerMessage{Type: MsgError, Error: "unknown message type: " + msg.Type})
		return
	}

	if msg.Type == MsgPointerMove && wasDragging {
		return
	}
	c.push(ServerMessage{Type: MsgHistory, History: historyState(sess.History()), Dragging: ctrl.Dragging()})
}
