package ws

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ihazratummar/Neat-Roots-Chat-app/chat"
	"github.com/ihazratummar/Neat-Roots-Chat-app/client"
	"github.com/ihazratummar/Neat-Roots-Chat-app/common/apperr"
	"github.com/ihazratummar/Neat-Roots-Chat-app/status"
	"github.com/ihazratummar/Neat-Roots-Chat-app/user"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	readLimit  = 64 * 1024
	sendBuffer = 64
)

// peer is one open connection. Only writePump writes to conn and only
// readPump reads from it.
type peer struct {
	conn   *websocket.Conn
	client *client.Client
	userID string
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	send   chan Frame
}

func newPeer(conn *websocket.Conn, cl *client.Client, userID string, log *slog.Logger) *peer {
	ctx, cancel := context.WithCancel(context.Background())
	return &peer{
		conn:   conn,
		client: cl,
		userID: userID,
		log:    log.With("userId", userID),
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan Frame, sendBuffer),
	}
}

// run blocks until the connection is gone, then releases the client.
func (p *peer) run() {
	p.log.Debug("connected")
	defer p.log.Debug("disconnected")

	unsubscribe := p.watch()
	defer func() {
		for _, fn := range unsubscribe {
			fn()
		}
		p.client.Close()
	}()

	go p.notices()
	go p.writePump()
	p.readPump()
}

// push queues f for writing. A peer that falls a full buffer behind is
// disconnected rather than stalling the session's event loop.
func (p *peer) push(f Frame) {
	select {
	case p.send <- f:
	case <-p.ctx.Done():
	default:
		p.log.Warn("send buffer full, dropping connection")
		p.cancel()
	}
}

func (p *peer) watch() []func() {
	c := p.client
	return []func(){
		c.Users.Profile.Subscribe(func(profile *user.Profile) {
			p.push(Frame{Type: FrameProfile, Data: profile})
		}),
		c.Chats.Chats.Subscribe(func(rels []chat.Relationship) {
			p.push(Frame{Type: FrameChats, Data: rels})
		}),
		c.Messages.Messages.Subscribe(func(msgs []chat.Message) {
			p.push(Frame{Type: FrameMessages, Data: MessagesView{ChatID: c.Messages.Active(), Messages: msgs}})
		}),
		c.Status.Statuses.Subscribe(func(posts []status.Post) {
			p.push(Frame{Type: FrameStatus, Data: status.Group(posts, p.userID)})
		}),
	}
}

func (p *peer) notices() {
	for {
		n, err := p.client.Session.Notices.Next(p.ctx)
		if err != nil {
			return
		}
		p.push(Frame{Type: FrameNotice, Data: n})
	}
}

func (p *peer) readPump() {
	defer p.cancel()

	p.conn.SetReadLimit(readLimit)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req Request
		if err := p.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.log.Info("connection lost", "err", err)
			}
			return
		}
		p.handle(req)
	}
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case f := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(f); err != nil {
				p.cancel()
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.cancel()
				return
			}
		case <-p.ctx.Done():
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// -- REQUESTS --------------------------------------------------------------------

func (p *peer) handle(req Request) {
	data, err := p.dispatch(req)
	if err != nil {
		p.push(Frame{Type: FrameError, Data: Failure{ID: req.ID, Code: apperr.CodeOf(err), Message: apperr.Message(err)}})
		return
	}
	p.push(Frame{Type: FrameAck, Data: Ack{ID: req.ID, Data: data}})
}

func (p *peer) dispatch(req Request) (any, error) {
	c := p.client
	switch req.Type {
	case RequestOpen:
		if _, err := c.Chats.Get(p.ctx, p.userID, req.ChatID); err != nil {
			return nil, err
		}
		return nil, c.Messages.Activate(req.ChatID)

	case RequestClose:
		c.Messages.Deactivate()
		return nil, nil

	case RequestSend:
		if _, err := c.Chats.Get(p.ctx, p.userID, req.ChatID); err != nil {
			return nil, err
		}
		return nil, c.Messages.Send(p.ctx, req.ChatID, p.userID, req.Body)

	case RequestAddChat:
		return c.Chats.RequestNewChat(p.ctx, req.Phone)

	case RequestSignOut:
		c.Users.SignOut()
		return nil, nil
	}
	return nil, apperr.Validation("unknown request " + req.Type)
}
