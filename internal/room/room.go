package room

import (
	"math/rand"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/aolo2/desk/internal/db"
	"github.com/aolo2/desk/internal/geometry"
	"github.com/aolo2/desk/internal/protocol"
)

const (
	DefaultWidth uint32 = 5
	DefaultColor uint32 = 0x000000
)

// Conn is the outbound half of a connection, as the room sees it. Send
// must not block; it reports false when the connection cannot keep up.
type Conn interface {
	Send(data []byte) bool
	Close() error
}

// Session is the live server-side state for one connected user. It is
// owned exclusively by its Room's run loop; nothing outside the loop may
// touch it after Join returns.
type Session struct {
	UserID uint32
	Color  uint32
	Width  uint32

	// current is non-nil exactly while the user is mid-stroke.
	current []protocol.Point

	conn Conn
}

// Drawing reports whether the session has a stroke in progress.
func (s *Session) Drawing() bool { return s.current != nil }

type joinRequest struct {
	conn  Conn
	reply chan *Session
}

type frame struct {
	sess *Session
	data []byte
}

// Room owns all live state for one desk: the session set and the relay
// loop. Every mutation goes through the single run goroutine, so state for
// a desk is never touched concurrently. Rooms for different desks are
// fully independent.
type Room struct {
	deskID int64
	store  *db.Store

	joins  chan joinRequest
	leaves chan *Session
	frames chan frame

	// Owned by run.
	sessions map[uint32]*Session
	order    []*Session

	count atomic.Int64
	log   *logrus.Entry
}

func newRoom(deskID int64, store *db.Store) *Room {
	r := &Room{
		deskID:   deskID,
		store:    store,
		joins:    make(chan joinRequest),
		leaves:   make(chan *Session),
		frames:   make(chan frame, 256),
		sessions: make(map[uint32]*Session),
		log:      logrus.WithFields(logrus.Fields{"component": "room", "desk_id": deskID}),
	}
	go r.run()
	return r
}

// DeskID returns the desk this room serves.
func (r *Room) DeskID() int64 { return r.deskID }

// SessionCount returns the number of currently attached sessions.
func (r *Room) SessionCount() int { return int(r.count.Load()) }

// Join attaches a connection to the room. It assigns a fresh user id,
// sends the INIT snapshot to the new session and announces it to everyone
// else. Blocks until the room's loop has registered the session.
func (r *Room) Join(conn Conn) *Session {
	req := joinRequest{conn: conn, reply: make(chan *Session, 1)}
	r.joins <- req
	return <-req.reply
}

// Leave detaches a session. Any in-progress stroke is discarded without a
// trace; the rest of the room is told the user is gone.
func (r *Room) Leave(sess *Session) {
	r.leaves <- sess
}

// Forward hands one raw inbound wire message to the room's loop.
func (r *Room) Forward(sess *Session, data []byte) {
	r.frames <- frame{sess: sess, data: data}
}

func (r *Room) run() {
	for {
		select {
		case req := <-r.joins:
			r.handleJoin(req)
		case sess := <-r.leaves:
			r.handleLeave(sess)
		case f := <-r.frames:
			r.handleFrame(f)
		}
	}
}

func (r *Room) handleJoin(req joinRequest) {
	uid := rand.Uint32()
	for _, taken := r.sessions[uid]; taken; _, taken = r.sessions[uid] {
		uid = rand.Uint32()
	}

	sess := &Session{
		UserID: uid,
		Color:  DefaultColor,
		Width:  DefaultWidth,
		conn:   req.conn,
	}

	r.sessions[uid] = sess
	r.order = append(r.order, sess)
	r.count.Store(int64(len(r.sessions)))

	// The snapshot includes the joiner itself, with default style and no
	// in-progress stroke.
	init, err := r.buildInit(uid)
	if err != nil {
		// The joiner still gets the live-session part of the snapshot;
		// persisted history is whatever resolved.
		r.log.WithError(err).Error("Failed to load desk snapshot")
	}
	sess.conn.Send(init.Encode())

	r.broadcast(protocol.UserConnect{UserID: uid}.Encode(), sess)

	r.log.WithFields(logrus.Fields{"user_id": uid, "total": len(r.sessions)}).Info("User joined")
	req.reply <- sess
}

func (r *Room) handleLeave(sess *Session) {
	if r.sessions[sess.UserID] != sess {
		return
	}
	delete(r.sessions, sess.UserID)
	for i, s := range r.order {
		if s == sess {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.count.Store(int64(len(r.sessions)))

	// An abandoned stroke leaves no trace.
	sess.current = nil

	r.broadcast(protocol.UserDisconnect{UserID: sess.UserID}.Encode(), nil)
	r.log.WithFields(logrus.Fields{"user_id": sess.UserID, "remaining": len(r.sessions)}).Info("User left")
}

func (r *Room) handleFrame(f frame) {
	// The session may have been detached while this frame sat in the
	// queue.
	if r.sessions[f.sess.UserID] != f.sess {
		return
	}

	msg, err := protocol.Decode(f.data)
	if err != nil {
		r.log.WithError(err).WithField("user_id", f.sess.UserID).Warn("Dropping malformed message")
		return
	}

	switch m := msg.(type) {
	case protocol.StrokeStart:
		r.handleStrokeStart(f.sess, m, f.data)
	case protocol.Draw:
		r.handleDraw(f.sess, m, f.data)
	case protocol.StrokeEnd:
		r.handleStrokeEnd(f.sess, m, f.data)
	case protocol.StyleChange:
		f.sess.Color = m.Color
		f.sess.Width = m.Width
		r.broadcast(f.data, f.sess)
	case protocol.Undo:
		r.handleUndo(f.sess, m, f.data)
	default:
		// INIT and presence messages only ever travel server to client.
		r.log.WithFields(logrus.Fields{
			"user_id": f.sess.UserID,
			"tag":     msg.Tag().String(),
		}).Warn("Dropping client-sent server message")
	}
}

func (r *Room) handleStrokeStart(sess *Session, m protocol.StrokeStart, raw []byte) {
	if sess.Drawing() {
		r.logStateError(sess, protocol.TagStrokeStart)
		return
	}
	sess.current = []protocol.Point{{X: m.X, Y: m.Y}}
	r.broadcast(raw, sess)
}

func (r *Room) handleDraw(sess *Session, m protocol.Draw, raw []byte) {
	if !sess.Drawing() {
		r.logStateError(sess, protocol.TagDraw)
		return
	}
	sess.current = append(sess.current, protocol.Point{X: m.X, Y: m.Y})
	r.broadcast(raw, sess)
}

func (r *Room) handleStrokeEnd(sess *Session, m protocol.StrokeEnd, raw []byte) {
	if !sess.Drawing() {
		r.logStateError(sess, protocol.TagStrokeEnd)
		return
	}

	points := make([]protocol.Point, 0, len(sess.current)+1)
	points = append(points, sess.current...)
	points = append(points, protocol.Point{X: m.X, Y: m.Y})

	result := geometry.Process(points, sess.Width)

	err := r.store.Append(r.deskID, db.Stroke{
		ID:     m.StrokeID,
		DeskID: r.deskID,
		UserID: sess.UserID,
		Color:  sess.Color,
		Width:  sess.Width,
		Closed: result.Closed,
		Points: result.Points,
	})
	if err != nil {
		// Not committed, not broadcast. The in-progress stroke stays as it
		// was so the client can retry the STROKE_END.
		r.log.WithError(err).WithFields(logrus.Fields{
			"user_id":   sess.UserID,
			"stroke_id": m.StrokeID,
		}).Error("Failed to persist stroke")
		return
	}

	sess.current = nil
	r.broadcast(raw, sess)
}

func (r *Room) handleUndo(sess *Session, m protocol.Undo, raw []byte) {
	if err := r.store.Undo(r.deskID, m.StrokeID); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"user_id":   sess.UserID,
			"stroke_id": m.StrokeID,
		}).Error("Failed to undo stroke")
		return
	}
	r.broadcast(raw, sess)
}

func (r *Room) logStateError(sess *Session, tag protocol.Tag) {
	r.log.WithFields(logrus.Fields{
		"user_id": sess.UserID,
		"tag":     tag.String(),
		"drawing": sess.Drawing(),
	}).Warn("Dropping out-of-state message")
}

// broadcast relays raw bytes to every attached session except the sender.
// Connections that cannot keep up are dropped; their read loop notices the
// close and detaches them.
func (r *Room) broadcast(data []byte, sender *Session) {
	var stalled []*Session
	for _, sess := range r.order {
		if sess == sender {
			continue
		}
		if !sess.conn.Send(data) {
			stalled = append(stalled, sess)
		}
	}
	for _, sess := range stalled {
		r.log.WithField("user_id", sess.UserID).Warn("Dropping slow connection")
		sess.conn.Close()
		r.handleLeave(sess)
	}
}

// buildInit assembles the full-state snapshot for a new session: every
// live user with style and in-progress points in join order, then the
// desk's persisted strokes in insertion order.
func (r *Room) buildInit(recipient uint32) (protocol.Init, error) {
	init := protocol.Init{UserID: recipient}

	for _, sess := range r.order {
		u := protocol.InitUser{
			UserID: sess.UserID,
			Color:  sess.Color,
			Width:  sess.Width,
		}
		if sess.Drawing() {
			u.CurrentStroke = append([]protocol.Point(nil), sess.current...)
		}
		init.Users = append(init.Users, u)
	}

	strokes, err := r.store.Snapshot(r.deskID)
	if err != nil {
		return init, err
	}
	for _, st := range strokes {
		init.Strokes = append(init.Strokes, protocol.InitStroke{
			ID:      st.ID,
			Color:   st.Color,
			Width:   st.Width,
			OwnerID: st.UserID,
			Points:  st.Points,
		})
	}
	return init, nil
}
