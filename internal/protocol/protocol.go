package protocol

import (
	"encoding/binary"
	"fmt"
)

// Tag identifies the message type carried in the first wire word.
type Tag uint32

const (
	TagDraw           Tag = 0
	TagInit           Tag = 1
	TagUserConnect    Tag = 2
	TagUserDisconnect Tag = 3
	TagStrokeEnd      Tag = 4
	TagStyleChange    Tag = 5
	TagStrokeStart    Tag = 6
	TagUndo           Tag = 7
)

func (t Tag) String() string {
	switch t {
	case TagDraw:
		return "DRAW"
	case TagInit:
		return "INIT"
	case TagUserConnect:
		return "USER_CONNECT"
	case TagUserDisconnect:
		return "USER_DISCONNECT"
	case TagStrokeEnd:
		return "STROKE_END"
	case TagStyleChange:
		return "USER_STYLE_CHANGE"
	case TagStrokeStart:
		return "STROKE_START"
	case TagUndo:
		return "UNDO"
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint32(t))
}

// Point is an integer screen coordinate. Sub-pixel precision is
// intentionally not carried on the wire.
type Point struct {
	X int32
	Y int32
}

// Message is one decoded wire event. Every message occupies a whole
// number of little-endian 32-bit words, tag first, no padding.
type Message interface {
	Tag() Tag
	Encode() []byte
}

type Draw struct {
	UserID uint32
	X, Y   int32
}

type StrokeStart struct {
	UserID uint32
	X, Y   int32
}

type StrokeEnd struct {
	UserID   uint32
	X, Y     int32
	StrokeID uint32
}

type StyleChange struct {
	UserID uint32
	Color  uint32
	Width  uint32
}

type Undo struct {
	UserID   uint32
	StrokeID uint32
}

type UserConnect struct {
	UserID uint32
}

type UserDisconnect struct {
	UserID uint32
}

// InitUser is one live session inside an Init snapshot. CurrentStroke is
// nil for users that are not mid-stroke.
type InitUser struct {
	UserID        uint32
	Color         uint32
	Width         uint32
	CurrentStroke []Point
}

// InitStroke is one finished stroke inside an Init snapshot.
type InitStroke struct {
	ID      uint32
	Color   uint32
	Width   uint32
	OwnerID uint32
	Points  []Point
}

// Init is the full-state snapshot sent to a client right after it joins a
// desk. Users are listed in join order; their in-progress points follow in
// the same order, then the finished strokes.
type Init struct {
	UserID  uint32
	Users   []InitUser
	Strokes []InitStroke
}

func (Draw) Tag() Tag           { return TagDraw }
func (Init) Tag() Tag           { return TagInit }
func (UserConnect) Tag() Tag    { return TagUserConnect }
func (UserDisconnect) Tag() Tag { return TagUserDisconnect }
func (StrokeEnd) Tag() Tag      { return TagStrokeEnd }
func (StyleChange) Tag() Tag    { return TagStyleChange }
func (StrokeStart) Tag() Tag    { return TagStrokeStart }
func (Undo) Tag() Tag           { return TagUndo }

type writer struct {
	buf []byte
}

func newWriter(words int) *writer {
	return &writer{buf: make([]byte, 0, words*4)}
}

func (w *writer) word(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *writer) point(p Point) {
	w.word(uint32(p.X))
	w.word(uint32(p.Y))
}

func (m Draw) Encode() []byte {
	w := newWriter(4)
	w.word(uint32(TagDraw))
	w.word(m.UserID)
	w.word(uint32(m.X))
	w.word(uint32(m.Y))
	return w.buf
}

func (m StrokeStart) Encode() []byte {
	w := newWriter(4)
	w.word(uint32(TagStrokeStart))
	w.word(m.UserID)
	w.word(uint32(m.X))
	w.word(uint32(m.Y))
	return w.buf
}

func (m StrokeEnd) Encode() []byte {
	w := newWriter(5)
	w.word(uint32(TagStrokeEnd))
	w.word(m.UserID)
	w.word(uint32(m.X))
	w.word(uint32(m.Y))
	w.word(m.StrokeID)
	return w.buf
}

func (m StyleChange) Encode() []byte {
	w := newWriter(4)
	w.word(uint32(TagStyleChange))
	w.word(m.UserID)
	w.word(m.Color)
	w.word(m.Width)
	return w.buf
}

func (m Undo) Encode() []byte {
	w := newWriter(3)
	w.word(uint32(TagUndo))
	w.word(m.UserID)
	w.word(m.StrokeID)
	return w.buf
}

func (m UserConnect) Encode() []byte {
	w := newWriter(2)
	w.word(uint32(TagUserConnect))
	w.word(m.UserID)
	return w.buf
}

func (m UserDisconnect) Encode() []byte {
	w := newWriter(2)
	w.word(uint32(TagUserDisconnect))
	w.word(m.UserID)
	return w.buf
}

func (m Init) Encode() []byte {
	words := 3 + 4*len(m.Users) + 1 + 5*len(m.Strokes)
	for _, u := range m.Users {
		words += 2 * len(u.CurrentStroke)
	}
	for _, s := range m.Strokes {
		words += 2 * len(s.Points)
	}

	w := newWriter(words)
	w.word(uint32(TagInit))
	w.word(m.UserID)
	w.word(uint32(len(m.Users)))
	for _, u := range m.Users {
		w.word(u.UserID)
		w.word(u.Color)
		w.word(u.Width)
		w.word(uint32(len(u.CurrentStroke)))
	}
	for _, u := range m.Users {
		for _, p := range u.CurrentStroke {
			w.point(p)
		}
	}
	w.word(uint32(len(m.Strokes)))
	for _, s := range m.Strokes {
		w.word(s.ID)
		w.word(uint32(len(s.Points)))
		w.word(s.Color)
		w.word(s.Width)
		w.word(s.OwnerID)
	}
	for _, s := range m.Strokes {
		for _, p := range s.Points {
			w.point(p)
		}
	}
	return w.buf
}

type reader struct {
	words []uint32
	at    int
}

func (r *reader) remaining() int {
	return len(r.words) - r.at
}

func (r *reader) word() uint32 {
	v := r.words[r.at]
	r.at++
	return v
}

func (r *reader) point() Point {
	x := int32(r.word())
	y := int32(r.word())
	return Point{X: x, Y: y}
}

// Decode parses a single wire message. A payload whose length does not
// match its tag's layout is a protocol error.
func Decode(data []byte) (Message, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("message too short: %d bytes", len(data))
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("message length %d is not word-aligned", len(data))
	}

	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	r := &reader{words: words}

	tag := Tag(r.word())
	switch tag {
	case TagDraw:
		if r.remaining() != 3 {
			return nil, shapeError(tag, 4, len(words))
		}
		return Draw{UserID: r.word(), X: int32(r.word()), Y: int32(r.word())}, nil
	case TagStrokeStart:
		if r.remaining() != 3 {
			return nil, shapeError(tag, 4, len(words))
		}
		return StrokeStart{UserID: r.word(), X: int32(r.word()), Y: int32(r.word())}, nil
	case TagStrokeEnd:
		if r.remaining() != 4 {
			return nil, shapeError(tag, 5, len(words))
		}
		return StrokeEnd{UserID: r.word(), X: int32(r.word()), Y: int32(r.word()), StrokeID: r.word()}, nil
	case TagStyleChange:
		if r.remaining() != 3 {
			return nil, shapeError(tag, 4, len(words))
		}
		return StyleChange{UserID: r.word(), Color: r.word(), Width: r.word()}, nil
	case TagUndo:
		if r.remaining() != 2 {
			return nil, shapeError(tag, 3, len(words))
		}
		return Undo{UserID: r.word(), StrokeID: r.word()}, nil
	case TagUserConnect:
		if r.remaining() != 1 {
			return nil, shapeError(tag, 2, len(words))
		}
		return UserConnect{UserID: r.word()}, nil
	case TagUserDisconnect:
		if r.remaining() != 1 {
			return nil, shapeError(tag, 2, len(words))
		}
		return UserDisconnect{UserID: r.word()}, nil
	case TagInit:
		return decodeInit(r)
	}
	return nil, fmt.Errorf("unknown message tag %d", uint32(tag))
}

func shapeError(tag Tag, want, got int) error {
	return fmt.Errorf("%s message must be %d words, got %d", tag, want, got)
}

func decodeInit(r *reader) (Message, error) {
	if r.remaining() < 2 {
		return nil, fmt.Errorf("INIT message truncated")
	}

	m := Init{UserID: r.word()}

	userCount := int(r.word())
	if r.remaining() < userCount*4 {
		return nil, fmt.Errorf("INIT truncated in user table")
	}
	counts := make([]int, userCount)
	for i := 0; i < userCount; i++ {
		u := InitUser{UserID: r.word(), Color: r.word(), Width: r.word()}
		counts[i] = int(r.word())
		m.Users = append(m.Users, u)
	}
	for i, n := range counts {
		if r.remaining() < n*2 {
			return nil, fmt.Errorf("INIT truncated in current strokes")
		}
		for j := 0; j < n; j++ {
			m.Users[i].CurrentStroke = append(m.Users[i].CurrentStroke, r.point())
		}
	}

	if r.remaining() < 1 {
		return nil, fmt.Errorf("INIT truncated before stroke table")
	}
	strokeCount := int(r.word())
	if r.remaining() < strokeCount*5 {
		return nil, fmt.Errorf("INIT truncated in stroke table")
	}
	strokeCounts := make([]int, strokeCount)
	for i := 0; i < strokeCount; i++ {
		s := InitStroke{ID: r.word()}
		strokeCounts[i] = int(r.word())
		s.Color = r.word()
		s.Width = r.word()
		s.OwnerID = r.word()
		m.Strokes = append(m.Strokes, s)
	}
	for i, n := range strokeCounts {
		// Validate the claimed count against the payload before allocating,
		// same as the user table above.
		if r.remaining() < n*2 {
			return nil, fmt.Errorf("INIT truncated in stroke points")
		}
		m.Strokes[i].Points = make([]Point, n)
		for j := 0; j < n; j++ {
			m.Strokes[i].Points[j] = r.point()
		}
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("INIT has %d trailing words", r.remaining())
	}
	return m, nil
}

// PackPoints serializes points as consecutive little-endian (x, y) int32
// pairs, the same layout the wire uses. The store keeps stroke geometry in
// this form.
func PackPoints(points []Point) []byte {
	buf := make([]byte, 0, len(points)*8)
	for _, p := range points {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(p.X))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(p.Y))
	}
	return buf
}

// UnpackPoints is the inverse of PackPoints.
func UnpackPoints(buf []byte) ([]Point, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("point buffer length %d is not a multiple of 8", len(buf))
	}
	points := make([]Point, 0, len(buf)/8)
	for i := 0; i < len(buf); i += 8 {
		points = append(points, Point{
			X: int32(binary.LittleEndian.Uint32(buf[i:])),
			Y: int32(binary.LittleEndian.Uint32(buf[i+4:])),
		})
	}
	return points, nil
}
