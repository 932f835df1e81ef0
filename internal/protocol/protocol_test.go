package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	messages := []Message{
		Draw{UserID: 42, X: 100, Y: 200},
		StrokeStart{UserID: 42, X: -15, Y: 0},
		StrokeEnd{UserID: 42, X: 30, Y: 0, StrokeID: 555},
		StyleChange{UserID: 42, Color: 0xFF00FF, Width: 12},
		Undo{UserID: 42, StrokeID: 555},
		UserConnect{UserID: 7},
		UserDisconnect{UserID: 7},
	}

	for _, msg := range messages {
		decoded, err := Decode(msg.Encode())
		require.NoError(t, err, "decoding %s", msg.Tag())
		assert.Equal(t, msg, decoded)
	}
}

func TestInitRoundTrip(t *testing.T) {
	msg := Init{
		UserID: 99,
		Users: []InitUser{
			{UserID: 99, Color: 0x000000, Width: 5},
			{UserID: 12, Color: 0xFF0000, Width: 3, CurrentStroke: []Point{{X: 1, Y: 2}, {X: 3, Y: 4}}},
			{UserID: 13, Color: 0x00FF00, Width: 8},
		},
		Strokes: []InitStroke{
			{ID: 555, Color: 0x0000FF, Width: 5, OwnerID: 12, Points: []Point{{X: 0, Y: 0}, {X: 30, Y: 0}}},
			{ID: 556, Color: 0x000000, Width: 2, OwnerID: 13, Points: []Point{{X: 5, Y: 5}, {X: 9, Y: -4}, {X: 20, Y: 7}}},
		},
	}

	decoded, err := Decode(msg.Encode())
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)
}

func TestInitEncodeLayout(t *testing.T) {
	msg := Init{
		UserID: 1,
		Users: []InitUser{
			{UserID: 1, Color: 2, Width: 3, CurrentStroke: []Point{{X: 10, Y: 20}}},
		},
		Strokes: []InitStroke{
			{ID: 50, Color: 60, Width: 70, OwnerID: 1, Points: []Point{{X: 7, Y: 8}, {X: 9, Y: 10}}},
		},
	}

	buf := msg.Encode()
	require.Len(t, buf, (3+4+2+1+5+4)*4)

	words := make([]uint32, 0, len(buf)/4)
	for i := 0; i < len(buf); i += 4 {
		words = append(words, uint32(buf[i])|uint32(buf[i+1])<<8|uint32(buf[i+2])<<16|uint32(buf[i+3])<<24)
	}

	expected := []uint32{
		1,             // tag
		1,             // recipient
		1,             // user count
		1, 2, 3, 1,    // user id, color, width, point count
		10, 20,        // current stroke point
		1,             // finished stroke count
		50, 2, 60, 70, 1, // stroke id, point count, color, width, owner
		7, 8, 9, 10, // stroke points
	}
	assert.Equal(t, expected, words)
}

func TestDecodeWrongShape(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte{0, 0}},
		{"unaligned", []byte{0, 0, 0, 0, 7}},
		{"draw truncated", Draw{UserID: 1, X: 2, Y: 3}.Encode()[:12]},
		{"undo with extra word", append(Undo{UserID: 1, StrokeID: 2}.Encode(), 0, 0, 0, 0)},
		{"connect truncated", UserConnect{UserID: 1}.Encode()[:4]},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.data)
			assert.Error(t, err)
		})
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	buf := []byte{0xFF, 0, 0, 0, 1, 0, 0, 0}
	_, err := Decode(buf)
	assert.Error(t, err)
}

func TestDecodeTruncatedInit(t *testing.T) {
	msg := Init{
		UserID: 1,
		Users: []InitUser{
			{UserID: 1, Color: 2, Width: 3, CurrentStroke: []Point{{X: 10, Y: 20}}},
		},
	}
	full := msg.Encode()

	for cut := 4; cut < len(full); cut += 4 {
		_, err := Decode(full[:cut])
		assert.Error(t, err, "cut at %d bytes", cut)
	}
}

func TestDecodeInitOversizedCounts(t *testing.T) {
	word := func(buf []byte, v uint32) []byte {
		return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}

	// A tiny frame whose single stroke claims far more points than the
	// payload carries. Decode must reject it from the header counts alone
	// instead of sizing buffers off the claim.
	var buf []byte
	buf = word(buf, uint32(TagInit))
	buf = word(buf, 1)       // recipient
	buf = word(buf, 0)       // user count
	buf = word(buf, 1)       // finished stroke count
	buf = word(buf, 555)     // stroke id
	buf = word(buf, 1<<27)   // claimed point count
	buf = word(buf, 0)       // color
	buf = word(buf, 5)       // width
	buf = word(buf, 1)       // owner

	_, err := Decode(buf)
	assert.ErrorContains(t, err, "truncated in stroke points")

	// Same shape, but the oversized claim sits in a user's current stroke.
	buf = nil
	buf = word(buf, uint32(TagInit))
	buf = word(buf, 1)     // recipient
	buf = word(buf, 1)     // user count
	buf = word(buf, 1)     // user id
	buf = word(buf, 0)     // color
	buf = word(buf, 5)     // width
	buf = word(buf, 1<<27) // claimed point count

	_, err = Decode(buf)
	assert.ErrorContains(t, err, "truncated in current strokes")
}

func TestPackPointsRoundTrip(t *testing.T) {
	points := []Point{{X: 0, Y: 0}, {X: -100, Y: 2000}, {X: 1 << 20, Y: -(1 << 20)}}

	unpacked, err := UnpackPoints(PackPoints(points))
	require.NoError(t, err)
	assert.Equal(t, points, unpacked)
}

func TestUnpackPointsBadLength(t *testing.T) {
	_, err := UnpackPoints(make([]byte, 12))
	assert.Error(t, err)
}
