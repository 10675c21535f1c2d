package s6k

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandshake_Acknowledged(t *testing.T) {
	require := require.New(t)

	var h Handshake
	require.False(h.Busy())

	h = h.Begin()
	require.True(h.Busy())
	require.True(h.Valid())

	h, out := h.Step(false, 3)
	require.Equal(Pending, out)
	require.Equal(HandshakeWaitAckHigh, h.Phase)

	h, out = h.Step(true, 3)
	require.Equal(Pending, out)
	require.Equal(HandshakeWaitAckLow, h.Phase)
	require.False(h.Valid())

	h, out = h.Step(true, 3)
	require.Equal(Pending, out)

	h, out = h.Step(false, 3)
	require.Equal(Acknowledged, out)
	require.False(h.Busy())
}

func TestHandshake_AckOnLastAllowedTick(t *testing.T) {
	require := require.New(t)

	h := Handshake{}.Begin()
	for i := 0; i < 4; i++ {
		var out Outcome
		h, out = h.Step(false, 4)
		require.Equal(Pending, out)
	}

	h, out := h.Step(true, 4)
	require.Equal(Pending, out)
	require.Equal(HandshakeWaitAckLow, h.Phase)
}

func TestHandshake_Aborted(t *testing.T) {
	tests := []struct {
		name string
		ack  bool
		h    Handshake
	}{
		{name: "ack never high", ack: false, h: Handshake{}.Begin()},
		{name: "ack stuck high", ack: true, h: Handshake{Phase: HandshakeWaitAckLow}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			h := tt.h
			var out Outcome
			for i := 0; i < 2; i++ {
				h, out = h.Step(tt.ack, 2)
				require.Equal(Pending, out)
			}

			h, out = h.Step(tt.ack, 2)
			require.Equal(Aborted, out)
			require.False(h.Busy())
			require.False(h.Valid())
		})
	}
}

func TestHandshake_IdleStaysIdle(t *testing.T) {
	h, out := Handshake{}.Step(true, 0)

	require.Equal(t, Pending, out)
	require.Equal(t, HandshakeIdle, h.Phase)
}
