package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageCodeNames(t *testing.T) {
	assert.Equal(t, "MsgTeamUpdate", MsgTeamUpdate.String())
	assert.Equal(t, "MsgLagPing", MsgLagPing.String())
	assert.Equal(t, "MsgUnknown: 0x1234", MessageCode(0x1234).String())
}

func TestTeamUpdate(t *testing.T) {
	teams := []TeamScore{{Team: 0, Size: 3, Won: 10, Lost: 2}, {Team: 1, Size: 1, Won: 0, Lost: 7}}
	payload := PackTeamUpdate(teams)
	assert.Len(t, payload, 1+2*TeamPLen)

	got, err := UnpackTeamUpdate(payload)
	require.NoError(t, err)
	assert.Equal(t, teams, got)

	_, err = UnpackTeamUpdate(payload[:5])
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestFlagUpdatesAreChunked(t *testing.T) {
	var flags []FlagState
	for i := 0; i < 40; i++ {
		status := FlagOnGround
		if i%10 == 0 {
			status = FlagNoExist
		}
		flags = append(flags, FlagState{
			Index:    uint16(i),
			Abbrev:   "GM",
			Status:   status,
			Position: [3]float32{float32(i), 1, 2},
		})
	}

	packets := PackFlagUpdates(flags)
	require.Greater(t, len(packets), 1, "36 флагов не помещаются в одно сообщение")

	var all []FlagState
	for _, p := range packets {
		assert.LessOrEqual(t, len(p), MaxPacketLen)
		part, err := UnpackFlagUpdate(p)
		require.NoError(t, err)
		all = append(all, part...)
	}
	require.Len(t, all, 36)
	for _, f := range all {
		assert.NotZero(t, f.Index%10, "несуществующие флаги не упаковываются")
		assert.Equal(t, "GM", f.Abbrev)
		assert.Equal(t, float32(f.Index), f.Position[0])
	}

	assert.Empty(t, PackFlagUpdates(nil))
}

func TestAddPlayer(t *testing.T) {
	p := PlayerState{Index: 7, Type: 0, Team: 2, Wins: 5, Losses: 1, TKs: 0, CallSign: "tiger", Email: "t@example.org"}
	payload := PackAddPlayer(p)
	assert.Len(t, payload, 1+PlayerPLen)

	got, err := UnpackAddPlayer(payload)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestChatAndEnter(t *testing.T) {
	payload := PackMessage(ServerPlayer, 3, "/capture stats")
	from, to, text, err := UnpackMessage(payload)
	require.NoError(t, err)
	assert.Equal(t, uint8(ServerPlayer), from)
	assert.Equal(t, uint8(3), to)
	assert.Equal(t, "/capture stats", text)

	e := EnterRequest{Type: 0, Team: 1, CallSign: "cs", Email: "e"}
	got, err := UnpackEnter(PackEnter(e))
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = UnpackEnter([]byte{1, 2})
	assert.Error(t, err)
}

func TestSessionMessages(t *testing.T) {
	assert.Equal(t, []byte{7}, PackAccept(7))
	assert.Equal(t, []byte{3}, PackRemovePlayer(3))
	assert.True(t, MsgEnter.Known())
	assert.False(t, MessageCode(0x1234).Known())

	code, reason, err := UnpackReject(PackReject(RejectRepeatCallsign, "taken"))
	require.NoError(t, err)
	assert.Equal(t, RejectRepeatCallsign, code)
	assert.Equal(t, "taken", reason)

	victim, killer, err := UnpackKilled([]byte{2, 5, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, uint8(2), victim)
	assert.Equal(t, uint8(5), killer)

	player, flag, err := UnpackGrabFlag([]byte{4, 0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, uint8(4), player)
	assert.Equal(t, uint16(0x0102), flag)

	_, _, err = UnpackGrabFlag([]byte{4})
	assert.ErrorIs(t, err, ErrShortPayload)
}
