package game

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denkarev/drawconquer/internal/testutil"
)

func newTestSession(t *testing.T, players int, numTiles int) *Session {
	t.Helper()

	ids := make([]string, 0, players)
	names := make(map[string]string, players)
	for i := 0; i < players; i++ {
		id := fmt.Sprintf("p%d", i)
		ids = append(ids, id)
		names[id] = "player " + id
	}
	return NewSession("session-1", ids, names, numTiles, time.Minute)
}

func TestNewSessionWinQuota(t *testing.T) {
	tests := []struct {
		players  int
		numTiles int
		want     int
	}{
		{2, 64, 33},
		{3, 64, 22},
		{4, 64, 17},
		{3, 9, 4},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d players %d tiles", tt.players, tt.numTiles), func(t *testing.T) {
			s := newTestSession(t, tt.players, tt.numTiles)
			assert.Equal(t, tt.want, s.TilesToWin())
		})
	}
}

func TestWinQuotaFrozenAfterEviction(t *testing.T) {
	s := newTestSession(t, 4, 64)
	require.Equal(t, 17, s.TilesToWin())

	s.RemovePlayer("p3")
	assert.Equal(t, 17, s.TilesToWin(), "evictions must not lower the quota")
}

func TestHasPlayer(t *testing.T) {
	s := newTestSession(t, 2, 64)
	assert.True(t, s.HasPlayer("p0"))
	assert.False(t, s.HasPlayer("stranger"))
}

func TestAssignColour(t *testing.T) {
	s := newTestSession(t, 3, 64)
	now := time.Now()

	colour, complete, err := s.AssignColour("p0", now)
	require.NoError(t, err)
	assert.Equal(t, "red", colour)
	assert.False(t, complete)

	colour, complete, err = s.AssignColour("p1", now)
	require.NoError(t, err)
	assert.Equal(t, "blue", colour)
	assert.False(t, complete)

	colour, complete, err = s.AssignColour("p2", now)
	require.NoError(t, err)
	assert.Equal(t, "green", colour)
	assert.True(t, complete, "last assignment completes colour selection")
}

func TestAssignColourIdempotent(t *testing.T) {
	s := newTestSession(t, 2, 64)
	now := time.Now()

	first, _, err := s.AssignColour("p0", now)
	require.NoError(t, err)

	again, complete, err := s.AssignColour("p0", now)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.False(t, complete)

	// The repeat must not have consumed a second colour.
	next, _, err := s.AssignColour("p1", now)
	require.NoError(t, err)
	assert.Equal(t, "blue", next)
}

func TestAssignColourExhausted(t *testing.T) {
	s := newTestSession(t, 2, 64)
	now := time.Now()

	s.availableColours = nil

	_, _, err := s.AssignColour("p0", now)
	require.ErrorIs(t, err, ErrNoColours)
}

func TestLockTile(t *testing.T) {
	s := newTestSession(t, 2, 64)

	require.NoError(t, s.LockTile(5, "p0"))

	err := s.LockTile(5, "p1")
	require.ErrorIs(t, err, ErrTileLocked)

	// Even the holder cannot double-lock.
	err = s.LockTile(5, "p0")
	require.ErrorIs(t, err, ErrTileLocked)
}

func TestLockTileRejectsOwnedTile(t *testing.T) {
	s := newTestSession(t, 2, 64)

	require.NoError(t, s.LockTile(5, "p0"))
	_, err := s.UnlockTile(5, "p0", true)
	require.NoError(t, err)

	err = s.LockTile(5, "p1")
	require.ErrorIs(t, err, ErrTileLocked)
}

func TestUnlockTileWithoutClaim(t *testing.T) {
	s := newTestSession(t, 2, 64)

	require.NoError(t, s.LockTile(5, "p0"))
	won, err := s.UnlockTile(5, "p0", false)
	require.NoError(t, err)
	assert.False(t, won)

	// The tile is free again.
	assert.NoError(t, s.LockTile(5, "p1"))
}

func TestUnlockTileNotHeld(t *testing.T) {
	s := newTestSession(t, 2, 64)

	_, err := s.UnlockTile(5, "p0", true)
	require.ErrorIs(t, err, ErrTileNotLocked)

	// Held by someone else counts as not held.
	require.NoError(t, s.LockTile(5, "p0"))
	_, err = s.UnlockTile(5, "p1", true)
	require.ErrorIs(t, err, ErrTileNotLocked)
}

func TestClaimToWin(t *testing.T) {
	s := newTestSession(t, 2, 4) // quota: 4/2+1 = 3

	for tile := 0; tile < 2; tile++ {
		require.NoError(t, s.LockTile(tile, "p0"))
		won, err := s.UnlockTile(tile, "p0", true)
		require.NoError(t, err)
		assert.False(t, won)
	}

	require.NoError(t, s.LockTile(2, "p0"))
	won, err := s.UnlockTile(2, "p0", true)
	require.NoError(t, err)
	assert.True(t, won)
	assert.True(t, s.Ended())

	id, name, colour := s.Winner()
	assert.Equal(t, "p0", id)
	assert.Equal(t, "player p0", name)
	assert.Equal(t, s.Colour("p0"), colour)
}

func TestPlayers(t *testing.T) {
	s := newTestSession(t, 2, 64)
	now := time.Now()

	_, _, err := s.AssignColour("p0", now)
	require.NoError(t, err)

	players := s.Players()
	require.Len(t, players, 2)
	assert.Equal(t, "red", players["p0"].Colour)
	assert.Equal(t, "player p0", players["p0"].Name)
	assert.Empty(t, players["p1"].Colour, "unassigned player has no colour yet")
}

func TestInactivePlayers(t *testing.T) {
	s := newTestSession(t, 3, 64)
	start := time.Now()

	_, _, err := s.AssignColour("p0", start)
	require.NoError(t, err)

	inactive := s.InactivePlayers(start.Add(61 * time.Second))
	assert.ElementsMatch(t, []string{"p1", "p2"}, inactive)

	// Inside the window nobody is inactive yet.
	assert.Empty(t, s.InactivePlayers(start.Add(59*time.Second)))
}

func TestInactivePlayersNoneOnceStarted(t *testing.T) {
	s := newTestSession(t, 2, 64)
	start := time.Now()

	s.MarkStarted()
	assert.Empty(t, s.InactivePlayers(start.Add(time.Hour)))
}

func TestRemovePlayerReleasesLocks(t *testing.T) {
	s := newTestSession(t, 3, 64)

	require.NoError(t, s.LockTile(5, "p0"))
	require.NoError(t, s.LockTile(6, "p0"))

	// Owned tiles survive eviction.
	require.NoError(t, s.LockTile(7, "p0"))
	_, err := s.UnlockTile(7, "p0", true)
	require.NoError(t, err)

	s.RemovePlayer("p0")

	assert.False(t, s.HasPlayer("p0"))
	assert.Equal(t, 2, s.PlayerCount())
	assert.NoError(t, s.LockTile(5, "p1"), "locks held by evicted players are released")
	assert.NoError(t, s.LockTile(6, "p1"))
	assert.ErrorIs(t, s.LockTile(7, "p1"), ErrTileLocked, "owned tiles stay owned")
}

func TestBindPeerAndBroadcastPeers(t *testing.T) {
	s := newTestSession(t, 3, 64)

	p0 := testutil.NewRecordingPeer()
	p1 := testutil.NewRecordingPeer()
	s.BindPeer("p0", p0)
	s.BindPeer("p1", p1)

	got, ok := s.Peer("p0")
	require.True(t, ok)
	assert.Same(t, p0, got)

	assert.Len(t, s.BroadcastPeers(""), 2)
	assert.Len(t, s.BroadcastPeers("p0"), 1)

	// Re-binding replaces, it does not add.
	s.BindPeer("p0", testutil.NewRecordingPeer())
	assert.Len(t, s.BroadcastPeers(""), 2)
}
