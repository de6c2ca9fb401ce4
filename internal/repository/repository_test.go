package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/akkalaj75/hostelhub-v40/pkg/docstore"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEntry(userID string, ts int64) *models.WaitingEntry {
	return &models.WaitingEntry{
		UserID:        userID,
		GenderFilter:  "female",
		CollegeFilter: models.AnyCollege,
		CommType:      models.CommChat,
		Interests:     []string{"music"},
		Timestamp:     ts,
		Searching:     true,
	}
}

func TestWaitingRepository_EnqueueReplacesStaleEntry(t *testing.T) {
	ctx := context.Background()
	repo := NewWaitingRepository(docstore.NewMemoryStore(nil))

	stale, err := repo.Enqueue(ctx, newEntry("alice", 1))
	require.NoError(t, err)
	assert.False(t, stale)

	old := newEntry("alice", 1)
	old.Searching = false
	old.Matched = true
	_, err = repo.Enqueue(ctx, old)
	require.NoError(t, err)

	stale, err = repo.Enqueue(ctx, newEntry("alice", 2))
	require.NoError(t, err)
	assert.True(t, stale)

	entry, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.Searching)
	assert.False(t, entry.Matched)
	assert.Equal(t, int64(3), entry.Version)
}

func TestWaitingRepository_ListSearchingOldestFirst(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	repo := NewWaitingRepository(docstore.NewMemoryStore(clock))

	for _, id := range []string{"u3", "u1", "u2"} {
		clock.Advance(time.Second)
		_, err := repo.Enqueue(ctx, newEntry(id, clock.Now().UnixMilli()))
		require.NoError(t, err)
	}
	video := newEntry("v1", 0)
	video.CommType = models.CommVideo
	_, err := repo.Enqueue(ctx, video)
	require.NoError(t, err)

	entries, err := repo.ListSearching(ctx, models.CommChat, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "u3", entries[0].UserID)
	assert.Equal(t, "u1", entries[1].UserID)

	n, err := repo.CountSearching(ctx, models.CommChat)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestWaitingRepository_SweepStale(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1000))
	repo := NewWaitingRepository(docstore.NewMemoryStore(clock))

	_, err := repo.Enqueue(ctx, newEntry("old", 1000))
	require.NoError(t, err)

	clock.Advance(4 * time.Second)
	_, err = repo.Enqueue(ctx, newEntry("fresh", 5000))
	require.NoError(t, err)
	// 등록한 클라이언트 시계가 크게 뒤처져 있어도 방금 들어온 항목은 남는다
	_, err = repo.Enqueue(ctx, newEntry("skewed", 1))
	require.NoError(t, err)

	removed, err := repo.SweepStale(ctx, time.UnixMilli(2000))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entry, err := repo.Get(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, entry)

	for _, id := range []string{"fresh", "skewed"} {
		entry, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, entry, id)
	}
}

func TestCallRepository_Claim(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore(nil)
	waiting := NewWaitingRepository(store)
	calls := NewCallRepository(store)

	alice, bob := newEntry("alice", 1), newEntry("bob", 2)
	alice.Interests = []string{"music", "travel"}
	_, err := waiting.Enqueue(ctx, alice)
	require.NoError(t, err)
	_, err = waiting.Enqueue(ctx, bob)
	require.NoError(t, err)

	call, ok, err := calls.Claim(ctx, bob, alice, 100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice_bob", call.ID)
	assert.Equal(t, "alice", call.Initiator)
	assert.Equal(t, "bob", call.ClaimedBy)
	assert.Equal(t, models.CallConnecting, call.Status)

	stored, err := calls.Get(ctx, "alice_bob")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, []string{"music", "travel"}, stored.Profiles["alice"].Interests)

	for _, id := range []string{"alice", "bob"} {
		e, err := waiting.Get(ctx, id)
		require.NoError(t, err)
		assert.False(t, e.Searching)
		assert.True(t, e.Matched)
		assert.Equal(t, "alice_bob", e.CallID)
	}

	// 두 번째 claim은 세션이 이미 있으므로 실패
	_, ok, err = calls.Claim(ctx, alice, bob, 101)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCallRepository_ClaimFailsWhenTargetLeft(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore(nil)
	waiting := NewWaitingRepository(store)
	calls := NewCallRepository(store)

	alice, bob := newEntry("alice", 1), newEntry("bob", 2)
	_, err := waiting.Enqueue(ctx, alice)
	require.NoError(t, err)
	_, err = waiting.Enqueue(ctx, bob)
	require.NoError(t, err)
	require.NoError(t, waiting.Remove(ctx, "bob"))

	_, ok, err := calls.Claim(ctx, alice, bob, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	call, err := calls.Get(ctx, "alice_bob")
	require.NoError(t, err)
	assert.Nil(t, call)
}

func TestCallRepository_ConcurrentClaimsExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore(nil)
	waiting := NewWaitingRepository(store)
	calls := NewCallRepository(store)

	alice, bob := newEntry("alice", 1), newEntry("bob", 2)
	_, err := waiting.Enqueue(ctx, alice)
	require.NoError(t, err)
	_, err = waiting.Enqueue(ctx, bob)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i, pair := range [][2]*models.WaitingEntry{{alice, bob}, {bob, alice}} {
		wg.Add(1)
		go func(i int, self, target *models.WaitingEntry) {
			defer wg.Done()
			_, ok, err := calls.Claim(ctx, self, target, 1)
			assert.NoError(t, err)
			results[i] = ok
		}(i, pair[0], pair[1])
	}
	wg.Wait()

	assert.True(t, results[0] != results[1], "exactly one claim must win: %v", results)
}

func TestCallRepository_ClaimPreventsDoubleBooking(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore(nil)
	waiting := NewWaitingRepository(store)
	calls := NewCallRepository(store)

	for _, id := range []string{"alice", "bob", "carol"} {
		_, err := waiting.Enqueue(ctx, newEntry(id, 1))
		require.NoError(t, err)
	}

	_, ok, err := calls.Claim(ctx, newEntry("alice", 1), newEntry("bob", 1), 1)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = calls.Claim(ctx, newEntry("carol", 1), newEntry("bob", 1), 1)
	require.NoError(t, err)
	assert.False(t, ok, "bob is already matched")
}

func TestCallRepository_SignalingAndTeardown(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore(nil)
	calls := NewCallRepository(store)
	require.NoError(t, store.Set(ctx, "calls/a_b", models.CallSession{Users: []string{"a", "b"}, Status: models.CallConnecting}))

	stream, err := calls.Watch(ctx, "a_b")
	require.NoError(t, err)
	defer stream.Cancel()
	<-stream.C()

	require.NoError(t, calls.PublishOffer(ctx, "a_b", models.SessionDescription{Type: "offer", SDP: "o1", Revision: 1}, false))
	upd := <-stream.C()
	require.NotNil(t, upd.Call.Offer)
	assert.Equal(t, "o1", upd.Call.Offer.SDP)
	assert.Nil(t, upd.Call.Answer)

	require.NoError(t, calls.PublishAnswer(ctx, "a_b", models.SessionDescription{Type: "answer", SDP: "a1", Revision: 1}))
	upd = <-stream.C()
	require.NotNil(t, upd.Call.Answer)

	require.NoError(t, calls.PublishOffer(ctx, "a_b", models.SessionDescription{Type: "offer", SDP: "o2", Revision: 2}, true))
	upd = <-stream.C()
	assert.True(t, upd.Call.ICERestart)
	assert.Nil(t, upd.Call.Answer)

	for i := 0; i < 7; i++ {
		_, err := calls.AddCandidate(ctx, "a_b", models.CandidateRecord{From: "a"})
		require.NoError(t, err)
		_, err = calls.AddMessage(ctx, "a_b", models.ChatMessage{Text: "hi", From: "a"})
		require.NoError(t, err)
	}
	require.NoError(t, calls.MarkEnded(ctx, "a_b"))
	upd = <-stream.C()
	assert.Equal(t, models.CallEnded, upd.Call.Status)

	n, err := calls.DrainCandidates(ctx, "a_b", 3)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	n, err = calls.DrainMessages(ctx, "a_b", 3)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	require.NoError(t, calls.Delete(ctx, "a_b"))
	upd = <-stream.C()
	assert.True(t, upd.Deleted)

	// 문서가 없으면 종료 표시는 아무것도 만들지 않음
	require.NoError(t, calls.MarkEnded(ctx, "a_b"))
	call, err := calls.Get(ctx, "a_b")
	require.NoError(t, err)
	assert.Nil(t, call)
}

func TestUserRepository_BlockUnblock(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(docstore.NewMemoryStore(nil))

	blocked, err := repo.BlockedUsers(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, blocked)

	require.NoError(t, repo.Block(ctx, "alice", "bob"))
	require.NoError(t, repo.Block(ctx, "alice", "bob"))
	require.NoError(t, repo.Block(ctx, "alice", "carol"))
	blocked, err = repo.BlockedUsers(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, blocked)

	require.NoError(t, repo.Unblock(ctx, "alice", "bob"))
	blocked, err = repo.BlockedUsers(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, blocked)
}

func TestReportRepository_Create(t *testing.T) {
	ctx := context.Background()
	repo := NewReportRepository(docstore.NewMemoryStore(nil))

	report := &models.Report{ReportedBy: "alice", ReportedUser: "bob", Reason: "spam", Status: models.ReportStatusPending}
	require.NoError(t, repo.Create(ctx, report))
	assert.NotEmpty(t, report.ID)

	reports, err := repo.ListByReporter(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "bob", reports[0].ReportedUser)
	assert.Equal(t, models.ReportStatusPending, reports[0].Status)
}

func TestPresenceRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPresenceRepository(docstore.NewMemoryStore(nil))

	stream, err := repo.WatchOnline(ctx)
	require.NoError(t, err)
	defer stream.Cancel()

	require.NoError(t, repo.SetOnline(ctx, "alice", 1))
	require.NoError(t, repo.SetOnline(ctx, "bob", 1))
	require.NoError(t, repo.SetOffline(ctx, "alice", 2))

	n, err := repo.CountOnline(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, PresenceChange{UserID: "alice", Online: true}, <-stream.C())
	assert.Equal(t, PresenceChange{UserID: "bob", Online: true}, <-stream.C())
	assert.Equal(t, PresenceChange{UserID: "alice", Online: false}, <-stream.C())
}
