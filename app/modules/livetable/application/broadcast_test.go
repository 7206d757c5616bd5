package livetableservice

import (
	"context"
	"sync"
	"testing"
	"time"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
	livetablemetrics "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(pusher Pusher, clock Clock, timers *FakeTimers, batch int, plan func() broadcastPlan) *BroadcastScheduler {
	return NewBroadcastScheduler(150*time.Millisecond, batch, plan, pusher, discardLogger(),
		livetablemetrics.NoOpMetrics{}, clock, timers.AfterFunc)
}

func viewers(ids ...string) func() broadcastPlan {
	return func() broadcastPlan {
		p := broadcastPlan{table: livetabletypes.TableSnapshot{RoundID: 1}}
		for _, id := range ids {
			p.viewers = append(p.viewers, viewerState{sessionID: id})
		}
		return p
	}
}

func TestBroadcastScheduler_CoalescesWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	pusher := &FakePusher{PushFunc: func(context.Context, string, any) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return nil
	}}
	s := newTestScheduler(pusher, NewFakeClock(), &FakeTimers{}, 10, viewers("v1"))
	defer s.Stop()

	s.RequestBroadcast(true)
	<-entered
	for i := 0; i < 5; i++ {
		s.RequestBroadcast(true)
		s.RequestBroadcast(false)
	}
	close(release)
	s.Wait()

	assert.Equal(t, 2, s.Passes(), "requests during a pass collapse into one follow-up")
	assert.Len(t, pusher.Pushes(), 2)
}

func TestBroadcastScheduler_ThrottlesUnforcedRequests(t *testing.T) {
	clock := NewFakeClock()
	timers := &FakeTimers{}
	s := newTestScheduler(&FakePusher{}, clock, timers, 10, viewers())
	defer s.Stop()

	s.RequestBroadcast(false)
	s.Wait()
	require.Equal(t, 1, s.Passes())

	s.RequestBroadcast(false)
	s.RequestBroadcast(false)
	assert.Equal(t, 1, s.Passes())
	assert.Equal(t, 1, timers.Armed(), "one deferred pass at most")

	s.RequestBroadcast(true)
	s.Wait()
	assert.Equal(t, 2, s.Passes())
	assert.Zero(t, timers.Armed(), "forced pass cancels the deferred one")

	s.RequestBroadcast(false)
	require.Equal(t, 1, timers.Armed())
	timers.Fire()
	s.Wait()
	assert.Equal(t, 3, s.Passes())

	clock.Advance(time.Second)
	s.RequestBroadcast(false)
	s.Wait()
	assert.Equal(t, 4, s.Passes())
}

func TestBroadcastScheduler_BatchesEveryViewer(t *testing.T) {
	pusher := &FakePusher{}
	balance := uint64(77)
	plan := func() broadcastPlan {
		p := broadcastPlan{table: livetabletypes.TableSnapshot{RoundID: 5, Phase: livetabletypes.PhaseLocked}}
		for _, id := range []string{"a", "b", "c", "d", "e"} {
			v := viewerState{sessionID: id}
			if id == "c" {
				v.balance = &balance
				v.bets = livetabletypes.BetBookFrom([]livetabletypes.Bet{{BetType: livetabletypes.BetField, Amount: 9}})
			}
			p.viewers = append(p.viewers, v)
		}
		return p
	}
	s := newTestScheduler(pusher, NewFakeClock(), &FakeTimers{}, 2, plan)
	defer s.Stop()

	s.RequestBroadcast(true)
	s.Wait()

	pushes := pusher.Pushes()
	require.Len(t, pushes, 5)
	for _, p := range pushes {
		msg, ok := p.Payload.(livetabletypes.StateMessage)
		require.True(t, ok)
		assert.Equal(t, uint64(5), msg.RoundID)
		assert.Equal(t, "locked", msg.Phase)
		if p.SessionID == "c" {
			require.NotNil(t, msg.Balance)
			assert.Equal(t, "77", *msg.Balance)
			assert.Len(t, msg.MyBets, 1)
		} else {
			assert.Nil(t, msg.Balance)
			assert.Empty(t, msg.MyBets)
		}
	}
}

func TestBroadcastScheduler_StopIgnoresLaterRequests(t *testing.T) {
	s := newTestScheduler(&FakePusher{}, NewFakeClock(), &FakeTimers{}, 10, viewers("v"))
	s.Stop()
	s.RequestBroadcast(true)
	s.Wait()
	assert.Zero(t, s.Passes())
}

func TestBroadcastScheduler_WaitWithConcurrentRequests(t *testing.T) {
	s := newTestScheduler(&FakePusher{}, NewFakeClock(), &FakeTimers{}, 10, viewers("v1", "v2"))
	defer s.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.RequestBroadcast(true)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Wait()
			}
		}()
	}
	wg.Wait()
	s.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.False(t, s.inFlight)
	assert.Positive(t, s.passes)
}
