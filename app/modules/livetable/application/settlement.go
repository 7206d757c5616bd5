package livetableservice

import (
	"context"
	"log/slog"
	"sort"
	"time"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
	txcodec "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/codec"
	"golang.org/x/sync/errgroup"
)

type settleEntry struct {
	attempts    int
	nextAttempt time.Time
}

// SettlementQueue is the set of players still owed a settlement transaction
// for the current round. It is guarded by the coordinator's lock.
type SettlementQueue struct {
	entries map[string]*settleEntry
}

func NewSettlementQueue() *SettlementQueue {
	return &SettlementQueue{entries: make(map[string]*settleEntry)}
}

// Reset replaces the queue with exactly keys.
func (q *SettlementQueue) Reset(keys []string) {
	q.entries = make(map[string]*settleEntry, len(keys))
	for _, k := range keys {
		q.entries[k] = &settleEntry{}
	}
}

// Remove drops the key. Removing an absent key is a no-op.
func (q *SettlementQueue) Remove(key string) bool {
	if _, ok := q.entries[key]; !ok {
		return false
	}
	delete(q.entries, key)
	return true
}

func (q *SettlementQueue) Contains(key string) bool {
	_, ok := q.entries[key]
	return ok
}

func (q *SettlementQueue) Len() int { return len(q.entries) }

// Keys returns every queued key, sorted.
func (q *SettlementQueue) Keys() []string {
	out := make([]string, 0, len(q.entries))
	for k := range q.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Ready returns up to limit keys whose next attempt is due, sorted.
func (q *SettlementQueue) Ready(now time.Time, limit int) []string {
	var out []string
	for _, k := range q.Keys() {
		if limit > 0 && len(out) >= limit {
			break
		}
		if e := q.entries[k]; !now.Before(e.nextAttempt) {
			out = append(out, k)
		}
	}
	return out
}

func (q *SettlementQueue) Attempts(key string) int {
	if e := q.entries[key]; e != nil {
		return e.attempts
	}
	return 0
}

// MarkAttempt counts an attempt and defers the next one until next.
func (q *SettlementQueue) MarkAttempt(key string, next time.Time) {
	if e := q.entries[key]; e != nil {
		e.attempts++
		e.nextAttempt = next
	}
}

// Defer moves the key's next attempt without counting one.
func (q *SettlementQueue) Defer(key string, next time.Time) {
	if e := q.entries[key]; e != nil {
		e.nextAttempt = next
	}
}

type settleJob struct {
	key    string
	signer *livetabletypes.Signer
}

// drainSettlement submits one batch of settlement transactions during payout.
// An accepted submission removes the entry; a rejected one stays queued until
// its retry time or the attempt cap.
func (c *Coordinator) drainSettlement(ctx context.Context) {
	c.mu.Lock()
	if c.round.Phase != livetabletypes.PhasePayout || c.settling > 0 || c.settlement.Len() == 0 {
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()
	roundID := c.round.RoundID
	var jobs []settleJob
	for _, key := range c.settlement.Ready(now, c.cfg.SettleBatchSize) {
		signer := c.registry.SignerFor(key)
		if signer == nil {
			c.dropSettlementLocked(key, dropNoSigner)
			continue
		}
		if c.cfg.SettleMaxAttempts > 0 && c.settlement.Attempts(key) >= c.cfg.SettleMaxAttempts {
			c.dropSettlementLocked(key, dropMaxAttempts)
			continue
		}
		c.settlement.MarkAttempt(key, now.Add(c.cfg.AdminRetryInterval))
		jobs = append(jobs, settleJob{key: key, signer: signer})
	}
	c.settling = len(jobs)
	c.mu.Unlock()

	if len(jobs) == 0 {
		return
	}

	instr := txcodec.EncodeSettle(txcodec.GameCraps, roundID)
	accepted := make([]bool, len(jobs))
	var g errgroup.Group
	g.SetLimit(max(c.cfg.SettleBatchSize, 1))
	for i, j := range jobs {
		g.Go(func() error {
			ok, err := c.submitter.Submit(ctx, j.signer, instr)
			if err != nil {
				c.logger.Warn("Settlement not accepted",
					slog.String("player", j.key),
					slog.Uint64("round_id", roundID),
					slog.Any("error", err),
				)
				return nil
			}
			accepted[i] = ok
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.settling = 0
	if c.round.RoundID != roundID {
		c.logger.Debug("Round moved on during settlement",
			slog.Uint64("settled_round_id", roundID),
			slog.Uint64("round_id", c.round.RoundID),
		)
		return
	}
	for i, j := range jobs {
		if accepted[i] {
			c.settlement.Remove(j.key)
		}
	}
}

func (c *Coordinator) dropSettlementLocked(key, reason string) {
	c.settlement.Remove(key)
	c.metrics.RecordSettlementDropped(reason)
	c.logger.Warn("Dropping settlement",
		slog.String("player", key),
		slog.String("reason", reason),
		slog.Uint64("round_id", c.round.RoundID),
	)
}
