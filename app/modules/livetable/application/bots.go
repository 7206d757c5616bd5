package livetableservice

import (
	"context"
	"fmt"
	"log/slog"

	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
	txcodec "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/codec"
	"github.com/Black-And-White-Club/livetable-gateway/config"
	"github.com/brianvoe/gofakeit/v7"
	"golang.org/x/sync/errgroup"
)

var (
	botBaseBets  = []string{"PASS", "DONT_PASS", "FIELD", "YES", "NO", "NEXT", "HARDWAY"}
	botPointBets = []string{"COME", "DONT_COME"}
	botBonusBets = []string{"FIRE", "ATS_SMALL", "ATS_TALL", "ATS_ALL", "MUGGSY", "DIFF_DOUBLES", "RIDE_LINE", "REPLAY", "HOT_ROLLER"}
)

// BotPool picks bets for gateway-owned players from a seeded faker so runs
// are reproducible.
type BotPool struct {
	cfg   config.LiveTableConfig
	faker *gofakeit.Faker
}

func NewBotPool(cfg config.LiveTableConfig) *BotPool {
	return &BotPool{cfg: cfg, faker: gofakeit.New(uint64(cfg.BotSeed))}
}

// Participates rolls whether a bot joins this round.
func (p *BotPool) Participates() bool {
	return p.faker.Float64() < p.cfg.BotParticipation
}

// Plan returns the bets a bot places this round given how many distinct bets
// it already holds. An empty result means it sits out.
func (p *BotPool) Plan(round livetabletypes.Round, active int) []livetabletypes.Bet {
	if p.cfg.BotMaxActiveBets > 0 && active >= p.cfg.BotMaxActiveBets {
		return nil
	}
	count := p.cfg.BotBetsMin
	if p.cfg.BotBetsMax > p.cfg.BotBetsMin {
		count = p.faker.IntRange(p.cfg.BotBetsMin, p.cfg.BotBetsMax)
	}
	if p.cfg.BotMaxActiveBets > 0 {
		count = min(count, p.cfg.BotMaxActiveBets-active)
	}
	if count <= 0 {
		return nil
	}

	options := append([]string(nil), botBaseBets...)
	if round.Point != nil {
		options = append(options, botPointBets...)
	}
	if bonusOpen(round) {
		options = append(options, botBonusBets...)
	}

	bets := make([]livetabletypes.Bet, 0, count)
	for range count {
		name := p.faker.RandomString(options)
		var target *uint8
		switch name {
		case "YES", "NO":
			t := yesNoTargets[p.faker.IntRange(0, len(yesNoTargets)-1)]
			target = &t
		case "NEXT":
			t := uint8(p.faker.IntRange(2, 12))
			target = &t
		case "HARDWAY":
			t := hardwayTargets[p.faker.IntRange(0, len(hardwayTargets)-1)]
			target = &t
		}
		betType, betTarget, err := livetabletypes.NormalizeBetType(livetabletypes.BetTypeNamed(name), target)
		if err != nil {
			continue
		}
		bets = append(bets, livetabletypes.Bet{BetType: betType, Target: betTarget, Amount: p.amount()})
	}
	return bets
}

func (p *BotPool) amount() uint64 {
	if p.cfg.BotBetMax <= p.cfg.BotBetMin {
		return p.cfg.BotBetMin
	}
	span := p.cfg.BotBetMax - p.cfg.BotBetMin
	return p.cfg.BotBetMin + p.faker.Uint64()%(span+1)
}

// bonusOpen reports whether the come-out bonus bets are on offer: no point
// and either no roll yet or the last roll was a seven.
func bonusOpen(r livetabletypes.Round) bool {
	if r.Point != nil {
		return false
	}
	return r.Dice == nil || r.Dice[0]+r.Dice[1] == 7
}

// spawnBots creates the configured bots with fresh signers.
func (c *Coordinator) spawnBots() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.cfg.BotCount {
		signer, err := livetabletypes.NewSigner(nil)
		if err != nil {
			return fmt.Errorf("failed to create bot signer: %w", err)
		}
		c.registry.AddBot(&BotState{Name: fmt.Sprintf("bot-%03d", i), Signer: signer})
	}
	if c.cfg.BotCount > 0 {
		c.logger.Info("Live table bots ready", slog.Int("count", c.cfg.BotCount))
	}
	return nil
}

type botOrder struct {
	bot  *BotState
	bets []livetabletypes.Bet
}

// placeBotBets submits each participating bot's bets once per betting round.
func (c *Coordinator) placeBotBets(ctx context.Context) {
	c.mu.Lock()
	round := c.round
	if c.bots == nil || round.RoundID == 0 || round.Phase != livetabletypes.PhaseBetting ||
		c.botsRound == round.RoundID || c.botsBusy {
		c.mu.Unlock()
		return
	}
	bots := c.registry.Bots()
	if len(bots) == 0 {
		c.mu.Unlock()
		return
	}
	c.botsRound = round.RoundID
	var orders []botOrder
	for _, bot := range bots {
		bot.LastRound = round.RoundID
		if !c.bots.Participates() {
			continue
		}
		if bets := c.bots.Plan(round, len(c.playerBets[bot.Signer.PublicKeyHex])); len(bets) > 0 {
			orders = append(orders, botOrder{bot: bot, bets: bets})
		}
	}
	if len(orders) == 0 {
		c.mu.Unlock()
		return
	}
	c.botsBusy = true
	c.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(max(c.cfg.BotBatchSize, 1))
	for _, o := range orders {
		g.Go(func() error {
			instr := txcodec.EncodeSubmitBets(txcodec.GameCraps, round.RoundID, o.bets)
			if _, err := c.submitter.Submit(ctx, o.bot.Signer, instr); err != nil {
				c.logger.Debug("Bot bets not accepted",
					slog.String("bot", o.bot.Name),
					slog.Uint64("round_id", round.RoundID),
					slog.Any("error", err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	c.botsBusy = false
	c.mu.Unlock()
}
