package livetableintegrationtests

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable"
	livetabletypes "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/domain/types"
	txcodec "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/codec"
	noncedb "github.com/Black-And-White-Club/livetable-gateway/app/modules/livetable/infrastructure/repositories"
	"github.com/Black-And-White-Club/livetable-gateway/config"
	natsutil "github.com/Black-And-White-Club/livetable-gateway/internal/nats"
	watermillutil "github.com/Black-And-White-Club/livetable-gateway/internal/watermill"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

// fakeLedger accepts every submission and records the decoded transactions.
type fakeLedger struct {
	mu  sync.Mutex
	txs []txcodec.Transaction
}

func (f *fakeLedger) handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/submit", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		txs, err := txcodec.DecodeSubmission(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.txs = append(f.txs, txs...)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/account/{key}", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]uint64{"nonce": 0})
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	return r
}

func (f *fakeLedger) submitted(tag byte) []txcodec.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []txcodec.Transaction
	for _, tx := range f.txs {
		if len(tx.Instruction) > 0 && tx.Instruction[0] == tag {
			out = append(out, tx)
		}
	}
	return out
}

func liveTableConfig(t *testing.T, ledgerURL string) *config.Config {
	t.Helper()
	admin, err := livetabletypes.NewSigner(nil)
	require.NoError(t, err)

	cfg := &config.Config{
		Postgres: config.PostgresConfig{DSN: testEnv.DSN},
		NATS: config.NATSConfig{
			URL:               testEnv.NatsURL,
			EventSubject:      "it.ledger.events",
			CommandSubject:    "it.livetable.commands",
			PushSubjectPrefix: "it.livetable.push",
			QueueGroup:        "it-gateway",
		},
		Backend: config.BackendConfig{URL: ledgerURL, Timeout: 5 * time.Second},
		LiveTable: config.LiveTableConfig{
			Enabled:              true,
			AdminKeyHex:          hex.EncodeToString(admin.PrivateKey.Seed()),
			TickInterval:         time.Hour,
			NoncePersistInterval: time.Hour,
			NonceFile:            t.TempDir() + "/nonces.json",
		},
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestGateway_JoinOpenRoundAndBet(t *testing.T) {
	resetDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ledger := &fakeLedger{}
	server := httptest.NewServer(ledger.handler())
	defer server.Close()
	cfg := liveTableConfig(t, server.URL)

	wmLogger := watermill.NopLogger{}
	natsCfg := natsutil.Config{URL: cfg.NATS.URL, Name: "it-gateway"}
	publisher, err := natsutil.NewPublisher(natsCfg, wmLogger)
	require.NoError(t, err)
	defer publisher.Close()
	subscriber, err := natsutil.NewSubscriber(natsCfg, cfg.NATS.QueueGroup, wmLogger)
	require.NoError(t, err)
	defer subscriber.Close()
	router, err := watermillutil.NewRouter(wmLogger, 5*time.Second)
	require.NoError(t, err)

	module, err := livetable.NewLiveTableModule(ctx, cfg, testEnv.Logger, noop.NewTracerProvider().Tracer("test"),
		nil, router, subscriber, nil, publisher, testEnv.DB)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go module.Run(ctx, &wg)
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	pushes, err := testEnv.NatsConn.SubscribeSync(cfg.NATS.PushSubjectPrefix + ".s1")
	require.NoError(t, err)
	require.NoError(t, testEnv.NatsConn.Flush())

	publish := func(topic string, payload any) {
		t.Helper()
		data, ok := payload.([]byte)
		if !ok {
			data, err = json.Marshal(payload)
			require.NoError(t, err)
		}
		require.NoError(t, publisher.Publish(topic, message.NewMessage(watermill.NewUUID(), data)))
	}

	// Join: initial state then the acknowledgement.
	publish(cfg.NATS.CommandSubject, livetabletypes.Command{Type: livetabletypes.CommandJoin, SessionID: "s1"})
	joined := waitFor(t, pushes, livetabletypes.MessageJoined)
	var ack livetabletypes.JoinedMessage
	require.NoError(t, json.Unmarshal(joined, &ack))
	assert.Equal(t, "s1", ack.SessionID)
	require.NotEmpty(t, ack.PublicKey)

	// The ledger opens a round.
	event, err := livetabletypes.EncodeEvent(livetabletypes.RoundOpened{Round: livetabletypes.Round{
		RoundID:     5,
		Phase:       livetabletypes.PhaseBetting,
		PhaseEndsAt: time.Now().Add(time.Minute),
	}})
	require.NoError(t, err)
	publish(cfg.NATS.EventSubject, event)

	require.Eventually(t, func() bool {
		return module.Coordinator.Snapshot().RoundID == 5
	}, 10*time.Second, 20*time.Millisecond)

	// The viewer bets.
	publish(cfg.NATS.CommandSubject, livetabletypes.Command{
		Type:      livetabletypes.CommandPlaceBets,
		SessionID: "s1",
		Bets:      []livetabletypes.BetInput{{Type: livetabletypes.BetTypeNamed("PASS"), Amount: 25}},
	})
	confirmation := waitFor(t, pushes, livetabletypes.MessageConfirmation)
	var conf livetabletypes.ConfirmationMessage
	require.NoError(t, json.Unmarshal(confirmation, &conf))
	assert.Equal(t, livetabletypes.StatusPending, conf.Status)
	assert.Equal(t, uint64(5), conf.RoundID)

	bets := ledger.submitted(txcodec.TagSubmitBets)
	require.Len(t, bets, 1)
	assert.Equal(t, ack.PublicKey, hex.EncodeToString(bets[0].PublicKey))
	assert.Equal(t, uint64(0), bets[0].Nonce)
	assert.True(t, bets[0].Verify())

	require.NoError(t, module.Close())
	wg.Wait()

	// Close writes the nonce map to Postgres.
	n, err := noncedb.NewNonceDB(testEnv.DB).Get(context.Background(), ack.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

// waitFor reads pushes until one of the given type arrives.
func waitFor(t *testing.T, sub *nats.Subscription, msgType string) []byte {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		msg, err := sub.NextMsg(time.Until(deadline))
		if err != nil {
			break
		}
		var head struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(msg.Data, &head) == nil && head.Type == msgType {
			return msg.Data
		}
	}
	t.Fatalf("no %s push received", msgType)
	return nil
}
