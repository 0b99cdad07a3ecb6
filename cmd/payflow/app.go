// File: cmd/payflow/app.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"rollingpi/internal/config"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
	"rollingpi/internal/infra/adapters/qr"
	"rollingpi/internal/infra/adapters/relay"
	"rollingpi/internal/infra/adapters/sdk"
	red "rollingpi/internal/infra/redis"
	"rollingpi/internal/infra/security"
	"rollingpi/internal/usecase"
)

// App holds the client components shared by every command.
type App struct {
	cfg   *config.Config
	log   *zerolog.Logger
	redis *red.Client
	state *red.ClientStateRepo
	relay *relay.HTTPRelay
	qr    *qr.Renderer
	sub   adapter.SessionSubscriber

	watcher usecase.CompletionWatcher
}

func newApp(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	rc, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	state := red.NewClientStateRepo(rc, cfg.Payflow.StateRedisKey, cfg.Payflow.DeviceID)
	if cfg.Payflow.StateKey != "" {
		sealer, err := security.NewSealer(cfg.Payflow.StateKey)
		if err != nil {
			_ = rc.Close()
			return nil, err
		}
		state.WithSealer(sealer)
	}
	rl, err := relay.NewHTTPRelay(cfg.Payflow.APIURL, cfg.Payflow.HTTPTimeout, state, logger)
	if err != nil {
		_ = rc.Close()
		return nil, err
	}
	app := &App{
		cfg:     cfg,
		log:     logger,
		redis:   rc,
		state:   state,
		relay:   rl,
		qr:      qr.NewRenderer(),
		watcher: usecase.NewCompletionWatcher(rl, cfg.Payflow.PollInterval, logger),
	}
	if cfg.Payflow.UsePush {
		app.sub = red.NewSessionNotifier(rc, logger)
	}
	return app, nil
}

func (a *App) Close() {
	a.watcher.StopAll()
	_ = a.redis.Close()
}

// walletFlags select the payment SDK a command runs against.
type walletFlags struct {
	mode     string
	token    string
	uid      string
	username string
	delay    time.Duration
}

func (w *walletFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&w.mode, "wallet", "complete", "wallet: none|complete|cancel|error|cancel-after-approval")
	fs.StringVar(&w.token, "pi-token", os.Getenv("PI_ACCESS_TOKEN"), "Pi access token handed to the backend at login")
	fs.StringVar(&w.uid, "pi-uid", os.Getenv("PI_UID"), "Pi uid of the wallet user")
	fs.StringVar(&w.username, "pi-user", os.Getenv("PI_USERNAME"), "Pi username of the wallet user")
	fs.DurationVar(&w.delay, "wallet-delay", 200*time.Millisecond, "pause between wallet callbacks")
}

func (w *walletFlags) paymentSDK() (adapter.PaymentSDK, error) {
	b, err := parseBehavior(w.mode)
	if err != nil {
		return nil, err
	}
	if b == "" {
		return sdk.Unavailable{}, nil
	}
	auth := model.SDKAuth{AccessToken: w.token, UID: w.uid, Username: w.username}
	if auth.AccessToken == "" {
		auth.AccessToken = "sandbox-" + w.uid
	}
	return sdk.NewSimulatedWallet(auth, b, w.delay), nil
}

func (a *App) gateway(w *walletFlags) (usecase.GatewayClient, error) {
	s, err := w.paymentSDK()
	if err != nil {
		return nil, err
	}
	return usecase.NewGatewayClient(s, a.relay, a.state, a.cfg.Payflow.Sandbox, a.log), nil
}

func (a *App) orchestrator(gw usecase.GatewayClient) usecase.PaymentOrchestrator {
	return usecase.NewPaymentOrchestrator(gw, a.relay, a.watcher, a.qr, a.state, usecase.OrchestratorOptions{
		Sandbox:      a.cfg.Payflow.Sandbox,
		PaymentQRURL: a.cfg.Payflow.PaymentQRURL,
		QRSize:       a.cfg.Payflow.QRSize,
	}, a.log)
}

func (a *App) bridge(gw usecase.GatewayClient) usecase.SessionLinkBridge {
	return usecase.NewSessionLinkBridge(a.relay, gw, a.qr, a.sub, a.state, usecase.SessionLinkOptions{
		LinkBaseURL:  a.cfg.Payflow.LinkBaseURL,
		QRSize:       a.cfg.Payflow.QRSize,
		PollInterval: a.cfg.Payflow.PollInterval,
	}, a.log)
}

// parseBehavior maps the -wallet flag; "none" yields an empty behavior,
// meaning no wallet on this device.
func parseBehavior(s string) (sdk.Behavior, error) {
	switch b := sdk.Behavior(strings.ToLower(strings.TrimSpace(s))); b {
	case "none", "":
		return "", nil
	case sdk.BehaviorComplete, sdk.BehaviorCancel, sdk.BehaviorError, sdk.BehaviorCancelAfterApproval:
		return b, nil
	}
	return "", fmt.Errorf("unknown wallet mode %q", s)
}
