// File: cmd/payflow/commands.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
	"rollingpi/internal/usecase"
)

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newFlags(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

// purchaseFlags are shared by pay and pay-qr.
type purchaseFlags struct {
	plan     string
	article  int64
	category string
}

func (p *purchaseFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.plan, "plan", string(model.PlanStandard), "STANDARD|CATEGORY_SLIDER|MAIN_SLIDER")
	fs.Int64Var(&p.article, "article", 0, "article to promote; 0 creates a draft")
	fs.StringVar(&p.category, "category", "", "category slug, required for CATEGORY_SLIDER")
}

func (p *purchaseFlags) request() (usecase.PurchaseRequest, error) {
	plan, err := model.ParsePlanType(p.plan)
	if err != nil {
		return usecase.PurchaseRequest{}, fmt.Errorf("%w: plan %q", err, p.plan)
	}
	return usecase.PurchaseRequest{Plan: plan, ArticleID: articlePtr(p.article), CategorySlug: p.category}, nil
}

func articlePtr(id int64) *int64 {
	if id <= 0 {
		return nil
	}
	return &id
}

func writePNG(path string, qr *model.QRCode) error {
	if path == "" || qr == nil {
		return nil
	}
	return os.WriteFile(path, qr.PNG, 0o644)
}

// ensureSignedIn authenticates through the wallet when no session is stored.
func ensureSignedIn(ctx context.Context, app *App, gw usecase.GatewayClient) error {
	if _, err := app.state.CurrentUser(ctx); err == nil {
		return nil
	} else if !errors.Is(err, domain.ErrUnauthenticated) && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	_, err := gw.Authenticate(ctx)
	return err
}

func runLogin(ctx context.Context, app *App, args []string, out io.Writer) error {
	fs := newFlags("login")
	var w walletFlags
	w.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	gw, err := app.gateway(&w)
	if err != nil {
		return err
	}
	sess, err := gw.Authenticate(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, map[string]any{"username": sess.Username, "piId": sess.PiID, "role": sess.Role})
}

func runPay(ctx context.Context, app *App, args []string, out io.Writer) error {
	fs := newFlags("pay")
	var (
		w     walletFlags
		p     purchaseFlags
		qrURL string
	)
	w.register(fs)
	p.register(fs)
	fs.StringVar(&qrURL, "qr-url", "", "complete a payment started by pay-qr on another device")
	if err := fs.Parse(args); err != nil {
		return err
	}

	gw, err := app.gateway(&w)
	if err != nil {
		return err
	}
	if err := ensureSignedIn(ctx, app, gw); err != nil {
		return err
	}
	orch := app.orchestrator(gw)
	defer orch.Close()

	var res *usecase.PurchaseResult
	if qrURL != "" {
		paymentID, req, perr := parseQRLink(qrURL)
		if perr != nil {
			return perr
		}
		if p.category != "" {
			req.CategorySlug = p.category
		}
		res, err = orch.PurchaseFromQR(ctx, paymentID, req)
	} else {
		req, rerr := p.request()
		if rerr != nil {
			return rerr
		}
		res, err = orch.Purchase(ctx, req)
	}
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

func runPayQR(ctx context.Context, app *App, args []string, out io.Writer) error {
	fs := newFlags("pay-qr")
	var (
		p      purchaseFlags
		pngOut string
	)
	p.register(fs)
	fs.StringVar(&pngOut, "out", "payment-qr.png", "where to write the QR image; empty to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := p.request()
	if err != nil {
		return err
	}

	var none walletFlags
	none.mode = "none"
	gw, err := app.gateway(&none)
	if err != nil {
		return err
	}
	orch := app.orchestrator(gw)
	defer orch.Close()

	qp, err := orch.StartQRPayment(ctx, req)
	if err != nil {
		return err
	}
	defer qp.Close()
	if err := writePNG(pngOut, qp.QR); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "scan to pay: %s\n", qp.URL)

	res, err := qp.Wait(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

func runLink(ctx context.Context, app *App, args []string, out io.Writer) error {
	fs := newFlags("link")
	var pngOut string
	fs.StringVar(&pngOut, "out", "link-qr.png", "where to write the QR image; empty to skip")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var none walletFlags
	none.mode = "none"
	gw, err := app.gateway(&none)
	if err != nil {
		return err
	}
	b := app.bridge(gw)
	link, err := b.Begin(ctx)
	if err != nil {
		return err
	}
	if err := writePNG(pngOut, link.QR); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "open on a signed-in device: %s\n", link.URL)

	sess, err := b.Await(ctx, link)
	if err != nil {
		return err
	}
	return printJSON(out, map[string]any{"username": sess.Username, "piId": sess.PiID, "role": sess.Role})
}

func runSync(ctx context.Context, app *App, args []string, out io.Writer) error {
	fs := newFlags("sync")
	var (
		w    walletFlags
		code string
	)
	w.register(fs)
	fs.StringVar(&code, "code", "", "code shown by the other device, or its full link")
	if err := fs.Parse(args); err != nil {
		return err
	}
	code = codeFromLink(code)

	gw, err := app.gateway(&w)
	if err != nil {
		return err
	}
	if err := app.bridge(gw).Sync(ctx, code); err != nil {
		return err
	}
	return printJSON(out, map[string]bool{"synced": true})
}

func runWatch(ctx context.Context, app *App, args []string, out io.Writer) error {
	fs := newFlags("watch")
	var paymentID string
	fs.StringVar(&paymentID, "payment", "", "payment id to wait for; empty resumes every pending payment")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if paymentID != "" {
		view, err := app.watcher.Start(ctx, "cli:"+paymentID, paymentID).Wait(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, view)
	}

	var none walletFlags
	none.mode = "none"
	gw, err := app.gateway(&none)
	if err != nil {
		return err
	}
	orch := app.orchestrator(gw)
	defer orch.Close()
	results, err := orch.ResumePending(ctx)
	if err != nil {
		return err
	}
	type row struct {
		PaymentID string `json:"paymentId"`
		Settled   bool   `json:"settled"`
		Cleared   bool   `json:"cleared"`
		Error     string `json:"error,omitempty"`
	}
	rows := make([]row, 0, len(results))
	for _, r := range results {
		rw := row{PaymentID: r.PaymentID, Settled: r.Settled, Cleared: r.Cleared}
		if r.Err != nil {
			rw.Error = r.Err.Error()
		}
		rows = append(rows, rw)
	}
	return printJSON(out, rows)
}

func runSlots(ctx context.Context, app *App, args []string, out io.Writer) error {
	fs := newFlags("slots")
	var p purchaseFlags
	p.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	req, err := p.request()
	if err != nil {
		return err
	}
	s, err := app.relay.Slots(ctx, req.Plan, req.CategorySlug)
	if err != nil {
		return err
	}
	return printJSON(out, s)
}

// planTarget names one promotion of one article; plans, activate and
// cancel share it.
type planTarget struct {
	article int64
	plan    string
}

func (p *planTarget) register(fs *flag.FlagSet, withPlan bool) {
	fs.Int64Var(&p.article, "article", 0, "article id")
	if withPlan {
		fs.StringVar(&p.plan, "plan", "", "STANDARD|CATEGORY_SLIDER|MAIN_SLIDER")
	}
}

func (p *planTarget) parse(withPlan bool) (model.PlanType, error) {
	if p.article <= 0 {
		return "", fmt.Errorf("%w: -article is required", domain.ErrInvalidArgument)
	}
	if !withPlan {
		return "", nil
	}
	plan, err := model.ParsePlanType(p.plan)
	if err != nil {
		return "", fmt.Errorf("%w: plan %q", err, p.plan)
	}
	return plan, nil
}

func runPlans(ctx context.Context, app *App, args []string, out io.Writer) error {
	fs := newFlags("plans")
	var target planTarget
	target.register(fs, false)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := target.parse(false); err != nil {
		return err
	}
	plans, err := app.relay.ActivePlans(ctx, target.article)
	if err != nil {
		return err
	}
	return printJSON(out, plans)
}

func runActivate(ctx context.Context, app *App, args []string, out io.Writer) error {
	fs := newFlags("activate")
	var (
		target   planTarget
		username string
	)
	target.register(fs, true)
	fs.StringVar(&username, "user", "", "owner recorded on the manual payment; defaults to the caller")
	if err := fs.Parse(args); err != nil {
		return err
	}
	plan, err := target.parse(true)
	if err != nil {
		return err
	}
	c, err := app.relay.ActivatePlan(ctx, adapter.ActivateRequest{
		ArticleID: articlePtr(target.article),
		PlanType:  plan,
		Username:  username,
	})
	if err != nil {
		return err
	}
	return printJSON(out, c)
}

func runCancel(ctx context.Context, app *App, args []string, out io.Writer) error {
	fs := newFlags("cancel")
	var target planTarget
	target.register(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}
	plan, err := target.parse(true)
	if err != nil {
		return err
	}
	if err := app.relay.CancelPlan(ctx, target.article, plan); err != nil {
		return err
	}
	return printJSON(out, map[string]bool{"cancelled": true})
}

func runPrice(ctx context.Context, app *App, args []string, out io.Writer) error {
	p, err := app.relay.Prices(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, p)
}

// parseQRLink reads the payment id, plan and article from a pay-qr link.
func parseQRLink(raw string) (string, usecase.PurchaseRequest, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", usecase.PurchaseRequest{}, fmt.Errorf("%w: qr link", domain.ErrInvalidArgument)
	}
	q := u.Query()
	paymentID := q.Get("paymentId")
	if paymentID == "" {
		return "", usecase.PurchaseRequest{}, fmt.Errorf("%w: qr link without paymentId", domain.ErrInvalidArgument)
	}
	plan, err := model.ParsePlanType(q.Get("plan"))
	if err != nil {
		return "", usecase.PurchaseRequest{}, fmt.Errorf("%w: qr link plan", err)
	}
	req := usecase.PurchaseRequest{Plan: plan}
	if v := q.Get("articleId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return "", usecase.PurchaseRequest{}, fmt.Errorf("%w: qr link articleId", domain.ErrInvalidArgument)
		}
		req.ArticleID = articlePtr(id)
	}
	return paymentID, req, nil
}

// codeFromLink accepts either a bare code or a link carrying ?code=.
func codeFromLink(s string) string {
	if u, err := url.Parse(s); err == nil && u.RawQuery != "" {
		if c := u.Query().Get("code"); c != "" {
			return c
		}
	}
	return s
}
