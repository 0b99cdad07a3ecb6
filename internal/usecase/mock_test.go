//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"rollingpi/internal/domain"
	"rollingpi/internal/domain/model"
	"rollingpi/internal/domain/ports/adapter"
	"rollingpi/internal/domain/ports/repository"
	"rollingpi/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func int64Ptr(v int64) *int64 { return &v }

// =============================
// Client side
// =============================

// ---- Mock PaymentRelay ----

type MockRelay struct {
	mu    sync.Mutex
	calls []string

	LoginFunc             func(ctx context.Context, auth model.SDKAuth, sandbox bool) (*model.UserSession, error)
	CreatePaymentFunc     func(ctx context.Context, intent model.PaymentIntent, sandbox bool) (*model.CreatedPayment, error)
	ApprovePaymentFunc    func(ctx context.Context, paymentID string, plan model.PlanType) error
	CompletePaymentFunc   func(ctx context.Context, req adapter.CompleteRequest) (*model.Completion, error)
	PaymentStatusFunc     func(ctx context.Context, paymentID string) (*model.PaymentView, error)
	SlotsFunc             func(ctx context.Context, plan model.PlanType, categorySlug string) (*model.SlotAvailability, error)
	CreateSessionLinkFunc func(ctx context.Context) (string, error)
	SyncSessionFunc       func(ctx context.Context, code string) error
	SessionLinkStatusFunc func(ctx context.Context, code string) (*model.LinkedSession, error)
}

var _ adapter.PaymentRelay = (*MockRelay)(nil)

func (m *MockRelay) record(op string) {
	m.mu.Lock()
	m.calls = append(m.calls, op)
	m.mu.Unlock()
}

// Calls returns the operations issued so far, in order.
func (m *MockRelay) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockRelay) Count(op string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

func (m *MockRelay) Login(ctx context.Context, auth model.SDKAuth, sandbox bool) (*model.UserSession, error) {
	m.record("login")
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, auth, sandbox)
	}
	return &model.UserSession{Username: auth.Username, PiID: auth.UID, AccessToken: "jwt-" + auth.UID, Role: model.RoleUser}, nil
}

func (m *MockRelay) CreatePayment(ctx context.Context, intent model.PaymentIntent, sandbox bool) (*model.CreatedPayment, error) {
	m.record("create")
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, intent, sandbox)
	}
	return &model.CreatedPayment{
		PaymentID: intent.PaymentID,
		Amount:    intent.PlanType.PriceInPi(),
		Memo:      "Payment for plan: " + string(intent.PlanType),
	}, nil
}

func (m *MockRelay) ApprovePayment(ctx context.Context, paymentID string, plan model.PlanType) error {
	m.record("approve")
	if m.ApprovePaymentFunc != nil {
		return m.ApprovePaymentFunc(ctx, paymentID, plan)
	}
	return nil
}

func (m *MockRelay) CompletePayment(ctx context.Context, req adapter.CompleteRequest) (*model.Completion, error) {
	m.record("complete")
	if m.CompletePaymentFunc != nil {
		return m.CompletePaymentFunc(ctx, req)
	}
	return &model.Completion{ArticleID: req.ArticleID}, nil
}

func (m *MockRelay) PaymentStatus(ctx context.Context, paymentID string) (*model.PaymentView, error) {
	m.record("status")
	if m.PaymentStatusFunc != nil {
		return m.PaymentStatusFunc(ctx, paymentID)
	}
	return nil, domain.ErrNotFound
}

func (m *MockRelay) Slots(ctx context.Context, plan model.PlanType, categorySlug string) (*model.SlotAvailability, error) {
	m.record("slots")
	if m.SlotsFunc != nil {
		return m.SlotsFunc(ctx, plan, categorySlug)
	}
	return &model.SlotAvailability{Available: true, RemainingSlots: 1, TotalSlots: plan.TotalSlots()}, nil
}

func (m *MockRelay) ActivePlans(ctx context.Context, articleID int64) ([]model.ActivePlan, error) {
	m.record("active_plans")
	return nil, nil
}

func (m *MockRelay) ActivatePlan(ctx context.Context, req adapter.ActivateRequest) (*model.Completion, error) {
	m.record("activate")
	return &model.Completion{ArticleID: req.ArticleID}, nil
}

func (m *MockRelay) CancelPlan(ctx context.Context, articleID int64, plan model.PlanType) error {
	m.record("cancel")
	return nil
}

func (m *MockRelay) Prices(ctx context.Context) (*model.PlanPrices, error) {
	m.record("prices")
	return &model.PlanPrices{}, nil
}

func (m *MockRelay) CreateSessionLink(ctx context.Context) (string, error) {
	m.record("link_create")
	if m.CreateSessionLinkFunc != nil {
		return m.CreateSessionLinkFunc(ctx)
	}
	return "code-1", nil
}

func (m *MockRelay) SyncSession(ctx context.Context, code string) error {
	m.record("link_sync")
	if m.SyncSessionFunc != nil {
		return m.SyncSessionFunc(ctx, code)
	}
	return nil
}

func (m *MockRelay) SessionLinkStatus(ctx context.Context, code string) (*model.LinkedSession, error) {
	m.record("link_status")
	if m.SessionLinkStatusFunc != nil {
		return m.SessionLinkStatusFunc(ctx, code)
	}
	return nil, nil
}

// ---- Mock PaymentSDK ----

type MockSDK struct {
	Unavailable bool

	AuthenticateFunc  func(ctx context.Context, scopes []string) (*model.SDKAuth, error)
	CreatePaymentFunc func(ctx context.Context, intent model.PaymentIntent, cb adapter.PaymentCallbacks) error
}

var _ adapter.PaymentSDK = (*MockSDK)(nil)

func (m *MockSDK) Available() bool { return !m.Unavailable }

func (m *MockSDK) Authenticate(ctx context.Context, scopes []string) (*model.SDKAuth, error) {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, scopes)
	}
	return &model.SDKAuth{AccessToken: "sdk-token", UID: "uid-1", Username: "alice"}, nil
}

func (m *MockSDK) CreatePayment(ctx context.Context, intent model.PaymentIntent, cb adapter.PaymentCallbacks) error {
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, intent, cb)
	}
	cb.OnReadyForServerApproval(intent.PaymentID)
	cb.OnReadyForServerCompletion(intent.PaymentID, "tx-"+intent.PaymentID)
	return nil
}

// ---- Mock ClientStateRepository ----

type MockClientState struct {
	mu      sync.Mutex
	user    *model.UserSession
	pending map[string]model.PendingPayment

	PutPendingErr error
}

var _ repository.ClientStateRepository = (*MockClientState)(nil)

func NewMockClientState() *MockClientState {
	return &MockClientState{pending: make(map[string]model.PendingPayment)}
}

// signedIn returns a state with alice as the current user.
func signedIn() *MockClientState {
	s := NewMockClientState()
	s.user = &model.UserSession{Username: "alice", PiID: "uid-1", AccessToken: "jwt-1", Role: model.RoleUser}
	return s
}

func (m *MockClientState) CurrentUser(ctx context.Context) (*model.UserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil, domain.ErrUnauthenticated
	}
	cp := *m.user
	return &cp, nil
}

func (m *MockClientState) SaveUser(ctx context.Context, s model.UserSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = &s
	return nil
}

func (m *MockClientState) ClearUser(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = nil
	return nil
}

func (m *MockClientState) PutPending(ctx context.Context, p model.PendingPayment) error {
	if m.PutPendingErr != nil {
		return m.PutPendingErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[p.PaymentID] = p
	return nil
}

func (m *MockClientState) DeletePending(ctx context.Context, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, paymentID)
	return nil
}

func (m *MockClientState) ListPending(ctx context.Context) ([]model.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PendingPayment, 0, len(m.pending))
	for _, p := range m.pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentID < out[j].PaymentID })
	return out, nil
}

func (m *MockClientState) HasPending(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[id]
	return ok
}

func (m *MockClientState) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// ---- Mock GatewayClient ----

type MockGateway struct {
	AuthenticateFunc func(ctx context.Context) (*model.UserSession, error)
	authCalls        int
}

var _ usecase.GatewayClient = (*MockGateway)(nil)

func (m *MockGateway) Available() bool { return true }

func (m *MockGateway) Authenticate(ctx context.Context) (*model.UserSession, error) {
	m.authCalls++
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx)
	}
	return &model.UserSession{Username: "bob", AccessToken: "jwt-b"}, nil
}

func (m *MockGateway) Open(ctx context.Context, intent model.PaymentIntent) (*usecase.PaymentAttempt, error) {
	return nil, domain.ErrAuthUnavailable
}

// ---- Mock QRRenderer ----

type MockQR struct {
	mu       sync.Mutex
	rendered []string
	Err      error
}

var _ adapter.QRRenderer = (*MockQR)(nil)

func (m *MockQR) Render(content string, size int) (*model.QRCode, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	m.rendered = append(m.rendered, content)
	m.mu.Unlock()
	return &model.QRCode{Content: content, PNG: []byte{0x89, 'P', 'N', 'G'}}, nil
}

// ---- Mock SessionSubscriber / SessionPublisher ----

type MockSubscriber struct {
	Ch       chan model.LinkedSession
	Err      error
	released bool
}

var _ adapter.SessionSubscriber = (*MockSubscriber)(nil)

func (m *MockSubscriber) SubscribeSession(ctx context.Context, code string) (<-chan model.LinkedSession, func(), error) {
	if m.Err != nil {
		return nil, nil, m.Err
	}
	return m.Ch, func() { m.released = true }, nil
}

type MockPublisher struct {
	mu        sync.Mutex
	Published map[string]model.LinkedSession
	Err       error
}

var _ adapter.SessionPublisher = (*MockPublisher)(nil)

func (m *MockPublisher) PublishSession(ctx context.Context, code string, s model.LinkedSession) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Published == nil {
		m.Published = make(map[string]model.LinkedSession)
	}
	m.Published[code] = s
	return nil
}

// =============================
// Server side
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager { return &MockTxManager{} }

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately without a real transaction unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	mu     sync.Mutex
	data   map[string]*model.Payment
	nextID int64

	DeleteStaleCreatedFunc func(ctx context.Context, tx repository.Tx, before time.Time) (int64, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{data: make(map[string]*model.Payment)}
}

func (m *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[p.PaymentID]; ok {
		return domain.ErrAlreadyExists
	}
	m.nextID++
	p.ID = m.nextID
	cp := *p
	m.data[p.PaymentID] = &cp
	return nil
}

func (m *MockPaymentRepo) FindByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentRepo) Update(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[p.PaymentID]; !ok {
		return domain.ErrNotFound
	}
	cp := *p
	m.data[p.PaymentID] = &cp
	return nil
}

func (m *MockPaymentRepo) DeleteStaleCreated(ctx context.Context, tx repository.Tx, before time.Time) (int64, error) {
	if m.DeleteStaleCreatedFunc != nil {
		return m.DeleteStaleCreatedFunc(ctx, tx, before)
	}
	return 0, nil
}

// ---- Mock ArticleRepository ----

type MockArticleRepo struct {
	mu         sync.Mutex
	data       map[int64]*model.Article
	categories map[string]string
	nextID     int64
}

var _ repository.ArticleRepository = (*MockArticleRepo)(nil)

func NewMockArticleRepo() *MockArticleRepo {
	return &MockArticleRepo{
		data:       make(map[int64]*model.Article),
		categories: map[string]string{model.DefaultCategorySlug: "Sin categoría", "tech": "Tecnología"},
		nextID:     100,
	}
}

func (m *MockArticleRepo) put(a *model.Article) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.data[a.ID] = &cp
}

func (m *MockArticleRepo) Create(ctx context.Context, tx repository.Tx, a *model.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	cp := *a
	m.data[a.ID] = &cp
	return nil
}

func (m *MockArticleRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MockArticleRepo) CategoryName(ctx context.Context, tx repository.Tx, slug string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.categories[slug]
	if !ok {
		return "", domain.ErrNotFound
	}
	return name, nil
}

// ---- Mock PromotionRepository ----

type promoKey struct {
	articleID int64
	plan      model.PlanType
}

type MockPromotionRepo struct {
	mu   sync.Mutex
	data map[promoKey]*model.ArticlePromotion

	CountActiveFunc func(ctx context.Context, tx repository.Tx, plan model.PlanType, categorySlug string, now time.Time) (int, error)
}

var _ repository.PromotionRepository = (*MockPromotionRepo)(nil)

func NewMockPromotionRepo() *MockPromotionRepo {
	return &MockPromotionRepo{data: make(map[promoKey]*model.ArticlePromotion)}
}

func (m *MockPromotionRepo) FindByArticleAndType(ctx context.Context, tx repository.Tx, articleID int64, plan model.PlanType) (*model.ArticlePromotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[promoKey{articleID, plan}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPromotionRepo) Upsert(ctx context.Context, tx repository.Tx, p *model.ArticlePromotion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.data[promoKey{p.ArticleID, p.PromoteType}] = &cp
	return nil
}

func (m *MockPromotionRepo) ListByArticle(ctx context.Context, tx repository.Tx, articleID int64) ([]*model.ArticlePromotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ArticlePromotion
	for k, p := range m.data {
		if k.articleID == articleID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PromoteType < out[j].PromoteType })
	return out, nil
}

// CountActive ignores categorySlug unless CountActiveFunc is set.
func (m *MockPromotionRepo) CountActive(ctx context.Context, tx repository.Tx, plan model.PlanType, categorySlug string, now time.Time) (int, error) {
	if m.CountActiveFunc != nil {
		return m.CountActiveFunc(ctx, tx, plan, categorySlug, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, p := range m.data {
		if k.plan == plan && p.ActiveAt(now) {
			n++
		}
	}
	return n, nil
}

func (m *MockPromotionRepo) Cancel(ctx context.Context, tx repository.Tx, articleID int64, plan model.PlanType) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data[promoKey{articleID, plan}]
	if !ok || p.Cancelled {
		return 0, nil
	}
	p.Cancelled = true
	return 1, nil
}

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu     sync.Mutex
	data   map[int64]*model.User
	nextID int64
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{data: make(map[int64]*model.User)}
}

func (m *MockUserRepo) Upsert(ctx context.Context, tx repository.Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.data {
		if existing.PiID == u.PiID {
			existing.Username = u.Username
			u.ID = existing.ID
			u.Role = existing.Role
			return nil
		}
	}
	m.nextID++
	u.ID = m.nextID
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	cp := *u
	m.data[u.ID] = &cp
	return nil
}

func (m *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MockUserRepo) FindByUsername(ctx context.Context, tx repository.Tx, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.data {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ---- Mock SessionLinkRepository ----

type MockSessionLinkRepo struct {
	mu   sync.Mutex
	data map[string]*model.SessionLink
}

var _ repository.SessionLinkRepository = (*MockSessionLinkRepo)(nil)

func NewMockSessionLinkRepo() *MockSessionLinkRepo {
	return &MockSessionLinkRepo{data: make(map[string]*model.SessionLink)}
}

func (m *MockSessionLinkRepo) Save(ctx context.Context, tx repository.Tx, l *model.SessionLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[l.Code]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *l
	m.data[l.Code] = &cp
	return nil
}

func (m *MockSessionLinkRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.SessionLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.data[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MockSessionLinkRepo) MarkUsed(ctx context.Context, tx repository.Tx, code string, userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.data[code]
	if !ok {
		return domain.ErrNotFound
	}
	if l.UsedAt != nil {
		return domain.ErrCodeAlreadyUsed
	}
	l.UserID = &userID
	l.UsedAt = &at
	return nil
}

func (m *MockSessionLinkRepo) MarkClaimed(ctx context.Context, tx repository.Tx, code string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.data[code]
	if !ok || l.UsedAt == nil || l.ClaimedAt != nil {
		return false, nil
	}
	l.ClaimedAt = &at
	return true, nil
}

func (m *MockSessionLinkRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for code, l := range m.data {
		if l.CreatedAt.Before(before) {
			delete(m.data, code)
			n++
		}
	}
	return n, nil
}

// ---- Mock PiPlatform ----

type MockPiPlatform struct {
	mu       sync.Mutex
	approved []string
	done     []string

	MeFunc       func(ctx context.Context, accessToken string) (*model.SDKAuth, error)
	ApproveFunc  func(ctx context.Context, paymentID string) error
	CompleteFunc func(ctx context.Context, paymentID, txid string) error
}

var _ adapter.PiPlatform = (*MockPiPlatform)(nil)

func (m *MockPiPlatform) Name() string { return "mock" }

func (m *MockPiPlatform) Me(ctx context.Context, accessToken string) (*model.SDKAuth, error) {
	if m.MeFunc != nil {
		return m.MeFunc(ctx, accessToken)
	}
	return &model.SDKAuth{AccessToken: accessToken, UID: "uid-1", Username: "alice"}, nil
}

func (m *MockPiPlatform) Approve(ctx context.Context, paymentID string) error {
	if m.ApproveFunc != nil {
		if err := m.ApproveFunc(ctx, paymentID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.approved = append(m.approved, paymentID)
	m.mu.Unlock()
	return nil
}

func (m *MockPiPlatform) Complete(ctx context.Context, paymentID, txid string) error {
	if m.CompleteFunc != nil {
		if err := m.CompleteFunc(ctx, paymentID, txid); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.done = append(m.done, paymentID)
	m.mu.Unlock()
	return nil
}

func (m *MockPiPlatform) Approved() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.approved)
}

func (m *MockPiPlatform) Completed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.done)
}

// ---- Mock Locker / RateLimiter ----

type MockLocker struct {
	mu       sync.Mutex
	held     map[string]string
	locked   []string
	unlocked []string
	Err      error
}

var _ adapter.Locker = (*MockLocker)(nil)

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held == nil {
		m.held = make(map[string]string)
	}
	if _, ok := m.held[key]; ok {
		return "", domain.ErrBusy
	}
	tok := "tok-" + key
	m.held[key] = tok
	m.locked = append(m.locked, key)
	return tok, nil
}

func (m *MockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	m.unlocked = append(m.unlocked, key)
	return nil
}

type MockRateLimiter struct {
	mu      sync.Mutex
	keys    []string
	Allowed bool
	Err     error
}

var _ adapter.RateLimiter = (*MockRateLimiter)(nil)

func (m *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	m.keys = append(m.keys, key)
	m.mu.Unlock()
	return m.Allowed, m.Err
}

// ---- Mock TokenIssuer / PriceOracle ----

type MockTokenIssuer struct {
	Err error
}

var _ adapter.TokenIssuer = (*MockTokenIssuer)(nil)

func (m *MockTokenIssuer) Mint(u *model.User) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return "jwt-" + u.PiID, nil
}

type MockOracle struct {
	Price float64
	Err   error
}

var _ adapter.PriceOracle = (*MockOracle)(nil)

func (m *MockOracle) PiPriceUSD(ctx context.Context) (float64, error) { return m.Price, m.Err }
