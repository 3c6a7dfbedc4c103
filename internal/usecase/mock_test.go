//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-access-bot/internal/config"
	"course-access-bot/internal/domain"
	"course-access-bot/internal/domain/model"
	"course-access-bot/internal/domain/ports/adapter"
	"course-access-bot/internal/domain/ports/repository"
	"course-access-bot/internal/infra/i18n"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

// testClock is a settable clock shared by the use cases under test.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// =============================
// Adapters
// =============================

type sentMessage struct {
	ChatID int64
	Text   string
	Rows   [][]adapter.InlineButton
}

type sentPhoto struct {
	ChatID  int64
	FileRef string
	Caption string
	Rows    [][]adapter.InlineButton
}

type MockTelegramBot struct {
	mu     sync.Mutex
	Sent   []sentMessage
	Photos []sentPhoto

	SendMessageFunc func(ctx context.Context, chatID int64, text string) error
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if m.SendMessageFunc != nil {
		if err := m.SendMessageFunc(ctx, chatID, text); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (m *MockTelegramBot) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentMessage{ChatID: chatID, Text: text, Rows: rows})
	return nil
}

func (m *MockTelegramBot) SendPhoto(ctx context.Context, chatID int64, fileRef, caption string, rows [][]adapter.InlineButton) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Photos = append(m.Photos, sentPhoto{ChatID: chatID, FileRef: fileRef, Caption: caption, Rows: rows})
	return nil
}

func (m *MockTelegramBot) MessagesTo(chatID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.Sent {
		if s.ChatID == chatID {
			out = append(out, s.Text)
		}
	}
	return out
}

// =============================
// Repositories
// =============================

// snapshotter lets MockTxManager roll an in-memory repo back.
type snapshotter interface {
	snapshot() (restore func())
}

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu   sync.Mutex
	byTG map[int64]*model.User

	SaveFunc func(ctx context.Context, tx repository.Tx, u *model.User) error
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{byTG: map[int64]*model.User{}}
}

func (r *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, u)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.byTG[u.TelegramID] = &cp
	return nil
}

func (r *MockUserRepo) FindByTelegramID(ctx context.Context, tx repository.Tx, tgID int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byTG[tgID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MockUserRepo) filter(keep func(*model.User) bool) []*model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.User
	for _, u := range r.byTG {
		if keep(u) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TelegramID < out[j].TelegramID })
	return out
}

func (r *MockUserRepo) ListApprovers(ctx context.Context, tx repository.Tx) ([]*model.User, error) {
	return r.filter(func(u *model.User) bool { return u.IsApprover }), nil
}

func (r *MockUserRepo) ListRecipients(ctx context.Context, tx repository.Tx) ([]*model.User, error) {
	return r.filter(func(u *model.User) bool { return !u.IsApprover }), nil
}

func (r *MockUserRepo) CountUsers(ctx context.Context, tx repository.Tx) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byTG), nil
}

// ---- Mock PendingRequestRepository ----

type MockPendingRequestRepo struct {
	mu   sync.Mutex
	byID map[string]*model.PendingRequest

	DeleteFunc func(ctx context.Context, tx repository.Tx, id string) error
}

var (
	_ repository.PendingRequestRepository = (*MockPendingRequestRepo)(nil)
	_ snapshotter                         = (*MockPendingRequestRepo)(nil)
)

func NewMockPendingRequestRepo() *MockPendingRequestRepo {
	return &MockPendingRequestRepo{byID: map[string]*model.PendingRequest{}}
}

func copyRequest(p *model.PendingRequest) *model.PendingRequest {
	cp := *p
	if p.ProofReference != nil {
		s := *p.ProofReference
		cp.ProofReference = &s
	}
	return &cp
}

func (r *MockPendingRequestRepo) snapshot() func() {
	r.mu.Lock()
	saved := make(map[string]*model.PendingRequest, len(r.byID))
	for k, v := range r.byID {
		saved[k] = copyRequest(v)
	}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.byID = saved
		r.mu.Unlock()
	}
}

func (r *MockPendingRequestRepo) Create(ctx context.Context, tx repository.Tx, p *model.PendingRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[p.ID] = copyRequest(p)
	return nil
}

func (r *MockPendingRequestRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PendingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyRequest(p), nil
}

func (r *MockPendingRequestRepo) FindLatestByUser(ctx context.Context, tx repository.Tx, userID int64) (*model.PendingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.PendingRequest
	for _, p := range r.byID {
		if p.UserID == userID && (latest == nil || p.LastRequestAt.After(latest.LastRequestAt)) {
			latest = p
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	return copyRequest(latest), nil
}

func (r *MockPendingRequestRepo) AttachProof(ctx context.Context, tx repository.Tx, id string, userID int64, proofRef string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok || p.UserID != userID || p.Status != model.RequestPending || p.ProofReference != nil {
		return false, nil
	}
	p.ProofReference = &proofRef
	return true, nil
}

func (r *MockPendingRequestRepo) TransitionStatus(ctx context.Context, tx repository.Tx, id string, from, to model.RequestStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (r *MockPendingRequestRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	if r.DeleteFunc != nil {
		return r.DeleteFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *MockPendingRequestRepo) DeleteStale(ctx context.Context, tx repository.Tx, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, p := range r.byID {
		if !p.LastRequestAt.Before(olderThan) {
			continue
		}
		if p.Status != model.RequestPending || p.ProofReference == nil {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

func (r *MockPendingRequestRepo) CountPending(ctx context.Context, tx repository.Tx) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.byID {
		if p.Status == model.RequestPending {
			n++
		}
	}
	return n, nil
}

func (r *MockPendingRequestRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// ---- Mock RedeemableCodeRepository ----

type MockCodeRepo struct {
	mu     sync.Mutex
	byCode map[string]*model.RedeemableCode

	CreateFunc func(ctx context.Context, tx repository.Tx, c *model.RedeemableCode) (bool, error)
	// RedeemHook runs before the conditional update, after the use case has
	// read the code. Tests use it to simulate a concurrent writer.
	RedeemHook func()
}

var (
	_ repository.RedeemableCodeRepository = (*MockCodeRepo)(nil)
	_ snapshotter                         = (*MockCodeRepo)(nil)
)

func NewMockCodeRepo() *MockCodeRepo {
	return &MockCodeRepo{byCode: map[string]*model.RedeemableCode{}}
}

func copyCode(c *model.RedeemableCode) *model.RedeemableCode {
	cp := *c
	if c.DeviceBinding != nil {
		s := *c.DeviceBinding
		cp.DeviceBinding = &s
	}
	if c.RedeemedAt != nil {
		t := *c.RedeemedAt
		cp.RedeemedAt = &t
	}
	return &cp
}

func (r *MockCodeRepo) snapshot() func() {
	r.mu.Lock()
	saved := make(map[string]*model.RedeemableCode, len(r.byCode))
	for k, v := range r.byCode {
		saved[k] = copyCode(v)
	}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.byCode = saved
		r.mu.Unlock()
	}
}

// Put seeds a code directly.
func (r *MockCodeRepo) Put(c *model.RedeemableCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCode[c.Code] = copyCode(c)
}

func (r *MockCodeRepo) All() []*model.RedeemableCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.RedeemableCode, 0, len(r.byCode))
	for _, c := range r.byCode {
		out = append(out, copyCode(c))
	}
	return out
}

func (r *MockCodeRepo) Create(ctx context.Context, tx repository.Tx, c *model.RedeemableCode) (bool, error) {
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, tx, c)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byCode[c.Code]; exists {
		return false, nil
	}
	r.byCode[c.Code] = copyCode(c)
	return true, nil
}

func (r *MockCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.RedeemableCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byCode[code]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyCode(c), nil
}

func (r *MockCodeRepo) FindValidForUser(ctx context.Context, tx repository.Tx, userID int64, course string, now time.Time) (*model.RedeemableCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *model.RedeemableCode
	for _, c := range r.byCode {
		if c.UserID == userID && c.Course == course && !c.Expired && c.ExpiresAt.After(now) {
			if best == nil || c.ExpiresAt.After(best.ExpiresAt) {
				best = c
			}
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return copyCode(best), nil
}

func (r *MockCodeRepo) Redeem(ctx context.Context, tx repository.Tx, code, deviceID string, now time.Time) (bool, error) {
	if r.RedeemHook != nil {
		r.RedeemHook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byCode[code]
	if !ok || c.Used || !c.ExpiresAt.After(now) || (c.DeviceBinding != nil && *c.DeviceBinding != deviceID) {
		return false, nil
	}
	d, t := deviceID, now
	c.DeviceBinding = &d
	c.Used = true
	c.Expired = false
	c.RedeemedAt = &t
	return true, nil
}

func (r *MockCodeRepo) MarkExpired(ctx context.Context, tx repository.Tx, deviceID string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, c := range r.byCode {
		if c.Used && !c.Expired && c.DeviceBinding != nil && *c.DeviceBinding == deviceID && !c.ExpiresAt.After(now) {
			c.Expired = true
			n++
		}
	}
	return n, nil
}

func (r *MockCodeRepo) byDevice(deviceID string, keep func(*model.RedeemableCode) bool) []*model.RedeemableCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.RedeemableCode
	for _, c := range r.byCode {
		if c.DeviceBinding != nil && *c.DeviceBinding == deviceID && keep(c) {
			out = append(out, copyCode(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.After(out[j].ExpiresAt) })
	return out
}

func (r *MockCodeRepo) ListActiveByDevice(ctx context.Context, tx repository.Tx, deviceID string, now time.Time) ([]*model.RedeemableCode, error) {
	return r.byDevice(deviceID, func(c *model.RedeemableCode) bool {
		return c.Used && !c.Expired && c.ExpiresAt.After(now)
	}), nil
}

func (r *MockCodeRepo) ListByDevice(ctx context.Context, tx repository.Tx, deviceID string) ([]*model.RedeemableCode, error) {
	return r.byDevice(deviceID, func(*model.RedeemableCode) bool { return true }), nil
}

func (r *MockCodeRepo) Extend(ctx context.Context, tx repository.Tx, code string, expiresAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byCode[code]
	if !ok {
		return false, nil
	}
	c.ExpiresAt = expiresAt
	c.Expired = false
	return true, nil
}

func (r *MockCodeRepo) CountCodes(ctx context.Context, tx repository.Tx) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	used := 0
	for _, c := range r.byCode {
		if c.Used {
			used++
		}
	}
	return len(r.byCode), used, nil
}

// ---- Mock TransactionManager ----

// MockTxManager serializes transactions and restores the participating
// repositories when fn fails.
type MockTxManager struct {
	mu           sync.Mutex
	participants []snapshotter

	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager(participants ...snapshotter) *MockTxManager {
	return &MockTxManager{participants: participants}
}

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	restores := make([]func(), 0, len(m.participants))
	for _, p := range m.participants {
		restores = append(restores, p.snapshot())
	}
	if err := fn(ctx, repository.NoTX); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// ---- In-memory Locker (implements redis.Locker) ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", domain.ErrLockNotAcquired
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newTestTranslator() *i18n.Translator {
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "ru")
	if err != nil {
		panic(err)
	}
	return tr
}

func newTestCatalogue() *model.Catalogue {
	cat, err := model.NewCatalogue(config.DefaultCourses())
	if err != nil {
		panic(err)
	}
	return cat
}
