//go:build !integration

package application_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"course-access-bot/internal/application"
	"course-access-bot/internal/config"
	"course-access-bot/internal/domain"
	"course-access-bot/internal/domain/model"
	"course-access-bot/internal/domain/ports/adapter"
	"course-access-bot/internal/domain/ports/repository"
	"course-access-bot/internal/infra/i18n"
	"course-access-bot/internal/usecase"
)

// ---- mocks ----

type mockUserUC struct {
	approvers []int64
	err       error
}

func (m *mockUserUC) RegisterOrFetch(ctx context.Context, tgID int64, username, firstName string) (*model.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &model.User{TelegramID: tgID, Username: username, FirstName: firstName}, nil
}

func (m *mockUserUC) ApproverChatIDs(ctx context.Context) ([]int64, error) { return m.approvers, nil }

type mockRequestUC struct {
	createErr  error
	attachErr  error
	decideErr  error
	attached   []string
	decided    []model.Outcome
	lastActor  usecase.Actor
	lastCourse string
}

func (m *mockRequestUC) CreateRequest(ctx context.Context, userID int64, displayName, courseKey string) (*model.PendingRequest, error) {
	m.lastCourse = courseKey
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &model.PendingRequest{ID: "req-1", UserID: userID, CourseKey: courseKey, Status: model.RequestPending}, nil
}

func (m *mockRequestUC) AttachProof(ctx context.Context, requestID string, userID int64, proofRef string) error {
	if m.attachErr != nil {
		return m.attachErr
	}
	m.attached = append(m.attached, requestID+"="+proofRef)
	return nil
}

func (m *mockRequestUC) Decide(ctx context.Context, requestID string, approver usecase.Actor, outcome model.Outcome) (*usecase.Decision, error) {
	m.lastActor = approver
	if m.decideErr != nil {
		return nil, m.decideErr
	}
	m.decided = append(m.decided, outcome)
	return &usecase.Decision{RequestID: requestID, Outcome: outcome}, nil
}

type mockBroadcastUC struct {
	sent    int
	err     error
	message string
}

func (m *mockBroadcastUC) Broadcast(ctx context.Context, message string) (int, error) {
	m.message = message
	return m.sent, m.err
}

type mockStatsUC struct{ stats usecase.Stats }

func (m *mockStatsUC) Snapshot(ctx context.Context) (usecase.Stats, error) { return m.stats, nil }

type mockStates struct {
	mu     sync.Mutex
	states map[int64]*repository.ConversationState
}

func newMockStates() *mockStates {
	return &mockStates{states: map[int64]*repository.ConversationState{}}
}

func (m *mockStates) SetState(ctx context.Context, tgID int64, state *repository.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[tgID] = state
	return nil
}

func (m *mockStates) GetState(ctx context.Context, tgID int64) (*repository.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[tgID], nil
}

func (m *mockStates) ClearState(ctx context.Context, tgID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, tgID)
	return nil
}

type mockBot struct {
	messages map[int64][]string
}

func (m *mockBot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if m.messages == nil {
		m.messages = map[int64][]string{}
	}
	m.messages[chatID] = append(m.messages[chatID], text)
	return nil
}

func (m *mockBot) SendButtons(ctx context.Context, chatID int64, text string, rows [][]adapter.InlineButton) error {
	return m.SendMessage(ctx, chatID, text)
}

func (m *mockBot) SendPhoto(ctx context.Context, chatID int64, fileRef, caption string, rows [][]adapter.InlineButton) error {
	return m.SendMessage(ctx, chatID, caption)
}

// ---- fixture ----

type facadeFixture struct {
	facade    *application.BotFacade
	users     *mockUserUC
	requests  *mockRequestUC
	broadcast *mockBroadcastUC
	states    *mockStates
	bot       *mockBot
	tr        *i18n.Translator
}

var (
	buyer    = application.Sender{ID: 7, Username: "anna", FirstName: "Anna"}
	approver = application.Sender{ID: 1000, Username: "boss"}
)

func newFacadeFixture(t *testing.T) *facadeFixture {
	t.Helper()
	tr, err := i18n.NewTranslator(i18n.LocalesFS, "ru")
	if err != nil {
		t.Fatalf("translator: %v", err)
	}
	cat, err := model.NewCatalogue(config.DefaultCourses())
	if err != nil {
		t.Fatalf("catalogue: %v", err)
	}
	logger := zerolog.Nop()
	f := &facadeFixture{
		users:     &mockUserUC{approvers: []int64{1000}},
		requests:  &mockRequestUC{},
		broadcast: &mockBroadcastUC{},
		states:    newMockStates(),
		bot:       &mockBot{},
		tr:        tr,
	}
	f.facade = application.NewBotFacade(
		f.users, f.requests, f.broadcast,
		&mockStatsUC{stats: usecase.Stats{Users: 3, PendingRequests: 1, CodesIssued: 2, CodesUsed: 1}},
		f.states, f.bot, cat,
		usecase.NewApproverPolicy([]int64{1000}, nil),
		tr, "Переведите {price} руб на карту 0000", "https://example.test", &logger,
	)
	return f
}

// ---- tests ----

func TestBotFacade_HandleStart(t *testing.T) {
	ctx := context.Background()

	t.Run("buyer sees courses and support only", func(t *testing.T) {
		f := newFacadeFixture(t)
		_ = f.states.SetState(ctx, buyer.ID, &repository.ConversationState{Step: repository.StepSupport})

		reply, err := f.facade.HandleStart(ctx, buyer)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(reply.Text, "Anna") {
			t.Errorf("welcome should greet by first name: %q", reply.Text)
		}
		courses := len(config.DefaultCourses())
		if len(reply.Rows) != courses+1 {
			t.Fatalf("expected %d rows, got %d", courses+1, len(reply.Rows))
		}
		if !strings.HasPrefix(reply.Rows[0][0].Data, application.CoursePrefix) {
			t.Errorf("first row should be a course button: %+v", reply.Rows[0])
		}
		if st, _ := f.states.GetState(ctx, buyer.ID); st != nil {
			t.Error("start must reset the conversation")
		}
	})

	t.Run("approver also gets the admin panel", func(t *testing.T) {
		f := newFacadeFixture(t)
		reply, _ := f.facade.HandleStart(ctx, approver)
		last := reply.Rows[len(reply.Rows)-1][0]
		if last.Data != application.CBAdminPanel {
			t.Errorf("expected admin panel button, got %+v", last)
		}
	})

	t.Run("registration failure yields generic error", func(t *testing.T) {
		f := newFacadeFixture(t)
		f.users.err = domain.ErrStoreFailure
		reply, err := f.facade.HandleStart(ctx, buyer)
		if !errors.Is(err, domain.ErrStoreFailure) || reply.Text != f.tr.T("generic_error") {
			t.Errorf("unexpected result %q %v", reply.Text, err)
		}
	})
}

func TestBotFacade_HandleCourseSelected(t *testing.T) {
	ctx := context.Background()

	t.Run("shows payment details and waits for proof", func(t *testing.T) {
		f := newFacadeFixture(t)
		reply, err := f.facade.HandleCourseSelected(ctx, buyer, "course_math")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(reply.Text, "499 руб на карту") {
			t.Errorf("payment info should carry the price: %q", reply.Text)
		}
		st, _ := f.states.GetState(ctx, buyer.ID)
		if st == nil || st.Step != repository.StepAwaitingProof || st.Data["request_id"] != "req-1" {
			t.Errorf("unexpected state: %+v", st)
		}
	})

	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "cooldown",
			err:  &domain.CooldownError{Remaining: 61 * time.Second},
			want: "Подождите 2 мин",
		},
		{
			name: "already entitled with an unused code",
			err:  &domain.AlreadyEntitledError{Course: "ЕГЭ: Базовая математика", Code: "abc", ExpiresAt: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)},
			want: "Промокод: abc (действует до 31.03.2025)",
		},
		{
			name: "already entitled with a redeemed code",
			err:  &domain.AlreadyEntitledError{Course: "ЕГЭ: Базовая математика", ExpiresAt: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)},
			want: "уже активирован",
		},
		{
			name: "unknown course",
			err:  domain.ErrValidation,
			want: "Курс не найден",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFacadeFixture(t)
			f.requests.createErr = tc.err
			reply, err := f.facade.HandleCourseSelected(ctx, buyer, "course_math")
			if err != nil {
				t.Fatalf("business errors must not propagate: %v", err)
			}
			if !strings.Contains(reply.Text, tc.want) {
				t.Errorf("expected %q in %q", tc.want, reply.Text)
			}
			if st, _ := f.states.GetState(ctx, buyer.ID); st != nil {
				t.Error("no state should be stored when the request is refused")
			}
		})
	}
}

func TestBotFacade_HandlePhoto(t *testing.T) {
	ctx := context.Background()
	awaiting := &repository.ConversationState{Step: repository.StepAwaitingProof, Data: map[string]string{"request_id": "req-1"}}

	t.Run("without a request asks to pick a course", func(t *testing.T) {
		f := newFacadeFixture(t)
		reply, _ := f.facade.HandlePhoto(ctx, buyer, "file-1")
		if reply.Text != f.tr.T("proof_no_request") || len(f.requests.attached) != 0 {
			t.Errorf("unexpected reply %q", reply.Text)
		}
	})

	t.Run("attaches proof and clears the state", func(t *testing.T) {
		f := newFacadeFixture(t)
		_ = f.states.SetState(ctx, buyer.ID, awaiting)
		reply, err := f.facade.HandlePhoto(ctx, buyer, "file-1")
		if err != nil || reply.Text != f.tr.T("proof_received") {
			t.Fatalf("unexpected result %q %v", reply.Text, err)
		}
		if len(f.requests.attached) != 1 || f.requests.attached[0] != "req-1=file-1" {
			t.Errorf("unexpected attach calls: %v", f.requests.attached)
		}
		if st, _ := f.states.GetState(ctx, buyer.ID); st != nil {
			t.Error("state should be cleared")
		}
	})

	for name, tc := range map[string]struct {
		err error
		key string
	}{
		"already attached": {domain.ErrAlreadyAttached, "proof_already_attached"},
		"request gone":     {domain.ErrNotFound, "proof_not_found"},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFacadeFixture(t)
			_ = f.states.SetState(ctx, buyer.ID, awaiting)
			f.requests.attachErr = tc.err
			reply, err := f.facade.HandlePhoto(ctx, buyer, "file-2")
			if err != nil || reply.Text != f.tr.T(tc.key) {
				t.Errorf("unexpected result %q %v", reply.Text, err)
			}
		})
	}
}

func TestBotFacade_HandleDecision(t *testing.T) {
	ctx := context.Background()

	t.Run("approve and reject map to outcomes", func(t *testing.T) {
		f := newFacadeFixture(t)
		if got, _ := f.facade.HandleDecision(ctx, approver, usecase.ApprovePrefix+"req-1"); got != f.tr.T("decision_approved") {
			t.Errorf("unexpected approve reply %q", got)
		}
		if got, _ := f.facade.HandleDecision(ctx, approver, usecase.RejectPrefix+"req-2"); got != f.tr.T("decision_rejected") {
			t.Errorf("unexpected reject reply %q", got)
		}
		if len(f.requests.decided) != 2 || f.requests.decided[0] != model.OutcomeApprove || f.requests.decided[1] != model.OutcomeReject {
			t.Errorf("unexpected decisions: %v", f.requests.decided)
		}
		if f.requests.lastActor.TelegramID != approver.ID {
			t.Errorf("actor not forwarded: %+v", f.requests.lastActor)
		}
	})

	for name, tc := range map[string]struct {
		err error
		key string
	}{
		"forbidden":       {domain.ErrForbidden, "admin_only"},
		"already decided": {domain.ErrAlreadyDecided, "decision_done"},
		"missing":         {domain.ErrNotFound, "decision_done"},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFacadeFixture(t)
			f.requests.decideErr = tc.err
			got, err := f.facade.HandleDecision(ctx, approver, usecase.ApprovePrefix+"req-1")
			if err != nil || got != f.tr.T(tc.key) {
				t.Errorf("unexpected result %q %v", got, err)
			}
		})
	}

	t.Run("malformed data is rejected", func(t *testing.T) {
		f := newFacadeFixture(t)
		if _, err := f.facade.HandleDecision(ctx, approver, "bogus"); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})
}

func TestBotFacade_AdminAndSupport(t *testing.T) {
	ctx := context.Background()

	t.Run("admin panel is approver only", func(t *testing.T) {
		f := newFacadeFixture(t)
		reply, _ := f.facade.HandleAdminPanel(ctx, buyer)
		if reply.Text != f.tr.T("admin_only") {
			t.Errorf("buyer must not see the panel: %q", reply.Text)
		}
		reply, _ = f.facade.HandleAdminPanel(ctx, approver)
		if reply.Text != f.tr.T("admin_panel", 3, 1, 2, 1) || reply.Rows[0][0].Data != application.CBAdminBroadcast {
			t.Errorf("unexpected panel: %+v", reply)
		}
	})

	t.Run("broadcast text is sent and the mode ends", func(t *testing.T) {
		f := newFacadeFixture(t)
		f.broadcast.sent = 2
		if _, err := f.facade.HandleBroadcastStart(ctx, approver); err != nil {
			t.Fatal(err)
		}
		reply, err := f.facade.HandleText(ctx, approver, "Новый курс!")
		if err != nil || reply.Text != f.tr.T("broadcast_done", 2) {
			t.Fatalf("unexpected result %q %v", reply.Text, err)
		}
		if f.broadcast.message != "Новый курс!" {
			t.Errorf("unexpected broadcast text %q", f.broadcast.message)
		}
		if st, _ := f.states.GetState(ctx, approver.ID); st != nil {
			t.Error("broadcast mode should end")
		}
	})

	t.Run("concurrent broadcast reports busy", func(t *testing.T) {
		f := newFacadeFixture(t)
		f.broadcast.err = domain.ErrLockNotAcquired
		_, _ = f.facade.HandleBroadcastStart(ctx, approver)
		reply, _ := f.facade.HandleText(ctx, approver, "hi")
		if reply.Text != f.tr.T("broadcast_busy") {
			t.Errorf("unexpected reply %q", reply.Text)
		}
	})

	t.Run("support messages are relayed to approvers", func(t *testing.T) {
		f := newFacadeFixture(t)
		if _, err := f.facade.HandleSupportStart(ctx, buyer); err != nil {
			t.Fatal(err)
		}
		reply, err := f.facade.HandleText(ctx, buyer, "не пришёл код")
		if err != nil || reply.Text != f.tr.T("support_sent") {
			t.Fatalf("unexpected result %q %v", reply.Text, err)
		}
		relayed := f.bot.messages[1000]
		if len(relayed) != 1 || !strings.Contains(relayed[0], "не пришёл код") || !strings.Contains(relayed[0], "@anna") {
			t.Errorf("unexpected relay: %v", relayed)
		}
		if _, err := f.facade.HandleSupportExit(ctx, buyer); err != nil {
			t.Fatal(err)
		}
		reply, _ = f.facade.HandleText(ctx, buyer, "hello")
		if reply.Text != f.tr.T("fallback") {
			t.Errorf("expected fallback after exit, got %q", reply.Text)
		}
	})
}
