package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devLink-Developer/chatbot-camping/config"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/navigate"
)

type mockMessageRepository struct {
	createFunc          func(ctx context.Context, req *model.CreateMessageRequest) (*model.Message, error)
	markProcessedFunc   func(ctx context.Context, id string) (bool, error)
	markSentFunc        func(ctx context.Context, id, waMessageID string) (bool, error)
	markFailedFunc      func(ctx context.Context, id, errMsg string) (bool, error)
	updateMetadataFunc  func(ctx context.Context, id string, meta model.MessageMeta) error
	hasNewerInboundFunc func(ctx context.Context, phoneNumber string, after time.Time) (bool, error)
}

func (m *mockMessageRepository) Create(ctx context.Context, req *model.CreateMessageRequest) (*model.Message, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, req)
	}
	return &model.Message{ID: "created"}, nil
}

func (m *mockMessageRepository) GetByID(context.Context, string) (*model.Message, error) {
	return nil, errors.New("not implemented")
}

func (m *mockMessageRepository) GetInboundByWAMessageID(context.Context, string) (*model.Message, error) {
	return nil, errors.New("not implemented")
}

func (m *mockMessageRepository) ClaimInbound(context.Context, int) ([]*model.Message, error) {
	return nil, errors.New("not implemented")
}

func (m *mockMessageRepository) ClaimOutbound(context.Context, int) ([]*model.Message, error) {
	return nil, errors.New("not implemented")
}

func (m *mockMessageRepository) MarkProcessed(ctx context.Context, id string) (bool, error) {
	if m.markProcessedFunc != nil {
		return m.markProcessedFunc(ctx, id)
	}
	return true, nil
}

func (m *mockMessageRepository) MarkSent(ctx context.Context, id, waMessageID string) (bool, error) {
	if m.markSentFunc != nil {
		return m.markSentFunc(ctx, id, waMessageID)
	}
	return true, nil
}

func (m *mockMessageRepository) MarkFailed(ctx context.Context, id, errMsg string) (bool, error) {
	if m.markFailedFunc != nil {
		return m.markFailedFunc(ctx, id, errMsg)
	}
	return true, nil
}

func (m *mockMessageRepository) UpdateMetadata(ctx context.Context, id string, meta model.MessageMeta) error {
	if m.updateMetadataFunc != nil {
		return m.updateMetadataFunc(ctx, id, meta)
	}
	return nil
}

func (m *mockMessageRepository) ApplyDeliveryStatus(context.Context, string, string, time.Time) (bool, error) {
	return false, errors.New("not implemented")
}

func (m *mockMessageRepository) Requeue(context.Context, string) (bool, error) {
	return false, errors.New("not implemented")
}

func (m *mockMessageRepository) HasNewerInbound(ctx context.Context, phoneNumber string, after time.Time) (bool, error) {
	if m.hasNewerInboundFunc != nil {
		return m.hasNewerInboundFunc(ctx, phoneNumber, after)
	}
	return false, nil
}

func (m *mockMessageRepository) Stats(context.Context, model.Direction) (*model.QueueStats, error) {
	return nil, errors.New("not implemented")
}

type mockSessionRepository struct {
	session             *model.Session
	ensureCreated       bool
	resetCalls          []string
	updateNavigation    []string
	incrementFailedFunc func(ctx context.Context, phoneNumber string) (int, error)
	touchCalls          int
}

func (m *mockSessionRepository) GetByPhone(context.Context, string) (*model.Session, error) {
	return m.session, nil
}

func (m *mockSessionRepository) Ensure(context.Context, string, string) (*model.Session, bool, error) {
	return m.session, m.ensureCreated, nil
}

func (m *mockSessionRepository) UpdateNavigation(_ context.Context, _ string, state string, _ []string, _ string) error {
	m.updateNavigation = append(m.updateNavigation, state)
	return nil
}

func (m *mockSessionRepository) Touch(context.Context, string, string) error {
	m.touchCalls++
	return nil
}

func (m *mockSessionRepository) IncrementFailed(ctx context.Context, phoneNumber string) (int, error) {
	if m.incrementFailedFunc != nil {
		return m.incrementFailedFunc(ctx, phoneNumber)
	}
	return 1, nil
}

func (m *mockSessionRepository) ResetFailed(context.Context, string) error { return nil }

func (m *mockSessionRepository) Reset(_ context.Context, _ string, reason string) error {
	m.resetCalls = append(m.resetCalls, reason)
	return nil
}

func (m *mockSessionRepository) CloseExpired(context.Context, time.Duration) (int, error) {
	return 0, nil
}

type mockContactRepository struct {
	firstContact bool
}

func (m *mockContactRepository) RecordInbound(context.Context, string, string, string) (bool, error) {
	return m.firstContact, nil
}

func (m *mockContactRepository) GetByPhone(context.Context, string) (*model.Contact, error) {
	return nil, errors.New("not implemented")
}

func navContentService(t *testing.T) *ContentService {
	t.Helper()
	repo := &mockContentRepository{
		getMenuFunc: func(_ context.Context, id string) (*model.Menu, error) {
			menu := smallMenu()
			menu.ID = id
			return menu, nil
		},
		resolveOptionFunc: func(_ context.Context, menuID, key string) (*navigate.OptionTarget, error) {
			if menuID == "0" && key == "1" {
				return &navigate.OptionTarget{MenuID: "1"}, nil
			}
			return nil, nil
		},
	}
	svc, err := NewContentService(ContentServiceOptions{Repo: repo})
	require.NoError(t, err)
	return svc
}

func activeSession() *model.Session {
	return &model.Session{
		PhoneNumber:  "+5491155550000",
		Active:       true,
		CurrentState: model.RootState,
		NavHistory:   model.DefaultHistory(),
		StartedAt:    time.Now().Add(-time.Minute),
		LastSeenAt:   time.Now().Add(-time.Minute),
	}
}

func inboundMessage(body string) *model.Message {
	waID := "wamid.test1"
	return &model.Message{
		ID:          "msg-1",
		PhoneNumber: "+5491155550000",
		Direction:   model.DirectionIn,
		MsgType:     model.MessageTypeText,
		Body:        &body,
		WAMessageID: &waID,
		OriginTS:    time.Now().Add(-time.Second),
		QueueStatus: model.QueueStatusProcessing,
	}
}

type inboundFixture struct {
	svc      *InboundService
	messages *mockMessageRepository
	sessions *mockSessionRepository
	contacts *mockContactRepository
	enqueued []*model.CreateMessageRequest
}

func newInboundFixture(t *testing.T) *inboundFixture {
	t.Helper()
	f := &inboundFixture{
		messages: &mockMessageRepository{},
		sessions: &mockSessionRepository{session: activeSession()},
		contacts: &mockContactRepository{},
	}
	f.messages.createFunc = func(_ context.Context, req *model.CreateMessageRequest) (*model.Message, error) {
		f.enqueued = append(f.enqueued, req)
		return &model.Message{ID: "reply-1"}, nil
	}

	svc, err := NewInboundService(InboundServiceOptions{
		Messages: f.messages,
		Sessions: f.sessions,
		Contacts: f.contacts,
		Content:  navContentService(t),
		Response: config.ResponseConfig{MinDelayMS: 100, MaxDelayMS: 200, CharsPerSec: 100},
		Session:  config.SessionConfig{Timeout: 15 * time.Minute},
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestProcessOne_ValidSelectionEnqueuesMenuReply(t *testing.T) {
	f := newInboundFixture(t)

	err := f.svc.ProcessOne(context.Background(), inboundMessage("1"))
	require.NoError(t, err)

	require.Len(t, f.enqueued, 1)
	reply := f.enqueued[0]
	assert.Equal(t, model.DirectionOut, reply.Direction)
	assert.Equal(t, model.QueueStatusQueued, reply.QueueStatus)
	assert.Equal(t, "msg-1", reply.Metadata.ReplyToID)
	assert.Equal(t, "wamid.test1", reply.Metadata.ReplyToWAID)
	assert.NotNil(t, reply.ProcessAfter)
	assert.Equal(t, "1", reply.Metadata.NewState)
	assert.Equal(t, []string{"1"}, f.sessions.updateNavigation)
}

func TestProcessOne_NewContactGetsWelcome(t *testing.T) {
	f := newInboundFixture(t)
	f.sessions.ensureCreated = true

	err := f.svc.ProcessOne(context.Background(), inboundMessage("cualquier cosa"))
	require.NoError(t, err)

	require.Len(t, f.enqueued, 1)
	reply := f.enqueued[0]
	assert.True(t, reply.Metadata.NewContact)
	assert.Equal(t, model.RootState, reply.Metadata.NewState)
	assert.Contains(t, reply.Body, defaultBotMessages[model.BotMessageWelcome])
	assert.Contains(t, reply.Body, "Menú principal")
}

func TestProcessOne_ExpiredSessionResetsAndNotifies(t *testing.T) {
	f := newInboundFixture(t)
	f.sessions.session.CurrentState = "3"
	f.sessions.session.LastSeenAt = time.Now().Add(-time.Hour)

	err := f.svc.ProcessOne(context.Background(), inboundMessage("1"))
	require.NoError(t, err)

	assert.Equal(t, []string{"expired"}, f.sessions.resetCalls)
	require.Len(t, f.enqueued, 1)
	reply := f.enqueued[0]
	assert.True(t, reply.Metadata.SessionExpired)
	assert.Contains(t, reply.Body, defaultBotMessages[model.BotMessageSessionExpired])
}

func TestProcessOne_NewContactBeatsExpiry(t *testing.T) {
	f := newInboundFixture(t)
	f.sessions.ensureCreated = true
	f.sessions.session.LastSeenAt = time.Now().Add(-time.Hour)

	err := f.svc.ProcessOne(context.Background(), inboundMessage("hola"))
	require.NoError(t, err)

	require.Len(t, f.enqueued, 1)
	assert.True(t, f.enqueued[0].Metadata.NewContact)
	assert.False(t, f.enqueued[0].Metadata.SessionExpired)
	assert.Contains(t, f.enqueued[0].Body, defaultBotMessages[model.BotMessageWelcome])
}

func TestProcessOne_NonTextGetsNonTextReply(t *testing.T) {
	f := newInboundFixture(t)
	msg := inboundMessage("")
	msg.MsgType = "image"

	err := f.svc.ProcessOne(context.Background(), msg)
	require.NoError(t, err)

	require.Len(t, f.enqueued, 1)
	assert.Equal(t, defaultBotMessages[model.BotMessageNonText], f.enqueued[0].Body)
	assert.Equal(t, 1, f.sessions.touchCalls)
}

func TestProcessOne_InvalidOptionIncrementsFailedCount(t *testing.T) {
	f := newInboundFixture(t)
	incremented := 0
	f.sessions.incrementFailedFunc = func(context.Context, string) (int, error) {
		incremented++
		return incremented, nil
	}

	// "9" is well formed but not on the root menu.
	err := f.svc.ProcessOne(context.Background(), inboundMessage("9"))
	require.NoError(t, err)

	assert.Equal(t, 1, incremented)
	require.Len(t, f.enqueued, 1)
	assert.Equal(t, defaultBotMessages[model.BotMessageInvalidOption], f.enqueued[0].Body)
}

func TestProcessOne_FreeTextGetsGentlerReprompt(t *testing.T) {
	f := newInboundFixture(t)

	err := f.svc.ProcessOne(context.Background(), inboundMessage("quiero reservar una parcela"))
	require.NoError(t, err)

	require.Len(t, f.enqueued, 1)
	assert.Equal(t, defaultBotMessages[model.BotMessageFreeText], f.enqueued[0].Body)
}

func TestProcessBatch_FailureMarksRowAndContinues(t *testing.T) {
	f := newInboundFixture(t)
	var failedIDs []string
	f.messages.markFailedFunc = func(_ context.Context, id, _ string) (bool, error) {
		failedIDs = append(failedIDs, id)
		return true, nil
	}
	calls := 0
	f.messages.createFunc = func(_ context.Context, req *model.CreateMessageRequest) (*model.Message, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("insert failed")
		}
		f.enqueued = append(f.enqueued, req)
		return &model.Message{ID: "reply-2"}, nil
	}

	first := inboundMessage("1")
	second := inboundMessage("1")
	second.ID = "msg-2"

	f.svc.ProcessBatch(context.Background(), []*model.Message{first, second})

	assert.Equal(t, []string{"msg-1"}, failedIDs)
	require.Len(t, f.enqueued, 1)
}

func TestProcessOne_ReplyDelayWithinConfiguredWindow(t *testing.T) {
	f := newInboundFixture(t)
	before := time.Now()

	err := f.svc.ProcessOne(context.Background(), inboundMessage("1"))
	require.NoError(t, err)

	require.Len(t, f.enqueued, 1)
	reply := f.enqueued[0]
	require.NotNil(t, reply.ProcessAfter)
	assert.True(t, reply.ProcessAfter.After(before.Add(50*time.Millisecond)))
	assert.True(t, reply.ProcessAfter.Before(before.Add(5*time.Second)))
	assert.GreaterOrEqual(t, reply.Metadata.DelayMS, int64(100))
}
