package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devLink-Developer/chatbot-camping/config"
	"github.com/devLink-Developer/chatbot-camping/internal/core"
	"github.com/devLink-Developer/chatbot-camping/internal/domain/model"
)

type mockMessagingClient struct {
	sendTextFunc        func(ctx context.Context, params core.SendTextParams) (*core.SendResult, error)
	sendInteractiveFunc func(ctx context.Context, params core.SendInteractiveParams) (*core.SendResult, error)
	markReadFunc        func(ctx context.Context, waMessageID string, typing bool) error
}

func (m *mockMessagingClient) SendText(ctx context.Context, params core.SendTextParams) (*core.SendResult, error) {
	if m.sendTextFunc != nil {
		return m.sendTextFunc(ctx, params)
	}
	return &core.SendResult{WAMessageID: "wamid.text"}, nil
}

func (m *mockMessagingClient) SendInteractive(ctx context.Context, params core.SendInteractiveParams) (*core.SendResult, error) {
	if m.sendInteractiveFunc != nil {
		return m.sendInteractiveFunc(ctx, params)
	}
	return &core.SendResult{WAMessageID: "wamid.interactive"}, nil
}

func (m *mockMessagingClient) MarkRead(ctx context.Context, waMessageID string, typing bool) error {
	if m.markReadFunc != nil {
		return m.markReadFunc(ctx, waMessageID, typing)
	}
	return nil
}

func outboundMessage(body string) *model.Message {
	return &model.Message{
		ID:          "out-1",
		PhoneNumber: "+5491155550000",
		Direction:   model.DirectionOut,
		MsgType:     model.MessageTypeText,
		Body:        &body,
		OriginTS:    time.Now().Add(-time.Second),
		QueueStatus: model.QueueStatusProcessing,
	}
}

func newOutboundService(t *testing.T, messages *mockMessageRepository, client *mockMessagingClient, queueCfg config.QueueConfig) *OutboundService {
	t.Helper()
	svc, err := NewOutboundService(OutboundServiceOptions{
		Messages: messages,
		Client:   client,
		Queue:    queueCfg,
	})
	require.NoError(t, err)
	return svc
}

func TestDispatchOne_SendsTextAndMarksSent(t *testing.T) {
	messages := &mockMessageRepository{}
	var sentWAID string
	messages.markSentFunc = func(_ context.Context, id, waID string) (bool, error) {
		assert.Equal(t, "out-1", id)
		sentWAID = waID
		return true, nil
	}
	var gotParams core.SendTextParams
	client := &mockMessagingClient{
		sendTextFunc: func(_ context.Context, params core.SendTextParams) (*core.SendResult, error) {
			gotParams = params
			return &core.SendResult{WAMessageID: "wamid.sent1"}, nil
		},
	}
	svc := newOutboundService(t, messages, client, config.QueueConfig{OutboundMaxAge: 10 * time.Minute})

	msg := outboundMessage("hola")
	msg.Metadata.ReplyToWAID = "wamid.orig"

	require.NoError(t, svc.DispatchOne(context.Background(), msg))
	assert.Equal(t, "wamid.sent1", sentWAID)
	assert.Equal(t, "+5491155550000", gotParams.To)
	assert.Equal(t, "hola", gotParams.Body)
	assert.Equal(t, "wamid.orig", gotParams.ReplyToWAID)
}

func TestDispatchOne_ExpiredMessageDroppedNotSent(t *testing.T) {
	messages := &mockMessageRepository{}
	var failedWith string
	messages.markFailedFunc = func(_ context.Context, _, errMsg string) (bool, error) {
		failedWith = errMsg
		return true, nil
	}
	sends := 0
	client := &mockMessagingClient{
		sendTextFunc: func(context.Context, core.SendTextParams) (*core.SendResult, error) {
			sends++
			return &core.SendResult{}, nil
		},
	}
	svc := newOutboundService(t, messages, client, config.QueueConfig{OutboundMaxAge: time.Minute})

	msg := outboundMessage("hola")
	msg.OriginTS = time.Now().Add(-time.Hour)

	require.NoError(t, svc.DispatchOne(context.Background(), msg))
	assert.Equal(t, model.ErrorExpiredBeforeSend, failedWith)
	assert.Zero(t, sends)
}

func TestDispatchOne_SupersededReplyDropped(t *testing.T) {
	messages := &mockMessageRepository{}
	messages.hasNewerInboundFunc = func(_ context.Context, phone string, after time.Time) (bool, error) {
		assert.Equal(t, "+5491155550000", phone)
		return true, nil
	}
	var failedWith string
	messages.markFailedFunc = func(_ context.Context, _, errMsg string) (bool, error) {
		failedWith = errMsg
		return true, nil
	}
	client := &mockMessagingClient{}
	svc := newOutboundService(t, messages, client, config.QueueConfig{
		OutboundMaxAge:       10 * time.Minute,
		SupersedeDropEnabled: true,
	})

	msg := outboundMessage("respuesta vieja")
	msg.Metadata.ReplyToTS = time.Now().Add(-time.Minute).UnixMilli()

	require.NoError(t, svc.DispatchOne(context.Background(), msg))
	assert.Equal(t, model.ErrorSuperseded, failedWith)
}

func TestDispatchOne_SupersessionDisabledStillSends(t *testing.T) {
	messages := &mockMessageRepository{}
	messages.hasNewerInboundFunc = func(context.Context, string, time.Time) (bool, error) {
		t.Fatal("supersession check should be skipped when disabled")
		return false, nil
	}
	svc := newOutboundService(t, messages, &mockMessagingClient{}, config.QueueConfig{
		OutboundMaxAge: 10 * time.Minute,
	})

	msg := outboundMessage("hola")
	msg.Metadata.ReplyToTS = time.Now().Add(-time.Minute).UnixMilli()

	require.NoError(t, svc.DispatchOne(context.Background(), msg))
}

func TestDispatchOne_InteractiveDeliveredInOrder(t *testing.T) {
	messages := &mockMessageRepository{}
	var updatedMeta *model.MessageMeta
	messages.updateMetadataFunc = func(_ context.Context, _ string, meta model.MessageMeta) error {
		updatedMeta = &meta
		return nil
	}
	var kinds []string
	client := &mockMessagingClient{
		sendInteractiveFunc: func(_ context.Context, params core.SendInteractiveParams) (*core.SendResult, error) {
			kinds = append(kinds, params.Payload.Kind)
			return &core.SendResult{WAMessageID: "wamid.i" + params.Payload.Kind}, nil
		},
	}
	svc := newOutboundService(t, messages, client, config.QueueConfig{OutboundMaxAge: 10 * time.Minute})

	msg := outboundMessage("menu")
	msg.Metadata.Interactive = []model.InteractivePayload{
		{Kind: "button", Body: "{}"},
	}

	require.NoError(t, svc.DispatchOne(context.Background(), msg))
	assert.Equal(t, []string{"button"}, kinds)
	require.NotNil(t, updatedMeta)
	assert.Equal(t, model.DeliveryPathInteractive, updatedMeta.DeliveryPath)
}

func TestDispatchOne_InteractiveFailureFallsBackToText(t *testing.T) {
	messages := &mockMessageRepository{}
	var updatedMeta *model.MessageMeta
	messages.updateMetadataFunc = func(_ context.Context, _ string, meta model.MessageMeta) error {
		updatedMeta = &meta
		return nil
	}
	var sentSent string
	messages.markSentFunc = func(_ context.Context, _, waID string) (bool, error) {
		sentSent = waID
		return true, nil
	}
	client := &mockMessagingClient{
		sendInteractiveFunc: func(context.Context, core.SendInteractiveParams) (*core.SendResult, error) {
			return nil, errors.New("interactive unsupported")
		},
		sendTextFunc: func(context.Context, core.SendTextParams) (*core.SendResult, error) {
			return &core.SendResult{WAMessageID: "wamid.fallback"}, nil
		},
	}
	svc := newOutboundService(t, messages, client, config.QueueConfig{OutboundMaxAge: 10 * time.Minute})

	msg := outboundMessage("menu en texto")
	msg.Metadata.Interactive = []model.InteractivePayload{{Kind: "list", Body: "{}"}}

	require.NoError(t, svc.DispatchOne(context.Background(), msg))
	assert.Equal(t, "wamid.fallback", sentSent)
	require.NotNil(t, updatedMeta)
	assert.Equal(t, model.DeliveryPathTextFallback, updatedMeta.DeliveryPath)
}

func TestDispatchOne_MidwayFailureKeepsDelivered(t *testing.T) {
	messages := &mockMessageRepository{}
	var updatedMeta *model.MessageMeta
	messages.updateMetadataFunc = func(_ context.Context, _ string, meta model.MessageMeta) error {
		updatedMeta = &meta
		return nil
	}
	var sentWAID string
	messages.markSentFunc = func(_ context.Context, _, waID string) (bool, error) {
		sentWAID = waID
		return true, nil
	}
	call := 0
	client := &mockMessagingClient{
		sendInteractiveFunc: func(context.Context, core.SendInteractiveParams) (*core.SendResult, error) {
			call++
			if call == 2 {
				return nil, errors.New("rate limited")
			}
			return &core.SendResult{WAMessageID: "wamid.first"}, nil
		},
		sendTextFunc: func(context.Context, core.SendTextParams) (*core.SendResult, error) {
			t.Fatal("text fallback must not fire after a partial delivery")
			return nil, nil
		},
	}
	svc := newOutboundService(t, messages, client, config.QueueConfig{OutboundMaxAge: 10 * time.Minute})

	msg := outboundMessage("doble")
	msg.Metadata.Interactive = []model.InteractivePayload{
		{Kind: "button", Body: "{}"},
		{Kind: "list", Body: "{}"},
	}

	require.NoError(t, svc.DispatchOne(context.Background(), msg))
	assert.Equal(t, "wamid.first", sentWAID)
	require.NotNil(t, updatedMeta)
	assert.Equal(t, model.DeliveryPathPartialAborted, updatedMeta.DeliveryPath)
}

func TestDispatchBatch_SendErrorMarksFailed(t *testing.T) {
	messages := &mockMessageRepository{}
	var failedIDs []string
	messages.markFailedFunc = func(_ context.Context, id, _ string) (bool, error) {
		failedIDs = append(failedIDs, id)
		return true, nil
	}
	client := &mockMessagingClient{
		sendTextFunc: func(context.Context, core.SendTextParams) (*core.SendResult, error) {
			return nil, errors.New("provider 500")
		},
	}
	svc := newOutboundService(t, messages, client, config.QueueConfig{OutboundMaxAge: 10 * time.Minute})

	svc.DispatchBatch(context.Background(), []*model.Message{outboundMessage("hola")})
	assert.Equal(t, []string{"out-1"}, failedIDs)
}
