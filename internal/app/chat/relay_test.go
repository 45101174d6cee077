package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/core/mocks"
	"github.com/dkeye/consult/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type captured struct {
	t       core.MessageType
	payload any
}

type captureSignaler struct {
	mu   sync.Mutex
	sent []captured
	err  error
}

func (s *captureSignaler) Send(t core.MessageType, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, captured{t: t, payload: payload})
	return nil
}

func (s *captureSignaler) Sent() []captured {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]captured(nil), s.sent...)
}

func newRelay(t *testing.T, features domain.Features) (*Relay, *mocks.MockPersistence, *mocks.MockStorage, *captureSignaler) {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockPersistence(ctrl)
	storage := mocks.NewMockStorage(ctrl)
	sig := &captureSignaler{}
	return New("s1", "a", features, sig, store, storage), store, storage, sig
}

func TestSendPersistsThenRelays(t *testing.T) {
	t.Parallel()
	r, store, _, sig := newRelay(t, domain.AllFeatures())

	store.EXPECT().SaveChatMessage(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, m domain.ChatMessage) {
			assert.Empty(t, sig.Sent(), "relayed before persisted")
			assert.Equal(t, "hello", m.Content)
		})

	m, err := r.Send(context.Background(), "s1", "a", "hello", domain.KindText, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.False(t, m.SentAt.IsZero())

	sent := sig.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, core.MsgChatMessage, sent[0].t)
	assert.Equal(t, m, sent[0].payload.(core.Chat).Message)
}

func TestFileWithoutUploadIsNotRelayed(t *testing.T) {
	t.Parallel()
	r, _, _, sig := newRelay(t, domain.AllFeatures())

	_, err := r.Send(context.Background(), "s1", "a", "scan.pdf", domain.KindFile, nil)
	assert.ErrorIs(t, err, domain.ErrFileNotUploaded)

	_, err = r.Send(context.Background(), "s1", "a", "scan.pdf", domain.KindFile, &domain.FileRef{Name: "scan.pdf"})
	assert.ErrorIs(t, err, domain.ErrFileNotUploaded)
	assert.Empty(t, sig.Sent())
}

func TestUploadedFileIsRelayed(t *testing.T) {
	t.Parallel()
	r, store, storage, sig := newRelay(t, domain.AllFeatures())
	ctx := context.Background()

	storage.EXPECT().UploadArtifact(ctx, []byte("%PDF"), "application/pdf").Return("https://files.example.org/1", nil)
	ref, err := r.UploadFile(ctx, "scan.pdf", "application/pdf", []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, &domain.FileRef{URL: "https://files.example.org/1", Name: "scan.pdf", Size: 4}, ref)

	store.EXPECT().SaveChatMessage(gomock.Any(), gomock.Any())
	_, err = r.Send(ctx, "s1", "a", "scan.pdf", domain.KindFile, ref)
	require.NoError(t, err)
	assert.Len(t, sig.Sent(), 1)
}

func TestSendRejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r, _, _, _ := newRelay(t, domain.Features{})
	_, err := r.Send(ctx, "s1", "a", "hi", domain.KindText, nil)
	assert.ErrorIs(t, err, domain.ErrFeatureDisabled)
	_, err = r.UploadFile(ctx, "x", "text/plain", []byte("x"))
	assert.ErrorIs(t, err, domain.ErrFeatureDisabled)

	r, _, _, _ = newRelay(t, domain.AllFeatures())
	_, err = r.Send(ctx, "s1", "a", "   ", domain.KindText, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
	_, err = r.Send(ctx, "s1", "b", "hi", domain.KindText, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidMessage)
}

func TestPersistFailureSkipsRelay(t *testing.T) {
	t.Parallel()
	r, store, _, sig := newRelay(t, domain.AllFeatures())
	store.EXPECT().SaveChatMessage(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	_, err := r.Send(context.Background(), "s1", "a", "hi", domain.KindText, nil)
	assert.Error(t, err)
	assert.Empty(t, sig.Sent())
}

func TestAnnotationTravelsAsWhiteboard(t *testing.T) {
	t.Parallel()
	r, store, _, sig := newRelay(t, domain.AllFeatures())
	store.EXPECT().SaveChatMessage(gomock.Any(), gomock.Any())

	_, err := r.Send(context.Background(), "s1", "a", `{"stroke":[1,2]}`, domain.KindAnnotation, nil)
	require.NoError(t, err)
	sent := sig.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, core.MsgWhiteboardUpdate, sent[0].t)
}

func TestReceive(t *testing.T) {
	t.Parallel()
	r, _, _, _ := newRelay(t, domain.AllFeatures())

	msg := domain.ChatMessage{ID: "m1", SessionID: "s1", Sender: "b", Kind: domain.KindText, Content: "hi"}
	data, err := json.Marshal(core.Chat{Route: core.Route{From: "b"}, Message: msg})
	require.NoError(t, err)
	got, ok := r.Receive(core.MsgChatMessage, data)
	require.True(t, ok)
	assert.Equal(t, "hi", got.Content)

	echo, err := json.Marshal(core.Chat{Route: core.Route{From: "a"}, Message: msg})
	require.NoError(t, err)
	_, ok = r.Receive(core.MsgChatMessage, echo)
	assert.False(t, ok)

	other := msg
	other.SessionID = "s2"
	foreign, err := json.Marshal(core.Chat{Route: core.Route{From: "b"}, Message: other})
	require.NoError(t, err)
	_, ok = r.Receive(core.MsgChatMessage, foreign)
	assert.False(t, ok)

	_, ok = r.Receive(core.MsgChatMessage, json.RawMessage(`{`))
	assert.False(t, ok)

	wb, err := json.Marshal(core.Whiteboard{Route: core.Route{From: "b"}, Message: domain.ChatMessage{ID: "w", SessionID: "s1", Sender: "b", Content: "{}"}})
	require.NoError(t, err)
	got, ok = r.Receive(core.MsgWhiteboardUpdate, wb)
	require.True(t, ok)
	assert.Equal(t, domain.KindAnnotation, got.Kind)
}
