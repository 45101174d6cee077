//go:build !opus

package recording

import (
	"context"
	"testing"

	"github.com/dkeye/consult/internal/core/fakes"
	"github.com/dkeye/consult/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// One 20ms stereo CELT frame.
var opusPacket = []byte{0xfc, 0xff, 0xfe}

func TestMixerWithoutDecoderCountsDrops(t *testing.T) {
	t.Parallel()
	require.False(t, OpusDecoding)
	m := NewMixer()
	defer m.Close()

	for range 10 {
		m.WriteOpus("remote", opusPacket)
	}
	_, ok := m.ReadFrame()
	assert.False(t, ok)
	assert.Equal(t, 10, m.Dropped())
}

func TestRecordingWithoutDecoderIsFlagged(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	media := fakes.NewLocalMedia("t")
	src := f.source()
	src.Local = media

	f.consent.EXPECT().Consents(gomock.Any(), gomock.Any()).Return(map[domain.ParticipantID]bool{"t": true, "p": true}, nil)
	a, err := f.comp.Start(ctx, f.session, "t", src)
	require.NoError(t, err)
	assert.Contains(t, a.Note, "opus")

	media.Speak(opusPacket)

	f.storage.EXPECT().UploadArtifact(gomock.Any(), gomock.Any(), ContentType).Return("file:///a.mkv", nil)
	f.store.EXPECT().SaveRecordingMetadata(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, a domain.RecordingArtifact) {
			assert.Contains(t, a.Note, "opus")
		})
	done, err := f.comp.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordingCompleted, done.Status)
	assert.Contains(t, done.Note, "opus")
}
