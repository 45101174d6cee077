package recording

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"testing"
	"time"

	"github.com/at-wat/ebml-go"
	"github.com/at-wat/ebml-go/webm"
	"github.com/dkeye/consult/internal/core/fakes"
	"github.com/dkeye/consult/internal/core/mocks"
	"github.com/dkeye/consult/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	storage *mocks.MockStorage
	store   *mocks.MockPersistence
	consent *mocks.MockConsentProvider
	comp    *Compositor
	session domain.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		storage: mocks.NewMockStorage(ctrl),
		store:   mocks.NewMockPersistence(ctrl),
		consent: mocks.NewMockConsentProvider(ctrl),
	}
	f.comp = New("s1", f.storage, f.store, f.consent, Options{
		FrameRate: 50,
		Quality:   domain.RecordingQuality{Width: 64, Height: 36, VideoBitrate: 2_500_000, AudioBitrate: 128_000},
	})

	now := time.Now()
	s := domain.NewSession("s1", domain.Descriptor{Features: domain.AllFeatures()})
	therapist, err := domain.NewParticipant("t", "Dr. T", domain.RoleTherapist, now)
	require.NoError(t, err)
	patient, err := domain.NewParticipant("p", "Pat", domain.RolePatient, now)
	require.NoError(t, err)
	s.AddParticipant(therapist)
	s.AddParticipant(patient)
	require.NoError(t, s.Transition(domain.StatusWaiting, now))
	require.NoError(t, s.Transition(domain.StatusActive, now))
	f.session = s.Clone()
	return f
}

func (f *fixture) source() Source {
	return Source{
		Local:  fakes.NewLocalMedia("t"),
		Roster: func() []Tile { return []Tile{{Participant: "t", Label: "Dr. T"}, {Participant: "p", Label: "Pat"}} },
	}
}

func TestStartRejections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("permission", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.comp.Start(ctx, f.session, "p", f.source())
		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	})

	t.Run("feature", func(t *testing.T) {
		f := newFixture(t)
		f.session.Features.Recording = false
		_, err := f.comp.Start(ctx, f.session, "t", f.source())
		assert.ErrorIs(t, err, domain.ErrFeatureDisabled)
	})

	t.Run("consent", func(t *testing.T) {
		f := newFixture(t)
		f.consent.EXPECT().Consents(gomock.Any(), domain.SessionID("s1")).Return(map[domain.ParticipantID]bool{"t": true, "p": false}, nil)
		_, err := f.comp.Start(ctx, f.session, "t", f.source())
		assert.ErrorIs(t, err, domain.ErrRecordingConsentMissing)
		assert.False(t, f.comp.Active())
	})

	t.Run("not active", func(t *testing.T) {
		f := newFixture(t)
		f.session.Status = domain.StatusWaiting
		f.consent.EXPECT().Consents(gomock.Any(), gomock.Any()).Return(map[domain.ParticipantID]bool{"t": true, "p": true}, nil)
		_, err := f.comp.Start(ctx, f.session, "t", f.source())
		assert.ErrorIs(t, err, domain.ErrSessionNotActive)
	})

	t.Run("nothing to stop", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.comp.Stop(ctx)
		assert.ErrorIs(t, err, domain.ErrNoActiveRecording)
	})
}

func TestRecordAndUpload(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	f.consent.EXPECT().Consents(gomock.Any(), gomock.Any()).Return(map[domain.ParticipantID]bool{"t": true, "p": true}, nil).Times(2)
	a, err := f.comp.Start(ctx, f.session, "t", f.source())
	require.NoError(t, err)
	assert.Equal(t, domain.RecordingActive, a.Status)
	assert.Equal(t, map[domain.ParticipantID]bool{"t": true, "p": true}, a.Consent)
	assert.True(t, f.comp.Active())

	_, err = f.comp.Start(ctx, f.session, "t", f.source())
	assert.ErrorIs(t, err, domain.ErrRecordingInProgress)

	time.Sleep(100 * time.Millisecond)

	var uploaded []byte
	f.storage.EXPECT().UploadArtifact(gomock.Any(), gomock.Any(), ContentType).
		DoAndReturn(func(uctx context.Context, data []byte, _ string) (string, error) {
			assert.NoError(t, uctx.Err(), "upload must not inherit cancellation")
			_, bounded := uctx.Deadline()
			assert.False(t, bounded)
			uploaded = data
			return "https://storage.example.org/rec.mkv", nil
		})
	f.store.EXPECT().SaveRecordingMetadata(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, a domain.RecordingArtifact) {
			assert.Equal(t, domain.RecordingCompleted, a.Status)
		})

	cancel()
	done, err := f.comp.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordingCompleted, done.Status)
	assert.Equal(t, "https://storage.example.org/rec.mkv", done.URL)
	assert.Equal(t, "video/x-matroska", done.Format)
	assert.Equal(t, int64(len(uploaded)), done.Size)
	assert.Positive(t, done.Duration)
	require.NotEmpty(t, uploaded)
	// EBML magic
	assert.Equal(t, []byte{0x1a, 0x45, 0xdf, 0xa3}, uploaded[:4])

	last, ok := f.comp.Artifact()
	require.True(t, ok)
	assert.Equal(t, done.ID, last.ID)
	assert.False(t, f.comp.Active())
}

func TestUploadFailureIsTerminal(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.consent.EXPECT().Consents(gomock.Any(), gomock.Any()).Return(map[domain.ParticipantID]bool{"t": true, "p": true}, nil)
	_, err := f.comp.Start(ctx, f.session, "t", f.source())
	require.NoError(t, err)

	f.storage.EXPECT().UploadArtifact(gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("bucket gone")).Times(1)
	f.store.EXPECT().SaveRecordingMetadata(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, a domain.RecordingArtifact) {
			assert.Equal(t, domain.RecordingFailed, a.Status)
			assert.Contains(t, a.Failure, "bucket gone")
		})

	a, err := f.comp.Stop(ctx)
	assert.ErrorIs(t, err, domain.ErrUploadFailed)
	assert.Equal(t, domain.RecordingFailed, a.Status)

	_, err = f.comp.Stop(ctx)
	assert.ErrorIs(t, err, domain.ErrNoActiveRecording)
}

func TestSlowUploadCompletes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	f.consent.EXPECT().Consents(gomock.Any(), gomock.Any()).Return(map[domain.ParticipantID]bool{"t": true, "p": true}, nil)
	_, err := f.comp.Start(ctx, f.session, "t", f.source())
	require.NoError(t, err)

	f.storage.EXPECT().UploadArtifact(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(uctx context.Context, _ []byte, _ string) (string, error) {
			select {
			case <-uctx.Done():
				return "", uctx.Err()
			case <-time.After(300 * time.Millisecond):
				return "file:///slow.mkv", nil
			}
		})
	f.store.EXPECT().SaveRecordingMetadata(gomock.Any(), gomock.Any())

	cancel()
	a, err := f.comp.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordingCompleted, a.Status)
}

type parsedFile struct {
	Header  webm.EBMLHeader `ebml:"EBML"`
	Segment webm.Segment    `ebml:"Segment,size=unknown"`
}

// audioBlocks returns the absolute timestamps of every audio block.
func audioBlocks(t *testing.T, data []byte) (docType string, ts []int64) {
	t.Helper()
	var f parsedFile
	require.NoError(t, ebml.Unmarshal(bytes.NewReader(data), &f))
	for _, c := range f.Segment.Cluster {
		for _, b := range c.SimpleBlock {
			if b.TrackNumber == trackAudio {
				ts = append(ts, int64(c.Timecode)+int64(b.Timecode))
			}
		}
	}
	return f.Header.DocType, ts
}

func speech(m *Mixer, frames int) {
	for range frames {
		pcm := make([]int16, samplesPerFrame)
		for i := range pcm {
			pcm[i] = int16(i % 512)
		}
		m.WritePCM("t", pcm)
	}
}

func TestAudioResumesAtVideoClockAfterSilence(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	r, err := f.comp.newRun(f.session, "t", map[domain.ParticipantID]bool{"t": true, "p": true}, f.source())
	require.NoError(t, err)

	speech(r.mixer, 50)
	require.NoError(t, f.comp.paint(r, 0))
	assert.Equal(t, int64(1000), r.audioTS)

	require.NoError(t, f.comp.paint(r, 20_000))
	speech(r.mixer, 50)
	require.NoError(t, f.comp.paint(r, 41_000))
	assert.Equal(t, int64(42_000), r.audioTS)

	data, err := r.out.finish()
	require.NoError(t, err)
	assert.Zero(t, r.out.dropped.Load())

	docType, ts := audioBlocks(t, data)
	assert.Equal(t, "matroska", docType)
	require.Len(t, ts, 100)
	assert.Equal(t, int64(0), ts[0])
	assert.Equal(t, int64(41_000), ts[50])
	assert.Equal(t, int64(41_980), ts[99])
}

func TestLocalCameraReachesGrid(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	keyframe, err := os.ReadFile("testdata/keyframe.vp8")
	require.NoError(t, err)

	media := fakes.NewLocalMedia("t")
	src := f.source()
	src.Local = media
	r, err := f.comp.newRun(f.session, "t", map[domain.ParticipantID]bool{"t": true, "p": true}, src)
	require.NoError(t, err)
	defer func() {
		for _, unhook := range r.unhooks {
			unhook()
		}
	}()

	assert.Nil(t, r.frames.LatestFrame("t"))
	media.Show(keyframe)
	img := r.frames.LatestFrame("t")
	require.NotNil(t, img)
	assert.Equal(t, image.Rect(0, 0, 150, 103), img.Bounds())

	Compose(r.canvas, src.Roster(), r.frames)
	rects := Layout(2, r.canvas.Bounds().Dx(), r.canvas.Bounds().Dy())
	own, other := rects[0].Inset(2), rects[1].Inset(2)
	mid := func(rc image.Rectangle) image.Point { return image.Pt((rc.Min.X+rc.Max.X)/2, rc.Min.Y+rc.Dy()/3) }
	assert.NotEqual(t, placeholder("t"), r.canvas.RGBAAt(mid(own).X, mid(own).Y))
	assert.Equal(t, placeholder("p"), r.canvas.RGBAAt(mid(other).X, mid(other).Y))
}
