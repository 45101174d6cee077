// Package recording composes every participant of a session into one
// recorded grid video with a mixed audio track.
package recording

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/dkeye/consult/internal/app/pool"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ContentType of the artifact: MJPEG video and PCM or Opus audio in Matroska.
const ContentType = "video/x-matroska"

// audioResync is how far mixed audio may trail the wall clock before it is
// stamped at the current video time again.
const audioResync = 200

// Tile is one participant on the recording surface.
type Tile struct {
	Participant domain.ParticipantID
	Label       string
}

// PacketSource is the peer pool of the participant whose view is recorded.
type PacketSource interface {
	AddSink(pool.PacketSink) func()
	RequestKeyframes()
}

// Source is what one recording reads from.
type Source struct {
	Packets PacketSource
	// Local is the recorder's own capture. May be nil.
	Local core.LocalMedia
	// Roster lists the tiles to draw. It is called on every redraw.
	Roster func() []Tile
}

type Options struct {
	FrameRate int
	Quality   domain.RecordingQuality
	Video     VideoEncoder
	Audio     AudioEncoder
}

type Compositor struct {
	session     domain.SessionID
	storage     core.Storage
	persistence core.Persistence
	consent     core.ConsentProvider
	opts        Options
	log         zerolog.Logger
	now         func() time.Time

	mu     sync.Mutex
	active *run
	last   *domain.RecordingArtifact
}

type run struct {
	artifact domain.RecordingArtifact
	local    domain.ParticipantID
	src      Source
	frames   *FrameStore
	mixer    *Mixer
	out      *container
	video    VideoEncoder
	audio    AudioEncoder
	canvas   *image.RGBA
	audioTS  int64
	writeErr error

	cancel  context.CancelFunc
	done    chan struct{}
	unhooks []func()
}

func New(session domain.SessionID, storage core.Storage, persistence core.Persistence, consent core.ConsentProvider, opts Options) *Compositor {
	if opts.FrameRate <= 0 {
		opts.FrameRate = 30
	}
	if opts.Quality.Width == 0 || opts.Quality.Height == 0 {
		opts.Quality = domain.DefaultRecordingQuality()
	}
	return &Compositor{
		session:     session,
		storage:     storage,
		persistence: persistence,
		consent:     consent,
		opts:        opts,
		log:         log.With().Str("module", "recording").Str("session", string(session)).Logger(),
		now:         time.Now,
	}
}

// Start begins recording the session as seen by requester.
func (c *Compositor) Start(ctx context.Context, s domain.Session, requester domain.ParticipantID, src Source) (domain.RecordingArtifact, error) {
	p, ok := s.Participant(requester)
	if !ok {
		return domain.RecordingArtifact{}, domain.ErrParticipantNotFound
	}
	if !p.Permissions.Record {
		return domain.RecordingArtifact{}, domain.ErrPermissionDenied
	}
	if !s.Features.Recording {
		return domain.RecordingArtifact{}, domain.ErrFeatureDisabled
	}

	consents, err := c.consent.Consents(ctx, s.ID)
	if err != nil {
		return domain.RecordingArtifact{}, fmt.Errorf("recording: consent lookup: %w", err)
	}
	if missing := domain.MissingConsent(consents, s.ParticipantIDs()); len(missing) > 0 {
		return domain.RecordingArtifact{}, fmt.Errorf("%w: %v", domain.ErrRecordingConsentMissing, missing)
	}
	if s.Status != domain.StatusActive {
		return domain.RecordingArtifact{}, domain.ErrSessionNotActive
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return domain.RecordingArtifact{}, domain.ErrRecordingInProgress
	}

	r, err := c.newRun(s, requester, consents, src)
	if err != nil {
		return domain.RecordingArtifact{}, err
	}
	c.active = r
	if !OpusDecoding {
		r.artifact.Note = "audio not decoded: built without opus"
		c.log.Warn().Str("recording", r.artifact.ID).Msg("recording audio will be silent, build with -tags opus")
	}

	// The redraw task outlives the request that started it.
	rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	go c.redraw(rctx, r)

	c.log.Info().Str("recording", r.artifact.ID).Str("participant", string(requester)).Msg("recording started")
	return r.artifact, nil
}

func (c *Compositor) newRun(s domain.Session, requester domain.ParticipantID, consents map[domain.ParticipantID]bool, src Source) (*run, error) {
	q := c.opts.Quality
	v := c.opts.Video
	if v == nil {
		v = NewJPEGEncoder(q.VideoBitrate, c.opts.FrameRate)
	}
	a := c.opts.Audio
	if a == nil {
		var err error
		if a, err = NewAudioEncoder(q.AudioBitrate); err != nil {
			return nil, err
		}
	}
	out, err := newContainer(q.Width, q.Height, c.opts.FrameRate, v, a)
	if err != nil {
		return nil, err
	}

	consent := make(map[domain.ParticipantID]bool, len(consents))
	for _, id := range s.ParticipantIDs() {
		consent[id] = consents[id]
	}
	mixer := NewMixer()
	r := &run{
		artifact: domain.RecordingArtifact{
			ID:        uuid.NewString(),
			SessionID: s.ID,
			StartedBy: requester,
			StartedAt: c.now(),
			Format:    ContentType,
			Quality:   q,
			Consent:   consent,
			Status:    domain.RecordingActive,
		},
		local:  requester,
		src:    src,
		frames: NewFrameStore(mixer),
		mixer:  mixer,
		out:    out,
		video:  v,
		audio:  a,
		canvas: image.NewRGBA(image.Rect(0, 0, q.Width, q.Height)),
		done:   make(chan struct{}),
	}
	if src.Packets != nil {
		r.unhooks = append(r.unhooks, src.Packets.AddSink(r.frames))
	}
	if src.Local != nil {
		r.unhooks = append(r.unhooks, src.Local.SubscribeAudio(func(payload []byte) {
			mixer.WriteOpus(requester, payload)
		}))
		r.unhooks = append(r.unhooks, src.Local.SubscribeVideo(func(frame []byte) {
			r.frames.WriteVP8(requester, frame)
		}))
	}
	return r, nil
}

// redraw is the cancellable repeating task that paints and encodes the grid.
func (c *Compositor) redraw(ctx context.Context, r *run) {
	defer close(r.done)
	fps := c.opts.FrameRate
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if frame%fps == 0 && r.src.Packets != nil {
			r.src.Packets.RequestKeyframes()
		}
		ts := c.now().Sub(r.artifact.StartedAt).Milliseconds()
		if err := c.paint(r, ts); err != nil && r.writeErr == nil {
			r.writeErr = err
			c.log.Error().Err(err).Str("recording", r.artifact.ID).Msg("frame not written")
		}
		frame++
	}
}

func (c *Compositor) paint(r *run, ts int64) error {
	var tiles []Tile
	if r.src.Roster != nil {
		tiles = r.src.Roster()
	}
	Compose(r.canvas, tiles, r.frames)

	img, err := r.video.Encode(r.canvas)
	if err != nil {
		return fmt.Errorf("encode video: %w", err)
	}
	if err := r.out.writeVideo(ts, img); err != nil {
		return fmt.Errorf("write video: %w", err)
	}

	for {
		pcm, ok := r.mixer.ReadFrame()
		if !ok {
			return nil
		}
		b, err := r.audio.Encode(pcm)
		if err != nil {
			return fmt.Errorf("encode audio: %w", err)
		}
		// Nothing is mixed while nobody talks; resume at the video clock.
		if r.audioTS < ts-audioResync {
			r.audioTS = ts
		}
		if err := r.out.writeAudio(r.audioTS, b); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
		r.audioTS += frameSizeMs
	}
}

// Compose paints tiles on canvas in a grid recomputed from len(tiles).
func Compose(canvas draw.Image, tiles []Tile, frames core.FrameProvider) {
	b := canvas.Bounds()
	draw.Draw(canvas, b, image.Black, image.Point{}, draw.Src)
	for i, rect := range Layout(len(tiles), b.Dx(), b.Dy()) {
		t := tiles[i]
		rect = rect.Add(b.Min).Inset(2)
		if img := frames.LatestFrame(t.Participant); img != nil {
			draw.ApproxBiLinear.Scale(canvas, rect, img, img.Bounds(), draw.Src, nil)
		} else {
			draw.Draw(canvas, rect, image.NewUniform(placeholder(t.Participant)), image.Point{}, draw.Src)
		}
		label(canvas, rect, t.Label)
	}
}

func placeholder(id domain.ParticipantID) color.RGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	v := h.Sum32()
	return color.RGBA{R: uint8(40 + v%80), G: uint8(40 + (v>>8)%80), B: uint8(60 + (v>>16)%80), A: 255}
}

func label(dst draw.Image, rect image.Rectangle, text string) {
	if text == "" {
		return
	}
	d := font.Drawer{
		Dst:  dst,
		Src:  image.White,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(rect.Min.X+8, rect.Max.Y-8),
	}
	d.DrawString(text)
}

// Stop ends the active recording, uploads it and records its metadata.
// The upload runs to completion even if ctx is cancelled.
func (c *Compositor) Stop(ctx context.Context) (domain.RecordingArtifact, error) {
	c.mu.Lock()
	r := c.active
	c.active = nil
	c.mu.Unlock()
	if r == nil {
		return domain.RecordingArtifact{}, domain.ErrNoActiveRecording
	}

	r.cancel()
	<-r.done
	for _, unhook := range r.unhooks {
		unhook()
	}
	dropped := r.mixer.Dropped()
	r.mixer.Close()

	a := r.artifact
	if dropped > 0 && a.Note == "" {
		a.Note = fmt.Sprintf("%d audio payloads not decoded", dropped)
	}
	ended := c.now()
	a.EndedAt = &ended
	a.Duration = ended.Sub(a.StartedAt)
	a.Status = domain.RecordingProcessing
	c.remember(a)

	// No deadline: an upload in flight runs to completion or failure.
	uctx := context.WithoutCancel(ctx)

	data, err := r.out.finish()
	if err == nil {
		err = r.writeErr
	}
	if err == nil {
		a.Size = int64(len(data))
		a.URL, err = c.storage.UploadArtifact(uctx, data, ContentType)
	}
	if err != nil {
		a.Status = domain.RecordingFailed
		a.Failure = err.Error()
		c.remember(a)
		c.save(uctx, a)
		c.log.Error().Err(err).Str("recording", a.ID).Msg("recording upload failed")
		return a, fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}

	a.Status = domain.RecordingCompleted
	c.remember(a)
	c.save(uctx, a)
	c.log.Info().Str("recording", a.ID).Str("url", a.URL).Int64("size", a.Size).Dur("duration", a.Duration).Msg("recording completed")
	return a, nil
}

func (c *Compositor) save(ctx context.Context, a domain.RecordingArtifact) {
	if err := c.persistence.SaveRecordingMetadata(ctx, a); err != nil {
		c.log.Error().Err(err).Str("recording", a.ID).Msg("recording metadata not saved")
	}
}

func (c *Compositor) remember(a domain.RecordingArtifact) {
	c.mu.Lock()
	c.last = &a
	c.mu.Unlock()
}

// Forget drops a participant's media from the active recording.
func (c *Compositor) Forget(id domain.ParticipantID) {
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()
	if r != nil {
		r.frames.Remove(id)
	}
}

func (c *Compositor) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Recorder returns who started the active recording.
func (c *Compositor) Recorder() (domain.ParticipantID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return "", false
	}
	return c.active.local, true
}

// Artifact returns the active recording, or the last finished one.
func (c *Compositor) Artifact() (domain.RecordingArtifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.active != nil:
		return c.active.artifact.Clone(), true
	case c.last != nil:
		return c.last.Clone(), true
	default:
		return domain.RecordingArtifact{}, false
	}
}
