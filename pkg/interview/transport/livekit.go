package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/livekit/media-sdk"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	lkmedia "github.com/livekit/server-sdk-go/v2/pkg/media"
	"github.com/pion/webrtc/v4"
)

const (
	defaultSampleRate  = 48000
	defaultNumChannels = 1
	eventBufferSize    = 128
)

var errNoMicSource = errors.New("no microphone source configured")

// MicSource supplies PCM16 frames for the published microphone track. Read
// blocks until a frame is available and returns io.EOF when the capture
// device is exhausted.
type MicSource interface {
	ReadFrame() (media.PCM16Sample, error)
	Close() error
}

// PlaybackSink receives remote audio payloads as they arrive. Frames are the
// raw codec payloads from the room; decoding is the sink's concern.
type PlaybackSink interface {
	WriteFrame(payload []byte) error
	Close() error
}

// RoomConfig configures a LiveKit-backed Adapter.
type RoomConfig struct {
	SampleRate   int
	NumChannels  int
	MicTrackName string
	Mic          MicSource
	Playback     PlaybackSink
	Logger       *slog.Logger
}

// Room is the LiveKit implementation of Adapter.
type Room struct {
	cfg    RoomConfig
	logger *slog.Logger

	mu       sync.Mutex
	events   chan Event
	closed   bool
	conn     *lksdk.Room
	micTrack *lkmedia.PCMLocalTrack
	micStop  context.CancelFunc
	readers  map[string]context.CancelFunc

	wg sync.WaitGroup
}

func NewRoom(cfg RoomConfig) *Room {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.NumChannels <= 0 {
		cfg.NumChannels = defaultNumChannels
	}
	if cfg.MicTrackName == "" {
		cfg.MicTrackName = "microphone"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Room{
		cfg:     cfg,
		logger:  cfg.Logger,
		events:  make(chan Event, eventBufferSize),
		readers: make(map[string]context.CancelFunc),
	}
}

func (r *Room) Events() <-chan Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events
}

func (r *Room) Connect(ctx context.Context, url, token string) error {
	r.mu.Lock()
	if r.conn != nil {
		r.mu.Unlock()
		return errors.New("already connected")
	}
	if r.closed {
		// A previous Disconnect retired the old feed; re-arm a fresh one so
		// a retried session on the same adapter gets its own drain.
		r.events = make(chan Event, eventBufferSize)
		r.closed = false
	}
	r.mu.Unlock()

	r.emit(ConnectionChanged{State: ConnectionConnecting})

	conn, err := lksdk.ConnectToRoomWithToken(url, token, r.roomCallback(), lksdk.WithAutoSubscribe(true))
	if err != nil {
		r.emit(ConnectionChanged{State: ConnectionDisconnected})
		return fmt.Errorf("connect to room: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	r.emit(ConnectionChanged{State: ConnectionConnected})
	for _, p := range conn.GetRemoteParticipants() {
		r.emit(ParticipantJoined{Identity: p.Identity(), Name: p.Name()})
	}
	r.logger.Info("connected to room", "room", conn.Name(), "identity", conn.LocalParticipant.Identity())
	return nil
}

func (r *Room) roomCallback() *lksdk.RoomCallback {
	return &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				kind := TrackKindAudio
				if track.Kind() == webrtc.RTPCodecTypeVideo {
					kind = TrackKindVideo
				}
				r.emit(TrackSubscribed{Participant: rp.Identity(), TrackID: track.ID(), Kind: kind})
				if kind == TrackKindAudio && r.cfg.Playback != nil {
					r.startTrackReader(track, rp.Identity())
				}
			},
			OnTrackUnsubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				kind := TrackKindAudio
				if track.Kind() == webrtc.RTPCodecTypeVideo {
					kind = TrackKindVideo
				}
				r.stopTrackReader(track.ID())
				r.emit(TrackUnsubscribed{Participant: rp.Identity(), TrackID: track.ID(), Kind: kind})
			},
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				payload := data.ToProto().GetUser().GetPayload()
				if len(payload) == 0 {
					return
				}
				buf := make([]byte, len(payload))
				copy(buf, payload)
				r.emit(DataReceived{Participant: params.SenderIdentity, Payload: buf})
			},
			OnTranscriptionReceived: func(segments []*livekit.TranscriptionSegment, p lksdk.Participant, _ lksdk.TrackPublication) {
				identity := ""
				if p != nil {
					identity = p.Identity()
				}
				for _, seg := range segments {
					if seg == nil {
						continue
					}
					r.emit(TranscriptionSegment{Participant: identity, Text: seg.Text, Final: seg.Final})
				}
			},
		},
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			r.emit(ParticipantJoined{Identity: rp.Identity(), Name: rp.Name()})
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			r.emit(ParticipantLeft{Identity: rp.Identity()})
		},
		OnReconnecting: func() {
			r.emit(ConnectionChanged{State: ConnectionReconnecting})
		},
		OnReconnected: func() {
			r.emit(ConnectionChanged{State: ConnectionConnected})
		},
		OnDisconnected: func() {
			r.emit(ConnectionChanged{State: ConnectionDisconnected})
		},
	}
}

func (r *Room) SetMicrophoneEnabled(enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !enabled {
		r.stopMicLocked()
		return nil
	}
	if r.micTrack != nil {
		return nil
	}
	if r.conn == nil {
		return errors.New("not connected")
	}
	if r.cfg.Mic == nil {
		return errNoMicSource
	}

	track, err := lkmedia.NewPCMLocalTrack(r.cfg.SampleRate, r.cfg.NumChannels, nil)
	if err != nil {
		return fmt.Errorf("create microphone track: %w", err)
	}
	if _, err := r.conn.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   r.cfg.MicTrackName,
		Source: livekit.TrackSource_MICROPHONE,
	}); err != nil {
		track.Close()
		return fmt.Errorf("publish microphone track: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.micTrack = track
	r.micStop = cancel
	r.wg.Add(1)
	go r.pumpMic(ctx, track)
	return nil
}

func (r *Room) stopMicLocked() {
	if r.micStop != nil {
		r.micStop()
		r.micStop = nil
	}
	if r.micTrack != nil {
		r.micTrack.Close()
		r.micTrack = nil
	}
}

func (r *Room) pumpMic(ctx context.Context, track *lkmedia.PCMLocalTrack) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		frame, err := r.cfg.Mic.ReadFrame()
		if err != nil {
			r.logger.Debug("microphone source drained", "error", err)
			return
		}
		if len(frame) == 0 {
			continue
		}
		if err := track.WriteSample(frame); err != nil {
			r.logger.Warn("microphone write failed", "error", err)
			return
		}
	}
}

func (r *Room) startTrackReader(track *webrtc.TrackRemote, participant string) {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	if old, ok := r.readers[track.ID()]; ok {
		old()
	}
	r.readers[track.ID()] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			_ = track.SetReadDeadline(time.Now().Add(5 * time.Second))
			pkt, _, err := track.ReadRTP()
			if err != nil {
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					continue
				}
				r.logger.Debug("remote track closed", "track", track.ID(), "participant", participant, "error", err)
				return
			}
			if pkt == nil || len(pkt.Payload) == 0 {
				continue
			}
			if err := r.cfg.Playback.WriteFrame(pkt.Payload); err != nil {
				r.logger.Warn("playback sink write failed", "error", err)
				return
			}
		}
	}()
}

func (r *Room) stopTrackReader(trackID string) {
	r.mu.Lock()
	if cancel, ok := r.readers[trackID]; ok {
		cancel()
		delete(r.readers, trackID)
	}
	r.mu.Unlock()
}

func (r *Room) PublishData(payload []byte) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}
	return conn.LocalParticipant.PublishDataPacket(lksdk.UserData(payload), lksdk.WithDataPublishReliable(true))
}

func (r *Room) Disconnect() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.stopMicLocked()
	for id, cancel := range r.readers {
		cancel()
		delete(r.readers, id)
	}
	conn := r.conn
	r.conn = nil
	events := r.events
	r.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
	}
	r.wg.Wait()

	if r.cfg.Playback != nil {
		_ = r.cfg.Playback.Close()
	}
	if r.cfg.Mic != nil {
		_ = r.cfg.Mic.Close()
	}
	// Safe to close: emit only sends under the lock with closed unset.
	close(events)
}

// emit delivers an event to the session without racing Disconnect. Events
// arriving after teardown are dropped; the send happens under the lock so a
// late SDK callback can never hit a closed channel.
func (r *Room) emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		// Feed is saturated; drop rather than block an SDK callback.
		r.logger.Warn("event feed full, dropping event", "event", fmt.Sprintf("%T", ev))
	}
}
