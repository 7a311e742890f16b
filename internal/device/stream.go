package device

import (
	"context"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
)

// OpenMicrophone starts live capture for a conversation.
func (b *Backend) OpenMicrophone(context.Context) (io.ReadCloser, error) {
	q := newPCMQueue(b.sampleRate*2, false)
	dev, err := b.startCapture(q)
	if err != nil {
		return nil, err
	}
	return &microphone{queue: q, dev: dev}, nil
}

type microphone struct {
	queue *pcmQueue
	dev   *malgo.Device
	once  sync.Once
}

func (m *microphone) Read(p []byte) (int, error) { return m.queue.Read(p) }

func (m *microphone) Close() error {
	var err error
	m.once.Do(func() {
		err = stopCapture(m.dev)
		_ = m.queue.Close()
	})
	return err
}

// OpenSpeaker returns a writer that plays agent audio as it arrives.
func (b *Backend) OpenSpeaker(context.Context) (io.WriteCloser, error) {
	ctx, err := b.speakerContext()
	if err != nil {
		return nil, err
	}
	return &speaker{ctx: ctx, queue: newPCMQueue(b.sampleRate*4, true)}, nil
}

type speaker struct {
	ctx   *oto.Context
	queue *pcmQueue

	mu     sync.Mutex
	player *oto.Player
}

// Write queues audio and starts the player on the first chunk.
func (s *speaker) Write(p []byte) (int, error) {
	n, err := s.queue.Write(p)
	if err != nil {
		return n, err
	}
	s.mu.Lock()
	if s.player == nil {
		s.player = s.ctx.NewPlayer(s.queue)
		s.player.Play()
	}
	s.mu.Unlock()
	return n, nil
}

func (s *speaker) Close() error {
	_ = s.queue.Close()
	s.mu.Lock()
	player := s.player
	s.player = nil
	s.mu.Unlock()
	if player == nil {
		return nil
	}
	return player.Close()
}
