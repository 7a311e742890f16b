package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/google/uuid"

	"github.com/ent0n29/echo/internal/audio"
)

func (b *Backend) CreateRecording(context.Context) (audio.RecordingHandle, error) {
	if b.Mode() != audio.ModeRecord {
		return nil, fmt.Errorf("create recording: %w", errWrongMode)
	}
	path := filepath.Join(b.dir, uuid.NewString()+".wav")
	file, err := audio.CreateWAVFile(path, b.sampleRate)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}

	q := newPCMQueue(b.sampleRate*2, false)
	dev, err := b.startCapture(q)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	r := &recording{path: path, file: file, queue: q, dev: dev, drained: make(chan error, 1)}
	go r.drain()
	b.logger.Debug().Str("path", path).Msg("recording started")
	return r, nil
}

type recording struct {
	path    string
	file    *audio.WAVFileWriter
	queue   *pcmQueue
	dev     *malgo.Device
	drained chan error
	once    sync.Once
}

func (r *recording) drain() {
	_, err := io.Copy(r.file, r.queue)
	r.drained <- err
}

// Stop halts capture, flushes queued samples to disk and finalizes the WAV
// header. The returned uri is a filesystem path.
func (r *recording) Stop(context.Context) (string, error) {
	stopped := false
	var err error
	r.once.Do(func() {
		stopped = true
		stopErr := stopCapture(r.dev)
		_ = r.queue.Close()
		err = errors.Join(stopErr, <-r.drained, r.file.Close())
	})
	if !stopped {
		return "", errors.New("recording already stopped")
	}
	if err != nil {
		return "", fmt.Errorf("finalize recording: %w", err)
	}
	return r.path, nil
}
