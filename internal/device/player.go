package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/oto/v3"

	"github.com/ent0n29/echo/internal/audio"
	"github.com/ent0n29/echo/internal/lifecycle"
)

func (b *Backend) CreatePlayback(_ context.Context, uri string, onStatus func(audio.PlaybackStatus)) (audio.PlaybackHandle, error) {
	if b.Mode() != audio.ModePlayback {
		return nil, fmt.Errorf("create playback: %w", errWrongMode)
	}
	data, err := os.ReadFile(strings.TrimPrefix(uri, "file://"))
	if err != nil {
		return nil, fmt.Errorf("load recording: %w", err)
	}
	pcm, rate, err := audio.DecodeWAVPCM16(data)
	if err != nil {
		return nil, fmt.Errorf("decode recording: %w", err)
	}
	if rate != b.sampleRate {
		return nil, fmt.Errorf("recording sample rate %d does not match device rate %d", rate, b.sampleRate)
	}
	speaker, err := b.speakerContext()
	if err != nil {
		return nil, err
	}

	src := &countingReader{r: bytes.NewReader(pcm)}
	p := &playback{
		player: speaker.NewPlayer(src),
		source: src,
		total:  int64(len(pcm)),
		rate:   rate,
		ticker: b.clock.NewTicker(b.statusTick),
		stop:   make(chan struct{}),
	}
	p.player.Play()
	go p.report(onStatus)
	return p, nil
}

type countingReader struct {
	r    io.Reader
	read atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read.Add(int64(n))
	return n, err
}

type playback struct {
	player *oto.Player
	source *countingReader
	total  int64
	rate   int
	ticker lifecycle.Ticker
	stop   chan struct{}
	once   sync.Once
	closed sync.Once
}

func (p *playback) report(onStatus func(audio.PlaybackStatus)) {
	defer p.ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-p.ticker.C():
		}
		st := playbackStatus(p.source.read.Load(), int64(p.player.BufferedSize()), p.total, p.rate, p.player.IsPlaying())
		onStatus(st)
		if st.DidJustFinish {
			return
		}
	}
}

// playbackStatus derives a status report from the bytes oto has pulled and
// the bytes still queued in its buffer.
func playbackStatus(consumed, buffered, total int64, rate int, playing bool) audio.PlaybackStatus {
	played := consumed - buffered
	if played < 0 {
		played = 0
	}
	duration := audio.PCMDurationMillis(int(total), rate)
	st := audio.PlaybackStatus{
		PositionMillis: audio.PCMDurationMillis(int(played), rate),
		DurationMillis: duration,
		IsLoaded:       true,
		IsPlaying:      playing,
	}
	if consumed >= total && !playing {
		st.PositionMillis = duration
		st.DidJustFinish = true
	}
	return st
}

func (p *playback) Stop(context.Context) error {
	p.once.Do(func() {
		close(p.stop)
		p.player.Pause()
	})
	return nil
}

func (p *playback) Unload(ctx context.Context) error {
	_ = p.Stop(ctx)
	var err error
	p.closed.Do(func() { err = p.player.Close() })
	return err
}
