package audio

// Playback is the display state of the current playback handle.
// PositionMillis never exceeds DurationMillis once the duration is known.
type Playback struct {
	PositionMillis int64 `json:"position_millis"`
	DurationMillis int64 `json:"duration_millis"`
	Playing        bool  `json:"playing"`
	Loaded         bool  `json:"loaded"`
}

// ProgressTracker folds playback status reports into a Playback. It is not
// safe for concurrent use; Manager serializes access.
type ProgressTracker struct {
	pb Playback
}

// Begin marks a new playback as playing from zero before the handle
// confirms it has loaded.
func (p *ProgressTracker) Begin() {
	p.pb = Playback{Playing: true}
}

// Apply consumes one status report and reports whether it was a natural
// completion. Reports from an unloaded handle are ignored.
func (p *ProgressTracker) Apply(st PlaybackStatus) bool {
	if !st.IsLoaded {
		return false
	}
	p.pb.Loaded = true
	if st.DurationMillis > 0 {
		p.pb.DurationMillis = st.DurationMillis
	}
	pos := st.PositionMillis
	if pos < 0 {
		pos = 0
	}
	if p.pb.DurationMillis > 0 && pos > p.pb.DurationMillis {
		pos = p.pb.DurationMillis
	}
	p.pb.PositionMillis = pos

	if st.DidJustFinish {
		p.pb.Playing = false
		p.pb.PositionMillis = 0
		return true
	}
	return false
}

// Stop resets position and marks playback as stopped. The known duration is
// kept for display.
func (p *ProgressTracker) Stop() {
	p.pb.Playing = false
	p.pb.PositionMillis = 0
}

func (p *ProgressTracker) Clear() {
	p.pb = Playback{}
}

func (p *ProgressTracker) Snapshot() Playback {
	return p.pb
}

// Progress is the normalized position in [0, 1].
func (p *ProgressTracker) Progress() float64 {
	if p.pb.DurationMillis <= 0 {
		return 0
	}
	v := float64(p.pb.PositionMillis) / float64(p.pb.DurationMillis)
	if v > 1 {
		return 1
	}
	return v
}
