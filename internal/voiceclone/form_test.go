package voiceclone

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/echo/internal/lifecycle"
)

type fakeSubmitter struct {
	calls int
	got   Submission
	err   error
	block chan struct{}
}

func (s *fakeSubmitter) AddVoice(ctx context.Context, sub Submission) (string, error) {
	s.calls++
	s.got = sub
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return "", s.err
	}
	return "voice-123", nil
}

type fakeRecordings struct {
	mu        sync.Mutex
	uri       string
	discarded bool
}

func (r *fakeRecordings) CompletedRecording() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uri, r.uri != ""
}

func (r *fakeRecordings) DiscardRecording(uri string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uri != uri {
		return nil
	}
	r.uri = ""
	r.discarded = true
	return nil
}

func (r *fakeRecordings) replace(uri string) {
	r.mu.Lock()
	r.uri = uri
	r.mu.Unlock()
}

func TestSubmitWithEmptyNameIsRejectedWithoutNetwork(t *testing.T) {
	sub := &fakeSubmitter{}
	form := NewForm(Options{Submitter: sub, Recordings: &fakeRecordings{uri: "/tmp/sample.wav"}, Logger: zerolog.Nop()})
	form.SetName("   ")

	if form.CanSubmit() {
		t.Fatalf("CanSubmit() = true with an empty name")
	}
	_, err := form.Submit(context.Background())
	if !errors.Is(err, lifecycle.ErrPrecondition) {
		t.Fatalf("Submit() error = %v, want precondition", err)
	}
	if sub.calls != 0 {
		t.Fatalf("submitter calls = %d, want 0", sub.calls)
	}
}

func TestSubmitWithoutRecordingIsRejected(t *testing.T) {
	sub := &fakeSubmitter{}
	form := NewForm(Options{Submitter: sub, Recordings: &fakeRecordings{}, Logger: zerolog.Nop()})
	form.SetName("My Voice")

	if form.CanSubmit() {
		t.Fatalf("CanSubmit() = true without a recording")
	}
	if _, err := form.Submit(context.Background()); !errors.Is(err, lifecycle.ErrPrecondition) {
		t.Fatalf("Submit() error = %v, want precondition", err)
	}
	if sub.calls != 0 {
		t.Fatalf("submitter called without a recording")
	}
}

func TestSubmitSuccessResetsForm(t *testing.T) {
	sub := &fakeSubmitter{}
	recs := &fakeRecordings{uri: "/tmp/sample.wav"}
	var created []Result
	form := NewForm(Options{
		Submitter:  sub,
		Recordings: recs,
		OnCreated:  func(_ context.Context, res Result) { created = append(created, res) },
		Logger:     zerolog.Nop(),
	})
	form.SetName("  My Voice ")
	form.SetDescription("warm and calm")

	if !form.CanSubmit() {
		t.Fatalf("CanSubmit() = false with name and recording")
	}
	res, err := form.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.VoiceID != "voice-123" {
		t.Fatalf("VoiceID = %q", res.VoiceID)
	}
	if sub.got.Name != "My Voice" || sub.got.Description != "warm and calm" || sub.got.SampleURI != "/tmp/sample.wav" {
		t.Fatalf("submission = %+v", sub.got)
	}
	if len(created) != 1 {
		t.Fatalf("OnCreated calls = %d, want 1", len(created))
	}
	st := form.State()
	if st.Name != "" || st.Description != "" || st.HasSample || !recs.discarded {
		t.Fatalf("state after success = %+v, discarded=%v", st, recs.discarded)
	}
	if st.LastVoiceID != "voice-123" {
		t.Fatalf("LastVoiceID = %q", st.LastVoiceID)
	}
}

func TestSubmitFailureKeepsForm(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("Invalid audio file")}
	recs := &fakeRecordings{uri: "/tmp/sample.wav"}
	form := NewForm(Options{Submitter: sub, Recordings: recs, Logger: zerolog.Nop()})
	form.SetName("My Voice")

	_, err := form.Submit(context.Background())
	if !errors.Is(err, lifecycle.ErrCapability) {
		t.Fatalf("Submit() error = %v, want capability", err)
	}
	st := form.State()
	if st.Name != "My Voice" || !st.HasSample || recs.discarded {
		t.Fatalf("form changed after failure: %+v", st)
	}
	if st.LastError != "Invalid audio file" {
		t.Fatalf("LastError = %q", st.LastError)
	}
	if st.Submitting {
		t.Fatalf("Submitting = true after failure")
	}
}

func TestSubmitRejectedWhileInFlight(t *testing.T) {
	sub := &fakeSubmitter{block: make(chan struct{})}
	form := NewForm(Options{Submitter: sub, Recordings: &fakeRecordings{uri: "/tmp/sample.wav"}, Logger: zerolog.Nop()})
	form.SetName("My Voice")

	done := make(chan error, 1)
	go func() {
		_, err := form.Submit(context.Background())
		done <- err
	}()
	for !form.State().Submitting {
		time.Sleep(time.Millisecond)
	}
	if form.CanSubmit() {
		t.Fatalf("CanSubmit() = true while in flight")
	}
	if _, err := form.Submit(context.Background()); !errors.Is(err, lifecycle.ErrPrecondition) {
		t.Fatalf("second Submit() error = %v, want precondition", err)
	}
	close(sub.block)
	if err := <-done; err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
}

func TestSubmitKeepsEditsMadeDuringUpload(t *testing.T) {
	sub := &fakeSubmitter{block: make(chan struct{})}
	recs := &fakeRecordings{uri: "/tmp/old.wav"}
	form := NewForm(Options{Submitter: sub, Recordings: recs, Logger: zerolog.Nop()})
	form.SetName("First")
	form.SetDescription("calm")

	done := make(chan error, 1)
	go func() {
		_, err := form.Submit(context.Background())
		done <- err
	}()
	for !form.State().Submitting {
		time.Sleep(time.Millisecond)
	}
	recs.replace("/tmp/new.wav")
	form.SetName("Second")
	close(sub.block)
	if err := <-done; err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if sub.got.SampleURI != "/tmp/old.wav" {
		t.Fatalf("submitted sample = %q, want /tmp/old.wav", sub.got.SampleURI)
	}
	if uri, ok := recs.CompletedRecording(); !ok || uri != "/tmp/new.wav" {
		t.Fatalf("recording after submit = %q, want /tmp/new.wav kept", uri)
	}
	st := form.State()
	if st.Name != "Second" {
		t.Fatalf("Name = %q, want the edit made during upload", st.Name)
	}
	if st.Description != "" {
		t.Fatalf("Description = %q, want reset since it was unchanged", st.Description)
	}
}
