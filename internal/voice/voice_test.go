package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranscriber struct{ text string }

func (f fakeTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return f.text, nil
}

type fakeSynth struct{ err error }

func (f fakeSynth) Synthesize(_ context.Context, text string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("RIFF" + text), "audio/wav", nil
}

func TestCacheEvictsOldest(t *testing.T) {
	c := NewCache(2)
	first := c.Put(Clip{Data: []byte("1")})
	second := c.Put(Clip{Data: []byte("2")})
	third := c.Put(Clip{Data: []byte("3")})

	_, ok := c.Get(first)
	assert.False(t, ok)
	got, ok := c.Get(second)
	require.True(t, ok)
	assert.Equal(t, []byte("2"), got.Data)
	assert.False(t, got.Created.IsZero())
	_, ok = c.Get(third)
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCacheConcurrentUse(t *testing.T) {
	c := NewCache(10)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := c.Put(Clip{Data: []byte(fmt.Sprint(i))})
			c.Get(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, c.Len())
}

func TestAssistantCapabilities(t *testing.T) {
	tests := []struct {
		name   string
		a      *Assistant
		stt    bool
		tts    bool
		reason bool
	}{
		{name: "nothing", a: NewAssistant(nil, nil, nil, 0), reason: true},
		{name: "speech to text only", a: NewAssistant(fakeTranscriber{}, nil, NewCache(1), 0), stt: true, reason: true},
		{name: "full", a: NewAssistant(fakeTranscriber{}, fakeSynth{}, NewCache(1), 0), stt: true, tts: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := tt.a.Capabilities()
			assert.Equal(t, tt.stt, caps.SpeechToText)
			assert.Equal(t, tt.stt, caps.Available())
			assert.Equal(t, tt.tts, caps.TextToSpeech)
			assert.Equal(t, tt.reason, caps.Reason != "")
		})
	}
}

func TestAssistantSpeakAndTranscribe(t *testing.T) {
	a := NewAssistant(fakeTranscriber{text: "wheat in punjab"}, fakeSynth{}, NewCache(4), time.Second)

	q, err := a.Transcribe(context.Background(), []byte{1}, "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, "wheat in punjab", q)

	id, err := a.Speak(context.Background(), "hello")
	require.NoError(t, err)
	clip, ok := a.Clip(id)
	require.True(t, ok)
	assert.Equal(t, "audio/wav", clip.MIME)
	assert.Equal(t, []byte("RIFFhello"), clip.Data)

	failing := NewAssistant(nil, fakeSynth{err: errors.New("engine crashed")}, NewCache(1), time.Second)
	_, err = failing.Speak(context.Background(), "x")
	assert.ErrorContains(t, err, "engine crashed")
	_, err = failing.Transcribe(context.Background(), nil, "")
	assert.Error(t, err)
}

func TestNewCommandSynthesizerMissingProgram(t *testing.T) {
	_, err := NewCommandSynthesizer("definitely-not-a-real-tts-binary --stdout", "")
	assert.Error(t, err)

	_, err = NewCommandSynthesizer("   ", "")
	assert.Error(t, err)
}

// blockingTranscriber waits for its context, like a stalled upstream call.
type blockingTranscriber struct{}

func (blockingTranscriber) Transcribe(ctx context.Context, _ []byte, _ string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		return "", errors.New("no deadline on transcription context")
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func TestAssistantTranscribeTimesOut(t *testing.T) {
	a := NewAssistant(blockingTranscriber{}, nil, nil, 20*time.Millisecond)

	start := time.Now()
	_, err := a.Transcribe(context.Background(), []byte{1}, "audio/webm")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCommandSynthesizerPassesTextAfterSeparator(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not installed")
	}
	s, err := NewCommandSynthesizer("echo", "text/plain")
	require.NoError(t, err)

	tests := []struct {
		name string
		text string
	}{
		{name: "plain text", text: "rain in goa"},
		{name: "leading dash", text: "-n --help"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, mime, err := s.Synthesize(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, "text/plain", mime)
			assert.Equal(t, "-- "+tt.text+"\n", string(out))
		})
	}
}
