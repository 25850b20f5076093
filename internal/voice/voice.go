// Package voice provides the optional speech features of the dashboard: speech to
// text through the LLM and text to speech through a local command.
package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"agri-platform/internal/llm"

	"github.com/google/uuid"
)

// maxSpokenChars bounds how much answer text is sent to the speech engine.
const maxSpokenChars = 3000

// DefaultTimeout bounds one transcription or synthesis when none is configured.
const DefaultTimeout = 60 * time.Second

// Synthesizer renders text as audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (audio []byte, mimeType string, err error)
}

// CommandSynthesizer runs a text-to-speech program that takes the text as its last
// argument and writes audio to stdout, e.g. "espeak-ng --stdout". The text follows
// a "--" so the program never reads it as an option.
type CommandSynthesizer struct {
	path string
	args []string
	mime string
}

// NewCommandSynthesizer resolves command on PATH. It returns an error when the
// program is not installed.
func NewCommandSynthesizer(command, mimeType string) (*CommandSynthesizer, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("no text-to-speech command configured")
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		return nil, fmt.Errorf("text-to-speech command %q not found: %w", fields[0], err)
	}
	if mimeType == "" {
		mimeType = "audio/wav"
	}
	return &CommandSynthesizer{path: path, args: fields[1:], mime: mimeType}, nil
}

// Name returns the resolved program path.
func (s *CommandSynthesizer) Name() string { return s.path }

// Synthesize runs the command once for text.
func (s *CommandSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, "", fmt.Errorf("nothing to say")
	}
	if r := []rune(text); len(r) > maxSpokenChars {
		text = string(r[:maxSpokenChars])
	}

	args := append(append([]string(nil), s.args...), "--", text)
	cmd := exec.CommandContext(ctx, s.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, "", fmt.Errorf("failed to synthesize speech: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, "", fmt.Errorf("speech command produced no audio")
	}
	return stdout.Bytes(), s.mime, nil
}

// Capabilities describes which voice features are usable in this process.
type Capabilities struct {
	SpeechToText bool   `json:"speech_to_text"`
	TextToSpeech bool   `json:"text_to_speech"`
	Engine       string `json:"engine,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Available reports whether voice questions can be taken at all.
func (c Capabilities) Available() bool { return c.SpeechToText }

// Assistant bundles the voice features detected at startup.
type Assistant struct {
	transcriber llm.Transcriber
	synth       Synthesizer
	cache       *Cache
	timeout     time.Duration
	caps        Capabilities
}

// NewAssistant wires the detected features. Either dependency may be nil, in which
// case the matching capability is reported as unavailable. Each transcription and
// synthesis call is cut off after timeout, or DefaultTimeout when it is not positive.
func NewAssistant(transcriber llm.Transcriber, synth Synthesizer, cache *Cache, timeout time.Duration) *Assistant {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	a := &Assistant{transcriber: transcriber, synth: synth, cache: cache, timeout: timeout}
	a.caps.SpeechToText = transcriber != nil
	a.caps.TextToSpeech = synth != nil && cache != nil
	if cs, ok := synth.(*CommandSynthesizer); ok {
		a.caps.Engine = cs.Name()
	}
	switch {
	case !a.caps.SpeechToText:
		a.caps.Reason = "speech recognition needs a configured LLM"
	case !a.caps.TextToSpeech:
		a.caps.Reason = "no text-to-speech command installed; answers are text only"
	}
	return a
}

// Capabilities returns what was detected.
func (a *Assistant) Capabilities() Capabilities { return a.caps }

// Transcribe converts recorded speech into a question.
func (a *Assistant) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if a.transcriber == nil {
		return "", fmt.Errorf("speech recognition is not available")
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	text, err := a.transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("speech recognition timed out after %v: %w", a.timeout, err)
	}
	return text, err
}

// Speak synthesizes text and stores the clip, returning its id.
func (a *Assistant) Speak(ctx context.Context, text string) (string, error) {
	if !a.caps.TextToSpeech {
		return "", fmt.Errorf("text to speech is not available")
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	audio, mime, err := a.synth.Synthesize(ctx, text)
	if err != nil {
		return "", err
	}
	return a.cache.Put(Clip{Data: audio, MIME: mime}), nil
}

// Clip returns a stored clip.
func (a *Assistant) Clip(id string) (Clip, bool) {
	if a.cache == nil {
		return Clip{}, false
	}
	return a.cache.Get(id)
}

// Clip is one synthesized answer.
type Clip struct {
	Data    []byte
	MIME    string
	Created time.Time
}

// Cache keeps the most recent clips in memory, evicting the oldest beyond max.
type Cache struct {
	mu    sync.Mutex
	max   int
	order []string
	items map[string]Clip
}

// NewCache creates a cache holding up to max clips.
func NewCache(max int) *Cache {
	if max < 1 {
		max = 1
	}
	return &Cache{max: max, items: make(map[string]Clip)}
}

// Put stores c under a new id.
func (c *Cache) Put(clip Clip) string {
	id := uuid.NewString()
	if clip.Created.IsZero() {
		clip.Created = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[id] = clip
	c.order = append(c.order, id)
	for len(c.order) > c.max {
		delete(c.items, c.order[0])
		c.order = c.order[1:]
	}
	return id
}

// Get returns the clip stored under id.
func (c *Cache) Get(id string) (Clip, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clip, ok := c.items[id]
	return clip, ok
}

// Len returns the number of stored clips.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
