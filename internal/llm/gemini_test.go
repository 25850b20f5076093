package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"agri-platform/pkg/metrics"

	"github.com/google/generative-ai-go/genai"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(s)}},
		}},
	}
}

type scripted struct {
	calls int
	steps []func() (*genai.GenerateContentResponse, error)
	parts [][]genai.Part
}

func (s *scripted) generate(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	s.parts = append(s.parts, parts)
	step := s.steps[s.calls]
	s.calls++
	return step()
}

func newTestClient(s *scripted, m *metrics.Collector) *GeminiClient {
	g := newClient(s.generate, Config{MaxRetries: 3, RetryBackoff: time.Millisecond}, nil, m)
	g.sleep = func(context.Context, time.Duration) error { return nil }
	return g
}

func TestGenerateSuccess(t *testing.T) {
	s := &scripted{steps: []func() (*genai.GenerateContentResponse, error){
		func() (*genai.GenerateContentResponse, error) { return textResponse("  Wheat output rose.\n"), nil },
	}}
	m := metrics.NewCollector("test")
	g := newTestClient(s, m)

	out, err := g.Generate(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "Wheat output rose.", out)
	assert.Equal(t, 1, s.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("success")))
}

func TestGenerateRetriesTransientErrors(t *testing.T) {
	s := &scripted{steps: []func() (*genai.GenerateContentResponse, error){
		func() (*genai.GenerateContentResponse, error) {
			return nil, &googleapi.Error{Code: http.StatusServiceUnavailable, Message: "overloaded"}
		},
		func() (*genai.GenerateContentResponse, error) { return &genai.GenerateContentResponse{}, nil },
		func() (*genai.GenerateContentResponse, error) { return textResponse("ok"), nil },
	}}
	m := metrics.NewCollector("test")
	g := newTestClient(s, m)

	out, err := g.Generate(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, s.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LLMRetriesTotal))
}

func TestGenerateDoesNotRetryPermanentErrors(t *testing.T) {
	tests := []struct {
		name  string
		step  func() (*genai.GenerateContentResponse, error)
		check func(t *testing.T, err error)
	}{
		{
			name: "auth",
			step: func() (*genai.GenerateContentResponse, error) {
				return nil, &googleapi.Error{Code: http.StatusForbidden, Message: "bad key"}
			},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
			},
		},
		{
			name: "safety",
			step: func() (*genai.GenerateContentResponse, error) {
				return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}}}, nil
			},
			check: func(t *testing.T, err error) {
				var blocked *BlockedError
				assert.ErrorAs(t, err, &blocked)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scripted{steps: []func() (*genai.GenerateContentResponse, error){tt.step}}
			_, err := newTestClient(s, nil).Generate(context.Background(), "q")
			require.Error(t, err)
			assert.Equal(t, 1, s.calls)
			tt.check(t, err)
		})
	}
}

func TestGenerateGivesUpAfterMaxRetries(t *testing.T) {
	empty := func() (*genai.GenerateContentResponse, error) { return textResponse("   "), nil }
	s := &scripted{steps: []func() (*genai.GenerateContentResponse, error){empty, empty, empty}}

	_, err := newTestClient(s, nil).Generate(context.Background(), "q")
	var emptyErr *EmptyResponseError
	require.ErrorAs(t, err, &emptyErr)
	assert.Equal(t, 3, emptyErr.Attempts)
	assert.Equal(t, 3, s.calls)
}

func TestGenerateStopsWhenContextIsDone(t *testing.T) {
	s := &scripted{steps: []func() (*genai.GenerateContentResponse, error){
		func() (*genai.GenerateContentResponse, error) { return nil, &googleapi.Error{Code: 500} },
	}}
	g := newClient(s.generate, Config{MaxRetries: 5, RetryBackoff: time.Hour}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, "q")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, s.calls)
}

func TestTranscribeSendsAudioBlob(t *testing.T) {
	s := &scripted{steps: []func() (*genai.GenerateContentResponse, error){
		func() (*genai.GenerateContentResponse, error) { return textResponse("rice in kerala"), nil },
	}}
	g := newTestClient(s, nil)

	out, err := g.Transcribe(context.Background(), []byte{1, 2, 3}, "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, "rice in kerala", out)
	require.Len(t, s.parts[0], 2)
	assert.Equal(t, genai.Blob{MIMEType: "audio/webm", Data: []byte{1, 2, 3}}, s.parts[0][0])

	_, err = g.Transcribe(context.Background(), nil, "")
	assert.Error(t, err)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&APIError{StatusCode: 429}))
	assert.True(t, IsTransient(&APIError{StatusCode: 502}))
	assert.False(t, IsTransient(&APIError{StatusCode: 400}))
	assert.False(t, IsTransient(&BlockedError{}))
	assert.True(t, IsTransient(&EmptyResponseError{}))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(errors.New("boom")))
	assert.False(t, IsTransient(nil))
}

func TestWithJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := withJitter(time.Second)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.Less(t, d, 1200*time.Millisecond)
	}
	assert.Equal(t, 500*time.Millisecond, withJitter(0))
}

func TestNewGeminiClientRequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), Config{}, nil, nil)
	assert.ErrorContains(t, err, "API key")
}
