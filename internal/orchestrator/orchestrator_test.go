package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ai-servis/core/internal/intent"
	"github.com/ai-servis/core/internal/pipeline"
	"github.com/ai-servis/core/internal/rpc"
)

type fakeCaller struct {
	mu     sync.Mutex
	method string
	params map[string]any
	result map[string]any
	err    error
}

func (f *fakeCaller) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	f.mu.Lock()
	f.method = method
	f.params, _ = params.(map[string]any)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return json.Marshal(f.result)
}

func fakeProvider(c *fakeCaller) CallerProvider {
	return func(service string) (rpc.Caller, error) { return c, nil }
}

func trainedClassifier(t *testing.T) *intent.Classifier {
	t.Helper()
	c := intent.NewClassifier(zerolog.Nop(), "")
	err := c.Train([]intent.TrainingExample{
		{Text: "play some music", Intent: intent.AudioControl},
		{Text: "turn up the volume", Intent: intent.AudioControl},
		{Text: "pause the song", Intent: intent.AudioControl},
		{Text: "turn on the lights", Intent: intent.SmartHome},
		{Text: "set the thermostat to 20", Intent: intent.SmartHome},
	})
	require.NoError(t, err)
	return c
}

func newTestOrchestrator(t *testing.T, caller *fakeCaller, opts ...Option) *Orchestrator {
	t.Helper()
	router := NewRouter(fakeProvider(caller), zerolog.Nop())
	sessions := NewSessionManager("", zerolog.Nop())
	return New(trainedClassifier(t), router, sessions, zerolog.Nop(), opts...)
}

func TestProcessCommandRoutesToService(t *testing.T) {
	caller := &fakeCaller{result: map[string]any{"message": "playing music"}}
	o := newTestOrchestrator(t, caller)

	out := o.ProcessCommand(context.Background(), ProcessRequest{
		Text:   "play some music",
		UserID: "user-1",
	})

	require.Equal(t, true, out["success"])
	require.Equal(t, "ai-audio-assistant", out["service_used"])
	require.Equal(t, "playing music", out["response"])
	require.Equal(t, "audio_control", out["intent"])

	require.Equal(t, "control_audio", caller.method)
	require.Equal(t, out["session_id"], caller.params["session_id"])
	require.Equal(t, "user-1", caller.params["user_id"])

	// The session remembers the routed intent for follow-ups.
	s, err := o.Sessions().Get(out["session_id"].(string))
	require.NoError(t, err)
	require.Equal(t, "audio_control", s.LastIntent)
	require.Equal(t, "ai-audio-assistant", s.LastUsedService)
}

func TestRouterDispatchesValidatedParameters(t *testing.T) {
	caller := &fakeCaller{result: map[string]any{"message": "ok"}}
	r := NewRouter(fakeProvider(caller), zerolog.Nop())

	parsed := &pipeline.Parsed{
		Command:             *pipeline.NewCommand("set volume to 75", "voice"),
		Intent:              intent.AudioControl,
		Parameters:          map[string]any{"action": "volume", "level": "75"},
		ValidatedParameters: map[string]any{"action": "volume", "level": 75},
		Service:             "ai-audio-assistant",
		Tool:                "control_audio",
	}
	_, err := r.Execute(context.Background(), parsed)
	require.NoError(t, err)
	require.Equal(t, 75, caller.params["level"])

	// Callers that skipped parsing fall back to the raw extraction.
	parsed.ValidatedParameters = nil
	_, err = r.Execute(context.Background(), parsed)
	require.NoError(t, err)
	require.Equal(t, "75", caller.params["level"])
}

func TestProcessCommandLowConfidence(t *testing.T) {
	// Untrained classifier keeps ensemble scores below the threshold.
	router := NewRouter(fakeProvider(&fakeCaller{}), zerolog.Nop())
	o := New(intent.NewClassifier(zerolog.Nop(), ""), router,
		NewSessionManager("", zerolog.Nop()), zerolog.Nop())

	out := o.ProcessCommand(context.Background(), ProcessRequest{Text: "play some music"})

	require.Equal(t, false, out["success"])
	require.Contains(t, out["response"], "I'm not sure what you meant")
	details := out["error_details"].(map[string]any)
	require.Equal(t, rpc.CodeLowConfidence, details["type"])
}

func TestFollowUpWithoutContext(t *testing.T) {
	o := newTestOrchestrator(t, &fakeCaller{result: map[string]any{}})

	s := o.Sessions().Create("user-1", "voice")
	out := o.ProcessCommand(context.Background(), ProcessRequest{
		Text:      "again",
		SessionID: s.ID,
	})

	require.Equal(t, false, out["success"])
	require.Equal(t, NoFollowUpContextMessage, out["response"])
	require.Equal(t, s.ID, out["session_id"])
}

func TestFollowUpMergesLastParameters(t *testing.T) {
	caller := &fakeCaller{result: map[string]any{"message": "done"}}
	o := newTestOrchestrator(t, caller)

	s := o.Sessions().Create("user-1", "voice")
	o.Sessions().RecordOutcome(s.ID, "set volume to 50", "ok", "audio_control",
		map[string]any{"action": "volume", "level": 50}, "ai-audio-assistant")

	out := o.ProcessCommand(context.Background(), ProcessRequest{
		Text:      "again",
		SessionID: s.ID,
		UserID:    "user-1",
	})

	require.Equal(t, true, out["success"])
	require.Equal(t, "audio_control", out["intent"])
	require.Equal(t, FollowUpConfidence, out["confidence"])

	require.Equal(t, "control_audio", caller.method)
	require.Equal(t, "volume", caller.params["action"])
	require.Equal(t, 50, caller.params["level"])
	require.Equal(t, s.ID, caller.params["session_id"])
}

func TestFollowUpFailurePropagatesCode(t *testing.T) {
	caller := &fakeCaller{err: rpc.Errorf(rpc.CodeServiceUnavailable, "audio service down")}
	o := newTestOrchestrator(t, caller)

	s := o.Sessions().Create("user-1", "voice")
	o.Sessions().RecordOutcome(s.ID, "play music", "ok", "audio_control",
		map[string]any{"action": "play"}, "ai-audio-assistant")

	out := o.ProcessCommand(context.Background(), ProcessRequest{
		Text:      "again",
		SessionID: s.ID,
	})

	require.Equal(t, false, out["success"])
	details := out["error_details"].(map[string]any)
	require.Equal(t, rpc.CodeServiceUnavailable, details["type"])
}

func TestIntentPermission(t *testing.T) {
	require.Equal(t, "service:audio", IntentPermission("audio_control"))
	require.Equal(t, "service:hardware", IntentPermission("hardware_control"))
	require.Equal(t, "service:smart", IntentPermission("smart_home"))
}

func TestJWTVerifier(t *testing.T) {
	v := &JWTVerifier{Secret: []byte("test-secret")}

	token, err := v.IssueJWT("user-1", "alice", []string{"service:audio"}, time.Hour)
	require.NoError(t, err)

	info, err := v.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "user-1", info.UserID)
	require.Equal(t, "alice", info.Username)

	allowed, err := v.CheckPermission(context.Background(), token, "service:audio")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = v.CheckPermission(context.Background(), token, "service:hardware")
	require.NoError(t, err)
	require.False(t, allowed)

	_, err = v.VerifyToken(context.Background(), "not-a-token")
	require.Equal(t, rpc.CodeUnauthorized, rpc.CodeOf(err))
}

func TestProcessCommandEnforcesPermissions(t *testing.T) {
	v := &JWTVerifier{Secret: []byte("test-secret")}
	caller := &fakeCaller{result: map[string]any{"message": "ok"}}
	o := newTestOrchestrator(t, caller, WithVerifier(v))

	// Token without the audio permission is rejected.
	token, err := v.IssueJWT("user-1", "alice", []string{"service:smart"}, time.Hour)
	require.NoError(t, err)

	out := o.ProcessCommand(context.Background(), ProcessRequest{
		Text:  "play some music",
		Token: token,
	})
	require.Equal(t, false, out["success"])
	details := out["error_details"].(map[string]any)
	require.Equal(t, rpc.CodeUnauthorized, details["type"])

	// The right permission goes through.
	token, err = v.IssueJWT("user-1", "alice", []string{"service:audio"}, time.Hour)
	require.NoError(t, err)

	out = o.ProcessCommand(context.Background(), ProcessRequest{
		Text:  "play some music",
		Token: token,
	})
	require.Equal(t, true, out["success"])

	// Anonymous requests stay allowed.
	out = o.ProcessCommand(context.Background(), ProcessRequest{Text: "play some music"})
	require.Equal(t, true, out["success"])
}

func TestRouterRecordsAnalytics(t *testing.T) {
	caller := &fakeCaller{result: map[string]any{"message": "ok"}}
	o := newTestOrchestrator(t, caller)

	o.ProcessCommand(context.Background(), ProcessRequest{Text: "play some music"})

	stats := o.Router().Analytics("ai-audio-assistant")
	require.Len(t, stats, 1)
	s := stats["ai-audio-assistant"]
	require.Equal(t, int64(1), s.TotalCalls)
	require.Equal(t, int64(0), s.ErrorCount)
	require.Equal(t, "healthy", s.HealthStatus)
}

func TestIsFollowUp(t *testing.T) {
	require.True(t, isFollowUp("again"))
	require.True(t, isFollowUp("Yes"))
	require.True(t, isFollowUp("repeat that please"))
	require.False(t, isFollowUp("play some music"))
	require.False(t, isFollowUp(""))
	require.False(t, isFollowUp("yes i would like to order a large pizza"))
}
