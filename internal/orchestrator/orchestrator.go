package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ai-servis/core/internal/intent"
	"github.com/ai-servis/core/internal/pipeline"
	"github.com/ai-servis/core/internal/rpc"
)

// Confidence thresholds for routing decisions.
const (
	LowConfidenceThreshold = 0.3
	FollowUpConfidence     = 0.8
)

// NoFollowUpContextMessage is returned when a follow-up arrives on a
// session with no prior intent.
const NoFollowUpContextMessage = "I don't have context for a follow-up. Please be more specific."

// followUpKeywords mark short commands that continue the previous one.
var followUpKeywords = map[string]bool{
	"yes": true, "no": true, "continue": true, "stop": true,
	"again": true, "repeat": true, "more": true, "next": true,
	"previous": true,
}

// ProcessRequest is one command submitted to the orchestrator.
type ProcessRequest struct {
	Text          string
	SessionID     string
	UserID        string
	InterfaceType string
	Token         string
	Context       map[string]any
}

// Orchestrator ties together session context, authentication, intent
// classification, and the command pipeline.
type Orchestrator struct {
	classifier *intent.Classifier
	router     *Router
	pipe       *pipeline.Pipeline
	sessions   *SessionManager
	verifier   Verifier
	logger     zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithVerifier enables token authentication and per-intent permission
// checks.
func WithVerifier(v Verifier) Option {
	return func(o *Orchestrator) { o.verifier = v }
}

// New wires an orchestrator around the classifier, router, and session
// manager. The command pipeline is created internally with the router
// as its executor.
func New(classifier *intent.Classifier, router *Router, sessions *SessionManager, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		classifier: classifier,
		router:     router,
		sessions:   sessions,
		logger:     logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.pipe = pipeline.New(classifier, router, logger)
	return o
}

// Pipeline exposes the command pipeline for status and cancellation
// tools.
func (o *Orchestrator) Pipeline() *pipeline.Pipeline { return o.pipe }

// Sessions exposes the session manager.
func (o *Orchestrator) Sessions() *SessionManager { return o.sessions }

// Router exposes the service router.
func (o *Orchestrator) Router() *Router { return o.router }

// Run starts the pipeline workers and session cleanup until ctx is
// canceled.
func (o *Orchestrator) Run(ctx context.Context) {
	go o.sessions.RunCleanup(ctx)
	o.pipe.Run(ctx)
}

func isFollowUp(text string) bool {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(words) == 0 || len(words) > 3 {
		return false
	}
	return followUpKeywords[words[0]]
}

// session resolves or creates the session for a request.
func (o *Orchestrator) session(req ProcessRequest) *Session {
	if req.SessionID != "" {
		if s, err := o.sessions.Get(req.SessionID); err == nil {
			return s
		}
		o.logger.Debug().Str("session_id", req.SessionID).Msg("session expired, creating a new one")
	}
	return o.sessions.Create(req.UserID, req.InterfaceType)
}

// ProcessCommand classifies and routes one command, resolving
// follow-ups against session context and enforcing authentication when
// a verifier is configured.
func (o *Orchestrator) ProcessCommand(ctx context.Context, req ProcessRequest) map[string]any {
	if req.InterfaceType == "" {
		req.InterfaceType = "voice"
	}
	s := o.session(req)

	if isFollowUp(req.Text) {
		return o.handleFollowUp(ctx, req, s)
	}

	cls := o.classifier.Classify(req.Text)

	if cls.Confidence < LowConfidenceThreshold {
		return map[string]any{
			"success":    false,
			"response":   lowConfidenceMessage(cls),
			"session_id": s.ID,
			"intent":     string(cls.Intent),
			"confidence": cls.Confidence,
			"error_details": map[string]any{
				"type": rpc.CodeLowConfidence,
			},
		}
	}

	if err := o.authorize(ctx, req.Token, string(cls.Intent)); err != nil {
		return map[string]any{
			"success":    false,
			"response":   rpc.MessageOf(err),
			"session_id": s.ID,
			"error_details": map[string]any{
				"type": rpc.CodeOf(err),
			},
		}
	}

	cmd := pipeline.NewCommand(req.Text, req.InterfaceType)
	cmd.SessionID = s.ID
	cmd.UserID = req.UserID
	cmd.Context = req.Context

	res := o.pipe.Process(ctx, cmd)
	o.sessions.RecordOutcome(s.ID, req.Text, res.Response, string(cls.Intent), cls.Parameters, res.ServiceUsed)

	return resultMap(res, s.ID, string(cls.Intent), cls.Confidence)
}

// handleFollowUp re-dispatches the session's last intent with the new
// parameters merged over the remembered ones.
func (o *Orchestrator) handleFollowUp(ctx context.Context, req ProcessRequest, s *Session) map[string]any {
	if s.LastIntent == "" {
		return map[string]any{
			"success":    false,
			"response":   NoFollowUpContextMessage,
			"session_id": s.ID,
			"error_details": map[string]any{
				"type": rpc.CodeProcessingError,
			},
		}
	}

	last := intent.Type(s.LastIntent)
	schema, ok := o.classifier.Schema(last)
	if !ok {
		return map[string]any{
			"success":    false,
			"response":   fmt.Sprintf("I can no longer handle %s commands.", s.LastIntent),
			"session_id": s.ID,
			"error_details": map[string]any{
				"type": rpc.CodeProcessingError,
			},
		}
	}

	if err := o.authorize(ctx, req.Token, s.LastIntent); err != nil {
		return map[string]any{
			"success":    false,
			"response":   rpc.MessageOf(err),
			"session_id": s.ID,
			"error_details": map[string]any{
				"type": rpc.CodeOf(err),
			},
		}
	}

	merged := make(map[string]any, len(s.LastParameters)+2)
	for k, v := range s.LastParameters {
		merged[k] = v
	}
	for k, v := range intent.ExtractParameters(strings.ToLower(req.Text), last) {
		merged[k] = v
	}

	cmd := pipeline.NewCommand(req.Text, req.InterfaceType)
	cmd.SessionID = s.ID
	cmd.UserID = req.UserID
	cmd.Context = req.Context

	validated, _ := intent.ValidateParameters(schema, merged)
	parsed := &pipeline.Parsed{
		Command:             *cmd,
		Intent:              last,
		Confidence:          FollowUpConfidence,
		Parameters:          merged,
		ValidatedParameters: validated,
		Service:             schema.Service,
		Tool:                schema.Tool,
	}

	res, err := o.router.Execute(ctx, parsed)
	if err != nil {
		return map[string]any{
			"success":    false,
			"response":   rpc.MessageOf(err),
			"session_id": s.ID,
			"intent":     s.LastIntent,
			"error_details": map[string]any{
				"type": rpc.CodeOf(err),
			},
		}
	}
	res.CommandID = cmd.ID
	o.sessions.RecordOutcome(s.ID, req.Text, res.Response, s.LastIntent, merged, res.ServiceUsed)

	return resultMap(res, s.ID, s.LastIntent, FollowUpConfidence)
}

// authorize enforces token auth when a verifier is configured. The
// permission follows the intent's service segment.
func (o *Orchestrator) authorize(ctx context.Context, token, intentName string) error {
	if o.verifier == nil || token == "" {
		// Anonymous sessions are allowed.
		return nil
	}
	if _, err := o.verifier.VerifyToken(ctx, token); err != nil {
		return err
	}
	permission := IntentPermission(intentName)
	allowed, err := o.verifier.CheckPermission(ctx, token, permission)
	if err != nil {
		return err
	}
	if !allowed {
		return rpc.Errorf(rpc.CodeUnauthorized, "missing permission %s", permission)
	}
	return nil
}

func lowConfidenceMessage(cls intent.Result) string {
	if len(cls.Alternatives) == 0 {
		return fmt.Sprintf("I'm not sure what you meant. (confidence: %.2f)", cls.Confidence)
	}
	names := make([]string, 0, 2)
	for _, alt := range cls.Alternatives {
		names = append(names, string(alt.Intent))
		if len(names) == 2 {
			break
		}
	}
	return fmt.Sprintf("I'm not sure what you meant. Did you mean: %s? (confidence: %.2f)",
		strings.Join(names, ", "), cls.Confidence)
}

func resultMap(res *pipeline.Result, sessionID, intentName string, confidence float64) map[string]any {
	out := map[string]any{
		"success":    res.Success,
		"response":   res.Response,
		"session_id": sessionID,
		"command_id": res.CommandID,
		"intent":     intentName,
		"confidence": confidence,
	}
	if res.Data != nil {
		out["data"] = res.Data
	}
	if res.ServiceUsed != "" {
		out["service_used"] = res.ServiceUsed
	}
	if res.ErrorDetails != nil {
		out["error_details"] = res.ErrorDetails
	}
	return out
}
