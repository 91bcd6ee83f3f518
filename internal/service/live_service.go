package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fanstage/live-service/internal/access"
	"github.com/fanstage/live-service/internal/domain"
	"github.com/fanstage/live-service/internal/hub"
	"github.com/fanstage/live-service/internal/kafka"
	"github.com/fanstage/live-service/internal/metrics"
	"github.com/fanstage/live-service/internal/repository"
	"github.com/fanstage/live-service/internal/router"
	"github.com/fanstage/live-service/internal/session"
	"github.com/fanstage/live-service/internal/subscription"
	"github.com/fanstage/live-service/pkg/log"
)

const maxChatContentLen = 500

type liveService struct {
	sessions    session.LifecycleManager
	evaluator   *access.Evaluator
	index       *subscription.Index
	broadcaster router.Broadcaster
	metrics     *metrics.Aggregator
	producer    kafka.EventProducer
	chatRepo    repository.ChatMessageRepository

	// watched tracks which sessions each connection holds a viewer slot
	// in. Grants are per-connection: a second connection from the same
	// user takes its own slot.
	mu      sync.Mutex
	watched map[string]map[string]struct{} // connection id -> session ids
}

// NewLiveService wires the realtime orchestration layer.
func NewLiveService(
	sessions session.LifecycleManager,
	evaluator *access.Evaluator,
	index *subscription.Index,
	broadcaster router.Broadcaster,
	agg *metrics.Aggregator,
	producer kafka.EventProducer,
	chatRepo repository.ChatMessageRepository,
) LiveService {
	return &liveService{
		sessions:    sessions,
		evaluator:   evaluator,
		index:       index,
		broadcaster: broadcaster,
		metrics:     agg,
		producer:    producer,
		chatRepo:    chatRepo,
		watched:     make(map[string]map[string]struct{}),
	}
}

// HandleSubscribe joins a client to a topic. Stream topics run the access
// evaluation first; a granted live subscription also takes a viewer slot.
// Subscribing to a session that has not gone live yet is allowed so clients
// receive the status_changed event when it does, but the entitlement gates
// still apply, and no slot is taken and no locator is issued until the
// session is Live.
func (s *liveService) HandleSubscribe(ctx context.Context, client *hub.Client, msg *domain.SubscribeMessage) {
	topic := msg.Topic
	if !topic.Kind.Valid() {
		s.sendError(client, domain.ErrCodeBadRequest, "unknown topic kind", "")
		return
	}

	switch topic.Kind {
	case domain.TopicUser:
		if topic.ID != client.UserID {
			s.sendError(client, domain.ErrCodeAccessDenied, "cannot subscribe to another user's topic", "")
			return
		}
	case domain.TopicStream:
		if !s.subscribeStream(ctx, client, topic) {
			return
		}
	}

	s.index.Subscribe(topic, client.ID)
	s.ack(client, domain.SubscribedMessage{Type: domain.MsgTypeSubscribed, Topic: topic})
}

// subscribeStream runs the gate chain for a stream topic. Returns false if
// the subscription must not proceed; the client already got an error.
func (s *liveService) subscribeStream(ctx context.Context, client *hub.Client, topic domain.Topic) bool {
	sess, err := s.sessions.Get(ctx, topic.ID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			s.sendError(client, domain.ErrCodeBadRequest, "unknown session", "")
		} else {
			s.sendError(client, domain.ErrCodeInternalError, "failed to load session", "")
		}
		return false
	}

	if sess.IsTerminal() {
		s.sendError(client, domain.ErrCodeAccessDenied, "session has ended", string(access.DenyNotLive))
		return false
	}

	if sess.Status != domain.StatusLive {
		// Pre-live lobby: status updates only, but the entitlement gates
		// already apply. A fan who cannot watch a gated session does not
		// get to sit in its lobby either.
		decision, err := s.evaluator.CheckGates(ctx, sess, client.UserID)
		if err != nil {
			l := log.Ctx(ctx)
			l.Error().Err(err).Str(log.FieldSessionID, sess.ID).Msg("access evaluation failed")
			s.sendError(client, domain.ErrCodeInternalError, "access evaluation failed", "")
			return false
		}
		if !decision.Granted {
			s.sendError(client, domain.ErrCodeAccessDenied, "access denied", string(decision.Reason))
			return false
		}
		return true
	}

	if s.isWatching(client.ID, sess.ID) {
		return true
	}

	decision, err := s.evaluator.Evaluate(ctx, sess, client.UserID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldSessionID, sess.ID).Msg("access evaluation failed")
		s.sendError(client, domain.ErrCodeInternalError, "access evaluation failed", "")
		return false
	}
	if !decision.Granted {
		s.sendError(client, domain.ErrCodeAccessDenied, "access denied", string(decision.Reason))
		return false
	}

	// Claim the slot atomically with the capacity check: the evaluator's
	// count is advisory and two grants can race past it on the last slot.
	max := sess.MaxViewers
	if client.UserID == sess.OwnerID {
		max = 0 // the owner is never locked out of their own broadcast
	}
	if !s.metrics.TryJoin(sess.ID, max) {
		s.sendError(client, domain.ErrCodeAccessDenied, "access denied", string(access.DenyCapacity))
		return false
	}
	s.addWatch(client.ID, sess.ID)
	s.announceViewer(domain.EventViewerJoined, client, sess.ID)
	return true
}

// HandleUnsubscribe removes a client from a topic. Leaving a stream topic
// releases the viewer slot and announces the departure.
func (s *liveService) HandleUnsubscribe(_ context.Context, client *hub.Client, msg *domain.UnsubscribeMessage) {
	topic := msg.Topic
	s.index.Unsubscribe(topic, client.ID)

	if topic.Kind == domain.TopicStream && s.removeWatch(client.ID, topic.ID) {
		s.releaseViewer(client, topic.ID)
	}

	s.ack(client, domain.UnsubscribedMessage{Type: domain.MsgTypeUnsubscribed, Topic: topic})
}

// HandleEmit fans a client event out to the session's subscribers, counts
// it, and forwards it to the persistence pipeline. Only chat and reaction
// events may be emitted by clients, only while the session is live, and
// only by connections holding a granted viewer slot. A bare subscription
// is not enough: lobby subscribers re-subscribe once the session is live,
// which runs the full evaluation and takes their slot.
func (s *liveService) HandleEmit(ctx context.Context, client *hub.Client, msg *domain.EmitMessage) {
	if msg.Topic.Kind != domain.TopicStream {
		s.sendError(client, domain.ErrCodeBadRequest, "events can only be emitted on stream topics", "")
		return
	}
	if !s.isWatching(client.ID, msg.Topic.ID) {
		s.sendError(client, domain.ErrCodeNotSubscribed, "join the live stream before emitting", "")
		return
	}

	payload, err := s.validateEmit(msg)
	if err != nil {
		s.sendError(client, domain.ErrCodeBadRequest, err.Error(), "")
		return
	}

	sess, err := s.sessions.Get(ctx, msg.Topic.ID)
	if err != nil {
		s.sendError(client, domain.ErrCodeInternalError, "failed to load session", "")
		return
	}
	if sess.Status != domain.StatusLive {
		s.sendError(client, domain.ErrCodeBadRequest, "session is not live", "")
		return
	}

	event, err := domain.NewSessionEvent(msg.EventType, sess.ID, nil)
	if err != nil {
		s.sendError(client, domain.ErrCodeInternalError, "failed to build event", "")
		return
	}
	event.Payload = payload
	event.WithActor(client.UserID, client.Username)

	s.metrics.OnEvent(event)
	s.broadcaster.Publish(msg.Topic, event, router.PublishOptions{ExcludeConnectionID: client.ID})
	s.forward(ctx, event)
}

// validateEmit checks the event type and payload and returns the payload
// to attach to the outgoing event.
func (s *liveService) validateEmit(msg *domain.EmitMessage) (json.RawMessage, error) {
	switch msg.EventType {
	case domain.EventChat:
		var p domain.ChatPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, errors.New("malformed chat payload")
		}
		p.Content = strings.TrimSpace(p.Content)
		if p.Content == "" {
			return nil, errors.New("chat content is empty")
		}
		if utf8.RuneCountInString(p.Content) > maxChatContentLen {
			return nil, errors.New("chat content too long")
		}
		return json.Marshal(p)

	case domain.EventReaction:
		var p domain.ReactionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, errors.New("malformed reaction payload")
		}
		if p.Kind == "" {
			return nil, errors.New("reaction kind is empty")
		}
		return json.Marshal(p)
	}
	return nil, errors.New("clients may only emit chat and reaction events")
}

// forward pushes an event into kafka and, for chat, appends it to history.
// Both writes are best-effort: realtime delivery already happened.
func (s *liveService) forward(ctx context.Context, event *domain.SessionEvent) {
	if err := s.producer.ProduceEvent(ctx, event); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldSessionID, event.SessionID).Msg("failed to forward event to kafka")
	}

	if event.Type != domain.EventChat {
		return
	}
	var p domain.ChatPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return
	}
	if err := s.chatRepo.Append(ctx, event, p.Content); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldSessionID, event.SessionID).Msg("failed to append chat history")
	}
}

// HandleDisconnect releases every viewer slot the connection held and
// announces the departures. The subscription index is cleaned separately
// by its own close hook.
func (s *liveService) HandleDisconnect(client *hub.Client) {
	s.mu.Lock()
	sessions := s.watched[client.ID]
	delete(s.watched, client.ID)
	s.mu.Unlock()

	for sessionID := range sessions {
		s.releaseViewer(client, sessionID)
	}
}

// Watch evaluates playback access for the HTTP watch endpoint. It issues a
// locator but takes no viewer slot; slots are tied to live subscriptions.
func (s *liveService) Watch(ctx context.Context, sessionID, viewerID string) (*access.Decision, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.evaluator.Evaluate(ctx, sess, viewerID)
}

// releaseViewer gives the slot back and announces the departure.
func (s *liveService) releaseViewer(client *hub.Client, sessionID string) {
	s.metrics.Leave(sessionID)
	s.announceViewer(domain.EventViewerLeft, client, sessionID)
}

// announceViewer broadcasts a join or leave with the current viewer count.
// The counter itself was already moved by TryJoin or Leave.
func (s *liveService) announceViewer(t domain.EventType, client *hub.Client, sessionID string) {
	event, err := domain.NewSessionEvent(t, sessionID, nil)
	if err != nil {
		return
	}
	event.WithActor(client.UserID, client.Username)

	if data, err := json.Marshal(domain.ViewerCountPayload{CurrentViewers: s.metrics.CurrentViewers(sessionID)}); err == nil {
		event.Payload = data
	}
	s.broadcaster.Publish(domain.NewStreamTopic(sessionID), event, router.PublishOptions{})
}

func (s *liveService) isWatching(connID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watched[connID][sessionID]
	return ok
}

func (s *liveService) addWatch(connID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.watched[connID]
	if !ok {
		set = make(map[string]struct{})
		s.watched[connID] = set
	}
	set[sessionID] = struct{}{}
}

func (s *liveService) removeWatch(connID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.watched[connID]
	if !ok {
		return false
	}
	if _, ok := set[sessionID]; !ok {
		return false
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(s.watched, connID)
	}
	return true
}

func (s *liveService) ack(client *hub.Client, msg interface{}) {
	if err := client.SendMessage(msg); err != nil {
		l := log.L()
		l.Debug().Err(err).Str(log.FieldConnectionID, client.ID).Msg("failed to send ack")
	}
}

func (s *liveService) sendError(client *hub.Client, code, message, reason string) {
	msg := domain.NewErrorMessage(code, message)
	msg.Reason = reason
	if err := client.SendMessage(msg); err != nil {
		l := log.L()
		l.Debug().Err(err).Str(log.FieldConnectionID, client.ID).Msg("failed to send error")
	}
}
