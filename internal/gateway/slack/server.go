package slack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	kerrors "github.com/harunnryd/kakari/internal/errors"
)

// how long a processed event_id stays marked; Slack retries within
// minutes, not hours.
const eventSeenTTL = time.Hour

// Deduper detects replayed webhook deliveries. Check and mark must be
// one atomic step.
type Deduper interface {
	CheckAndMark(key string, ttl time.Duration) (bool, error)
}

// Handler processes one inbound user message.
type Handler func(ctx context.Context, msg Inbound)

// Server is the Slack Events API endpoint. Every delivery is verified,
// deduplicated, acked immediately, and processed asynchronously so the
// webhook never trips Slack's retry timeout on slow model calls.
type Server struct {
	signingSecret string
	botUserID     string
	dedupe        Deduper
	handle        Handler
	log           *slog.Logger
}

func NewServer(signingSecret, botUserID string, dedupe Deduper, handle Handler, log *slog.Logger) *Server {
	return &Server{
		signingSecret: signingSecret,
		botUserID:     botUserID,
		dedupe:        dedupe,
		handle:        handle,
		log:           log,
	}
}

func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/slack/events", s.handleEvents)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	verifier, err := slack.NewSecretsVerifier(r.Header, s.signingSecret)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.TeeReader(r.Body, &verifier))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := verifier.Ensure(); err != nil {
		s.log.Warn("slack signature rejected", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(challenge.Challenge))

	case slackevents.CallbackEvent:
		s.handleCallback(body, event)
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleCallback(body []byte, event slackevents.EventsAPIEvent) {
	// The outer envelope carries event_id, the retry detection key.
	var envelope struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.EventID == "" {
		s.log.Warn("callback without event_id, dropping")
		return
	}

	if err := s.claimDelivery(envelope.EventID); err != nil {
		if kerrors.IsCategory(err, kerrors.ErrDuplicateEvent) {
			s.log.Debug("duplicate delivery ignored", "event_id", envelope.EventID)
		} else {
			s.log.Error("event dedupe failed", "event_id", envelope.EventID, "error", err)
		}
		return
	}

	msg, ok := s.inboundMessage(event)
	if !ok {
		return
	}

	// Ack has already gone out by the time this goroutine runs; model
	// calls here can take as long as they need.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.handle(ctx, msg)
	}()
}

// claimDelivery marks the event_id as processed. A replayed delivery
// returns ErrDuplicateEvent, which the caller acks silently.
func (s *Server) claimDelivery(eventID string) error {
	seen, err := s.dedupe.CheckAndMark("slack:"+eventID, eventSeenTTL)
	if err != nil {
		return kerrors.Wrap(err, "event dedupe")
	}
	if seen {
		return kerrors.DuplicateEvent("event " + eventID)
	}
	return nil
}

func (s *Server) inboundMessage(event slackevents.EventsAPIEvent) (Inbound, bool) {
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.BotID != "" || ev.SubType != "" || ev.User == s.botUserID || ev.Text == "" {
			return Inbound{}, false
		}
		return Inbound{
			Channel:  ev.Channel,
			UserID:   ev.User,
			Text:     ev.Text,
			TS:       ev.TimeStamp,
			ThreadTS: ev.ThreadTimeStamp,
		}, true
	case *slackevents.AppMentionEvent:
		if ev.User == "" || ev.User == s.botUserID {
			return Inbound{}, false
		}
		return Inbound{
			Channel:  ev.Channel,
			UserID:   ev.User,
			Text:     ev.Text,
			TS:       ev.TimeStamp,
			ThreadTS: ev.ThreadTimeStamp,
		}, true
	}
	return Inbound{}, false
}
