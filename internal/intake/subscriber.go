// Package intake receives captures from chat bridges over NATS. Text and
// voice messages arrive on separate subjects; replies go back to a
// per-channel subject, fire-and-forget from the pipeline's perspective.
package intake

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/intaked/internal/capture"
	"github.com/fyrsmithlabs/intaked/internal/pipeline"
)

// Config holds intake subjects and reply routing.
type Config struct {
	TextSubject  string `koanf:"text_subject"`
	VoiceSubject string `koanf:"voice_subject"`
	ReplyPrefix  string `koanf:"reply_prefix"`
	// HandleTimeout bounds how long one capture may take end to end.
	HandleTimeout time.Duration `koanf:"handle_timeout"`
}

// DefaultConfig returns the default intake subjects.
func DefaultConfig() Config {
	return Config{
		TextSubject:   "intake.text",
		VoiceSubject:  "intake.voice",
		ReplyPrefix:   "intake.reply.",
		HandleTimeout: 30 * time.Second,
	}
}

// Message is the wire format of one incoming capture.
type Message struct {
	ChannelID   string `json:"channel_id"`
	MessageID   string `json:"message_id"`
	Text        string `json:"text,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
}

// Reply is the wire format of an outgoing chat reply.
type Reply struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

// Connect dials NATS with the daemon's standard reconnect settings.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	logger.Info("connected to NATS", zap.String("url", url))
	return nc, nil
}

// Subscriber consumes capture messages and runs them through the pipeline.
type Subscriber struct {
	nc       *nats.Conn
	pipeline *pipeline.Pipeline
	cfg      Config
	logger   *zap.Logger
	subs     []*nats.Subscription
}

// NewSubscriber creates a Subscriber. Zero-value config fields fall back to
// the defaults.
func NewSubscriber(nc *nats.Conn, p *pipeline.Pipeline, cfg Config, logger *zap.Logger) *Subscriber {
	def := DefaultConfig()
	if cfg.TextSubject == "" {
		cfg.TextSubject = def.TextSubject
	}
	if cfg.VoiceSubject == "" {
		cfg.VoiceSubject = def.VoiceSubject
	}
	if cfg.ReplyPrefix == "" {
		cfg.ReplyPrefix = def.ReplyPrefix
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = def.HandleTimeout
	}
	return &Subscriber{nc: nc, pipeline: p, cfg: cfg, logger: logger}
}

// Start subscribes to the text and voice subjects.
func (s *Subscriber) Start() error {
	textSub, err := s.nc.Subscribe(s.cfg.TextSubject, s.handleText)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.cfg.TextSubject, err)
	}
	s.subs = append(s.subs, textSub)

	voiceSub, err := s.nc.Subscribe(s.cfg.VoiceSubject, s.handleVoice)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.cfg.VoiceSubject, err)
	}
	s.subs = append(s.subs, voiceSub)

	s.logger.Info("intake subscriber started",
		zap.String("text_subject", s.cfg.TextSubject),
		zap.String("voice_subject", s.cfg.VoiceSubject))
	return nil
}

// Stop unsubscribes from all subjects.
func (s *Subscriber) Stop() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("failed to unsubscribe", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
	s.subs = nil
}

func (s *Subscriber) handleText(msg *nats.Msg) {
	var m Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		s.logger.Warn("malformed intake message", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandleTimeout)
	defer cancel()

	res, err := s.pipeline.Process(ctx, capture.Capture{
		ChannelID:  m.ChannelID,
		MessageID:  m.MessageID,
		Text:       m.Text,
		Source:     capture.SourceText,
		ReceivedAt: time.Now().UTC(),
	})
	s.reply(m, res, err)
}

func (s *Subscriber) handleVoice(msg *nats.Msg) {
	var m Message
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		s.logger.Warn("malformed intake message", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	audio, err := base64.StdEncoding.DecodeString(m.AudioBase64)
	if err != nil {
		s.logger.Warn("malformed intake audio", zap.String("channel_id", m.ChannelID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandleTimeout)
	defer cancel()

	res, perr := s.pipeline.ProcessVoice(ctx, m.ChannelID, m.MessageID, audio)
	s.reply(m, res, perr)
}

// reply publishes the outcome back to the channel's reply subject. Delivery
// is fire-and-forget; a lost reply never fails the capture.
func (s *Subscriber) reply(m Message, res pipeline.Result, processErr error) {
	text := res.Reply
	if processErr != nil {
		s.logger.Warn("capture failed",
			zap.String("channel_id", m.ChannelID),
			zap.String("message_id", m.MessageID),
			zap.Error(processErr))
		text = "Sorry, I couldn't process that."
	}
	if text == "" {
		return
	}

	data, err := json.Marshal(Reply{ChannelID: m.ChannelID, MessageID: m.MessageID, Text: text})
	if err != nil {
		s.logger.Error("failed to marshal reply", zap.Error(err))
		return
	}
	if err := s.nc.Publish(s.cfg.ReplyPrefix+m.ChannelID, data); err != nil {
		s.logger.Warn("failed to publish reply", zap.String("channel_id", m.ChannelID), zap.Error(err))
	}
}
