package service

import (
	"context"

	"racehub/internal/domain"
	"racehub/pkg/logger"
)

// LogNotifier writes every event to the structured log. It is the default
// sink and stays in the chain in production so the log carries the full
// broadcast history.
type LogNotifier struct {
	logger *logger.Logger
}

func NewLogNotifier(logger *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event domain.Event) {
	n.logger.WithFields(map[string]interface{}{
		"type":         string(event.Type),
		"team_id":      event.TeamID,
		"team_name":    event.TeamName,
		"challenge_id": event.ChallengeID,
	}).Info("Game event")
}

// FanOut delivers each event to every registered notifier in order.
type FanOut struct {
	sinks []Notifier
}

func NewFanOut(sinks ...Notifier) *FanOut {
	return &FanOut{sinks: sinks}
}

func (f *FanOut) Notify(ctx context.Context, event domain.Event) {
	for _, sink := range f.sinks {
		sink.Notify(ctx, event)
	}
}
