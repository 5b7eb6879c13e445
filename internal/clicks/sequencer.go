package clicks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benedict2310/tally/internal/eventstore"
)

// Result describes a recorded click.
type Result struct {
	ButtonID    int       `json:"buttonId"`
	Seq         int       `json:"seq"`
	Day         string    `json:"date"`
	Time        string    `json:"time"`
	OccurredAt  time.Time `json:"occurredAt"`
	ButtonLabel string    `json:"buttonLabel"`
}

type Sequencer struct {
	store  eventstore.Writer
	labels LabelSource
	settings
}

func NewSequencer(store eventstore.Writer, labels LabelSource, opts Options) (*Sequencer, error) {
	if store == nil {
		return nil, fmt.Errorf("event store is nil")
	}
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	return &Sequencer{store: store, labels: labels, settings: s}, nil
}

func (s *Sequencer) Allowed(buttonID int) bool {
	return s.allowed[buttonID]
}

// RecordClick stores one press of buttonID and returns its sequence number,
// which is the count of presses already stored for (buttonID, today) plus one.
// Counting and inserting happen inside the store's exclusive section, so
// concurrent presses of the same button never share or skip a number.
func (s *Sequencer) RecordClick(ctx context.Context, buttonID int) (Result, error) {
	if !s.allowed[buttonID] {
		return Result{}, fmt.Errorf("%w: button %d is not one of %v", ErrInvalidInput, buttonID, s.buttons)
	}
	label := s.label(ctx, buttonID)

	var out Result
	err := s.store.Exclusive(ctx, func(ctx context.Context, tx eventstore.Tx) error {
		// The clock is read while holding the section so that section order
		// and day assignment agree.
		now := s.clock()
		day := now.Format(eventstore.DayLayout)

		n, err := tx.CountMatching(ctx, buttonID, day)
		if err != nil {
			return err
		}
		e, err := tx.Append(ctx, eventstore.Event{
			ButtonID:    buttonID,
			ButtonLabel: label,
			Seq:         n + 1,
			Day:         day,
			OccurredAt:  now,
		})
		if err != nil {
			return err
		}
		out = Result{
			ButtonID:    e.ButtonID,
			Seq:         e.Seq,
			Day:         e.Day,
			Time:        e.OccurredAt.Format(eventstore.TimeLayout),
			OccurredAt:  e.OccurredAt,
			ButtonLabel: e.ButtonLabel,
		}
		return nil
	})
	if err != nil {
		return Result{}, eventstore.Wrap("record click", err)
	}

	s.logger.Debug("click recorded", "button_id", out.ButtonID, "seq", out.Seq, "day", out.Day)
	return out, nil
}

func (s *Sequencer) label(ctx context.Context, buttonID int) string {
	if s.labels == nil {
		return eventstore.DefaultLabel(buttonID)
	}
	label, err := s.labels.ButtonLabel(ctx, buttonID)
	if err != nil {
		s.logger.Warn("button label lookup failed; using default", "button_id", buttonID, "error", err)
		return eventstore.DefaultLabel(buttonID)
	}
	if strings.TrimSpace(label) == "" {
		s.logger.Warn("button label empty; using default", "button_id", buttonID)
		return eventstore.DefaultLabel(buttonID)
	}
	return label
}
