// Package clicks assigns per-button, per-day sequence numbers to button
// presses and computes the aggregate counts served to dashboards.
package clicks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

var ErrInvalidInput = errors.New("invalid input")

const DefaultLookbackDays = 14

var DefaultButtons = []int{1, 2, 3, 4}

// LabelSource resolves the display label of a button.
type LabelSource interface {
	ButtonLabel(ctx context.Context, buttonID int) (string, error)
}

type Options struct {
	// Buttons is the allowed button set. Empty means DefaultButtons.
	Buttons  []int
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

type settings struct {
	buttons []int
	allowed map[int]bool
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger
}

func newSettings(opts Options) (settings, error) {
	ids := opts.Buttons
	if len(ids) == 0 {
		ids = DefaultButtons
	}
	allowed := make(map[int]bool, len(ids))
	buttons := make([]int, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return settings{}, fmt.Errorf("button id %d must be positive", id)
		}
		if allowed[id] {
			continue
		}
		allowed[id] = true
		buttons = append(buttons, id)
	}
	sort.Ints(buttons)

	s := settings{
		buttons: buttons,
		allowed: allowed,
		loc:     opts.Location,
		now:     opts.Now,
		logger:  opts.Logger,
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

func (s settings) clock() time.Time {
	return s.now().In(s.loc)
}
