package main

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	StageCursor = "cursor"
	StageFetch  = "fetch"
)

// PollError — неудачный цикл опроса. Курсор при этом не меняется.
type PollError struct {
	Stage  string
	Offset int64
	Err    error
}

func (e *PollError) Error() string {
	if e.Stage == StageFetch {
		return fmt.Sprintf("poll %s (offset %d): %v", e.Stage, e.Offset, e.Err)
	}
	return fmt.Sprintf("poll %s: %v", e.Stage, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// Poller — один цикл long polling от сохранённого курсора.
type Poller struct {
	store   Store
	gw      Gateway
	timeout time.Duration
}

func NewPoller(store Store, gw Gateway, timeout time.Duration) *Poller {
	return &Poller{store: store, gw: gw, timeout: timeout}
}

// Poll читает курсор и забирает апдейты начиная с него. Порядок апдейтов —
// как вернул сервер.
func (p *Poller) Poll(ctx context.Context) ([]tgbotapi.Update, error) {
	offset, err := p.store.Offset(ctx)
	if err != nil {
		return nil, &PollError{Stage: StageCursor, Err: err}
	}
	updates, err := p.gw.GetUpdates(offset, p.timeout)
	if err != nil {
		return nil, &PollError{Stage: StageFetch, Offset: offset, Err: err}
	}
	return updates, nil
}
