package pipeline

import (
	"errors"
	"fmt"
)

// Status is the state of one slot.
type Status string

const (
	StatusPending         Status = "Pending"
	StatusGathering       Status = "Gathering"
	StatusProcessing      Status = "Processing"
	StatusGeneratingImage Status = "GeneratingImage"
	StatusComposing       Status = "Composing"
	StatusUploading       Status = "Uploading"
	StatusSendingWebhook  Status = "SendingWebhook"
	StatusDone            Status = "Done"
	StatusError           Status = "Error"
)

// ErrInvalidTransition is returned when a slot is moved along an edge the
// state machine does not have.
var ErrInvalidTransition = errors.New("invalid slot transition")

// next lists the forward edges. Error is reachable from every non-terminal
// state and is handled separately.
var next = map[Status][]Status{
	StatusPending:         {StatusGathering},
	StatusGathering:       {StatusProcessing},
	StatusProcessing:      {StatusGeneratingImage, StatusComposing},
	StatusGeneratingImage: {StatusComposing},
	StatusComposing:       {StatusUploading},
	StatusUploading:       {StatusSendingWebhook},
	StatusSendingWebhook:  {StatusDone},
}

func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// TaskResult is the output of a slot that reached Done.
type TaskResult struct {
	Headline   string `json:"headline"`
	ImageURL   string `json:"imageUrl"`
	Caption    string `json:"caption"`
	SourceURL  string `json:"sourceUrl"`
	SourceName string `json:"sourceName"`
}

// Slot is one output position of a run.
type Slot struct {
	ID       string      `json:"id"`
	Name     string      `json:"categoryName"`
	Category string      `json:"categoryType"`
	Status   Status      `json:"status"`
	Result   *TaskResult `json:"result,omitempty"`
	Error    string      `json:"error,omitempty"`
	History  []Status    `json:"history"`
}

func newSlot(id, name, category string) *Slot {
	return &Slot{
		ID:       id,
		Name:     name,
		Category: category,
		Status:   StatusPending,
		History:  []Status{StatusPending},
	}
}

// moveTo changes the slot status. Moving to the current status is a no-op.
func (s *Slot) moveTo(to Status) error {
	if s.Status == to {
		return nil
	}
	if s.Status.Terminal() {
		return fmt.Errorf("%w: slot %s is already %s", ErrInvalidTransition, s.ID, s.Status)
	}
	if to != StatusError {
		allowed := false
		for _, st := range next[s.Status] {
			if st == to {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: slot %s %s -> %s", ErrInvalidTransition, s.ID, s.Status, to)
		}
	}
	s.Status = to
	s.History = append(s.History, to)
	return nil
}

func (s *Slot) clone() Slot {
	c := *s
	c.History = append([]Status(nil), s.History...)
	if s.Result != nil {
		r := *s.Result
		c.Result = &r
	}
	return c
}
