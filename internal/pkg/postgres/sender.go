package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/vgarvardt/gue/v5"
)

// Sender sends messages to gue queue
type Sender struct {
	gueClient *gue.Client
}

// NewSender creates gue sender instance
func NewSender(gueClient *gue.Client) (*Sender, error) {
	if gueClient == nil {
		return nil, fmt.Errorf("no gue client")
	}
	res := &Sender{gueClient: gueClient}
	return res, nil
}

// SendMessage sends message with name to queue.
// Job type carries the full name, queue is the part before ':'
func (s *Sender) SendMessage(ctx context.Context, message interface{}, name string) error {
	goapp.Log.Info().Str("name", name).Msg("sending msg")
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("can't marshal message: %w", err)
	}
	err = s.gueClient.Enqueue(ctx, &gue.Job{Type: name, Queue: queueOf(name), Args: data})
	if err != nil {
		return fmt.Errorf("can't enqueue msg: %w", err)
	}
	return nil
}

func queueOf(name string) string {
	if i := strings.Index(name, ":"); i > -1 {
		return name[:i]
	}
	return name
}
