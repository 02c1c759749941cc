// README: Firebase Cloud Messaging transport; each room is an FCM topic.
package notify

import (
	"context"

	"firebase.google.com/go/v4/messaging"
)

type messenger interface {
	Send(ctx context.Context, m *messaging.Message) (string, error)
}

type FCMTransport struct {
	client messenger
}

func NewFCMTransport(client *messaging.Client) *FCMTransport {
	return &FCMTransport{client: client}
}

func (t *FCMTransport) Send(ctx context.Context, e Envelope) error {
	_, err := t.client.Send(ctx, &messaging.Message{
		Topic: e.Room,
		Data: map[string]string{
			"id":      e.ID,
			"event":   e.Event,
			"payload": string(e.Payload),
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	})
	return err
}

func (t *FCMTransport) Close() error { return nil }
