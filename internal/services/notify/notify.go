// Package notify pushes realtime events to a user's PubNub channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pubnub "github.com/pubnub/go"
)

// Publisher sends one message to one channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) error
}

// PubNubPublisher publishes through a PubNub client.
type PubNubPublisher struct {
	pn *pubnub.PubNub
}

func NewPubNubPublisher(publishKey, subscribeKey, secretKey, uuid string) *PubNubPublisher {
	cfg := pubnub.NewConfig()
	cfg.PublishKey = publishKey
	cfg.SubscribeKey = subscribeKey
	cfg.SecretKey = secretKey
	if uuid != "" {
		cfg.UUID = uuid
	}
	return &PubNubPublisher{pn: pubnub.NewPubNub(cfg)}
}

func (p *PubNubPublisher) Publish(ctx context.Context, channel string, message any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := p.pn.Publish().Channel(channel).Message(message).Execute(); err != nil {
		return fmt.Errorf("Publish: %s: %w", channel, err)
	}
	return nil
}

// Event types.
const (
	TypePaymentConfirmed = "payment_confirmed"
	TypePaymentFailed    = "payment_failed"
	TypeTicketClaimed    = "ticket_claimed"
)

type Message struct {
	Type          string `json:"type"`
	PaymentHashID string `json:"payment_hash_id,omitempty"`
	TargetHashID  string `json:"target_hash_id,omitempty"`
	TargetKind    string `json:"target_kind,omitempty"`
	Status        string `json:"status,omitempty"`
	At            int64  `json:"at"`
}

// Notifier turns domain events into user-channel messages. Delivery is best
// effort: failures are logged and never returned.
type Notifier struct {
	pub Publisher
	now func() time.Time
}

// NewNotifier accepts a nil publisher, in which case nothing is sent.
func NewNotifier(pub Publisher) *Notifier {
	return &Notifier{pub: pub, now: time.Now}
}

func Channel(userID string) string {
	return "user-" + userID
}

func (n *Notifier) send(ctx context.Context, userID string, msg Message) {
	if n == nil || n.pub == nil || userID == "" {
		return
	}
	msg.At = n.now().Unix()
	if err := n.pub.Publish(ctx, Channel(userID), msg); err != nil {
		slog.Warn("realtime notification failed", "type", msg.Type, "userID", userID, "error", err)
	}
}

func (n *Notifier) PaymentConfirmed(ctx context.Context, userID, paymentHashID, targetKind, targetHashID string) {
	n.send(ctx, userID, Message{
		Type:          TypePaymentConfirmed,
		PaymentHashID: paymentHashID,
		TargetKind:    targetKind,
		TargetHashID:  targetHashID,
	})
}

func (n *Notifier) PaymentFailed(ctx context.Context, userID, paymentHashID, status string) {
	n.send(ctx, userID, Message{
		Type:          TypePaymentFailed,
		PaymentHashID: paymentHashID,
		Status:        status,
	})
}

// TicketClaimed tells the purchaser that someone took the ticket.
func (n *Notifier) TicketClaimed(ctx context.Context, purchaserID, ticketHashID string) {
	n.send(ctx, purchaserID, Message{
		Type:         TypeTicketClaimed,
		TargetKind:   "ticket",
		TargetHashID: ticketHashID,
	})
}
