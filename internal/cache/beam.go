package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// BeamMessage is the envelope published on the beam channel.
type BeamMessage struct {
	UserID  int64           `json:"userId"`
	Payload json.RawMessage `json:"payload"`
}

// PublishBeam asks whichever gateway holds userID's session to deliver payload to it.
func PublishBeam(ctx context.Context, rdb *redis.Client, channel string, userID int64, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal beam payload: %w", err)
	}
	data, err := json.Marshal(BeamMessage{UserID: userID, Payload: raw})
	if err != nil {
		return err
	}
	return rdb.Publish(ctx, channel, data).Err()
}

// SubscribeBeam delivers every beam message on channel to deliver until ctx is cancelled.
// Malformed messages are logged and dropped.
func SubscribeBeam(ctx context.Context, rdb *redis.Client, channel string, logger *logrus.Logger, deliver func(userID int64, payload json.RawMessage)) error {
	sub := rdb.Subscribe(ctx, channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed so publishers racing start-up are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	logger.Infof("listening for beams on %s", channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var beam BeamMessage
			if err := json.Unmarshal([]byte(msg.Payload), &beam); err != nil || beam.UserID == 0 || len(beam.Payload) == 0 {
				logger.Warnf("dropping malformed beam message: %q", msg.Payload)
				continue
			}
			deliver(beam.UserID, beam.Payload)
		}
	}
}
