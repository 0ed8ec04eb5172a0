package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"garcon/log"
)

// KitchenPublisher pushes confirmed orders onto the kitchen's NATS
// subject.
type KitchenPublisher struct {
	conn    *nats.Conn
	subject string
}

func ConnectKitchen(url, subject string) (*KitchenPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("garcon"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Infof("connected to kitchen bus at %s", conn.ConnectedUrl())
	return &KitchenPublisher{conn: conn, subject: subject}, nil
}

func (k *KitchenPublisher) Submit(_ context.Context, draft Draft) error {
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}
	if err := k.conn.Publish(k.subject, payload); err != nil {
		return fmt.Errorf("publish order: %w", err)
	}
	return k.conn.Flush()
}

func (k *KitchenPublisher) Close() {
	if k == nil || k.conn == nil {
		return
	}
	k.conn.Drain()
	k.conn.Close()
}
