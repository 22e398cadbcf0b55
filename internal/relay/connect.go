package relay

import (
	"context"
	"fmt"

	logs "github.com/danmuck/smppctl/internal/logging"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// ConnectNATS opens the publisher connection. The returned *nats.Conn
// satisfies Publisher.
func ConnectNATS(url, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logs.Warnf("relay.ConnectNATS disconnected err=%v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logs.Infof("relay.ConnectNATS reconnected url=%s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("relay: connect nats %s: %w", url, err)
	}
	return nc, nil
}

// ConnectRedis opens the state store client and checks it with a ping.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("relay: connect redis %s: %w", addr, err)
	}
	return rdb, nil
}
