package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// ClientConfig describes the broker connection.
type ClientConfig struct {
	Broker     string
	ClientID   string
	Username   string
	Password   string
	MaxRetries int
	MaxElapsed time.Duration
	// OnConnect runs after every successful connect, including automatic reconnects.
	OnConnect paho.OnConnectHandler
}

// Connect dials the broker, retrying with exponential backoff. The session is
// clean, so subscriptions are lost on reconnect; callers restore them from
// OnConnect. The client is disconnected when ctx is done.
func Connect(ctx context.Context, cfg ClientConfig, logger *log.Logger) (paho.Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: empty broker")
	}
	if logger == nil {
		logger = log.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = 30 * time.Second
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Printf("mqtt: connection lost: %v", err)
	})
	if cfg.OnConnect != nil {
		opts.SetOnConnectHandler(cfg.OnConnect)
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = cfg.MaxElapsed

	var client paho.Client
	err := backoff.Retry(func() error {
		client = paho.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Printf("mqtt: connect %s: %v", cfg.Broker, token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(cfg.MaxRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("mqtt: connect %s after retries: %w", cfg.Broker, err)
	}
	logger.Printf("mqtt: connected to %s", cfg.Broker)

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
		logger.Printf("mqtt: disconnected from %s", cfg.Broker)
	}()
	return client, nil
}
