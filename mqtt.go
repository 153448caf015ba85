package main

import (
	"context"
	"encoding/json"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// startMQTT connects to the broker, subscribes the send topic to the
// gateway outbox and returns the client plus a publisher for received
// messages. Returns nils when no broker is configured.
func startMQTT(ctx context.Context, config *Config, logger *slog.Logger, gw *Gateway) (mqtt.Client, func(ReceivedSMS)) {
	if config.MQTTBroker == "" {
		return nil, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.MQTTBroker)
	opts.SetClientID(config.MQTTClientID)
	if config.MQTTUsername != "" {
		opts.SetUsername(config.MQTTUsername)
		opts.SetPassword(config.MQTTPassword)
	}
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		logger.Info("mqtt connected", "broker", config.MQTTBroker, "topic", config.MQTTTopicSend)
		token := c.Subscribe(config.MQTTTopicSend, 0, func(_ mqtt.Client, msg mqtt.Message) {
			var req SmsReq
			if err := json.Unmarshal(msg.Payload(), &req); err != nil {
				logger.Warn("mqtt payload rejected", "error", err)
				return
			}
			if req.To == "" || req.Message == "" {
				logger.Warn("mqtt payload missing to or message")
				return
			}
			id, err := gw.Enqueue(req)
			if err != nil {
				logger.Error("mqtt enqueue failed", "error", err)
				return
			}
			logger.Info("message queued via mqtt", "id", id, "to", req.To)
		})
		if token.Wait() && token.Error() != nil {
			logger.Error("mqtt subscribe failed", "topic", config.MQTTTopicSend, "error", token.Error())
		}
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		// AutoReconnect keeps trying in the background.
		logger.Error("mqtt connect failed", "broker", config.MQTTBroker, "error", token.Error())
	}

	go func() {
		<-ctx.Done()
		client.Disconnect(500)
	}()

	publish := func(sms ReceivedSMS) {
		payload, err := json.Marshal(sms)
		if err != nil {
			return
		}
		client.Publish(config.MQTTTopicRecv, 0, false, payload)
	}
	return client, publish
}
