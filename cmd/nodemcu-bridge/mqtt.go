package main

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

func (app *App) mqttEnabled() bool {
	return app.mqttClient != nil
}

func (app *App) topic(parts ...string) string {
	return strings.Join(append([]string{app.config.MQTT.TopicPrefix}, parts...), "/")
}

func (app *App) connectMQTTWithRetry() error {
	retryCount := 0

	for {
		err := app.connectMQTT()
		if err == nil {
			return nil
		}

		retryCount++

		// Check if we've exceeded max retries (0 means infinite)
		if app.config.MQTT.MaxRetries > 0 && retryCount >= app.config.MQTT.MaxRetries {
			return fmt.Errorf("failed to connect to MQTT after %d attempts: %v", retryCount, err)
		}

		log.Printf("Failed to connect to MQTT (attempt %d): %v", retryCount, err)
		log.Printf("Waiting %d seconds before retry...", app.config.MQTT.RetryInterval)

		time.Sleep(time.Duration(app.config.MQTT.RetryInterval) * time.Second)
	}
}

func (app *App) connectMQTT() error {
	opts := mqtt.NewClientOptions()
	broker := fmt.Sprintf("tcp://%s:%d", app.config.MQTT.Broker, app.config.MQTT.Port)
	opts.AddBroker(broker)
	opts.SetClientID(app.config.MQTT.ClientID)
	opts.SetUsername(app.config.MQTT.Username)
	opts.SetPassword(app.config.MQTT.Password)

	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	})

	// Subscriptions are not kept by the broker across clean sessions
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Println("Connected to MQTT broker")
		app.subscribeToCommandTopics(client)
	})

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Duration(app.config.MQTT.RetryInterval) * time.Second)

	client := mqtt.NewClient(opts)

	log.Printf("Attempting to connect to MQTT broker at %s...", broker)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	app.mqttClient = client
	return nil
}

func (app *App) subscribeToCommandTopics(client mqtt.Client) {
	uploadTopic := app.topic("upload", "+")
	token := client.Subscribe(uploadTopic, 1, func(client mqtt.Client, msg mqtt.Message) {
		filename := uploadFilename(msg.Topic())
		if _, err := app.enqueueJob(JobUpload, filename, string(msg.Payload()), "mqtt"); err != nil {
			log.Printf("Rejected upload on %s: %v", msg.Topic(), err)
		}
	})
	if token.Wait() && token.Error() != nil {
		log.Printf("Failed to subscribe to %s: %v", uploadTopic, token.Error())
	} else {
		log.Printf("Subscribed to upload topic: %s", uploadTopic)
	}

	execTopic := app.topic("exec")
	token = client.Subscribe(execTopic, 1, func(client mqtt.Client, msg mqtt.Message) {
		if _, err := app.enqueueJob(JobExec, "", string(msg.Payload()), "mqtt"); err != nil {
			log.Printf("Rejected exec on %s: %v", msg.Topic(), err)
		}
	})
	if token.Wait() && token.Error() != nil {
		log.Printf("Failed to subscribe to %s: %v", execTopic, token.Error())
	} else {
		log.Printf("Subscribed to exec topic: %s", execTopic)
	}
}

// uploadFilename returns the last topic level, e.g. "init.lua" for
// "nodemcu/upload/init.lua".
func uploadFilename(topic string) string {
	return topic[strings.LastIndex(topic, "/")+1:]
}

func (app *App) publishLine(line string) {
	if !app.mqttEnabled() {
		return
	}
	app.mqttClient.Publish(app.topic("console"), 0, false, strings.TrimRight(line, "\r"))
}

func (app *App) publishJob(job Job) {
	if !app.mqttEnabled() {
		return
	}

	payload, err := json.Marshal(job)
	if err != nil {
		log.Printf("Error marshaling job %s: %v", job.ID, err)
		return
	}

	token := app.mqttClient.Publish(app.topic("status"), 1, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			log.Printf("Failed to publish job status: %v", token.Error())
		}
	}()
}
