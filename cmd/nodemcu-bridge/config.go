package main

import (
	"encoding/xml"
	"fmt"
	"log"
	"os"
	"time"

	"nodemcu-bridge.go/nodemcu"
)

func (app *App) loadConfig(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file '%s': %v", filename, err)
	}

	if err := xml.Unmarshal(data, &app.config); err != nil {
		return fmt.Errorf("failed to parse XML config: %v", err)
	}

	app.config.applyDefaults()

	log.Printf("Loaded configuration from: %s", filename)
	if app.config.Serial.Port == "" {
		log.Printf("Serial: scanning for a NodeMCU at %d baud", app.config.Serial.Baud)
	} else {
		log.Printf("Serial: %s at %d baud", app.config.Serial.Port, app.config.Serial.Baud)
	}
	if app.config.MQTT.Broker == "" {
		log.Printf("MQTT: disabled")
	} else {
		log.Printf("MQTT: %s:%d, topic prefix '%s'", app.config.MQTT.Broker, app.config.MQTT.Port, app.config.MQTT.TopicPrefix)
	}
	log.Printf("Web: listening on %s", app.config.Web.Listen)

	return nil
}

func (c *Config) applyDefaults() {
	if c.JobLogSize <= 0 {
		c.JobLogSize = 20
	}
	if c.Serial.Baud <= 0 {
		c.Serial.Baud = nodemcu.DefaultBaudRate
	}
	if c.Serial.HandshakeTimeoutMs <= 0 {
		c.Serial.HandshakeTimeoutMs = int(nodemcu.DefaultHandshakeTimeout / time.Millisecond)
	}
	if c.Serial.StepTimeoutMs <= 0 {
		c.Serial.StepTimeoutMs = int(nodemcu.DefaultStepTimeout / time.Millisecond)
	}
	if c.Serial.MaxLineLength <= 0 {
		c.Serial.MaxLineLength = nodemcu.DefaultMaxLineLength
	}
	if c.MQTT.Port == 0 {
		c.MQTT.Port = 1883
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "nodemcu-bridge"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "nodemcu"
	}
	if c.MQTT.RetryInterval <= 0 {
		c.MQTT.RetryInterval = 5
	}
	if c.Web.Listen == "" {
		c.Web.Listen = ":8080"
	}
}

// sessionOptions turns the serial section into driver options.
func (c *Config) sessionOptions() []nodemcu.Option {
	return []nodemcu.Option{
		nodemcu.WithBaudRate(c.Serial.Baud),
		nodemcu.WithHandshakeTimeout(time.Duration(c.Serial.HandshakeTimeoutMs) * time.Millisecond),
		nodemcu.WithStepTimeout(time.Duration(c.Serial.StepTimeoutMs) * time.Millisecond),
		nodemcu.WithMaxLineLength(c.Serial.MaxLineLength),
	}
}
