package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.xml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	app := newApp()
	if err := app.loadConfig(writeConfig(t, `<config><serial port="/dev/ttyUSB0"/></config>`)); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	c := app.config
	if c.Serial.Port != "/dev/ttyUSB0" {
		t.Errorf("port = %q", c.Serial.Port)
	}
	if c.Serial.Baud != 9600 || c.Serial.HandshakeTimeoutMs != 2000 || c.Serial.StepTimeoutMs != 5000 {
		t.Errorf("serial defaults = %+v", c.Serial)
	}
	if c.MQTT.Broker != "" || c.MQTT.Port != 1883 || c.MQTT.TopicPrefix != "nodemcu" {
		t.Errorf("mqtt defaults = %+v", c.MQTT)
	}
	if c.Web.Listen != ":8080" || c.JobLogSize != 20 {
		t.Errorf("listen=%q jobLogSize=%d", c.Web.Listen, c.JobLogSize)
	}
	if n := len(c.sessionOptions()); n != 4 {
		t.Errorf("%d session options, want 4", n)
	}
}

func TestLoadConfig_Attributes(t *testing.T) {
	app := newApp()
	body := `<config suppressTimestamp="true" jobLogSize="5">
  <serial baud="115200" stepTimeoutMs="250" usbOnly="true"/>
  <mqtt broker="broker.local" port="8883" topicPrefix="lab/esp" maxRetries="3"/>
  <web listen="127.0.0.1:9000"/>
</config>`
	if err := app.loadConfig(writeConfig(t, body)); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	c := app.config
	if !c.SuppressTimestamp || c.JobLogSize != 5 {
		t.Errorf("root attrs = %v %d", c.SuppressTimestamp, c.JobLogSize)
	}
	if c.Serial.Baud != 115200 || c.Serial.StepTimeoutMs != 250 || !c.Serial.USBOnly {
		t.Errorf("serial = %+v", c.Serial)
	}
	if c.MQTT.Broker != "broker.local" || c.MQTT.Port != 8883 || c.MQTT.MaxRetries != 3 {
		t.Errorf("mqtt = %+v", c.MQTT)
	}
	if got := app.topic("upload", "+"); got != "lab/esp/upload/+" {
		t.Errorf("topic = %q", got)
	}
	if c.Web.Listen != "127.0.0.1:9000" {
		t.Errorf("listen = %q", c.Web.Listen)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	app := newApp()
	if err := app.loadConfig(filepath.Join(t.TempDir(), "missing.xml")); err == nil {
		t.Error("missing file accepted")
	}
	if err := app.loadConfig(writeConfig(t, "<config><serial")); err == nil {
		t.Error("malformed XML accepted")
	}
}
