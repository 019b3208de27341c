package main

import (
	"encoding/xml"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"nodemcu-bridge.go/nodemcu"
)

// Configuration structures
type Config struct {
	XMLName           xml.Name     `xml:"config"`
	Serial            SerialConfig `xml:"serial"`
	MQTT              MQTTConfig   `xml:"mqtt"`
	Web               WebConfig    `xml:"web"`
	SuppressTimestamp bool         `xml:"suppressTimestamp,attr"`
	JobLogSize        int          `xml:"jobLogSize,attr"`
}

type SerialConfig struct {
	Port               string `xml:"port,attr"` // empty = scan for a NodeMCU
	Baud               int    `xml:"baud,attr"`
	HandshakeTimeoutMs int    `xml:"handshakeTimeoutMs,attr"`
	StepTimeoutMs      int    `xml:"stepTimeoutMs,attr"`
	MaxLineLength      int    `xml:"maxLineLength,attr"`
	USBOnly            bool   `xml:"usbOnly,attr"`
}

type MQTTConfig struct {
	Broker        string `xml:"broker,attr"` // empty = MQTT disabled
	Port          int    `xml:"port,attr"`
	Username      string `xml:"username,attr"`
	Password      string `xml:"password,attr"`
	ClientID      string `xml:"clientId,attr"`
	TopicPrefix   string `xml:"topicPrefix,attr"`
	RetryInterval int    `xml:"retryInterval,attr"` // seconds between connection attempts
	MaxRetries    int    `xml:"maxRetries,attr"`    // 0 = infinite retries
}

type WebConfig struct {
	Listen string `xml:"listen,attr"`
}

// Job is one paced transfer to the device.
type Job struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"` // upload, exec
	Filename string `json:"filename,omitempty"`
	Source   string `json:"source"` // http, mqtt
	State    string `json:"state"`  // queued, running, done, failed
	Lines    int    `json:"lines"`
	Error    string `json:"error,omitempty"`
	Queued   string `json:"queued"`
	Finished string `json:"finished,omitempty"`

	code string
}

const (
	JobUpload = "upload"
	JobExec   = "exec"

	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

type WebSocketMessage struct {
	Type string      `json:"type"` // console, status, job
	Data interface{} `json:"data"`
}

// Application state
type App struct {
	config     Config
	transport  nodemcu.Transport
	session    *nodemcu.Session
	mqttClient mqtt.Client

	jobs        chan *Job
	jobLog      []*Job
	jobLogMutex sync.RWMutex

	wsClients  map[*wsClient]bool
	wsMutex    sync.Mutex
	wsUpgrader websocket.Upgrader
}

// wsClient is one websocket connection. Messages are queued on send and
// written by the client's own goroutine.
type wsClient struct {
	conn *websocket.Conn
	send chan WebSocketMessage
}
