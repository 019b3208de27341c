package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"

	"nodemcu-bridge.go/nodemcu"
)

func main() {
	// Parse command line flags
	configFile := flag.String("config", "config.xml", "Path to configuration file")
	suppressTimestamp := flag.Bool("no-timestamp", false, "Suppress timestamps in log output")
	portOverride := flag.String("port", "", "Serial device to use instead of scanning")
	listenOverride := flag.String("listen", "", "HTTP listen address (overrides config)")
	flag.Parse()

	app := newApp()

	// Load configuration
	if err := app.loadConfig(*configFile); err != nil {
		log.Fatalf("Failed to load config from '%s': %v", *configFile, err)
	}
	if *portOverride != "" {
		app.config.Serial.Port = *portOverride
	}
	if *listenOverride != "" {
		app.config.Web.Listen = *listenOverride
	}
	app.transport = nodemcu.SerialTransport{USBOnly: app.config.Serial.USBOnly}

	if *suppressTimestamp || app.config.SuppressTimestamp {
		log.SetFlags(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if app.config.MQTT.Broker != "" {
		if err := app.connectMQTTWithRetry(); err != nil {
			log.Fatal("Failed to connect to MQTT after all retries:", err)
		}
	}

	path, err := app.findDevice(ctx)
	if err != nil {
		log.Fatalf("No NodeMCU available: %v", err)
	}
	if err := app.attachDevice(path); err != nil {
		log.Fatalf("Failed to open %s: %v", path, err)
	}

	go app.runJobs(ctx)

	srv := &http.Server{Addr: app.config.Web.Listen, Handler: app.routes()}
	go func() {
		log.Printf("Starting server on %s", app.config.Web.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	srv.Shutdown(context.Background())
	if err := app.session.Disconnect(); err != nil {
		log.Printf("Disconnect failed: %v", err)
	}
	if app.mqttEnabled() {
		app.mqttClient.Disconnect(250)
		log.Println("Disconnected from MQTT broker")
	}
}

func newApp() *App {
	return &App{
		jobs:      make(chan *Job, 16),
		wsClients: make(map[*wsClient]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}
