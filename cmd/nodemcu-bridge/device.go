package main

import (
	"context"
	"fmt"
	"log"

	"nodemcu-bridge.go/nodemcu"
)

// wsConsole streams driver status lines and raw device output to websocket
// clients.
type wsConsole struct{ app *App }

func (c wsConsole) WriteLine(text string) {
	c.app.broadcast(WebSocketMessage{Type: "status", Data: text})
}

func (c wsConsole) Write(text string) {
	c.app.broadcast(WebSocketMessage{Type: "console", Data: text})
}

func (app *App) console() nodemcu.Console {
	return nodemcu.MultiConsole{
		nodemcu.NewLogConsole(log.Default(), "RX: "),
		wsConsole{app: app},
	}
}

// excludingTransport hides one path from enumeration so a rescan never
// probes the port the bridge already holds.
type excludingTransport struct {
	nodemcu.Transport
	exclude string
}

func (t excludingTransport) Ports() ([]string, error) {
	ports, err := t.Transport.Ports()
	if err != nil {
		return nil, err
	}
	filtered := ports[:0:0]
	for _, p := range ports {
		if p != t.exclude {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// findDevice returns the configured port, or scans for the first NodeMCU.
func (app *App) findDevice(ctx context.Context) (string, error) {
	if app.config.Serial.Port != "" {
		return app.config.Serial.Port, nil
	}
	scanner := nodemcu.NewScanner(app.transport, app.console(), app.config.sessionOptions()...)
	path, err := scanner.ScanFirst(ctx)
	if err != nil {
		return "", fmt.Errorf("scan failed: %w", err)
	}
	return path, nil
}

// attachDevice opens the session the bridge keeps for its lifetime and
// forwards every device line to MQTT.
func (app *App) attachDevice(path string) error {
	app.session = nodemcu.NewSession(app.transport, path, app.console(), app.config.sessionOptions()...)
	if err := app.session.Connect(); err != nil {
		return err
	}
	app.session.AddLineListener(func(l nodemcu.Line) {
		app.publishLine(l.Text)
	})
	log.Printf("Attached to NodeMCU on %s", path)
	return nil
}

// scanOthers validates every port except the attached one.
func (app *App) scanOthers(ctx context.Context) ([]string, error) {
	t := excludingTransport{Transport: app.transport}
	if app.session != nil {
		t.exclude = app.session.Path()
	}

	found := []string{}
	scanner := nodemcu.NewScanner(t, app.console(), app.config.sessionOptions()...)
	err := scanner.Scan(ctx, func(path string) {
		found = append(found, path)
	})
	return found, err
}
