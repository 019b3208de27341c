package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"
)

func (app *App) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", app.handleWebSocket)
	mux.HandleFunc("/api/upload", app.handleUpload)
	mux.HandleFunc("/api/exec", app.handleExec)
	mux.HandleFunc("/api/jobs", app.handleJobs)
	mux.HandleFunc("/api/scan", app.handleScan)
	return mux
}

const (
	wsSendBuffer   = 256
	wsWriteTimeout = 10 * time.Second
)

func (app *App) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := app.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	client := &wsClient{conn: conn, send: make(chan WebSocketMessage, wsSendBuffer)}

	app.wsMutex.Lock()
	// Queue recent jobs for the new client before it sees live traffic
	for _, job := range app.recentJobs() {
		select {
		case client.send <- WebSocketMessage{Type: "job", Data: job}:
		default:
		}
	}
	app.wsClients[client] = true
	app.wsMutex.Unlock()

	go client.writeLoop()

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			app.dropClient(client)
			break
		}
	}
}

func (c *wsClient) writeLoop() {
	defer c.conn.Close()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteJSON(message); err != nil {
			log.Printf("Error sending WebSocket message: %v", err)
			return
		}
	}
}

// dropClient unregisters client and stops its writer. Safe to call twice.
func (app *App) dropClient(client *wsClient) {
	app.wsMutex.Lock()
	defer app.wsMutex.Unlock()
	if app.wsClients[client] {
		delete(app.wsClients, client)
		close(client.send)
	}
}

// broadcast never blocks: a client whose queue is full is disconnected.
func (app *App) broadcast(message WebSocketMessage) {
	app.wsMutex.Lock()
	defer app.wsMutex.Unlock()

	for client := range app.wsClients {
		select {
		case client.send <- message:
		default:
			log.Printf("WebSocket client %s too slow, disconnecting", client.conn.RemoteAddr())
			delete(app.wsClients, client)
			close(client.send)
		}
	}
}

func (app *App) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Filename string `json:"filename"`
		Code     string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	app.respondJob(w, JobUpload, req.Filename, req.Code)
}

func (app *App) handleExec(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	app.respondJob(w, JobExec, "", req.Code)
}

func (app *App) respondJob(w http.ResponseWriter, kind, filename, code string) {
	job, err := app.enqueueJob(kind, filename, code, "http")
	switch {
	case errors.Is(err, errQueueFull):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	app.jobLogMutex.RLock()
	snapshot := *job
	app.jobLogMutex.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(snapshot)
}

func (app *App) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(app.recentJobs())
}

func (app *App) handleScan(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	found, err := app.scanOthers(ctx)
	if err != nil {
		log.Printf("Scan failed: %v", err)
		http.Error(w, "Scan failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Attached string   `json:"attached,omitempty"`
		Found    []string `json:"found"`
	}{
		Attached: app.session.Path(),
		Found:    found,
	})
}
