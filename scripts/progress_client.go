// Package main runs a demo WebSocket client for optimization run progress.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Launch an assignment run
	body := []byte(`{
		"assets": [
			{"id":"shipA","kind":"ship","capacity":{"weightKg":100},"speedKph":30,"costPerKm":2},
			{"id":"shipB","kind":"ship","capacity":{"weightKg":500},"speedKph":25,"costPerKm":3}
		],
		"targets": [
			{"id":"route1","kind":"route","revenue":1000,"distanceKm":200},
			{"id":"route2","kind":"route","revenue":1500,"distanceKm":300},
			{"id":"route3","kind":"route","revenue":2000,"distanceKm":400,"required":{"weightKg":400}}
		],
		"objective": "revenue",
		"seed": 42
	}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/assignments/optimize", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var optResp struct {
		RunID string `json:"runId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&optResp); err != nil {
		log.Fatal(err)
	}
	if optResp.RunID == "" {
		log.Fatal("no run id returned")
	}
	log.Printf("Run ID: %s", optResp.RunID)

	// Stream its progress events
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/" + optResp.RunID + "/progress"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m map[string]any
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %v", m)
		}
	}()

	select {
	case <-time.After(5 * time.Second):
	case <-done:
	}
}
