package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	server "mistvale/server"
	"mistvale/server/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	contentDir := flag.String("content", "content", "path to the content directory")
	flag.Parse()

	cfg, err := server.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("%v", err)
	}

	console := logging.NewConsolePublisher(os.Stderr, cfg.Logging.MinimumSeverity, cfg.Logging.Console)
	publisher := logging.WithFields(console, cfg.Logging.CloneFields())
	world := server.NewWorld(cfg, publisher)
	if err := world.LoadContent(*contentDir); err != nil {
		log.Fatalf("%v", err)
	}
	if err := world.SpawnAll(); err != nil {
		log.Fatalf("%v", err)
	}

	hub := server.NewHub(world, cfg)

	stop := make(chan struct{})
	defer close(stop)
	go hub.RunSimulation(stop)

	http.HandleFunc("/join", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(hub.Join()); err != nil {
			log.Printf("failed to encode join response: %v", err)
		}
	})

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		playerID, err := uuid.Parse(r.URL.Query().Get("id"))
		if err != nil {
			http.Error(w, "missing or invalid id", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return
		}

		sub, ok := hub.Subscribe(playerID, conn)
		if !ok {
			conn.Close()
			return
		}

		go func() {
			defer hub.Disconnect(playerID)
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				hub.HandleClientMessage(playerID, sub, raw)
			}
		}()
	})

	http.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	log.Printf("listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, nil); err != nil {
		log.Fatalf("%v", err)
	}
}
