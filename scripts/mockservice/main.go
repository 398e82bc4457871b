// Mockservice is a stand-in microservice for manual gateway testing.
// It serves /api/health plus an echo endpoint that reflects the request
// path, method, and X-Request-ID, and can be told to fail on demand.
//
// Usage:
//
//	go run ./scripts/mockservice -port 3001
//	go run ./scripts/mockservice -port 3003 -fail-health
//	go run ./scripts/mockservice -port 3005 -error-rate 0.5
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
)

func main() {
	port := flag.Int("port", 3001, "port to listen on")
	name := flag.String("name", "mock", "service name reported in responses")
	failHealth := flag.Bool("fail-health", false, "answer health checks with HTTP 500")
	errorRate := flag.Float64("error-rate", 0, "fraction of business requests answered with HTTP 500")
	flag.Parse()

	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s (request id %s)", r.Method, r.URL.Path, r.Header.Get("X-Request-ID"))

		if *failHealth {
			http.Error(w, "unhealthy", http.StatusInternalServerError)
			return
		}

		writeJSON(w, r, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": *name,
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s (request id %s)", r.Method, r.URL.Path, r.Header.Get("X-Request-ID"))

		if *errorRate > 0 && rand.Float64() < *errorRate {
			http.Error(w, "simulated failure", http.StatusInternalServerError)
			return
		}

		writeJSON(w, r, http.StatusOK, map[string]string{
			"service": *name,
			"method":  r.Method,
			"path":    r.URL.Path,
		})
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("mockservice %q listening on %s", *name, addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

// writeJSON responds with JSON and echoes the correlation id back, the way
// well-behaved downstream services should.
func writeJSON(w http.ResponseWriter, r *http.Request, code int, body any) {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		w.Header().Set("X-Request-ID", id)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
