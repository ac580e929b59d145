// Command feeder drives a locally running heal-engine with externally
// supplied samples, exercising the POST /api/sample path the way an
// agent-based deployment would.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"time"
)

type sample struct {
	CPUUsage          float64 `json:"cpu_usage"`
	MemoryUsage       float64 `json:"memory_usage"`
	DiskUsage         float64 `json:"disk_usage"`
	NetworkThroughput float64 `json:"network_throughput"`
	ResponseTime      float64 `json:"response_time"`
	ActiveConnections float64 `json:"active_connections"`
	ErrorRate         float64 `json:"error_rate"`
}

func main() {
	target := flag.String("target", "http://localhost:8080", "heal-engine base URL")
	interval := flag.Duration("interval", 2*time.Second, "delay between samples")
	spikeEvery := flag.Int("spike-every", 25, "send a critical sample every N iterations (0 disables)")
	flag.Parse()

	logger := log.New(log.Writer(), "feeder ", log.LstdFlags|log.Lmicroseconds)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	client := &http.Client{Timeout: 5 * time.Second}

	logger.Printf("feeding %s every %s", *target, *interval)
	for i := 1; ; i++ {
		s := sample{
			CPUUsage:          40 + rng.NormFloat64()*5,
			MemoryUsage:       50 + rng.NormFloat64()*3,
			DiskUsage:         60 + rng.NormFloat64()*2,
			NetworkThroughput: 100 + rng.NormFloat64()*10,
			ResponseTime:      210 + rng.NormFloat64()*20,
			ActiveConnections: float64(100 + rng.Intn(40)),
			ErrorRate:         rng.Float64() * 2,
		}
		if *spikeEvery > 0 && i%*spikeEvery == 0 {
			s.CPUUsage = 95 + rng.Float64()*5
			s.ResponseTime = 4000 + rng.Float64()*1000
			logger.Println("sending critical sample")
		}

		if err := post(client, *target+"/api/sample", s); err != nil {
			logger.Printf("post sample: %v", err)
		}
		time.Sleep(*interval)
	}
}

func post(client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
