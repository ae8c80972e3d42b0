package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accounts    int
	fund        string
)

var (
	totalRequests uint64
	created201    uint64
	conflict409   uint64 // duplicate reference or already reversed
	rejected422   uint64 // insufficient funds
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&accounts, "accounts", 1000, "Member accounts 1..N, as created by the seeder's -bulk")
	flag.StringVar(&fund, "fund", "1000.00", "Credit every account with this amount before the run; empty to skip")
}

func main() {
	flag.Parse()
	client := &http.Client{Timeout: 5 * time.Second}

	if fund != "" {
		log.Printf("Funding %d accounts with %s", accounts, fund)
		for id := 1; id <= accounts; id++ {
			code, err := post(client, "/api/v1/transactions", map[string]any{
				"account_type":     "member_account",
				"account_id":       id,
				"amount":           fund,
				"transaction_type": "saving",
				"description":      "benchmark funding",
				"created_by":       1,
			})
			if err != nil || code != http.StatusCreated {
				log.Fatalf("fund account %d: status %d: %v", id, code, err)
			}
		}
	}

	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker(&wg, client, start)
	}
	wg.Wait()
	printResults(time.Since(start))
}

func post(client *http.Client, path string, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	resp, err := client.Post(targetURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// worker moves 1.00 between two member accounts per request through the double-entry endpoint,
// so every request takes two account locks.
func worker(wg *sync.WaitGroup, client *http.Client, start time.Time) {
	defer wg.Done()
	for time.Since(start) < duration {
		from, to := generateAccounts()
		leg := func(id int64) map[string]any {
			return map[string]any{
				"account_type":     "member_account",
				"account_id":       id,
				"amount":           "1.00",
				"transaction_type": "journal_entry",
				"description":      "benchmark transfer",
				"created_by":       1,
			}
		}
		code, err := post(client, "/api/v1/transactions/double-entry", map[string]any{
			"debit":  leg(from),
			"credit": leg(to),
		})
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch code {
		case http.StatusCreated:
			atomic.AddUint64(&created201, 1)
		case http.StatusConflict:
			atomic.AddUint64(&conflict409, 1)
		case http.StatusUnprocessableEntity:
			atomic.AddUint64(&rejected422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

func generateAccounts() (int64, int64) {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic goes between accounts 1 and 2
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return 1, 2
			}
			return 2, 1
		}
	}

	a := rand.Intn(accounts) + 1
	b := rand.Intn(accounts) + 1
	for a == b {
		b = rand.Intn(accounts) + 1
	}
	return int64(a), int64(b)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	c201 := atomic.LoadUint64(&created201)
	c409 := atomic.LoadUint64(&conflict409)
	r422 := atomic.LoadUint64(&rejected422)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	var rejectRate float64
	if total > 0 {
		rejectRate = float64(r422) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":        workload,
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_tps":  tps,
		"success_created": c201,
		"conflicts":       c409,
		"rejected_funds":  r422,
		"reject_rate_pct": rejectRate,
		"errors":          fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("write %s: %v", filename, err)
		return
	}
	defer file.Close()
	_ = json.NewEncoder(file).Encode(results)
}
