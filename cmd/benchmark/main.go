package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
)

// Lost-update detector: hammers the donation endpoint from many workers,
// then checks that the balance moved by exactly successes * amount. Any
// drift means a balance mutation interleaved with another.
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	adminUser   string
	amountFlag  string
)

var (
	totalRequests uint64
	success       uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&adminUser, "admin", "", "user_id with the admin role")
	flag.StringVar(&amountFlag, "amount", "10", "Donation amount per request")
}

func main() {
	flag.Parse()
	if adminUser == "" {
		log.Fatal("-admin is required")
	}
	amount, err := decimal.NewFromString(amountFlag)
	if err != nil {
		log.Fatalf("invalid -amount: %v", err)
	}

	before, err := fetchBalance()
	if err != nil {
		log.Fatalf("fetching starting balance: %v", err)
	}

	log.Printf("Starting Benchmark | Workers: %d | Duration: %s | Amount: %s", concurrency, duration, amount)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, amount)
	}
	wg.Wait()
	elapsed := time.Since(start)

	after, err := fetchBalance()
	if err != nil {
		log.Fatalf("fetching final balance: %v", err)
	}

	printResults(elapsed, before, after, amount)
}

func worker(wg *sync.WaitGroup, start time.Time, amount decimal.Decimal) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		payload := map[string]interface{}{
			"user_id":     adminUser,
			"description": fmt.Sprintf("bench-%d", time.Now().UnixNano()),
			"amount":      amount,
		}
		body, _ := json.Marshal(payload)

		resp, err := client.Post(targetURL+"/api/donations", "application/json", bytes.NewBuffer(body))
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		if resp.StatusCode == http.StatusOK {
			atomic.AddUint64(&success, 1)
		} else {
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func fetchBalance() (decimal.Decimal, error) {
	resp, err := http.Get(targetURL + "/api/trust/balance")
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	var out struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Decimal{}, err
	}
	return out.Balance, nil
}

func printResults(d time.Duration, before, after, amount decimal.Decimal) {
	total := atomic.LoadUint64(&totalRequests)
	ok := atomic.LoadUint64(&success)
	fErr := atomic.LoadUint64(&failOther)

	expected := before.Add(amount.Mul(decimal.NewFromInt(int64(ok))))
	tps := float64(total) / d.Seconds()

	results := map[string]interface{}{
		"duration_sec":     d.Seconds(),
		"total_requests":   total,
		"throughput_tps":   tps,
		"success":          ok,
		"errors":           fErr,
		"balance_before":   before,
		"balance_after":    after,
		"balance_expected": expected,
		"lost_updates":     !after.Equal(expected),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	if !after.Equal(expected) {
		log.Fatalf("LOST UPDATES: expected balance %s, got %s", expected, after)
	}
	log.Println("Balance consistent: no lost updates.")
}
