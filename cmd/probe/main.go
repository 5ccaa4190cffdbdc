package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/faultline-hq/faultline-go/internal/client"
	"github.com/faultline-hq/faultline-go/internal/config"
	"github.com/faultline-hq/faultline-go/internal/hub"
	"github.com/faultline-hq/faultline-go/internal/protocol"
	"github.com/faultline-hq/faultline-go/internal/trace"
)

func main() {
	configPath := flag.String("config", "", "Path to a TOML config file (env is used when empty)")
	dsn := flag.String("dsn", "", "DSN override")
	message := flag.String("message", "faultline probe check-in", "Message to capture")
	skipPing := flag.Bool("skip-ping", false, "Skip the ingest reachability check")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dsn != "" {
		cfg.DSN = *dsn
	}
	if cfg.DSN == "" {
		log.Fatal("No DSN configured: set FAULTLINE_DSN, pass -dsn, or use a config file")
	}

	parsed, err := protocol.ParseDSN(cfg.DSN)
	if err != nil {
		log.Fatalf("Invalid DSN: %v", err)
	}

	if !*skipPing {
		if err := ping(parsed.BaseURL()); err != nil {
			log.Fatalf("Ingest endpoint unreachable: %v", err)
		}
		log.Printf("Ingest endpoint reachable: %s", parsed.BaseURL())
	}

	opts := cfg.ClientOptions()
	// The probe always traces its own transaction.
	if opts.TracesSampleRate == 0 {
		opts.TracesSampleRate = 1.0
	}
	cl, err := client.New(opts)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	h := hub.New(cl, hub.NewScope())

	tx := h.StartTransaction(nil, trace.TransactionOptions{
		Name: "probe check-in",
		Op:   "probe",
	})
	child := tx.StartChild("probe.capture")
	eventID := h.CaptureMessage(*message)
	child.Finish()
	tx.Finish()

	if eventID != nil {
		log.Printf("Captured message %s", *eventID)
	}

	if !cl.Close(cfg.FlushTimeout) {
		log.Println("Flush timed out, some events may be lost")
		os.Exit(1)
	}
	log.Println("Probe complete")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// ping checks that the ingest host answers HTTP at all. Unlike the
// transport, a diagnostic probe retries transient failures.
func ping(baseURL string) error {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	resp, err := rc.Get(baseURL)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
