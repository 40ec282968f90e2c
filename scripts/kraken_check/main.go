// Command kraken_check verifies configuration, journal and Kraken
// connectivity before the bot is started.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"trend-core/pkg/config"
	"trend-core/pkg/db"
	"trend-core/pkg/exchanges/kraken"
)

type CheckStatus struct {
	Service   string    `json:"service"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Report struct {
	Overall  string        `json:"overall"`
	Services []CheckStatus `json:"services"`
}

func main() {
	fmt.Println("trend-core pre-flight check")
	fmt.Println("==========================")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report := Report{Overall: "HEALTHY"}

	cfg, cfgStatus := checkConfig()
	report.Services = append(report.Services, cfgStatus)
	if cfg != nil {
		report.Services = append(report.Services, checkDatabase(ctx, cfg))

		client, err := kraken.New(kraken.Config{
			APIKey:    cfg.KrakenAPIKey,
			APISecret: cfg.KrakenAPISecret,
			BaseURL:   cfg.KrakenBaseURL,
		})
		if err != nil {
			report.Services = append(report.Services, unhealthy("Kraken client", err))
		} else {
			report.Services = append(report.Services,
				checkTicker(ctx, client, cfg.Trading.TradingPairs[0]),
				checkBalance(ctx, client, cfg.Trading.QuoteCurrency()),
			)
		}
		if cfg.Trading.EnableHealthCheck {
			report.Services = append(report.Services, checkMonitor(ctx, cfg.MonitorPort))
		}
	}

	for _, svc := range report.Services {
		if svc.Status == "UNHEALTHY" {
			report.Overall = "UNHEALTHY"
			break
		} else if svc.Status == "DEGRADED" {
			report.Overall = "DEGRADED"
		}
	}

	fmt.Println()
	for _, svc := range report.Services {
		icon := "✓"
		switch svc.Status {
		case "UNHEALTHY":
			icon = "✗"
		case "DEGRADED":
			icon = "⚠"
		}
		fmt.Printf("%s %-20s %s %s\n", icon, svc.Service, svc.Status, svc.Message)
	}
	fmt.Println()
	fmt.Printf("Overall Status: %s\n", report.Overall)

	if len(os.Args) > 1 && os.Args[1] == "--json" {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	}

	if report.Overall == "UNHEALTHY" {
		os.Exit(1)
	}
}

func healthy(service, msg string) CheckStatus {
	return CheckStatus{Service: service, Status: "HEALTHY", Message: msg, Timestamp: time.Now()}
}

func unhealthy(service string, err error) CheckStatus {
	return CheckStatus{Service: service, Status: "UNHEALTHY", Message: err.Error(), Timestamp: time.Now()}
}

func checkConfig() (*config.Config, CheckStatus) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, unhealthy("Configuration", err)
	}
	return cfg, healthy("Configuration", fmt.Sprintf("file=%s pairs=%v", cfg.ConfigFile, cfg.Trading.TradingPairs))
}

func checkDatabase(ctx context.Context, cfg *config.Config) CheckStatus {
	if !cfg.Trading.EnableDatabase {
		return CheckStatus{Service: "Trade journal", Status: "DEGRADED", Message: "disabled", Timestamp: time.Now()}
	}
	database, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		return unhealthy("Trade journal", err)
	}
	defer database.Close()
	return healthy("Trade journal", cfg.DBPath)
}

func checkTicker(ctx context.Context, client *kraken.Client, symbol string) CheckStatus {
	t, err := client.Ticker(ctx, symbol)
	if err != nil {
		return unhealthy("Kraken public", err)
	}
	return healthy("Kraken public", fmt.Sprintf("%s last=%.8g", symbol, t.Last))
}

func checkBalance(ctx context.Context, client *kraken.Client, quote string) CheckStatus {
	balances, err := client.Balance(ctx)
	if err != nil {
		status := unhealthy("Kraken private", err)
		if errors.Is(err, kraken.ErrInvalidKey) {
			status.Message = "API key rejected: " + err.Error()
		}
		return status
	}
	return healthy("Kraken private", fmt.Sprintf("%d assets, %s=%.2f", len(balances), quote, balances[quote]))
}

func checkMonitor(ctx context.Context, port int) CheckStatus {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%d/health", port), nil)
	if err != nil {
		return unhealthy("Monitor API", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return CheckStatus{Service: "Monitor API", Status: "DEGRADED", Message: "not running: " + err.Error(), Timestamp: time.Now()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return CheckStatus{Service: "Monitor API", Status: "DEGRADED", Message: resp.Status, Timestamp: time.Now()}
	}
	return healthy("Monitor API", resp.Status)
}
