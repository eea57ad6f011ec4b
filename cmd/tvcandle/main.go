package main

import (
	"context"
	"log"
	"os"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/haidl/tvstream/candle"
	"github.com/haidl/tvstream/client"
)

func main() {
	endpoint := getEnv("TV_ENDPOINT", "wss://data.tradingview.com/socket.io/websocket")
	symbol := getEnv("SYMBOL", "BINANCE:BTCUSDT")
	interval := getEnv("INTERVAL", "1")
	nKline := getEnvInt("N_KLINE", 48)

	cfg := client.DefaultConfig(endpoint)
	cfg.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	c, err := client.New(cfg)
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := c.StreamCandles(ctx, symbol, interval, nKline)
	if err != nil {
		log.Fatalf("failed to start stream: %v", err)
	}

	ch := make(chan candle.Candle, 128)
	go func() {
		defer close(ch)
		for {
			select {
			case bar, ok := <-stream.C:
				if !ok {
					return
				}
				ch <- bar
			case err := <-stream.Err:
				if err != nil {
					log.Printf("stream error: %v", err)
				}
				return
			}
		}
	}()

	p := tea.NewProgram(
		newModel(symbol, interval, nKline, ch),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		log.Fatalf("tui error: %v", err)
	}
	stream.Close()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
