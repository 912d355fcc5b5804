// Tradingbotctl is a read-only status printer over the trading
// database: bot state isn't visible here since the engines live inside
// the tradingbot process, but positions, trades, and logs are.
package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coinforge/tradeengine/internal/config"
	"github.com/coinforge/tradeengine/internal/store"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: tradingbotctl <positions|trades|logs> [userID]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer db.Close()

	userID := "default"
	if len(os.Args) > 2 {
		userID = os.Args[2]
	}

	switch os.Args[1] {
	case "positions":
		printPositions(db, userID)
	case "trades":
		printTrades(db, userID)
	case "logs":
		printLogs(db, userID)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}

func printPositions(db *store.Store, userID string) {
	positions, err := db.GetOpenPositions(store.PositionFilter{UserID: userID})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load positions")
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Symbol", "Mode", "Dir", "Entry", "Current", "PnL", "Strategy", "Paper")
	for _, p := range positions {
		table.Append(
			p.Symbol, string(p.TradingMode), string(p.Direction),
			p.EntryPrice.String(), p.CurrentPrice.String(), p.PnL.String(),
			string(p.Strategy), fmt.Sprintf("%v", p.IsPaperTrade),
		)
	}
	table.Render()
}

func printTrades(db *store.Store, userID string) {
	trades, err := db.GetTradeHistory(userID, 20)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load trade history")
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Symbol", "Mode", "Dir", "Entry", "Exit", "PnL", "Strategy", "Exit Time")
	for _, tr := range trades {
		table.Append(
			tr.Symbol, string(tr.TradingMode), string(tr.Direction),
			tr.EntryPrice.String(), tr.ExitPrice.String(), tr.PnL.String(),
			string(tr.Strategy), tr.ExitTime.Format("2006-01-02 15:04:05"),
		)
	}
	table.Render()
}

func printLogs(db *store.Store, userID string) {
	logs, err := db.GetBotLogs(userID, 50)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load bot logs")
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Time", "Level", "Symbol", "Message")
	for _, l := range logs {
		table.Append(l.CreatedAt.Format("15:04:05"), string(l.Level), l.Symbol, l.Message)
	}
	table.Render()
}
