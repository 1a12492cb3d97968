package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"
)

const defaultProducts = "wireless-headphones,running-shoes,yoga-mat,backpack"

type loadMode string

const (
	modeCart         loadMode = "cart"
	modeCartCheckout loadMode = "cart-checkout"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	products    []string
	quantity    int
	email       string
	password    string
	sessionTag  string
	outputPath  string
}

func parseConfig(args []string) (config, error) {
	var (
		cfg      config
		mode     string
		products string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "CartService address")
	fs.IntVar(&cfg.total, "total", 400, "scenarios to run; with -duration acts as an upper bound")
	fs.DurationVar(&cfg.duration, "duration", 0, "run for a fixed time instead of a fixed count")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "parallel workers")
	fs.IntVar(&cfg.connections, "connections", 20, "gRPC connections shared by workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "deadline of a single RPC")
	fs.StringVar(&mode, "mode", string(modeCart), "cart | cart-checkout")
	fs.StringVar(&products, "products", defaultProducts, "comma-separated product ids")
	fs.IntVar(&cfg.quantity, "quantity", 2, "quantity asked per add, clamped to stock by the server")
	fs.StringVar(&cfg.email, "email", "user@shop.local", "checkout account")
	fs.StringVar(&cfg.password, "password", "user123", "checkout account password")
	fs.StringVar(&cfg.sessionTag, "session-tag", "load", "prefix of cart session ids")
	fs.StringVar(&cfg.outputPath, "output", "", "write the JSON report to this file")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) {
		cfg.totalSet = cfg.totalSet || f.Name == "total"
	})

	var err error
	if cfg.mode, err = parseMode(mode); err != nil {
		return cfg, err
	}
	cfg.products = splitList(products)
	return cfg, cfg.validate()
}

func (c config) validate() error {
	checks := []struct {
		bad bool
		msg string
	}{
		{c.duration < 0, "duration must be >= 0"},
		{c.duration == 0 && c.total <= 0, "total must be > 0 without duration"},
		{c.duration > 0 && c.totalSet && c.total <= 0, "total must be > 0 when set together with duration"},
		{c.concurrency <= 0, "concurrency must be > 0"},
		{c.connections <= 0, "connections must be > 0"},
		{c.timeout <= 0, "timeout must be > 0"},
		{c.quantity <= 0, "quantity must be > 0"},
		{len(c.products) == 0, "products are required"},
		{strings.TrimSpace(c.sessionTag) == "", "session-tag is required"},
		{c.mode == modeCartCheckout && (strings.TrimSpace(c.email) == "" || c.password == ""), "cart-checkout needs email and password"},
	}
	for _, check := range checks {
		if check.bad {
			return errors.New(check.msg)
		}
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCart, modeCartCheckout:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// runTarget описывает границу прогона для сводки.
func (c config) runTarget() string {
	switch {
	case c.duration <= 0:
		return fmt.Sprintf("count:%d", c.total)
	case c.totalSet:
		return fmt.Sprintf("duration:%s,max-total:%d", c.duration, c.total)
	default:
		return fmt.Sprintf("duration:%s", c.duration)
	}
}
