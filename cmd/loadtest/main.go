// Command loadtest нагружает gRPC CartService витрины: наполняет корзины
// и, в режиме cart-checkout, оформляет заказы под демо-покупателем.
package main

import (
	"fmt"
	"os"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/vladislavdragonenkov/storefront/internal/transport/grpcapi"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	clients := make([]cartClient, 0, cfg.connections)
	for range cfg.connections {
		conn, err := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("dial %s: %w", cfg.addr, err)
		}
		defer conn.Close()
		clients = append(clients, grpcapi.NewClient(conn))
	}

	result, err := execute(cfg, clients)
	if err != nil {
		return fmt.Errorf("aborted: %w", err)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if result.FailedScenarios > 0 {
		return fmt.Errorf("%d of %d scenarios failed", result.FailedScenarios, result.TotalScenarios)
	}
	return nil
}
