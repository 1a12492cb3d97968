package app

import (
	"os"
	"strings"
)

// postgresTestDSNCandidate возвращает DSN тестовой базы, если он задан.
func postgresTestDSNCandidate() string {
	for _, key := range []string{"STOREFRONT_POSTGRES_TEST_DSN", "STOREFRONT_POSTGRES_DSN"} {
		if dsn := strings.TrimSpace(os.Getenv(key)); dsn != "" {
			return dsn
		}
	}
	return ""
}
