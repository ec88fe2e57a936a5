package main

import (
	"fmt"
	"os"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/domain"
)

// calc_api_hash.go - Utility to build an API_CLIENTS entry for an existing key
//
// Usage:
//   go run scripts/calc_api_hash.go <client_name> <api_key>
//
// Example:
//   go run scripts/calc_api_hash.go acme lg_test_devdevdevdevdevdevdevdevdevdev00
//
// Output:
//   API_CLIENTS=acme:<sha256 hex of the key>

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: go run calc_api_hash.go <client_name> <api_key>")
		fmt.Println("")
		fmt.Println("Example:")
		fmt.Println("  go run scripts/calc_api_hash.go acme lg_test_devdevdevdevdevdevdevdevdevdev00")
		os.Exit(1)
	}

	name, apiKey := os.Args[1], os.Args[2]
	if !domain.IsValidFormat(apiKey) {
		fmt.Fprintln(os.Stderr, "warning: key does not look like lg_<env>_<32 base62 chars>")
	}

	fmt.Printf("API Key: %s\n", apiKey)
	fmt.Printf("API_CLIENTS=%s:%s\n", name, domain.HashAPIKey(apiKey))
}
