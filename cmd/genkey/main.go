package main

import (
	"fmt"
	"os"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/domain"
)

func main() {
	name := "default"
	env := domain.EnvLive

	if len(os.Args) > 1 {
		name = os.Args[1]
	}
	if len(os.Args) > 2 && os.Args[2] == "test" {
		env = domain.EnvTest
	}

	key, hash, prefix, err := domain.GenerateAPIKey(env)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}

	client := domain.APIClient{Name: name, KeyHash: hash}
	if err := client.Validate(); err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("KEY=%s\nPREFIX=%s\nAPI_CLIENTS=%s:%s\n", key, prefix, client.Name, client.KeyHash)
}
