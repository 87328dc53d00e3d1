package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/elevenby-design/bridal-showroom-webhooks/internal/config"
	"github.com/elevenby-design/bridal-showroom-webhooks/internal/security"
)

// seal-token reads an Admin API access token on stdin and prints the value
// for SHOPIFY_ACCESS_TOKEN_ENC, sealed with TOKEN_ENC_KEY_B64.
func main() {
	_ = godotenv.Load()

	tc, err := security.NewTokenCipher(os.Getenv(config.EnvTokenKey))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", config.EnvTokenKey, err)
		os.Exit(1)
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	token := strings.TrimSpace(line)
	if token == "" {
		fmt.Fprintf(os.Stderr, "no token on stdin (%v)\n", err)
		os.Exit(1)
	}

	sealed, err := tc.Seal(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seal: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(sealed)
}
