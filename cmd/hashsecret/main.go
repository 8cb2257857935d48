// Command hashsecret prints the bcrypt hash of an API client secret, for
// use as auth.clients[].secret_hash in app.yaml.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"fieldengine/internal/auth"
)

func main() {
	var secret string
	if len(os.Args) > 1 {
		secret = os.Args[1]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatalf("read secret: %v", err)
		}
		secret = strings.TrimSpace(line)
	}
	if secret == "" {
		log.Fatal("usage: hashsecret <secret>  (or pipe the secret on stdin)")
	}

	hash, err := auth.HashSecret(secret)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(hash)
}
