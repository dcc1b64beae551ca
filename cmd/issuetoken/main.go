// Command issuetoken prints a signed identity token for a player, the way a
// game server would mint one before the player connects to the gateway.
//
//	AUTH_SECRET=... issuetoken -identity 76561198000000001 -name Alice -ttl 12h
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/whisper/chatmod/internal/auth"
	"github.com/whisper/chatmod/internal/config"
)

func main() {
	identity := flag.String("identity", "", "player identity (token subject)")
	name := flag.String("name", "", "display name")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg := config.LoadProcess()
	if cfg.AuthSecret == "" {
		log.Fatal("AUTH_SECRET is not set")
	}
	if *identity == "" {
		log.Fatal("-identity is required")
	}

	token, err := auth.NewVerifier(cfg.AuthSecret).Issue(*identity, *name, *ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
}
