// Package main provides a CLI tool for storing gateway credentials in the
// settings database, sealed when a store secret is configured.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"presencebridge/internal/config"
	"presencebridge/internal/store"
)

func main() {
	configPath := flag.String("config", os.Getenv("PRESENCE_CONFIG"), "path to configuration file (optional)")
	appID := flag.String("app-id", "", "gateway application id (required)")
	token := flag.String("token", "", "gateway auth token; empty keeps the stored token")
	remove := flag.Bool("clear", false, "remove stored credentials instead")
	flag.Parse()

	if *appID == "" && !*remove {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	s, err := store.Open(cfg.Store)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	if *remove {
		for _, key := range []string{store.KeyApplicationID, store.KeyToken} {
			if err := s.DeleteSetting(key); err != nil {
				log.Fatalf("clearing credentials: %v", err)
			}
		}
		fmt.Fprintln(os.Stdout, "cleared stored gateway credentials")
		return
	}

	creds := store.GatewayCredentials{ApplicationID: *appID, Token: *token}
	if err := s.SetGatewayCredentials(creds); err != nil {
		log.Fatalf("storing credentials: %v", err)
	}
	fmt.Fprintf(os.Stdout, "stored gateway credentials for application %s (token sealed: %t)\n",
		*appID, s.HasSealer() && *token != "")
}
