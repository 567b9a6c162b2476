package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"cater/internal/config"
	"cater/internal/database"
	"cater/internal/domain"
	"cater/internal/services"
)

func main() {
	name := flag.String("name", "", "service name (default: derived from provider)")
	test := flag.Bool("test", false, "check the provider credentials before activating")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := database.Init(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc := services.ServiceFromConfig(cfg)
	if *name != "" {
		svc.Name = *name
	}

	if *test {
		if svc.Provider != domain.ProviderTwilio {
			fmt.Printf("Provider %q needs no connection test\n", svc.Provider)
		} else if err := services.NewTwilioDispatcher().TestConnection(ctx, svc); err != nil {
			log.Fatalf("Connection test failed: %v", err)
		} else {
			fmt.Println("Connection test passed")
		}
	}

	store := services.NewOutboundServiceStore(database.GetDB())
	active, err := store.Activate(ctx, svc)
	if err != nil {
		log.Fatalf("Failed to activate service: %v", err)
	}

	fmt.Printf("Activated %s (provider=%s, id=%d)\n", active.Name, active.Provider, active.ID)
	if url := active.StatusCallbackURL(); url != "" {
		fmt.Printf("Status callbacks: %s\n", url)
	} else {
		fmt.Println("Status callbacks disabled: BASE_URL is not a public http(s) URL")
	}
}
