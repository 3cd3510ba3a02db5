// Command stack supervises the local mock upstreams (challenge service and
// verification service) as one unit, for driving the client against a live
// stack without docker.
//
// Build the service binaries first:
//
//	go build -o bin/challenge-service ./mocks/challenge-service
//	go build -o bin/verify-service ./mocks/verify-service
package main

import (
	"context"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

type service struct {
	name string
	bin  string
	port string
}

func main() {
	services := []service{
		{name: "challenge-service", bin: getenv("CHALLENGE_BIN", "bin/challenge-service"), port: getenv("CHALLENGE_PORT", "5012")},
		{name: "verify-service", bin: getenv("VERIFY_BIN", "bin/verify-service"), port: getenv("VERIFY_PORT", "5015")},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		g.Go(func() error {
			log.Printf("🚀 Starting %s on port %s", svc.name, svc.port)
			cmd := exec.CommandContext(ctx, svc.bin)
			cmd.Env = append(os.Environ(), "PORT="+svc.port)
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			err := cmd.Run()
			if ctx.Err() != nil {
				// shut down by signal or sibling failure, not a fault of ours
				return nil
			}
			log.Printf("💥 %s exited: %v", svc.name, err)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
	log.Println("👋 Stack stopped")
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
