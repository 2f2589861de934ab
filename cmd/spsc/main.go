// Command spsc has a worker send a single message over a channel to main.
package main

import (
	"context"
	"log"
	"os"

	"github.com/gostdlib/threadkit/demos"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := demos.SingleProducer(context.Background(), os.Stdout); err != nil {
		log.Fatalf("spsc: %s", demos.Diagnose(err))
	}
}
