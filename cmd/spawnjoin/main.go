// Command spawnjoin moves a vector into a worker, prints it from there and
// joins the worker.
package main

import (
	"context"
	"log"
	"os"

	"github.com/gostdlib/threadkit/demos"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := demos.SpawnJoin(context.Background(), os.Stdout); err != nil {
		log.Fatalf("spawnjoin: %s", demos.Diagnose(err))
	}
}
