// Command counter has ten workers increment a counter shared behind a mutex.
package main

import (
	"context"
	"log"
	"os"

	"github.com/gostdlib/threadkit/demos"
)

// workers is the number of incrementing workers.
const workers = 10

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := demos.Counter(context.Background(), os.Stdout, workers); err != nil {
		log.Fatalf("counter: %s", demos.Diagnose(err))
	}
}
