// Command mpsc has two workers send on clones of the same channel Sender while
// main drains the channel until both are done.
package main

import (
	"context"
	"log"
	"os"

	"github.com/gostdlib/threadkit/demos"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := demos.MultiProducer(context.Background(), os.Stdout); err != nil {
		log.Fatalf("mpsc: %s", demos.Diagnose(err))
	}
}
