// contactd serves the contact form endpoint.
package main

import (
	"context"
	"log"

	"github.com/dalemusser/contactrelay/app"
	"github.com/dalemusser/contactrelay/internal/app/bootstrap"
)

func main() {
	if err := app.Run(context.Background(), bootstrap.Hooks); err != nil {
		log.Fatal(err)
	}
}
