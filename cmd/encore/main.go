package main

import (
	"context"
	"log"
	"os"
)

func main() {
	if err := newCommand(os.Stdout).Run(context.Background(), os.Args); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
