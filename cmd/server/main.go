package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/materialkeeper/internal/server"
	"github.com/dmitrijs2005/materialkeeper/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
	defer app.Close(context.Background())

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}

}
