package main

import (
	"flag"
	"log"

	"sprout/config"
	"sprout/server"
)

func main() {
	cfgPath := flag.String("config", "", "path to sprout.yaml (default: search cwd, ./config, /etc/sprout)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app := &server.App{}
	app.Initialize(cfg)
	if err := app.Run(); err != nil {
		log.Fatalf("server: %v", err)
	}
}
