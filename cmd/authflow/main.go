package main

import (
	"flag"
	"log"
	"os"

	"github.com/aussiebroadwan/authflow/internal/app"
	"github.com/ilyakaznacheev/cleanenv"
)

func main() {
	var cfg app.Config

	fs := flag.NewFlagSet("authflow", flag.ExitOnError)
	fs.Usage = cleanenv.FUsage(fs.Output(), &cfg, nil, fs.PrintDefaults)
	_ = fs.Parse(os.Args[1:])

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(os.Stdin, os.Stdout); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
