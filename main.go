// Package main provides the entry point for the Marker Reader viewer.
package main

import (
	"flag"
	"fmt"
	"log"

	"marker-reader/internal/config"
	"marker-reader/internal/version"
	"marker-reader/ui/prefs"
	"marker-reader/ui/viewer"

	"fyne.io/fyne/v2/app"
)

const appID = "io.github.marker-reader"

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults built in)")
	source := flag.String("source", "", "Device index or stream URL to start immediately")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("marker-reader"))
		return
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Starting %s", version.String("marker-reader"))

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Config: %v", err)
	}

	fyneApp := app.NewWithID(appID)
	fyneApp.Settings().SetTheme(&viewer.MarkerTheme{})

	win := viewer.New(fyneApp, cfg, prefs.Load())

	if *source != "" {
		win.Connect(*source)
	}

	win.ShowAndRun()
}
