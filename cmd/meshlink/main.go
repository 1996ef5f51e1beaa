package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Archie3d/meshtastic-link/pkg/blelink"
	"github.com/Archie3d/meshtastic-link/pkg/meshtastic"
	"github.com/Archie3d/meshtastic-link/pkg/seriallink"
	"github.com/Archie3d/meshtastic-link/pkg/transport"
	"github.com/charmbracelet/log"
	"tinygo.org/x/bluetooth"
)

type link interface {
	transport.Link
	io.Closer
}

func usage() {
	flag.PrintDefaults()
}

func showUsageAndExit(exitCode int) {
	fmt.Println("Meshtastic radio link")
	usage()
	os.Exit(exitCode)
}

func openLink(config *meshtastic.NodeConfiguration) (link, error) {
	switch config.Link.Type {
	case meshtastic.LinkTypeSerial:
		return seriallink.Open(config.Link.Port, config.Link.BaudRate)
	case meshtastic.LinkTypeBle:
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(config.Link.ConnectTimeout))
		defer cancel()
		return blelink.Connect(ctx, bluetooth.DefaultAdapter, config.Link.Address)
	}

	return nil, fmt.Errorf("unknown link type %q", config.Link.Type)
}

func printNodes(node *meshtastic.Node) {
	for _, info := range node.Nodes().Nodes() {
		lat, hasLat := info.Position.Latitude()
		lon, _ := info.Position.Longitude()

		position := "unknown"
		if hasLat {
			position = fmt.Sprintf("%.5f, %.5f", lat, lon)
		}

		fmt.Printf("%08x  %-12s %-30s %s\n", uint32(info.Num), info.User.Id, info.User.LongName, position)
	}
}

func main() {
	var configFile = flag.String("c", "", "Configuration file")
	var showHelp = flag.Bool("h", false, "Show help")

	flag.Usage = usage
	flag.Parse()

	if *showHelp {
		showUsageAndExit(0)
	}

	if *configFile == "" {
		log.Fatal("Configuration file is not specified")
	}

	config, err := meshtastic.LoadNodeConfiguration(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %s", err.Error())
	}

	level, err := log.ParseLevel(config.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %s", err.Error())
	}
	log.SetLevel(level)

	radioLink, err := openLink(config)
	if err != nil {
		log.Fatalf("Failed to open %s link: %s", config.Link.Type, err.Error())
	}
	defer radioLink.Close()

	tr := transport.New(radioLink)
	defer tr.Close()

	node := meshtastic.NewNode(config, tr)
	if err := node.Start(); err != nil {
		log.Fatal(err)
	}

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	select {
	case <-c:
	case <-node.Done():
	}

	node.Stop()

	printNodes(node)

	stats := tr.Stats()
	log.With(
		"chunks_in", stats.ChunksIn,
		"bytes_in", stats.BytesIn,
		"chunks_out", stats.ChunksOut,
		"bytes_out", stats.BytesOut,
	).Info("Link closed")

	if err := node.Err(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
