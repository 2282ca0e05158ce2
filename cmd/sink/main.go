// Command sink runs one track's audio-thread -> coalescer -> sender
// pipeline (C1-C4), fed from a recorded file in place of a live DAW
// callback (internal/replay), since capturing real host audio is a
// non-goal of this module.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/kholors/station/internal/cli"
	"github.com/kholors/station/internal/forwarder"
	"github.com/kholors/station/internal/logging"
	"github.com/kholors/station/internal/replay"
	"github.com/kholors/station/internal/taskbus"
	"github.com/kholors/station/internal/timing"
	"github.com/kholors/station/internal/transport"
)

const version = "0.1.0"

var CLI struct {
	Replay    string `arg:"" name:"replay" help:"Recorded .wav/.mp3/.flac file to stream as if it were live DAW audio" type:"existingfile"`
	TrackName string `help:"Track name sent with every payload" default:"replay"`
	TrackID   uint64 `help:"Track identifier sent with every payload" default:"1"`
	Pace      bool   `help:"Sleep between blocks to approximate real-time playback" default:"true"`
	Version   bool   `help:"Show version information" short:"v"`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("sink"),
		kong.Description("Streams a recorded audio file through the sink pipeline as if it were a live DAW track."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	if CLI.Version {
		cli.PrintVersion("sink", version)
		return
	}

	_ = godotenv.Load()
	log := logging.Named("cmd/sink")

	cli.PrintBanner("sink")
	sessionID := uuid.New().String()
	cli.PrintInfo("session", sessionID)
	log.Info("starting sink session", "session_id", sessionID, "replay", CLI.Replay)

	dec, err := replay.Open(CLI.Replay)
	if err != nil {
		cli.PrintError(fmt.Sprintf("opening %s: %v", CLI.Replay, err))
		os.Exit(1)
	}
	defer dec.Close()

	bus := taskbus.New()
	bus.Start()
	defer bus.ShutdownAsync()

	timer := timing.NewTimer(bus)
	defer timer.Close()

	tr := transport.NewMemory(1)
	fwd := forwarder.New(tr, forwarder.WithTimer(timer))
	fwd.SetTrackIdentity(forwarder.TrackIdentity{ID: CLI.TrackID, Name: CLI.TrackName})
	fwd.Start()

	src := replay.NewSource(dec, fwd, CLI.Pace)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan error, 1)
	go func() { done <- src.Run() }()

	select {
	case err := <-done:
		if err != nil {
			log.Error("replay source stopped with error", "err", err)
		}
	case <-sigCh:
		log.Info("received interrupt, shutting down")
	}

	fwd.Shutdown()
	cli.PrintSuccess(fmt.Sprintf("streamed %s as track %q (id=%d)", CLI.Replay, CLI.TrackName, CLI.TrackID))
	cli.PrintInfo("dropped blocks", fmt.Sprintf("%d", fwd.DroppedBlocks()))
}
