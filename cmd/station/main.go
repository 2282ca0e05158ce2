// Command station runs the ingestion, STFT, and distribution stages
// (C5-C7): it turns transport.Segment payloads into frequency frames and
// serves them from a distribution ring to catch-up clients. Since the
// wire RPC boundary itself is out of scope (spec §1), this binary takes
// its segments from a recorded file via internal/replay rather than a
// real network listener, demonstrating the same ingest/STFT/ring wiring
// a networked station would use.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/kholors/station/internal/cli"
	"github.com/kholors/station/internal/config"
	"github.com/kholors/station/internal/forwarder"
	"github.com/kholors/station/internal/ingest"
	"github.com/kholors/station/internal/logging"
	"github.com/kholors/station/internal/replay"
	"github.com/kholors/station/internal/ring"
	"github.com/kholors/station/internal/stft"
	"github.com/kholors/station/internal/taskbus"
	"github.com/kholors/station/internal/timing"
	"github.com/kholors/station/internal/transport"
	"github.com/kholors/station/internal/ui"
)

const version = "0.1.0"

var CLI struct {
	Replay  string `arg:"" name:"replay" help:"Recorded .wav/.mp3/.flac file to ingest as incoming track segments" type:"existingfile"`
	TUI     bool   `help:"Show the live ops dashboard instead of plain log output"`
	Workers int    `help:"STFT worker pool size (0 = number of CPUs)" default:"0"`
	Version bool   `help:"Show version information" short:"v"`
}

func main() {
	kong.Parse(&CLI,
		kong.Name("station"),
		kong.Description("Ingests recorded track audio and serves FFT frames from a distribution ring."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	if CLI.Version {
		cli.PrintVersion("station", version)
		return
	}

	_ = godotenv.Load()
	rt := config.LoadRuntime()
	log := logging.Named("cmd/station")

	cli.PrintBanner("station")
	sessionID := uuid.New().String()
	cli.PrintInfo("session", sessionID)
	log.Info("starting station session", "session_id", sessionID, "replay", CLI.Replay)

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

	store := ingest.New(rt.PoolCapacity)
	defer store.Stop()

	pool := stft.New(CLI.Workers)
	defer pool.Close()

	distRing := ring.New(rt.RingCapacity, config.NumBinsPerFFT())

	stopProcessing := make(chan struct{})
	processingDone := make(chan struct{})
	go runProcessingLoop(store, pool, distRing, timer, stopProcessing, processingDone)

	ingestDone := make(chan error, 1)
	go func() { ingestDone <- ingestReplay(dec, store) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if CLI.TUI {
		sampler := ui.RingAndForwarders{
			Ring:       distRing,
			Forwarders: func() []*forwarder.Forwarder { return nil },
		}
		model := ui.NewModel(sampler, bus)
		defer model.Close()
		p := tea.NewProgram(model)
		go func() {
			select {
			case err := <-ingestDone:
				if err != nil {
					log.Error("replay ingestion stopped with error", "err", err)
				}
			case <-sigCh:
			}
			p.Quit()
		}()
		if _, err := p.Run(); err != nil {
			cli.PrintError(fmt.Sprintf("dashboard error: %v", err))
		}
	} else {
		select {
		case err := <-ingestDone:
			if err != nil {
				log.Error("replay ingestion stopped with error", "err", err)
			}
		case <-sigCh:
			log.Info("received interrupt, shutting down")
		}
	}

	close(stopProcessing)
	<-processingDone
	stats := distRing.Stats()
	cli.PrintSuccess(fmt.Sprintf("ingested %s", CLI.Replay))
	cli.PrintInfo("ring generation", fmt.Sprintf("%d", stats.Generation))
	cli.PrintInfo("ring offset", fmt.Sprintf("%d", stats.LastOffset))
}

// ingestReplay decodes the whole file into config.BlockSize chunks and
// parses each as a single-channel transport.Segment, as a networked
// station would for each inbound sink payload.
func ingestReplay(dec replay.Decoder, store *ingest.Store) error {
	var startSample int64
	for {
		chunk, err := dec.ReadChunk(config.BlockSize)
		if len(chunk) > 0 {
			samples := make([]float32, len(chunk))
			for i, v := range chunk {
				samples[i] = float32(v)
			}
			seg := transport.Segment{
				TrackIdentifier:     1,
				TrackName:           "replay",
				DawSampleRate:       uint32(dec.SampleRate()),
				SegmentStartSample:  startSample,
				SegmentSampleDur:    uint32(len(chunk)),
				SegmentNoChannels:   1,
				SegmentAudioSamples: samples,
				PayloadSentTimeMs:   time.Now().UnixMilli(),
			}
			if perr := store.Parse(seg); perr != nil {
				return perr
			}
			startSample += int64(len(chunk))
		}
		if err != nil {
			if err == replay.EOF {
				return nil
			}
			return err
		}
	}
}

// runProcessingLoop drains Datums from store, running audio segments
// through the STFT pool and publishing the resulting frames to the
// distribution ring, until stop is closed.
func runProcessingLoop(store *ingest.Store, pool *stft.Pool, r *ring.Ring, timer *timing.Timer, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		d, ok := store.WaitForDatum()
		if !ok {
			continue
		}

		if d.Datum.Kind == ingest.KindAudioSegment {
			seg := d.Datum.Segment
			wg := timer.Acquire(time.Now())
			wg.Add()

			samples := seg.Samples[:seg.Duration]
			result := pool.PerformFFT(samples)

			r.Write(transport.Frame{
				TrackIdentifier:    seg.TrackIdentifier,
				TotalNoChannels:    1,
				ChannelIndex:       seg.Channel,
				SampleRate:         seg.SampleRate,
				SegmentStartSample: seg.StartSample,
				SegmentSampleLen:   seg.Duration,
				NumFFTs:            uint32(config.NumFFTs(int(seg.Duration))),
				FFTData:            result,
				SentTimeUnixMs:     time.Now().UnixMilli(),
			})

			pool.Release(result)
			wg.Done()
		}

		store.Release(d.StorageID)
	}
}
