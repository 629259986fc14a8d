// Command peer is a headless mesh participant: it joins a room through the
// relay, negotiates a media connection with every other member and feeds a
// synthetic video track into the mesh.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/adapters/relayws"
	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/dkeye/Meet/internal/client"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Relay base URL.")
	room := flag.String("room", "main", "Room id to join.")
	name := flag.String("name", "peer", "Display name presented to the room.")
	handshakeTimeout := flag.Duration("handshake-timeout", 30*time.Second, "Give up on a stalled handshake after this long.")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Media comes first: if acquisition fails the relay is never contacted.
	media, err := rtc.NewVideoSource("meet-peer")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to acquire local media")
	}
	media.StartSynthetic(ctx)

	conn, err := relayws.Dial(ctx, *server, *room, *name)
	if err != nil {
		media.Release()
		log.Fatal().Err(err).Msg("failed to reach relay")
	}

	factory := rtc.NewLinkFactory(rtc.DefaultWebRTCConfig(nil), media)

	mgr := client.NewManager(client.Options{
		Signaler:         conn,
		Links:            factory,
		Media:            media,
		HandshakeTimeout: *handshakeTimeout,
		OnParticipants: func(view []client.Participant) {
			log.Info().Int("visible", len(view)).Msg("participants updated")
		},
	})

	go conn.Pump(ctx, mgr)

	log.Info().Str("server", *server).Str("room", *room).Str("name", *name).Msg("joining")
	mgr.Run(ctx)
	log.Info().Msg("call ended")
}
