// Command consult is a terminal participant: it joins the tenant as a
// client or a consultant and drives calls from stdin.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/consult/internal/adapters/rtc"
	wsession "github.com/dkeye/consult/internal/adapters/session"
	"github.com/dkeye/consult/internal/api"
	"github.com/dkeye/consult/internal/backend"
	"github.com/dkeye/consult/internal/bus"
	"github.com/dkeye/consult/internal/config"
	"github.com/dkeye/consult/internal/core"
	"github.com/dkeye/consult/internal/domain"
	"github.com/dkeye/consult/internal/signals"
	"github.com/dkeye/consult/internal/storage"
	"github.com/dkeye/consult/internal/transport"
	"github.com/dkeye/consult/internal/widget"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if len(os.Args) < 2 || (os.Args[1] != "client" && os.Args[1] != "consultant") {
		fmt.Fprintln(os.Stderr, "usage: consult (client|consultant)")
		os.Exit(2)
	}
	role := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if err := run(ctx, role, &cfg.Client); err != nil {
		log.Fatal().Err(err).Msg("participant failed")
	}
}

func run(ctx context.Context, role string, cfg *config.Client) error {
	be := backend.New(cfg.BackendURL, cfg.Token)

	var store core.Storage = storage.NewMemory()
	if cfg.StoragePath != "" {
		store = storage.NewFile(cfg.StoragePath)
	}

	ptype := domain.ParticipantClient
	if role == "consultant" {
		ptype = domain.ParticipantConsultant
	}
	meta, profile, err := api.BuildMetadata(ctx, ptype, be, store)
	if err != nil {
		return fmt.Errorf("build metadata: %w", err)
	}
	tenant, err := be.FetchTenant(ctx)
	if err != nil {
		return fmt.Errorf("fetch tenant: %w", err)
	}
	fmt.Printf("%s @ %s (%s)\n", profile.Email, tenant.Name, role)

	signalConn := wsession.NewConnector(cfg.ServerURL, cfg.Token, log.Logger)
	mediaConn := wsession.NewConnector(cfg.ServerURL, cfg.Token, log.Logger).
		WithRTC(func() (core.DataConnection, error) {
			return rtc.NewDataChannelConnection(rtc.DefaultWebRTCConfig())
		})

	sig := signals.New(signalConn, be, tenant, meta)
	b := bus.New()
	printEvents(b)

	echo := transport.EchoSuppress
	if cfg.EchoPolicy == "deliver" {
		echo = transport.EchoDeliver
	}

	opts := api.Options{
		Connector: mediaConn,
		Signals:   sig,
		Backend:   be,
		Profile:   profile,
		Metadata:  meta,
		Logger:    log.Logger,
	}

	switch role {
	case "client":
		w := widget.NewClientWidget(api.NewClient(opts), b, echo, log.Logger)
		if err := w.Init(ctx); err != nil {
			return err
		}
		defer w.Shutdown(context.Background())
		return clientLoop(ctx, w)
	default:
		w := widget.NewConsultantWidget(api.NewConsultant(opts), b, echo, log.Logger)
		if err := w.Init(ctx); err != nil {
			return err
		}
		defer w.Shutdown(context.Background())
		return consultantLoop(ctx, w)
	}
}

func printEvents(b *bus.Bus) {
	events := []domain.EventName{
		domain.EventIncomingCall, domain.EventCalled, domain.EventLeft,
		domain.EventJoinedCall, domain.EventLeftCall,
		domain.EventParticipantJoined, domain.EventParticipantLeft,
		domain.EventAfterInit,
	}
	for _, ev := range events {
		name := ev
		b.On(name, func(payload any) {
			switch p := payload.(type) {
			case domain.SessionParticipant:
				fmt.Printf("* %s session=%s from=%s\n", name, p.Session.SessionID, p.Participant.System.Profile.Email)
			case domain.ParticipantMetadata:
				fmt.Printf("* %s %s\n", name, p.System.Profile.Email)
			default:
				fmt.Printf("* %s\n", name)
			}
		})
	}
	b.On(domain.EventMessageReceived, func(payload any) {
		if m, ok := payload.(core.RecvMessage[domain.TextMessage]); ok {
			fmt.Printf("< %s\n", m.Custom.Text)
		}
	})
	b.On(domain.EventFileReceived, func(payload any) {
		if m, ok := payload.(core.RecvMessage[domain.FileMessage]); ok {
			fmt.Printf("< file %s (%d bytes)\n", m.Custom.Name, m.Custom.Size)
		}
	})
}

func clientLoop(ctx context.Context, w *widget.ClientWidget) error {
	fmt.Println("commands: call | audio | msg <text> | leave | quit")
	return repl(ctx, func(cmd, rest string) (bool, error) {
		switch cmd {
		case "call":
			return false, w.Call(ctx)
		case "audio":
			return false, w.CallAudio(ctx)
		case "msg":
			return false, w.SendMessage(ctx, rest)
		case "leave":
			return false, w.Leave(ctx)
		case "quit":
			return true, nil
		default:
			fmt.Println("unknown command")
			return false, nil
		}
	})
}

func consultantLoop(ctx context.Context, w *widget.ConsultantWidget) error {
	fmt.Println("commands: calls | answer <session> | msg <text> | leave | quit")
	return repl(ctx, func(cmd, rest string) (bool, error) {
		switch cmd {
		case "calls":
			for _, sp := range w.PendingCalls() {
				fmt.Printf("  %s from %s\n", sp.Session.SessionID, sp.Participant.System.Profile.Email)
			}
			return false, nil
		case "answer":
			return false, w.Answer(ctx, domain.SessionID(rest))
		case "msg":
			return false, w.SendMessage(ctx, rest)
		case "leave":
			return false, w.Leave(ctx)
		case "quit":
			return true, nil
		default:
			fmt.Println("unknown command")
			return false, nil
		}
	})
}

func repl(ctx context.Context, handle func(cmd, rest string) (bool, error)) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		done, err := handle(cmd, strings.TrimSpace(rest))
		if err != nil {
			fmt.Println("error:", err)
		}
		if done {
			return nil
		}
	}
}
