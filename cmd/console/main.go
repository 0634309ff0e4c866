package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/dkeye/Moderation/internal/adapters/console"
	"github.com/dkeye/Moderation/internal/domain"
)

func main() {
	server := flag.StringP("server", "s", "http://localhost:8080", "server base URL")
	user := flag.StringP("user", "u", "", "user id to act as")
	room := flag.StringP("room", "r", "", "room id to moderate")
	verbose := flag.BoolP("verbose", "v", false, "log to stderr")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.Disabled)
	if *verbose {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *user == "" || *room == "" {
		fmt.Fprintln(os.Stderr, "usage: console --user @me:example.org --room <room id> [--server URL]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(*server, *user, domain.RoomID(*room)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(server, user string, room domain.RoomID) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := console.NewClient(server)
	if err != nil {
		return err
	}
	if err := client.Login(ctx, user); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	conn, err := client.Dial(ctx, room)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info().Str("module", "console").Str("room", string(room)).Str("user", user).Msg("connected")

	model := console.NewModel(conn, room, user, func(ctx context.Context) ([]domain.Member, error) {
		return client.Members(ctx, room)
	})
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}
