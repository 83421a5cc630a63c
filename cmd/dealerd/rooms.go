package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/greenfelt/dealerd/cmd/dealerd/shared"
	"github.com/greenfelt/dealerd/internal/server"
	"github.com/greenfelt/dealerd/internal/store"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	roomStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14"))

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	updatedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// RoomsCmd lists every room persisted in the store
type RoomsCmd struct {
	Config string `kong:"default='dealerd.hcl',help='Path to the HCL configuration file'"`
}

func (c *RoomsCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := shared.SetupLogger("error", false)
	st, err := store.Open(cfg.Storage.Path, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	rooms, err := st.ListRooms(context.Background())
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	if len(rooms) == 0 {
		fmt.Println("no rooms")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
		headerStyle.Render("room"),
		headerStyle.Render("game"),
		headerStyle.Render("mode"),
		headerStyle.Render("players"),
		headerStyle.Render("revision"),
		headerStyle.Render("updated"))

	for _, r := range rooms {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			roomStyle.Render(r.RoomID),
			r.RoomType,
			r.GameMode,
			countStyle.Render(fmt.Sprintf("%d", r.PlayerCount)),
			r.Revision,
			updatedStyle.Render(r.UpdatedAt.Format(time.RFC3339)))
	}
	return w.Flush()
}
