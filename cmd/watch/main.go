// Command watch tails one recipient's notification list in the terminal.
//
//	go run ./cmd/watch -user <id> [-mark <notification id>]
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"logistics-admin-be/internal/config"
	"logistics-admin-be/internal/pkg/logger"
	"logistics-admin-be/internal/repository/implementation"
	"logistics-admin-be/pkg/changefeed"
	"logistics-admin-be/pkg/database"
	"logistics-admin-be/pkg/livequery"
	"logistics-admin-be/pkg/notifsync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/fatih/color"
)

func main() {
	userID := flag.String("user", "", "recipient id to watch")
	markID := flag.String("mark", "", "notification id to mark read once loaded")
	interval := flag.Duration("interval", 3*time.Second, "poll interval")
	flag.Parse()

	if *userID == "" {
		color.Red("-user is required")
		os.Exit(2)
	}

	cfg := config.Load()
	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, false)
	if err != nil {
		log.Fatalf("Unable to connect to DB: %v", err)
	}

	nop := logger.NewNop()
	feed := changefeed.NewWatermillFeed(watermill.NopLogger{}, nop)
	defer feed.Close()

	repo := implementation.NewNotificationRepository(db, implementation.WithRequireIndex(cfg.Notify.RequireIndex))
	store := livequery.NewPollingStore(repo,
		livequery.WithInterval(*interval),
		livequery.WithFeed(feed),
		livequery.WithLogger(nop),
	)
	defer store.Close()

	engine := notifsync.NewEngine(store, *userID, notifsync.WithSnapshotLimit(cfg.Notify.SnapshotLimit))
	defer engine.Close()

	loaded := make(chan struct{}, 1)
	engine.OnChange(func(v notifsync.View) {
		render(v, engine.Degraded())
		select {
		case loaded <- struct{}{}:
		default:
		}
	})
	engine.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *markID != "" {
		select {
		case <-loaded:
			if engine.MarkRead(ctx, *markID) {
				color.Green("marked %s read", *markID)
			} else {
				color.Yellow("%s was not marked (unknown, already read, or the write failed)", *markID)
			}
		case <-ctx.Done():
		}
	}

	<-ctx.Done()
}

func render(v notifsync.View, degraded bool) {
	header := color.New(color.Bold)
	header.Printf("\n%s  %d unread", time.Now().Format("15:04:05"), v.UnreadCount)
	if degraded {
		color.New(color.FgYellow).Print("  (unordered fallback)")
	}
	header.Println()

	unread := color.New(color.FgCyan, color.Bold)
	read := color.New(color.FgHiBlack)
	for _, n := range v.Notifications {
		line := read
		marker := " "
		if !n.IsRead {
			line = unread
			marker = "*"
		}
		line.Printf("%s %s  %-36s  %s\n", marker, n.CreatedAt.Format("Jan 02 15:04"), n.ID, n.Title)
	}
}
