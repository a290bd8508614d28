package main

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

// StartOverdueReminder posts a daily summary of spots that haven't been
// checked in over 48 hours. Nothing is posted on days when every spot is
// current.
func StartOverdueReminder(cfg Config, reg *Registry, api *slack.Client) {
	if api == nil || cfg.SpotChannelID == "" {
		log.Println("Overdue reminder disabled (Slack channel not configured)")
		return
	}

	hour, min, err := parseClock(cfg.OverdueReminderTime)
	if err != nil {
		log.Printf("Invalid overdue_reminder_time '%s': %v, reminder disabled", cfg.OverdueReminderTime, err)
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(fmt.Sprintf("%d %d * * *", min, hour))
	if err != nil {
		log.Printf("Overdue reminder schedule error: %v, reminder disabled", err)
		return
	}

	log.Printf("[overdue] reminder scheduled daily at %02d:%02d", hour, min)

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			log.Printf("[overdue] next reminder at %s (in %s)", next.Format("Mon Jan 2 15:04"), next.Sub(now).Round(time.Minute))
			time.Sleep(next.Sub(now))

			overdue := reg.OverdueSpots()
			if len(overdue) == 0 {
				log.Println("[overdue] no overdue spots, skipping reminder")
				continue
			}

			msg := FormatOverdueReminder(overdue)
			if _, _, err := api.PostMessage(cfg.SpotChannelID, slack.MsgOptionText(msg, false)); err != nil {
				log.Printf("[overdue] post error: %v", err)
			}
		}
	}()
}

// FormatOverdueReminder renders the daily overdue summary.
func FormatOverdueReminder(overdue []SpotSummary) string {
	var b strings.Builder
	if len(overdue) == 1 {
		b.WriteString("1 spot hasn't been checked in a while:\n")
	} else {
		fmt.Fprintf(&b, "%d spots haven't been checked in a while:\n", len(overdue))
	}
	for _, s := range overdue {
		fmt.Fprintf(&b, "• %s — last checked %s\n", s.Name, s.LastChecked.Format("Mon Jan 2 15:04"))
	}
	b.WriteString("Run `/spot check all` to catch up.")
	return b.String()
}
