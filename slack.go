package main

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
)

const slackNotifierID = "slack-notifier"

// StartSlackBot runs the Socket Mode loop and dispatches /spot commands
// into the registry. Blocks until the connection dies.
func StartSlackBot(cfg Config, reg *Registry, api *slack.Client) error {
	client := socketmode.New(api)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				log.Printf("Slash command received: %s %q from user=%s", cmd.Command, cmd.Text, cmd.UserID)
				go handleSlashCommand(api, reg, cmd)
			}
		}
	}()

	log.Println("Slack bot connected via Socket Mode")
	return client.Run()
}

func handleSlashCommand(api *slack.Client, reg *Registry, cmd slack.SlashCommand) {
	if cmd.Command != "/spot" {
		return
	}

	verb, args := parseSpotCommand(cmd.Text)
	switch verb {
	case "check":
		target := strings.Join(args, " ")
		if target == "" || strings.EqualFold(target, "all") {
			reg.CheckAll()
			postEphemeral(api, cmd, fmt.Sprintf("Checking all %d spots...", reg.SpotCount()))
			return
		}
		if err := reg.Check(target); err != nil {
			postEphemeral(api, cmd, err.Error())
			return
		}
		postEphemeral(api, cmd, fmt.Sprintf("Checking %s...", target))

	case "reset":
		target := strings.Join(args, " ")
		if err := reg.Reset(target); err != nil {
			postEphemeral(api, cmd, err.Error())
			return
		}
		postEphemeral(api, cmd, fmt.Sprintf("Marked %s as sorted. Nice one.", target))

	case "snooze":
		if len(args) < 2 {
			postEphemeral(api, cmd, "Usage: /spot snooze <name> <minutes>")
			return
		}
		minutes, err := strconv.Atoi(args[len(args)-1])
		if err != nil {
			postEphemeral(api, cmd, "Usage: /spot snooze <name> <minutes>")
			return
		}
		target := strings.Join(args[:len(args)-1], " ")
		if err := reg.Snooze(target, minutes); err != nil {
			postEphemeral(api, cmd, err.Error())
			return
		}
		postEphemeral(api, cmd, fmt.Sprintf("Snoozed %s for %d minutes.", target, minutes))

	case "unsnooze":
		target := strings.Join(args, " ")
		if err := reg.Unsnooze(target); err != nil {
			postEphemeral(api, cmd, err.Error())
			return
		}
		postEphemeral(api, cmd, fmt.Sprintf("Unsnoozed %s.", target))

	case "status":
		postEphemeral(api, cmd, FormatStatusReport(reg.Summaries(), reg.NextScheduledCheck()))

	default:
		postEphemeral(api, cmd, spotHelpText())
	}
}

// parseSpotCommand splits "/spot" text into a lowercased verb and its args.
func parseSpotCommand(text string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), fields[1:]
}

func spotHelpText() string {
	return "Spot commands:\n" +
		"• `/spot check <name|all>` — Run a check now\n" +
		"• `/spot reset <name>` — Mark a spot as sorted yourself\n" +
		"• `/spot snooze <name> <minutes>` — Pause automatic checks (1-1440)\n" +
		"• `/spot unsnooze <name>` — Resume automatic checks\n" +
		"• `/spot status` — Status of every spot\n" +
		"• `/spot help` — This text"
}

// FormatStatusReport renders the registry summaries as a Slack text report.
func FormatStatusReport(summaries []SpotSummary, nextCheck time.Time) string {
	if len(summaries) == 0 {
		return "No spots configured."
	}

	var b strings.Builder
	sortedCount := 0
	for _, s := range summaries {
		if s.Sorted {
			sortedCount++
		}
	}
	fmt.Fprintf(&b, "*Spot status* — %d/%d sorted\n", sortedCount, len(summaries))

	for _, s := range summaries {
		marker := "•"
		if s.Sorted {
			marker = "✓"
		}
		fmt.Fprintf(&b, "%s *%s*", marker, s.Name)
		switch {
		case s.LastChecked.IsZero():
			b.WriteString(" — not checked yet")
		case s.Sorted:
			b.WriteString(" — sorted")
		default:
			fmt.Fprintf(&b, " — %d to sort", s.ToSortCount)
		}
		if s.CurrentStreak > 0 {
			fmt.Fprintf(&b, ", streak %d", s.CurrentStreak)
			if s.LongestStreak > s.CurrentStreak {
				fmt.Fprintf(&b, " (best %d)", s.LongestStreak)
			}
		}
		if !s.SnoozedUntil.IsZero() {
			fmt.Fprintf(&b, ", snoozed until %s", s.SnoozedUntil.Format("15:04"))
		}
		if s.Overdue {
			b.WriteString(", overdue")
		}
		b.WriteString("\n")
	}

	if !nextCheck.IsZero() {
		fmt.Fprintf(&b, "Next scheduled check: %s", nextCheck.Format("Mon Jan 2 15:04"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// SubscribeSlackNotifier posts one line per completed check to the spot
// channel. Snooze and unsnooze publications stay off the channel.
func SubscribeSlackNotifier(bus *Bus, api *slack.Client, channelID string) {
	if channelID == "" {
		log.Println("Slack notifier disabled (spot_channel_id not set)")
		return
	}
	bus.Subscribe(TopicSystem, slackNotifierID, func(ev Event) {
		msg := formatCheckNotification(ev)
		if msg == "" {
			return
		}
		// Handlers run on the check's goroutine; post without holding it up.
		go func() {
			if _, _, err := api.PostMessage(channelID, slack.MsgOptionText(msg, false)); err != nil {
				log.Printf("slack notify error spot=%q: %v", ev.SpotName, err)
			}
		}()
	})
}

func formatCheckNotification(ev Event) string {
	switch ev.Kind {
	case EventCheck:
		if ev.State.Sorted {
			msg := fmt.Sprintf("✓ %s is sorted.", ev.SpotName)
			if ev.State.CurrentStreak > 1 {
				msg += fmt.Sprintf(" Streak: %d days.", ev.State.CurrentStreak)
			}
			return msg
		}
		msg := fmt.Sprintf("%s needs attention: %d to sort.", ev.SpotName, len(ev.State.ToSort))
		if ev.State.Notes.Main != "" {
			msg += " " + ev.State.Notes.Main
		}
		return msg
	case EventCheckFailed:
		return fmt.Sprintf("%s check failed: %s", ev.SpotName, ev.State.LastError)
	case EventReset:
		return fmt.Sprintf("%s marked sorted by hand. Streak: %d days.", ev.SpotName, ev.State.CurrentStreak)
	default:
		return ""
	}
}

func postEphemeral(api *slack.Client, cmd slack.SlashCommand, text string) {
	_, err := api.PostEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("Error posting ephemeral message: %v", err)
	}
}
