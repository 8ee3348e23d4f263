package reasoning

import (
	"fmt"
	"time"
)

const classifyPrompt = `You decide whether a phone notification mentions something the user may
want in their calendar: an appointment, a meeting, a reservation, a deadline, a trip or a
similar dated commitment. Marketing, chat small talk and delivery updates are not relevant.
Answer with a JSON object {"relevant": true|false} and nothing else.`

const extractPrompt = `You extract a single calendar event from a phone notification.
Answer with a JSON object and nothing else:
{"event": null} when the text has no concrete event, otherwise
{"event": {"title": string, "description": string, "all_day": boolean,
  "start_date": "YYYY-MM-DD" or "", "start_time": "HH:MM" or "",
  "end_date": "YYYY-MM-DD" or "", "end_time": "HH:MM" or ""}}.
Use "" for anything the text does not state. Never guess an end date or end time from the
start or from typical durations. Resolve relative dates such as "tomorrow" against the
date the notification was received. All-day events have empty times.`

func extractUserMessage(text string, receivedAt time.Time) string {
	return fmt.Sprintf("Received: %s (%s)\n\n%s",
		receivedAt.Format(time.RFC3339), receivedAt.Weekday(), text)
}
