package ics

import (
	"strconv"
	"strings"
	"time"

	"github.com/sytefy/backend/services/appointments/internal/model"
)

const stampLayout = "20060102T150405Z"

var textEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, ",", `\,`, ";", `\;`)

// Generate renders appt as a single-event VCALENDAR with CRLF line endings.
func Generate(appt model.Appointment, domain, product string, now time.Time) string {
	if domain == "" {
		domain = "sytefy.local"
	}
	if product == "" {
		product = "Sytefy"
	}
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//" + product + "//Appointments//TR",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"BEGIN:VEVENT",
		"UID:appointment-" + strconv.FormatInt(appt.ID, 10) + "@" + domain,
		"DTSTAMP:" + stamp(now),
		"DTSTART:" + stamp(appt.StartAt),
		"DTEND:" + stamp(appt.EndAt),
		"SUMMARY:" + textEscaper.Replace(appt.Title),
	}
	if appt.Description != "" {
		lines = append(lines, "DESCRIPTION:"+textEscaper.Replace(appt.Description))
	}
	if appt.Location != "" {
		lines = append(lines, "LOCATION:"+textEscaper.Replace(appt.Location))
	}
	lines = append(lines, "END:VEVENT", "END:VCALENDAR")
	return strings.Join(lines, "\r\n") + "\r\n"
}

func stamp(t time.Time) string {
	return t.UTC().Format(stampLayout)
}

// Filename is the attachment name offered for appointment id.
func Filename(id int64) string {
	return "appointment-" + strconv.FormatInt(id, 10) + ".ics"
}
