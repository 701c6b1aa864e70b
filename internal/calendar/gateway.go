// Package calendar turns raw calendar free slots into the short pt-BR
// availability text injected into the assistant prompt.
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

const (
	// FallbackText is used when availability cannot be fetched.
	FallbackText = "Horários disponíveis: Segunda a Sexta, 8h às 20h"
	// NoSlotsText is used when the calendar has no open slot in the window.
	NoSlotsText = "No momento não há horários disponíveis nos próximos dias. Vou chamar a Eliana para verificar outras opções!"

	header          = "Temos horários disponíveis:\n\n"
	maxTimesPerDay  = 3
	defaultTimezone = "America/Sao_Paulo"
)

var weekdaysPT = [...]string{
	"domingo",
	"segunda-feira",
	"terça-feira",
	"quarta-feira",
	"quinta-feira",
	"sexta-feira",
	"sábado",
}

// SlotSource lists free slot start times (RFC3339) for a calendar.
type SlotSource interface {
	FreeSlots(ctx context.Context, calendarID, startDate, endDate string) ([]string, error)
}

// Gateway formats availability for a single calendar.
type Gateway struct {
	source     SlotSource
	calendarID string
	loc        *time.Location
	now        func() time.Time
	logger     *logging.Logger
}

// NewGateway builds a Gateway. A blank timezone uses America/Sao_Paulo; an
// unknown one falls back to UTC.
func NewGateway(source SlotSource, calendarID, timezone string, logger *logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(timezone) == "" {
		timezone = defaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Warn("calendar: unknown timezone, using UTC", "timezone", timezone, "error", err)
		loc = time.UTC
	}
	return &Gateway{
		source:     source,
		calendarID: strings.TrimSpace(calendarID),
		loc:        loc,
		now:        time.Now,
		logger:     logger,
	}
}

// Availability returns the formatted open slots for the next days. It never
// fails: configuration or upstream problems yield FallbackText.
func (g *Gateway) Availability(ctx context.Context, days int) string {
	if g == nil || g.source == nil || g.calendarID == "" {
		return FallbackText
	}
	if days <= 0 {
		days = 7
	}
	start := g.now().In(g.loc)
	end := start.AddDate(0, 0, days)

	slots, err := g.source.FreeSlots(ctx, g.calendarID, start.Format(time.DateOnly), end.Format(time.DateOnly))
	if err != nil {
		g.logger.Warn("calendar: free slots lookup failed", "calendar_id", g.calendarID, "error", err)
		return FallbackText
	}
	if len(slots) == 0 {
		return NoSlotsText
	}
	return g.format(slots)
}

func (g *Gateway) format(slots []string) string {
	var order []string
	byDate := make(map[string][]string)
	for _, raw := range slots {
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
		if err != nil {
			g.logger.Debug("calendar: skipping unparseable slot", "slot", raw)
			continue
		}
		ts = ts.In(g.loc)
		key := fmt.Sprintf("%s, %s", weekdaysPT[ts.Weekday()], ts.Format("02/01"))
		if _, seen := byDate[key]; !seen {
			order = append(order, key)
		}
		byDate[key] = append(byDate[key], ts.Format("15:04"))
	}
	if len(order) == 0 {
		return NoSlotsText
	}

	var b strings.Builder
	b.WriteString(header)
	for _, key := range order {
		times := byDate[key]
		shown := times
		if len(shown) > maxTimesPerDay {
			shown = shown[:maxTimesPerDay]
		}
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(strings.Join(shown, ", "))
		if len(times) > maxTimesPerDay {
			b.WriteString(" e mais...")
		}
		b.WriteString("\n")
	}
	return b.String()
}
