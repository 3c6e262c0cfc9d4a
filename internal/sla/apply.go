// Package sla computes service-level deadlines and drives the compliance
// monitor that detects at-risk and breached tickets.
package sla

import (
	"fmt"
	"strings"
	"time"

	"github.com/rickar/cal/v2"

	"github.com/lumira-io/lumira-support/internal/config"
	"github.com/lumira-io/lumira-support/internal/models"
)

// Deadlines holds the two due times stamped onto a ticket.
type Deadlines struct {
	FirstResponseDue time.Time
	ResolutionDue    time.Time
}

// Calculator turns policy hour budgets into due times. With business hours
// disabled it is plain wall-clock addition; enabled, deadline time only
// accrues inside the configured working calendar.
type Calculator struct {
	calendar *cal.BusinessCalendar
}

// NewCalculator builds a calculator from the business-hours config block.
func NewCalculator(cfg config.BusinessHoursConfig) (*Calculator, error) {
	if !cfg.Enabled {
		return &Calculator{}, nil
	}
	c := cal.NewBusinessCalendar()

	workdays, err := parseWorkdays(cfg.Workdays)
	if err != nil {
		return nil, err
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		c.SetWorkday(d, workdays[d])
	}

	if cfg.StartHour < 0 || cfg.EndHour > 24 || cfg.StartHour >= cfg.EndHour {
		return nil, fmt.Errorf("invalid business hours %d..%d", cfg.StartHour, cfg.EndHour)
	}
	c.SetWorkHours(time.Duration(cfg.StartHour)*time.Hour, time.Duration(cfg.EndHour)*time.Hour)

	for _, h := range cfg.Holidays {
		holiday, err := parseHoliday(h)
		if err != nil {
			return nil, err
		}
		c.AddHoliday(holiday)
	}
	return &Calculator{calendar: c}, nil
}

// Due computes both deadlines for a policy, anchored at from.
func (c *Calculator) Due(policy *models.SLAPolicy, from time.Time) Deadlines {
	return Deadlines{
		FirstResponseDue: c.add(from, policy.FirstResponseHours),
		ResolutionDue:    c.add(from, policy.ResolutionHours),
	}
}

func (c *Calculator) add(from time.Time, hours float64) time.Time {
	d := time.Duration(hours * float64(time.Hour))
	if c.calendar == nil {
		return from.Add(d)
	}
	return c.calendar.AddWorkHours(from, d)
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

func parseWorkdays(names []string) (map[time.Weekday]bool, error) {
	out := make(map[time.Weekday]bool, 7)
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if len(key) > 3 {
			key = key[:3]
		}
		d, ok := weekdayNames[key]
		if !ok {
			return nil, fmt.Errorf("unknown workday %q", name)
		}
		out[d] = true
	}
	return out, nil
}

// parseHoliday accepts recurring MM-DD dates.
func parseHoliday(value string) (*cal.Holiday, error) {
	t, err := time.Parse("01-02", strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("invalid holiday %q (want MM-DD): %w", value, err)
	}
	return &cal.Holiday{
		Name:  value,
		Type:  cal.ObservancePublic,
		Month: t.Month(),
		Day:   t.Day(),
		Func:  cal.CalcDayOfMonth,
	}, nil
}
