package cron

import (
	"errors"
	"strings"

	"github.com/robfig/cron/v3"
)

// parser accepts standard 5-field specs and descriptors such as
// "@every 5s", "@hourly" and "@daily".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a cron specification.
// Returns ErrInvalidCronSpec if the specification cannot be parsed.
func ParseSchedule(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.Join(ErrInvalidCronSpec, errors.New("cron spec cannot be empty"))
	}
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}
	return schedule, nil
}
