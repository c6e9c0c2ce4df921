package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// rruleWeekdays is indexed by time.Weekday.
var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// FormatRRule encodes rule as an RFC 5545 RRULE value (without the "RRULE:"
// prefix). Exceptions and the month overflow policy are not part of the
// RRULE grammar and are stored alongside it.
func FormatRRule(rule Rule) (string, error) {
	if err := rule.Validate(); err != nil {
		return "", err
	}

	opt := rrule.ROption{
		Interval: rule.step(),
		Wkst:     rrule.SU,
	}
	switch rule.Frequency {
	case FrequencyDaily:
		opt.Freq = rrule.DAILY
	case FrequencyWeekly:
		opt.Freq = rrule.WEEKLY
		for _, wd := range rule.weekdaySetOrEmpty() {
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[wd])
		}
	case FrequencyMonthly:
		opt.Freq = rrule.MONTHLY
	case FrequencyYearly:
		opt.Freq = rrule.YEARLY
	}
	if rule.MonthDay > 0 {
		opt.Bymonthday = []int{rule.MonthDay}
	}

	switch end := rule.EndCondition().(type) {
	case Count:
		opt.Count = end.N
	case Until:
		opt.Until = time.Date(end.Date.Year, end.Date.Month, end.Date.Day, 23, 59, 59, 0, time.UTC)
	}

	return opt.RRuleString(), nil
}

// ParseRRule decodes an RRULE value produced by FormatRRule (or a compatible
// subset written by other tools) and attaches the given exception dates.
func ParseRRule(text string, exceptions []Date) (Rule, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Rule{}, fmt.Errorf("%w: empty rrule", ErrInvalidRule)
	}

	opt, err := rrule.StrToROption(text)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	rule := Rule{Interval: opt.Interval}
	switch opt.Freq {
	case rrule.DAILY:
		rule.Frequency = FrequencyDaily
	case rrule.WEEKLY:
		rule.Frequency = FrequencyWeekly
	case rrule.MONTHLY:
		rule.Frequency = FrequencyMonthly
	case rrule.YEARLY:
		rule.Frequency = FrequencyYearly
	default:
		return Rule{}, fmt.Errorf("%w: unsupported frequency %s", ErrInvalidRule, opt.Freq)
	}

	for _, wd := range opt.Byweekday {
		if wd.N() != 0 {
			return Rule{}, fmt.Errorf("%w: positional weekday %s is not supported", ErrInvalidRule, wd)
		}
		rule.Weekdays = append(rule.Weekdays, time.Weekday((wd.Day()+1)%7))
	}

	switch len(opt.Bymonthday) {
	case 0:
	case 1:
		if opt.Bymonthday[0] < 1 {
			return Rule{}, fmt.Errorf("%w: negative BYMONTHDAY is not supported", ErrInvalidRule)
		}
		rule.MonthDay = opt.Bymonthday[0]
	default:
		return Rule{}, fmt.Errorf("%w: multiple BYMONTHDAY values are not supported", ErrInvalidRule)
	}

	if len(opt.Bymonth) > 0 || len(opt.Bysetpos) > 0 || len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 {
		return Rule{}, fmt.Errorf("%w: unsupported BY* part in %q", ErrInvalidRule, text)
	}

	switch {
	case opt.Count > 0 && !opt.Until.IsZero():
		return Rule{}, fmt.Errorf("%w: COUNT and UNTIL are mutually exclusive", ErrInvalidRule)
	case opt.Count > 0:
		rule.End = Count{N: opt.Count}
	case !opt.Until.IsZero():
		rule.End = Until{Date: DateOf(opt.Until.UTC())}
	default:
		rule.End = Never{}
	}

	if len(exceptions) > 0 {
		rule.Exceptions = append([]Date(nil), exceptions...)
	}

	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

func (r Rule) weekdaySetOrEmpty() []time.Weekday {
	if len(r.Weekdays) == 0 {
		return nil
	}
	return r.weekdaySet(time.Sunday)
}
