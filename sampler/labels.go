// Copyright (c) 2022, The chartdata developers
// See LICENSE for details.

package sampler

import (
	"time"

	"golang.org/x/text/language"
)

// LabelFormatter converts a unix time in seconds into an axis label.
type LabelFormatter func(unix int64) string

type labelLayout struct {
	dateTime, date string
}

var (
	labelLocales = []language.Tag{
		language.AmericanEnglish,
		language.BritishEnglish,
		language.German,
		language.French,
		language.Spanish,
		language.Italian,
		language.Portuguese,
		language.Russian,
		language.Japanese,
		language.Chinese,
	}

	labelLayouts = []labelLayout{
		{"1/2/2006, 3:04:05 PM", "1/2/2006"},
		{"02/01/2006, 15:04:05", "02/01/2006"},
		{"2.1.2006, 15:04:05", "2.1.2006"},
		{"02/01/2006 15:04:05", "02/01/2006"},
		{"2/1/2006, 15:04:05", "2/1/2006"},
		{"2/1/2006, 15:04:05", "2/1/2006"},
		{"02/01/2006, 15:04:05", "02/01/2006"},
		{"02.01.2006, 15:04:05", "02.01.2006"},
		{"2006/1/2 15:04:05", "2006/1/2"},
		{"2006/1/2 15:04:05", "2006/1/2"},
	}

	labelMatcher = language.NewMatcher(labelLocales)
)

// DefaultTimeFormat formats times in UTC with the en-US layout.
var DefaultTimeFormat = NewTimeFormatter("", false)

// NewTimeFormatter returns a LabelFormatter for the best match of the locale,
// such as "en-GB" or "de". Times are shown in UTC. With dateOnly set the time
// of day is left out.
func NewTimeFormatter(locale string, dateOnly bool) LabelFormatter {
	layout := LayoutFor(locale, dateOnly)
	return func(unix int64) string {
		return time.Unix(unix, 0).UTC().Format(layout)
	}
}

// LayoutFor returns the time layout for the best match of the locale.
func LayoutFor(locale string, dateOnly bool) string {
	idx := 0
	if locale != "" {
		tag, err := language.Parse(locale)
		if err == nil {
			_, idx, _ = labelMatcher.Match(tag)
		} else {
			log.Debugf("Unrecognized locale %q, using %v", locale, labelLocales[0])
		}
	}
	if dateOnly {
		return labelLayouts[idx].date
	}
	return labelLayouts[idx].dateTime
}
