package report

import (
	"fmt"
	"math"
	"time"

	"testflow_backend/models"
)

// Run identifies the responses to compile and the time window they cover.
type Run struct {
	ID         string
	TesterName string
	Start      time.Time
	End        time.Time
}

// Document is the rendered report before it is laid out as PDF.
type Document struct {
	Title     string
	Narrative string
	RunID     string
	Date      string
	Answers   []models.RunAnswer
	Results   []models.RunResult
}

// Build assembles the report text. Times are shown in loc.
func Build(run Run, results []models.RunResult, answers []models.RunAnswer, loc *time.Location) Document {
	if loc == nil {
		loc = time.UTC
	}
	start := run.Start.In(loc)
	end := run.End.In(loc)

	narrative := fmt.Sprintf(
		"Today, %s, I completed testing. I started the test at %s and finished at %s. Total testing took us %s.",
		end.Format("02/01/2006, 15:04:05"),
		start.Format("15:04:05"),
		end.Format("15:04:05"),
		FormatDuration(run.End.Sub(run.Start)),
	)

	return Document{
		Title:     "Test Report for " + run.TesterName,
		Narrative: narrative,
		RunID:     run.ID,
		Date:      end.Format("January 2, 2006"),
		Answers:   answers,
		Results:   results,
	}
}

// FormatDuration renders d rounded to whole minutes: "N minutes" below an
// hour, "H hours M minutes" from an hour on.
func FormatDuration(d time.Duration) string {
	total := int(math.Round(d.Minutes()))
	if total < 0 {
		total = 0
	}
	if total < 60 {
		return plural(total, "minute")
	}
	return plural(total/60, "hour") + " " + plural(total%60, "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
