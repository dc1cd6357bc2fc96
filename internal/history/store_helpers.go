package history

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const selectColumns = `SELECT id, url, status, stage, language, speakers, segments, duration_seconds,
    output_path, output_format, tier, error_message, started_at, finished_at`

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run          Run
		status       string
		stage        sql.NullString
		language     sql.NullString
		outputPath   sql.NullString
		outputFormat sql.NullString
		tier         sql.NullString
		errorMessage sql.NullString
		startedAt    string
		finishedAt   sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.URL,
		&status,
		&stage,
		&language,
		&run.Speakers,
		&run.Segments,
		&run.DurationSeconds,
		&outputPath,
		&outputFormat,
		&tier,
		&errorMessage,
		&startedAt,
		&finishedAt,
	); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Status = Status(status)
	run.Stage = stage.String
	run.Language = language.String
	run.OutputPath = outputPath.String
	run.OutputFormat = outputFormat.String
	run.Tier = tier.String
	run.Error = errorMessage.String

	started, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	run.StartedAt = started
	if finishedAt.Valid && finishedAt.String != "" {
		finished, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &finished
	}
	return &run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
