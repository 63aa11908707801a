package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/djsydney04/wrapshot/internal/jobs"
	"github.com/djsydney04/wrapshot/internal/scenes"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const labelWidth = 12

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func statusColor(s jobs.Status) string {
	switch s {
	case jobs.StatusComplete:
		return ansiGreen
	case jobs.StatusFailed:
		return ansiRed
	case jobs.StatusCancelled:
		return ansiYellow
	default:
		return ansiBlue
	}
}

func colorStatus(s jobs.Status, colorize bool) string {
	if !colorize {
		return string(s)
	}
	return statusColor(s) + string(s) + ansiReset
}

func renderField(label, value string) string {
	return fmt.Sprintf("  %-*s %s", labelWidth, label+":", value)
}

// renderJob prints one job as aligned label/value lines.
func renderJob(job *jobs.Job, colorize bool) string {
	lines := []string{
		renderField("Job", job.ID),
		renderField("Document", job.DocumentID),
		renderField("Status", colorStatus(job.Status, colorize)),
		renderField("Chunks", chunkProgress(job)),
		renderField("Scenes", strconv.Itoa(job.SceneCount)),
		renderField("Created", formatTime(job.CreatedAt)),
	}
	if job.FinishedAt != nil {
		lines = append(lines, renderField("Finished", formatTime(*job.FinishedAt)))
		if job.StartedAt != nil {
			lines = append(lines, renderField("Duration", job.FinishedAt.Sub(*job.StartedAt).Round(time.Millisecond).String()))
		}
	}
	if job.ErrorMessage != "" {
		lines = append(lines, renderField("Error", job.ErrorMessage))
	}
	return strings.Join(lines, "\n")
}

func chunkProgress(job *jobs.Job) string {
	s := fmt.Sprintf("%d/%d", job.ChunksProcessed, job.TotalChunks)
	if job.ChunksFailed > 0 {
		s += fmt.Sprintf(" (%d failed)", job.ChunksFailed)
	}
	return s
}

func renderJobsTable(list []*jobs.Job, colorize bool) string {
	rows := make([][]string, 0, len(list))
	for _, job := range list {
		rows = append(rows, []string{
			job.ID,
			colorStatus(job.Status, colorize),
			chunkProgress(job),
			strconv.Itoa(job.SceneCount),
			formatTime(job.CreatedAt),
			truncate(job.ErrorMessage, 48),
		})
	}
	return renderTable(
		[]string{"Job", "Status", "Chunks", "Scenes", "Created", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
}

func renderScenesTable(list []scenes.Scene) string {
	rows := make([][]string, 0, len(list))
	for _, sc := range list {
		rows = append(rows, []string{
			sc.Number,
			string(sc.IntExt),
			sc.SetName,
			string(sc.TimeOfDay),
			formatEighths(sc.Eighths),
			pageRange(sc.StartPage, sc.EndPage),
			truncate(strings.Join(sc.Characters, ", "), 40),
		})
	}
	return renderTable(
		[]string{"Scene", "I/E", "Set", "Time", "Pages", "Script Pg", "Cast"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

// formatEighths renders a page length the way stripboards do: 11 -> "1 3/8".
func formatEighths(n int) string {
	whole, rem := n/8, n%8
	switch {
	case whole == 0:
		return fmt.Sprintf("%d/8", rem)
	case rem == 0:
		return strconv.Itoa(whole)
	default:
		return fmt.Sprintf("%d %d/8", whole, rem)
	}
}

func pageRange(start, end int) string {
	switch {
	case start <= 0:
		return "-"
	case end <= start:
		return strconv.Itoa(start)
	default:
		return fmt.Sprintf("%d-%d", start, end)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
