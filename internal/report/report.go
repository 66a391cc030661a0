// Package report renders the plain-text conversion report written next
// to every successfully swapped output.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mkvreel/av1d/internal/store"
)

// Render produces the full sectioned report for a completed job.
func Render(job *store.Job) string {
	var b strings.Builder

	section(&b, "Job", func(b *strings.Builder) {
		fmt.Fprintf(b, "id:          %s\n", job.ID)
		fmt.Fprintf(b, "source:      %s\n", job.SourcePath)
		fmt.Fprintf(b, "output:      %s\n", job.OutputPath)
		fmt.Fprintf(b, "status:      %s\n", job.Status)
		if job.Reason != "" {
			fmt.Fprintf(b, "reason:      %s\n", job.Reason)
		}
		fmt.Fprintf(b, "created:     %s\n", job.CreatedAt.Format(time.RFC3339))
		if job.StartedAt != nil {
			fmt.Fprintf(b, "started:     %s\n", job.StartedAt.Format(time.RFC3339))
		}
		if job.CompletedAt != nil {
			fmt.Fprintf(b, "completed:   %s\n", job.CompletedAt.Format(time.RFC3339))
		}
		if job.StartedAt != nil && job.CompletedAt != nil {
			fmt.Fprintf(b, "elapsed:     %s\n", humanize.RelTime(*job.StartedAt, *job.CompletedAt, "", ""))
		}
	})

	if p := job.Probe; p != nil {
		section(&b, "Source analysis", func(b *strings.Builder) {
			fmt.Fprintf(b, "container:   %s\n", p.ContainerFormat)
			if p.MuxerTag != "" {
				fmt.Fprintf(b, "muxer tag:   %s\n", p.MuxerTag)
			}
			fmt.Fprintf(b, "video codec: %s\n", p.VideoCodec)
			fmt.Fprintf(b, "dimensions:  %dx%d\n", p.Width, p.Height)
			fmt.Fprintf(b, "bit depth:   %d\n", p.BitDepth)
			if p.ColorTransfer != "" {
				fmt.Fprintf(b, "transfer:    %s\n", p.ColorTransfer)
			}
			fmt.Fprintf(b, "audio/subs:  %d / %d streams\n", p.AudioStreams, p.SubtitleStreams)
			if p.DurationSeconds > 0 {
				fmt.Fprintf(b, "duration:    %s\n", humanize.RelTime(time.Time{}, time.Time{}.Add(time.Duration(p.DurationSeconds)*time.Second), "", ""))
			}
		})
	}

	if c := job.Classification; c != nil {
		section(&b, "Classification", func(b *strings.Builder) {
			fmt.Fprintf(b, "label:       %s (score %.2f)\n", c.Label, c.Score)
			for _, r := range c.Reasons {
				fmt.Fprintf(b, "  - %s\n", r)
			}
		})
	}

	if p := job.Plan; p != nil {
		section(&b, "Encoding plan", func(b *strings.Builder) {
			fmt.Fprintf(b, "target bit depth: %d (source %d)\n", p.TargetBitDepth, p.SourceBitDepth)
			fmt.Fprintf(b, "pixel format:     %s\n", p.PixelFormat)
			fmt.Fprintf(b, "profile:          %d\n", p.Profile)
			fmt.Fprintf(b, "quality:          %d\n", p.Quality)
			fmt.Fprintf(b, "HDR:              %v\n", p.IsHDR)
			fmt.Fprintf(b, "Dolby Vision:     %v\n", p.HasDolbyVision)
			if len(p.FilterChain) > 0 {
				fmt.Fprintf(b, "filters:          %s\n", strings.Join(p.FilterChain, ","))
			}
			if len(p.ExcludedLanguages) > 0 {
				fmt.Fprintf(b, "excluded langs:   %s\n", strings.Join(p.ExcludedLanguages, ","))
			}
		})
	}

	section(&b, "Size comparison", func(b *strings.Builder) {
		fmt.Fprintf(b, "original: %s\n", humanize.IBytes(uint64(job.OriginalSize)))
		if job.NewSize > 0 {
			fmt.Fprintf(b, "new:      %s\n", humanize.IBytes(uint64(job.NewSize)))
			ratio := float64(job.NewSize) / float64(job.OriginalSize)
			fmt.Fprintf(b, "ratio:    %.1f%%\n", ratio*100)
			saved := job.OriginalSize - job.NewSize
			if saved > 0 {
				fmt.Fprintf(b, "saved:    %s\n", humanize.IBytes(uint64(saved)))
			}
		}
	})

	if v := job.Validation; v != nil {
		section(&b, "Validation", func(b *strings.Builder) {
			fmt.Fprintf(b, "ok: %v\n", v.OK)
			for _, issue := range v.Issues {
				fmt.Fprintf(b, "  ISSUE: %s\n", issue)
			}
			for _, warning := range v.Warnings {
				fmt.Fprintf(b, "  WARNING: %s\n", warning)
			}
		})
	}

	if r := job.Result; r != nil && r.StderrTail != "" {
		section(&b, "Encoder log tail", func(b *strings.Builder) {
			fmt.Fprintf(b, "exit code: %d, elapsed %s\n", r.ExitCode, r.Elapsed.Round(time.Second))
			fmt.Fprintln(b, r.StderrTail)
		})
	}

	return b.String()
}

func section(b *strings.Builder, title string, body func(b *strings.Builder)) {
	fmt.Fprintf(b, "=== %s ===\n", title)
	body(b)
	b.WriteString("\n")
}
