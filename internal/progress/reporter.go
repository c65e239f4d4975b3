package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Reporter provides progress feedback during a scheduled run. Update may be
// called from several goroutines.
type Reporter interface {
	Start(total int, description string)
	Update(message string, failed bool)
	Finish(summary string)
}

// NewReporter returns a TerminalReporter if running in an interactive terminal,
// or a CIReporter if the CI environment variable is set.
func NewReporter() Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &CIReporter{out: os.Stderr}
	}
	return &TerminalReporter{}
}

// TerminalReporter displays a progress bar in the terminal. A negative
// total shows a spinner.
type TerminalReporter struct {
	bar *progressbar.ProgressBar
}

func (r *TerminalReporter) Start(total int, description string) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *TerminalReporter) Update(message string, failed bool) {
	if r.bar == nil {
		return
	}
	if failed {
		message = "✗ " + message
	}
	r.bar.Describe(message)
	_ = r.bar.Add(1)
}

func (r *TerminalReporter) Finish(summary string) {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
	fmt.Fprintln(os.Stderr, summary)
}

// CIReporter prints line-by-line progress suitable for CI logs.
type CIReporter struct {
	out io.Writer

	mu      sync.Mutex
	total   int
	current int
}

func (r *CIReporter) Start(total int, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
	r.current = 0
	fmt.Fprintf(r.out, "%s\n", description)
}

func (r *CIReporter) Update(message string, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current++
	status := "ok"
	if failed {
		status = "FAILED"
	}
	if r.total > 0 {
		fmt.Fprintf(r.out, "[%d/%d] %s %s\n", r.current, r.total, message, status)
		return
	}
	fmt.Fprintf(r.out, "[%d] %s %s\n", r.current, message, status)
}

func (r *CIReporter) Finish(summary string) {
	fmt.Fprintln(r.out, summary)
}
