package scenario

import (
	"fmt"
	"time"

	"github.com/logrusorgru/aurora"

	"github.com/chainharness/chainharness/pkg/logging"
)

// Reporter prints scenario progress to the console, colorized when
// stdout is a terminal.
type Reporter struct {
	au aurora.Aurora
}

func NewReporter() *Reporter {
	return &Reporter{au: aurora.NewAurora(logging.IsTerminal())}
}

func (r *Reporter) Start(name string) {
	fmt.Printf("%s %s\n", r.au.BgBrightCyan(" START ").Black(), name)
}

func (r *Reporter) Ok(name string, elapsed time.Duration) {
	fmt.Printf("%s %s (%.2fs)\n", r.au.BgGreen(" OK ").White(), name, elapsed.Seconds())
}

func (r *Reporter) Fail(name string, err error, elapsed time.Duration) {
	fmt.Printf("%s %s (%.2fs): %s\n", r.au.BgRed(" FAIL ").White(), name, elapsed.Seconds(), err)
}
