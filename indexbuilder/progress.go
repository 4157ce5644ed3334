package indexbuilder

import (
	"github.com/schollz/progressbar/v3"
)

// progressReporter abstracts over "there is a progress bar" and "there
// isn't", so countBins doesn't need an opts.ShowProgress branch at every
// call site.
type progressReporter interface {
	Add(n int)
	Close()
}

type noopProgress struct{}

func (noopProgress) Add(int) {}
func (noopProgress) Close()  {}

type barProgress struct {
	bar *progressbar.ProgressBar
}

func newBar(total uint64) progressReporter {
	return &barProgress{
		bar: progressbar.Default(int64(total), "counting bins"),
	}
}

func (b *barProgress) Add(n int) { _ = b.bar.Add(n) }
func (b *barProgress) Close()    { _ = b.bar.Close() }
