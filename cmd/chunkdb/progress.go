package main

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// transferBar shows byte progress on stderr. It renders nothing when stderr is
// not a terminal or quiet is set.
type transferBar struct {
	progress *mpb.Progress
	bar      *mpb.Bar
}

func newTransferBar(title string, total int64, quiet bool) *transferBar {
	var progress *mpb.Progress
	if !quiet && isatty.IsTerminal(os.Stderr.Fd()) {
		progress = mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
	} else {
		progress = mpb.New(mpb.WithWidth(64), mpb.WithOutput(nil))
	}
	bar := progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(title, decor.WCSyncWidth),
			decor.CountersKibiByte("% .1f / % .1f"),
		),
		mpb.AppendDecorators(
			decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "done"),
		),
	)
	return &transferBar{progress: progress, bar: bar}
}

func (t *transferBar) Reader(r io.Reader) io.Reader {
	return t.bar.ProxyReader(r)
}

func (t *transferBar) Writer(w io.Writer) io.Writer {
	return t.bar.ProxyWriter(w)
}

// Done completes or aborts the bar and waits for the final render.
func (t *transferBar) Done(err error) {
	if err != nil {
		t.bar.Abort(false)
	} else {
		t.bar.SetTotal(-1, true)
	}
	t.progress.Wait()
}
