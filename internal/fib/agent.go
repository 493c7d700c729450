package fib

import (
	"context"
	"log/slog"
)

// Result counts what an agent pass did.
type Result struct {
	Changed   int
	Unchanged int
	Failed    int
}

func (r *Result) merge(o Result) {
	r.Changed += o.Changed
	r.Unchanged += o.Unchanged
	r.Failed += o.Failed
}

// Agent applies entry sets to the static FIB file and the running forwarder.
// A failing entry is logged and the pass continues with the next one.
type Agent struct {
	Static StaticFile
	Router Router
	Logger *slog.Logger
}

func (a Agent) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.Logger
}

// Apply adds every static entry to the file and every dynamic entry to the forwarder.
func (a Agent) Apply(ctx context.Context, set EntrySet) Result {
	var res Result
	res.merge(a.eachStatic(set.Static, "add", a.Static.Add))
	res.merge(a.eachDynamic(ctx, set.Dynamic, "add", a.Router.Add))
	return res
}

// Remove undoes Apply.
func (a Agent) Remove(ctx context.Context, set EntrySet) Result {
	var res Result
	res.merge(a.eachStatic(set.Static, "remove", a.Static.Remove))
	res.merge(a.eachDynamic(ctx, set.Dynamic, "del", a.Router.Del))
	return res
}

func (a Agent) eachStatic(entries []Entry, op string, fn func(Entry) (bool, error)) Result {
	var res Result
	logger := a.logger()
	for _, e := range entries {
		changed, err := fn(e)
		switch {
		case err != nil:
			res.Failed++
			logger.Error("static FIB entry failed", "op", op, "entry", e.Line(), "file", a.Static.Path, "error", err)
		case changed:
			res.Changed++
			logger.Info("static FIB entry updated", "op", op, "entry", e.Line(), "file", a.Static.Path)
		default:
			res.Unchanged++
			logger.Info("static FIB entry unchanged", "op", op, "entry", e.Line())
		}
	}
	return res
}

func (a Agent) eachDynamic(ctx context.Context, entries []Entry, op string, fn func(context.Context, Entry) error) Result {
	var res Result
	logger := a.logger()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			res.Failed++
			logger.Error("dynamic FIB entry skipped", "op", op, "entry", e.Line(), "error", err)
			continue
		}
		if err := fn(ctx, e); err != nil {
			res.Failed++
			logger.Error("dynamic FIB entry failed", "op", op, "entry", e.Line(), "error", err)
			continue
		}
		res.Changed++
		logger.Info("dynamic FIB entry updated", "op", op, "entry", e.Line())
	}
	return res
}
