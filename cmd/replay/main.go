package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	persistlog "citycore/internal/persistence/log"
	"citycore/internal/sim/entity"
	"citycore/internal/sim/tuning"
	"citycore/internal/sim/world"
)

type replayOptions struct {
	TuningPath string
	DataDir    string
	EventsDir  string
	FromTick   uint64
	ToTick     uint64
}

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &replayOptions{}
	cmd := &cobra.Command{
		Use:          "citycore-replay",
		Short:        "Re-run a world from its tick log and verify every digest",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			tune, err := tuning.Load(opts.TuningPath)
			if err != nil {
				return err
			}
			dir := opts.EventsDir
			if dir == "" {
				dir = persistlog.EventsDir(filepath.Join(opts.DataDir, "worlds", tune.WorldID))
			}
			res, err := replay(tune, dir, opts.FromTick, opts.ToTick)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "replay ok: world=%s checked=%d ticks last=%d\n", tune.WorldID, res.Checked, res.LastTick)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.TuningPath, "tuning", "./configs/tuning.yaml", "tuning the world ran with")
	f.StringVar(&opts.DataDir, "data", "./data", "runtime data directory")
	f.StringVar(&opts.EventsDir, "events", "", "events dir containing events-*.jsonl.zst (default: <data>/worlds/<world>/events)")
	f.Uint64Var(&opts.FromTick, "from-tick", 0, "start verifying digests from tick (inclusive)")
	f.Uint64Var(&opts.ToTick, "to-tick", 0, "stop after tick (inclusive, 0 = end of log)")
	return cmd
}

type result struct {
	Checked  uint64
	LastTick uint64
}

var errStop = errors.New("stop")

// replay rebuilds a fresh world from tuning and feeds it every recorded tick.
// The log must start at tick 0; there are no snapshots to resume from.
func replay(tune tuning.Tuning, eventsDir string, fromTick, toTick uint64) (result, error) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	w, err := world.New(tune, nil, log)
	if err != nil {
		return result{}, fmt.Errorf("world: %w", err)
	}

	var res result
	err = persistlog.ReadTicks(eventsDir, func(entry world.TickLogEntry) error {
		if toTick != 0 && entry.Tick > toTick {
			return errStop
		}
		if entry.Tick != w.CurrentTick() {
			return fmt.Errorf("tick mismatch: want=%d got=%d", w.CurrentTick(), entry.Tick)
		}

		joins := make([]world.JoinRequest, 0, len(entry.Joins))
		for _, j := range entry.Joins {
			joins = append(joins, world.JoinRequest{PlayerID: j.Conn, Name: j.Name})
		}
		leaves := make([]entity.ConnID, 0, len(entry.Leaves))
		for _, id := range entry.Leaves {
			leaves = append(leaves, entity.ConnID(id))
		}
		reqs := make([]world.Envelope, 0, len(entry.Requests))
		for _, r := range entry.Requests {
			reqs = append(reqs, world.Envelope{Conn: entity.ConnID(r.Conn), Req: r.Req})
		}

		tick, digest := w.StepOnce(joins, leaves, reqs)
		res.LastTick = tick
		if tick >= fromTick {
			res.Checked++
			if digest != entry.Digest {
				return fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, entry.Digest)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return res, err
	}
	return res, nil
}
