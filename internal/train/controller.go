// Package train runs the epoch loop: training batches with optimizer steps,
// then a validation pass, recording cumulative metrics per epoch.
package train

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/happyhackingspace/nerd/internal/config"
	"github.com/happyhackingspace/nerd/internal/features"
	"github.com/happyhackingspace/nerd/internal/metrics"
	"github.com/happyhackingspace/nerd/internal/tracking"
	"github.com/happyhackingspace/nerd/model"
)

// State is the controller's position in a run.
type State int

const (
	Idle State = iota
	TrainingEpoch
	ValidatingEpoch
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case TrainingEpoch:
		return "training"
	case ValidatingEpoch:
		return "validating"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrNotIdle is returned when Run is called on a controller that already ran.
var ErrNotIdle = errors.New("controller already ran")

// Optimizer updates the model parameters from their gradients.
type Optimizer interface {
	ZeroGrad()
	Step()
}

// Options configure a Controller beyond the run environment.
type Options struct {
	// OutsideID is the tag id padding is remapped to before scoring.
	OutsideID int
	// Label names tag ids in the classification report.
	Label func(id int) string
	// Tracker receives per-epoch scalars. Nil discards them.
	Tracker tracking.Tracker
}

// Controller drives one training run. It is not safe for concurrent use.
type Controller struct {
	env   *config.Env
	model *model.Model
	opt   Optimizer
	train *features.Dataset
	val   *features.Dataset
	opts  Options
	log   *slog.Logger

	state   State
	history History
	report  metrics.Report
}

// NewController prepares a run. Both splits are aligned to one width.
func NewController(env *config.Env, m *model.Model, opt Optimizer, trainSet, valSet *features.Dataset, opts Options) (*Controller, error) {
	if trainSet == nil || trainSet.Len() == 0 || valSet == nil || valSet.Len() == 0 {
		return nil, features.ErrEmptyInput
	}
	if opts.Tracker == nil {
		opts.Tracker = tracking.Nop{}
	}
	if opts.Label == nil {
		opts.Label = func(id int) string { return fmt.Sprint(id) }
	}
	log := env.Logger
	if log == nil {
		log = slog.Default()
	}
	features.Align(trainSet, valSet)
	return &Controller{env: env, model: m, opt: opt, train: trainSet, val: valSet, opts: opts, log: log}, nil
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// History returns the epochs recorded so far.
func (c *Controller) History() *History { return &c.history }

// Report returns the classification report of the last validation pass.
func (c *Controller) Report() metrics.Report { return c.report }

func (c *Controller) enter(s State, epoch int) {
	c.log.Debug("State transition", "from", c.state, "to", s, "epoch", epoch)
	c.state = s
}

// Run trains for epochs epochs and returns the history. Each epoch appends
// exactly one entry to every train and validation series.
func (c *Controller) Run(epochs int) (*History, error) {
	if c.state != Idle {
		return nil, ErrNotIdle
	}
	if epochs < 1 {
		return nil, fmt.Errorf("epochs must be positive, got %d", epochs)
	}
	for epoch := 1; epoch <= epochs; epoch++ {
		c.enter(TrainingEpoch, epoch)
		trainLoss, trainAcc, err := c.epoch(epoch, c.train, true)
		if err != nil {
			return nil, fmt.Errorf("epoch %d training: %w", epoch, err)
		}

		c.enter(ValidatingEpoch, epoch)
		valLoss, valAcc, err := c.epoch(epoch, c.val, false)
		if err != nil {
			return nil, fmt.Errorf("epoch %d validation: %w", epoch, err)
		}

		trainScores, valScores := trainAcc.Scores(), valAcc.Scores()
		c.history.Train.add(trainLoss, trainScores)
		c.history.Validation.add(valLoss, valScores)
		c.report = valAcc.Report(c.opts.Label)

		c.log.Info("Epoch complete",
			"epoch", epoch,
			"train_loss", fmt.Sprintf("%.4f", trainLoss),
			"train_f1", fmt.Sprintf("%.4f", trainScores.F1),
			"val_loss", fmt.Sprintf("%.4f", valLoss),
			"val_acc", fmt.Sprintf("%.4f", valScores.Accuracy),
			"val_f1", fmt.Sprintf("%.4f", valScores.F1),
		)
		c.log.Info("Validation report\n" + c.report.String())
		c.log.Debug("CRF transitions", "epoch", epoch, "values", c.model.CRF.TransScores())

		err = c.opts.Tracker.LogMetrics(epoch, map[string]float64{
			"train_loss":      trainLoss,
			"train_accuracy":  trainScores.Accuracy,
			"train_precision": trainScores.Precision,
			"train_recall":    trainScores.Recall,
			"train_f1":        trainScores.F1,
			"val_loss":        valLoss,
			"val_accuracy":    valScores.Accuracy,
			"val_precision":   valScores.Precision,
			"val_recall":      valScores.Recall,
			"val_f1":          valScores.F1,
		})
		if err != nil {
			c.log.Warn("Tracker rejected metrics", "epoch", epoch, "error", err)
		}
	}
	c.enter(Done, epochs)
	return &c.history, nil
}

// epoch makes one pass over ds. Metrics accumulate over every batch of the
// pass and are never reset per batch; the returned loss is the mean batch
// loss.
func (c *Controller) epoch(epoch int, ds *features.Dataset, train bool) (float64, *metrics.Accumulator, error) {
	batches := features.Batches(ds.Len(), c.env.Config.BatchSize, train, c.env.Config.Seed, epoch)
	acc := metrics.NewAccumulator(c.opts.OutsideID)
	every := max(1, len(batches)/3)
	total := 0.0
	for i, rows := range batches {
		batch := ds.Subset(rows)
		if train {
			c.opt.ZeroGrad()
		}
		res, err := c.model.Loss(model.InputOf(batch), batch.Tags, train)
		if err != nil {
			return 0, nil, err
		}
		total += res.Loss

		// Decode with the parameters that produced the emissions.
		paths, err := c.model.CRF.Decode(res.Emissions, res.Mask)
		if err != nil {
			return 0, nil, err
		}
		if train {
			c.opt.Step()
		}
		for r, path := range paths {
			if err := acc.Add(batch.Tags.Row(r), path); err != nil {
				return 0, nil, err
			}
		}

		if train && (i+1)%every == 0 {
			sc := acc.Scores()
			c.log.Info("Training progress",
				"epoch", epoch,
				"batch", fmt.Sprintf("%d/%d", i+1, len(batches)),
				"loss", fmt.Sprintf("%.4f", total/float64(i+1)),
				"acc", fmt.Sprintf("%.4f", sc.Accuracy),
				"f1", fmt.Sprintf("%.4f", sc.F1),
			)
		}
	}
	return total / float64(len(batches)), acc, nil
}
