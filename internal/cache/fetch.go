package cache

import (
	"context"
	stderrors "errors"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repostats/internal/errors"
)

// DefaultBatchSize is how many new items are fetched between checkpoints.
const DefaultBatchSize = 100

// Source yields the items of one repository.
type Source interface {
	// ItemsAfter calls fn for every item numbered above after, in ascending
	// number order, stopping at the first error fn returns.
	ItemsAfter(ctx context.Context, after int, fn func(Entry) error) error
}

// FetchOptions tune Fetch.
type FetchOptions struct {
	BatchSize int
}

// FetchResult summarises one Fetch.
type FetchResult struct {
	StartHighWater int
	HighWater      int
	New            int
	Checkpoints    int
}

// Fetch pulls everything newer than the cache's high-water mark from src,
// saving after every BatchSize new items and again at the end. When src
// fails the items fetched so far are still saved, except on authentication
// failures which leave the file (and the journal) as they were at the last
// checkpoint.
func Fetch(ctx context.Context, c *Cache, src Source, opts FetchOptions, logger logrus.FieldLogger) (FetchResult, error) {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	res := FetchResult{StartHighWater: c.HighWater()}
	saved := res.StartHighWater
	logger = logger.WithField("high_water", res.StartHighWater)
	logger.Info("fetching items")

	err := src.ItemsAfter(ctx, res.StartHighWater, func(e Entry) error {
		if e.Number <= res.StartHighWater {
			return nil
		}
		added, err := c.Merge(e)
		if err != nil {
			return err
		}
		if !added {
			return nil
		}
		res.New++
		if res.New%batch == 0 {
			if err := c.Save(); err != nil {
				return err
			}
			res.Checkpoints++
			saved = e.Number
			logger.WithFields(logrus.Fields{"new": res.New, "last": e.Number}).Info("checkpoint saved")
		}
		return nil
	})
	res.HighWater = c.HighWater()

	if err != nil {
		if errors.GetType(err) == errors.ErrorTypeSecurity {
			if jerr := c.discardJournal(saved); jerr != nil {
				logger.WithError(jerr).Error("failed to discard unsaved journal entries")
			}
			return res, withFetchContext(err, res)
		}
		if saveErr := c.Save(); saveErr != nil {
			logger.WithError(saveErr).Error("failed to save partial fetch")
		} else {
			logger.WithField("new", res.New).Warn("fetch interrupted, partial results saved")
		}
		return res, withFetchContext(classify(err), res)
	}

	if err := c.Save(); err != nil {
		return res, err
	}
	logger.WithFields(logrus.Fields{"new": res.New, "total": c.Len()}).Info("fetch complete")
	return res, nil
}

// withFetchContext records how far the fetch got on a typed error.
func withFetchContext(err error, res FetchResult) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		e.WithContext("high_water", res.StartHighWater).WithContext("new", res.New)
	}
	return err
}

func classify(err error) error {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return err
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.SeverityMedium, "fetch cancelled")
	}
	return errors.NetworkError(err, "failed to fetch items")
}
