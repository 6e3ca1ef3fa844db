// Package channel reads conda channel indexes over HTTP.
//
// A channel serves one repodata.json per subdir (linux-64, noarch, ...).
// [Available] folds the indexes of several channels into the
// "version build" availability map of config.Config, which the pipeline's
// finalizer and pin_compatible consult:
//
//	c := channel.NewClient("https://conda.anaconda.org/conda-forge", store, channel.TTLRepodata)
//	avail, err := channel.Available(ctx, []*channel.Client{c}, []string{"linux-64", "noarch"}, false)
//	cfg.Available = channel.Merge(cfg.Available, avail)
//
// Responses are cached in a cache.Cache and 5xx or connection failures are
// retried with backoff.
package channel
