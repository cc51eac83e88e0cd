// Package dataset builds the canonical creature dataset.
//
// The Resolver lists the species of one generation, the Fetcher turns one
// species document into a Record, and the Aggregator fans both out across
// all generations, waits for every task, sorts the flattened result by id
// and writes it as one JSON file.
//
// Example usage:
//
//	agg := dataset.NewAggregator(apiClient, scheduler.New("dataset", 20), fs)
//	ds, stats, err := agg.Run(ctx, 9, "data/pokemon_data.json")
//
// Failures are isolated: a species that cannot be fetched or decoded is
// logged and left out, a generation that cannot be resolved contributes no
// records. Only a failure to write the dataset file is returned.
package dataset
