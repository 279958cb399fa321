// Package report records the outcome of every verification a controller
// performs and persists finished runs.
//
// A [Log] is append-only: results are never rewritten once recorded. A
// [Report] wraps the log of one backend run with its identity (run id,
// backend, seed) so a failure can be reproduced:
//
//	repo := report.NewFileRepository("/tmp/crashprobe/report.json")
//	if err := repo.Save(ctx, reports); err != nil {
//	    return err
//	}
package report
