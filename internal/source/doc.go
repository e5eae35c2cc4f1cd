// Package source produces the ordered units of a run.
//
// GitSource lists the commits a source ref has on top of the target branch.
// DirSource reads patch files from a directory. Both fill Unit.Metadata
// with author, subject, timestamp and the diffstat (changed files, added
// and deleted lines). The engine never reads metadata; the triage
// classifier and the CLI do.
package source
