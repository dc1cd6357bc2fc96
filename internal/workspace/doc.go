// Package workspace owns the per-run scratch directories under
// paths.work_dir.
//
// A Manager hands out one run directory at a time, guarded by an advisory
// file lock so two vidscribe processes never share a work tree. Leftover run
// directories from crashed or kept-on-failure runs are swept by age.
package workspace
