// Package scheduler arms the one-shot war announcements.
// Each server has at most one pending war; its timer lives in memory and its
// record in storage, and the Service keeps both in step on every transition.
// Start re-arms the wars persisted by a previous run.
package scheduler
