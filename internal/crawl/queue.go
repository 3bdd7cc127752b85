package crawl

import "github.com/michaelscutari/dredge/internal/entry"

// Job lists Path and attaches the results under Parent's item named Key.
// The root job has a nil Parent and fills the crawl's root node.
type Job struct {
	Path   string
	Parent *entry.Node
	Key    string
}

// Queue is a FIFO backlog of pending jobs. It is not safe for concurrent
// use; the crawler guards it with its own lock.
type Queue struct {
	jobs []Job
	head int
}

// Push appends a job.
func (q *Queue) Push(job Job) {
	q.jobs = append(q.jobs, job)
}

// PopFront removes and returns the oldest job.
func (q *Queue) PopFront() (Job, bool) {
	if q.head >= len(q.jobs) {
		return Job{}, false
	}
	job := q.jobs[q.head]
	q.jobs[q.head] = Job{}
	q.head++

	// Reclaim the consumed prefix once it dominates the slice.
	if q.head > 64 && q.head*2 >= len(q.jobs) {
		n := copy(q.jobs, q.jobs[q.head:])
		clear(q.jobs[n:])
		q.jobs = q.jobs[:n]
		q.head = 0
	}
	return job, true
}

// Len returns the number of pending jobs.
func (q *Queue) Len() int {
	return len(q.jobs) - q.head
}

// Clear drops every pending job.
func (q *Queue) Clear() {
	q.jobs = nil
	q.head = 0
}
