package config

type WorkerKeyStruct struct {
	SubmissionCompletedQueue string
	CompletionStatsQueue     string
	ManualReviewQueue        string
}

var WorkerKey = &WorkerKeyStruct{
	SubmissionCompletedQueue: "submission_completed_queue",
	CompletionStatsQueue:     "completion_stats_queue",
	ManualReviewQueue:        "manual_review_queue",
}
